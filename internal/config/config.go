package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rbias/clusterpulse/internal/cluster"
)

const (
	SourcePowerShell = "powershell"
	SourceDatabase   = "database"

	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"
)

// defaultSASExpiry is how long report download links stay valid.
const defaultSASExpiry = 7 * 24 * time.Hour

// Config holds the application configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Source selects where topology and events come from.
	Source     string           `mapstructure:"source"`
	PowerShell PowerShellConfig `mapstructure:"powershell"`
	Database   DatabaseConfig   `mapstructure:"database"`

	Clusters []cluster.ClusterConfig `mapstructure:"clusters"`

	Report ReportConfig `mapstructure:"report"`

	WorkspaceRoot string `mapstructure:"workspace_root"`

	// Azure Blob Storage for report artifacts
	AzureStorageConnectionString string `mapstructure:"azure_storage_connection_string"`
	AzureStorageAccount          string `mapstructure:"azure_storage_account"`
	AzureStorageKey              string `mapstructure:"azure_storage_key"`
	AzureStorageContainer        string `mapstructure:"azure_storage_container"`
	AzureSASExpiry               string `mapstructure:"azure_storage_sas_expiry"`

	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
	NotifyOnFailure bool   `mapstructure:"notify_on_failure"`

	Server ServerConfig `mapstructure:"server"`
}

// PowerShellConfig controls the live PowerShell collaborators.
type PowerShellConfig struct {
	// Executable is pwsh or powershell.exe.
	Executable     string `mapstructure:"executable"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DatabaseConfig selects the event/topology store.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// URL is the PostgreSQL connection string.
	URL string `mapstructure:"url"`
	// MigrationsPath overrides the embedded migrations when set.
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ReportConfig holds report defaults that CLI flags may override.
type ReportConfig struct {
	Detailed        bool   `mapstructure:"detailed"`
	Format          string `mapstructure:"format"`
	Output          string `mapstructure:"output"`
	Passthrough     bool   `mapstructure:"passthrough"`
	Matcher         string `mapstructure:"matcher"`
	TimestampFormat string `mapstructure:"timestamp_format"`
	RecordRuns      bool   `mapstructure:"record_runs"`
}

// ServerConfig configures the HTTP report server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

var validFormats = map[string]bool{
	"table":    true,
	"csv":      true,
	"json":     true,
	"markdown": true,
	"html":     true,
}

var validMatchers = map[string]bool{
	"substring":      true,
	"substring-fold": true,
	"token":          true,
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("source", SourcePowerShell)
	viper.SetDefault("powershell.executable", "pwsh")
	viper.SetDefault("powershell.timeout_seconds", 60)
	viper.SetDefault("database.type", DatabaseSQLite)
	viper.SetDefault("database.path", "./clusterpulse.db")
	viper.SetDefault("report.format", "table")
	viper.SetDefault("report.passthrough", true)
	viper.SetDefault("report.matcher", "substring")
	viper.SetDefault("report.record_runs", true)
	viper.SetDefault("workspace_root", "./reports")
	viper.SetDefault("azure_storage_sas_expiry", "168h")
	viper.SetDefault("server.port", 8080)
}

func bindEnv() {
	envBindings := map[string]string{
		"log_level":                       "LOG_LEVEL",
		"log_format":                      "LOG_FORMAT",
		"source":                          "CLUSTERPULSE_SOURCE",
		"powershell.executable":           "CLUSTERPULSE_POWERSHELL",
		"database.type":                   "DATABASE_TYPE",
		"database.path":                   "DATABASE_PATH",
		"database.url":                    "DATABASE_URL",
		"workspace_root":                  "WORKSPACE_ROOT",
		"azure_storage_connection_string": "AZURE_STORAGE_CONNECTION_STRING",
		"azure_storage_account":           "AZURE_STORAGE_ACCOUNT",
		"azure_storage_key":               "AZURE_STORAGE_KEY",
		"azure_storage_container":         "AZURE_STORAGE_CONTAINER",
		"azure_storage_sas_expiry":        "AZURE_STORAGE_SAS_EXPIRY",
		"slack_webhook_url":               "SLACK_WEBHOOK_URL",
		"server.port":                     "CLUSTERPULSE_PORT",
	}
	for key, env := range envBindings {
		_ = viper.BindEnv(key, env)
	}
}

// BindFlags binds command-line flags to viper keys so flags take precedence
// over env vars and the config file. Only flags present in the set are bound.
func BindFlags(flags *pflag.FlagSet) {
	flagBindings := map[string]string{
		"log-level":      "log_level",
		"log-format":     "log_format",
		"source":         "source",
		"workspace-root": "workspace_root",
		"database-path":  "database.path",
		"database-url":   "database.url",
		"port":           "server.port",
	}
	for flag, key := range flagBindings {
		if f := flags.Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// Load reads configuration from the default search locations.
func Load() (*Config, error) {
	return LoadWithConfigFile("")
}

// LoadWithConfigFile loads configuration with precedence
// flags > env vars > config file > defaults. An explicit configFile must
// exist; without one, a missing clusterpulse.yaml is not an error.
func LoadWithConfigFile(configFile string) (*Config, error) {
	setDefaults()
	bindEnv()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("clusterpulse")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/clusterpulse")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfigFile returns the config file that was read, if any.
func GetConfigFile() string {
	return viper.ConfigFileUsed()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: must be text or json", c.LogFormat)
	}

	switch c.Source {
	case SourcePowerShell:
		if c.PowerShell.Executable == "" {
			return fmt.Errorf("powershell.executable is required when source is %q", SourcePowerShell)
		}
		if c.PowerShell.TimeoutSeconds < 1 {
			return fmt.Errorf("powershell.timeout_seconds must be >= 1, got %d", c.PowerShell.TimeoutSeconds)
		}
	case SourceDatabase:
	default:
		return fmt.Errorf("invalid source %q: must be %s or %s", c.Source, SourcePowerShell, SourceDatabase)
	}

	switch c.Database.Type {
	case DatabaseSQLite:
		if c.Source == SourceDatabase && c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DatabasePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("invalid database.type %q: must be %s or %s", c.Database.Type, DatabaseSQLite, DatabasePostgres)
	}

	if !validFormats[c.Report.Format] {
		return fmt.Errorf("invalid report.format %q: must be table, csv, json, markdown or html", c.Report.Format)
	}
	if !validMatchers[c.Report.Matcher] {
		return fmt.Errorf("invalid report.matcher %q: must be substring, substring-fold or token", c.Report.Matcher)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}

	if c.IsAzureStorageEnabled() && c.AzureStorageConnectionString == "" &&
		(c.AzureStorageAccount == "" || c.AzureStorageKey == "") {
		return fmt.Errorf("azure storage requires a connection string or both account and key")
	}

	registry := cluster.NewRegistry()
	if err := registry.Load(c.Clusters); err != nil {
		return fmt.Errorf("invalid clusters: %w", err)
	}

	return nil
}

// IsAzureStorageEnabled reports whether report artifacts go to Azure Blob Storage.
func (c *Config) IsAzureStorageEnabled() bool {
	return c.AzureStorageContainer != "" &&
		(c.AzureStorageConnectionString != "" || c.AzureStorageAccount != "")
}

// IsDatabaseEnabled reports whether a database store is in use, either as
// the report source or for run history.
func (c *Config) IsDatabaseEnabled() bool {
	if c.Source == SourceDatabase {
		return true
	}
	if c.Database.Type == DatabasePostgres {
		return c.Database.URL != ""
	}
	if c.Database.Path == "" {
		return false
	}
	_, err := os.Stat(c.Database.Path)
	return err == nil
}

// GetWorkspaceRoot returns the local directory for report artifacts.
func (c *Config) GetWorkspaceRoot() string {
	if c.WorkspaceRoot == "" {
		return "./reports"
	}
	return c.WorkspaceRoot
}

// GetAzureSASExpiry parses AzureSASExpiry, falling back to 7 days.
func (c *Config) GetAzureSASExpiry() time.Duration {
	if c.AzureSASExpiry == "" {
		return defaultSASExpiry
	}
	d, err := time.ParseDuration(c.AzureSASExpiry)
	if err != nil || d <= 0 {
		return defaultSASExpiry
	}
	return d
}

// GetPowerShellTimeout returns the per-command PowerShell timeout.
func (c *Config) GetPowerShellTimeout() time.Duration {
	return time.Duration(c.PowerShell.TimeoutSeconds) * time.Second
}

func (c *Config) GetAzureConnectionString() string { return c.AzureStorageConnectionString }
func (c *Config) GetAzureAccount() string          { return c.AzureStorageAccount }
func (c *Config) GetAzureKey() string              { return c.AzureStorageKey }
func (c *Config) GetAzureContainer() string        { return c.AzureStorageContainer }
