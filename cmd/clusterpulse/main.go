package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rbias/clusterpulse/internal/config"
)

var (
	// Version information (set via ldflags at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Global flags
	configFile string
	tuningFile string

	// Loaded by the root PersistentPreRunE for every command except version
	cfg    *config.Config
	tuning *config.TuningConfig
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clusterpulse",
	Short: "clusterpulse - failover cluster status reports",
	Long: "Reports the state of every resource group (or resource) of a Windows failover cluster " +
		"together with when it last came online, went offline and failed, correlated from node event logs.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information and exit",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to config file (default: searches for clusterpulse.yaml in ., ./configs, /etc/clusterpulse)")
	flags.StringVar(&tuningFile, "tuning", "", "Path to tuning file (default: searches for tuning.yaml)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (overrides config file and LOG_LEVEL env var)")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("source", "", "Report source: powershell or database (overrides config file and CLUSTERPULSE_SOURCE env var)")
	flags.String("database-path", "", "SQLite database file")
	flags.String("database-url", "", "PostgreSQL connection string")

	// Bind flags to viper for precedence handling
	config.BindFlags(flags)

	rootCmd.AddCommand(versionCmd, reportCmd, ingestCmd, migrateCmd, serveCmd, mcpCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if cmd == versionCmd {
		return nil
	}

	// Load configuration with precedence: flags > env vars > config file > defaults
	var err error
	cfg, err = config.LoadWithConfigFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Load tuning configuration (optional - uses defaults if not found)
	tuning, err = config.LoadTuningWithFile(tuningFile)
	if err != nil {
		return fmt.Errorf("failed to load tuning configuration: %w", err)
	}

	setupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.Debug("configuration loaded",
		"config_file", config.GetConfigFile(),
		"source", cfg.Source,
		"cluster_count", len(cfg.Clusters))
	return nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "clusterpulse version %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

// setupLogging installs the default logger. Logs go to w (stderr) so
// reports written to stdout stay clean.
func setupLogging(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func printStartupBanner(w io.Writer, mode string, cfg *config.Config, configFile string) {
	storageMode := "filesystem"
	if cfg.IsAzureStorageEnabled() {
		storageMode = "azure"
	}

	slackStatus := "disabled"
	if cfg.SlackWebhookURL != "" {
		slackStatus = "enabled"
	}

	configSource := configFile
	if configSource == "" {
		configSource = "(defaults only)"
	}

	database := "none"
	if cfg.IsDatabaseEnabled() {
		database = cfg.Database.Type
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║         clusterpulse - Failover Cluster Status Reports        ║")
	fmt.Fprintf(w, "║         Version: %-45s║\n", truncateString(Version, 45))
	fmt.Fprintf(w, "║         Built:   %-45s║\n", truncateString(BuildTime, 45))
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Mode:           %-45s ║\n", mode)
	fmt.Fprintf(w, "║  Config File:    %-45s ║\n", truncateString(configSource, 45))
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Source:         %-45s ║\n", cfg.Source)
	fmt.Fprintf(w, "║  Clusters:       %-45s ║\n", fmt.Sprintf("%d configured", len(cfg.Clusters)))
	fmt.Fprintf(w, "║  Database:       %-45s ║\n", database)
	fmt.Fprintf(w, "║  Matcher:        %-45s ║\n", cfg.Report.Matcher)
	fmt.Fprintln(w, "╠═══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Workspace Root: %-45s ║\n", truncateString(cfg.GetWorkspaceRoot(), 45))
	fmt.Fprintf(w, "║  Storage Mode:   %-45s ║\n", storageMode)
	fmt.Fprintf(w, "║  Slack:          %-45s ║\n", slackStatus)
	fmt.Fprintf(w, "║  Log Level:      %-45s ║\n", cfg.LogLevel)
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
