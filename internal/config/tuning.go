package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// TuningConfig holds tunable operational parameters that control system behavior.
// These parameters can be adjusted without changing core application configuration.
type TuningConfig struct {
	Events    EventsTuning    `mapstructure:"events"`
	HTTP      HTTPTuning      `mapstructure:"http"`
	Report    ReportTuning    `mapstructure:"report"`
	Reporting ReportingTuning `mapstructure:"reporting"`
}

// EventsTuning controls node event fetches.
type EventsTuning struct {
	// FetchTimeoutSeconds bounds a single node fetch. A node that does not
	// answer in time is treated as having no events.
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`

	// FetchConcurrency caps simultaneous node fetches per category.
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
}

// HTTPTuning contains HTTP client and server tuning parameters.
type HTTPTuning struct {
	// SlackTimeoutSeconds is the timeout for Slack webhook HTTP requests.
	SlackTimeoutSeconds int `mapstructure:"slack_timeout_seconds"`

	// ReadHeaderTimeoutSeconds guards the report server against slow clients.
	ReadHeaderTimeoutSeconds int `mapstructure:"read_header_timeout_seconds"`
}

// ReportTuning contains rendering parameters.
type ReportTuning struct {
	// TimestampFormat is a Go time layout used by text renderers.
	TimestampFormat string `mapstructure:"timestamp_format"`

	// UnhealthyDisplayCount is how many unhealthy groups a Slack summary lists.
	UnhealthyDisplayCount int `mapstructure:"unhealthy_display_count"`
}

// ReportingTuning controls failure alerting of the report server.
type ReportingTuning struct {
	// FailureThreshold is how many consecutive failed generations open the
	// circuit and send a degraded alert.
	FailureThreshold int `mapstructure:"failure_threshold"`

	// FailureReasonsDisplayCount is how many recent reasons an alert shows.
	FailureReasonsDisplayCount int `mapstructure:"failure_reasons_display_count"`

	// MaxFailureReasonsTracked bounds the reasons kept in memory.
	MaxFailureReasonsTracked int `mapstructure:"max_failure_reasons_tracked"`
}

// defaultTuning returns a TuningConfig with sensible defaults.
// These defaults are used when tuning.yaml is not found or values are missing.
func defaultTuning() *TuningConfig {
	return &TuningConfig{
		Events: EventsTuning{
			FetchTimeoutSeconds: 30,
			FetchConcurrency:    8,
		},
		HTTP: HTTPTuning{
			SlackTimeoutSeconds:      10,
			ReadHeaderTimeoutSeconds: 10,
		},
		Report: ReportTuning{
			TimestampFormat:       "2006-01-02 15:04:05",
			UnhealthyDisplayCount: 10,
		},
		Reporting: ReportingTuning{
			FailureThreshold:           3,
			FailureReasonsDisplayCount: 3,
			MaxFailureReasonsTracked:   5,
		},
	}
}

// LoadTuning loads tuning configuration from tuning.yaml in the standard
// locations. If the file is not found, it returns default values.
func LoadTuning() (*TuningConfig, error) {
	return LoadTuningWithFile("")
}

// LoadTuningWithFile loads tuning configuration from a specific file path.
// If tuningFile is empty, it searches for tuning.yaml in standard locations.
// If the file is not found, it returns a TuningConfig with default values.
// A separate viper instance keeps tuning apart from the main configuration.
func LoadTuningWithFile(tuningFile string) (*TuningConfig, error) {
	v := viper.New()

	defaults := defaultTuning()
	v.SetDefault("events.fetch_timeout_seconds", defaults.Events.FetchTimeoutSeconds)
	v.SetDefault("events.fetch_concurrency", defaults.Events.FetchConcurrency)
	v.SetDefault("http.slack_timeout_seconds", defaults.HTTP.SlackTimeoutSeconds)
	v.SetDefault("http.read_header_timeout_seconds", defaults.HTTP.ReadHeaderTimeoutSeconds)
	v.SetDefault("report.timestamp_format", defaults.Report.TimestampFormat)
	v.SetDefault("report.unhealthy_display_count", defaults.Report.UnhealthyDisplayCount)
	v.SetDefault("reporting.failure_threshold", defaults.Reporting.FailureThreshold)
	v.SetDefault("reporting.failure_reasons_display_count", defaults.Reporting.FailureReasonsDisplayCount)
	v.SetDefault("reporting.max_failure_reasons_tracked", defaults.Reporting.MaxFailureReasonsTracked)

	if tuningFile != "" {
		v.SetConfigFile(tuningFile)
	} else {
		v.SetConfigName("tuning")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/clusterpulse")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		if _, ok := err.(*os.PathError); ok {
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to read tuning config: %w", err)
	}

	var tuning TuningConfig
	if err := v.Unmarshal(&tuning); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tuning config: %w", err)
	}

	if err := tuning.Validate(); err != nil {
		return nil, err
	}

	return &tuning, nil
}

// Validate checks tuning parameters for valid ranges.
func (t *TuningConfig) Validate() error {
	if t.Events.FetchTimeoutSeconds < 1 {
		return fmt.Errorf("events.fetch_timeout_seconds must be >= 1, got %d", t.Events.FetchTimeoutSeconds)
	}
	if t.Events.FetchConcurrency < 1 {
		return fmt.Errorf("events.fetch_concurrency must be >= 1, got %d", t.Events.FetchConcurrency)
	}

	if t.HTTP.SlackTimeoutSeconds < 1 {
		return fmt.Errorf("http.slack_timeout_seconds must be >= 1, got %d", t.HTTP.SlackTimeoutSeconds)
	}
	if t.HTTP.ReadHeaderTimeoutSeconds < 1 {
		return fmt.Errorf("http.read_header_timeout_seconds must be >= 1, got %d", t.HTTP.ReadHeaderTimeoutSeconds)
	}

	if t.Report.TimestampFormat == "" {
		return fmt.Errorf("report.timestamp_format must not be empty")
	}
	if t.Report.UnhealthyDisplayCount < 1 {
		return fmt.Errorf("report.unhealthy_display_count must be >= 1, got %d", t.Report.UnhealthyDisplayCount)
	}

	if t.Reporting.FailureThreshold < 1 {
		return fmt.Errorf("reporting.failure_threshold must be >= 1, got %d", t.Reporting.FailureThreshold)
	}
	if t.Reporting.FailureReasonsDisplayCount < 1 {
		return fmt.Errorf("reporting.failure_reasons_display_count must be >= 1, got %d", t.Reporting.FailureReasonsDisplayCount)
	}
	if t.Reporting.MaxFailureReasonsTracked < t.Reporting.FailureReasonsDisplayCount {
		return fmt.Errorf("reporting.max_failure_reasons_tracked (%d) must be >= failure_reasons_display_count (%d)",
			t.Reporting.MaxFailureReasonsTracked, t.Reporting.FailureReasonsDisplayCount)
	}

	return nil
}

// FetchTimeout returns the per-node fetch timeout.
func (t *TuningConfig) FetchTimeout() time.Duration {
	return time.Duration(t.Events.FetchTimeoutSeconds) * time.Second
}

// SlackTimeout returns the Slack webhook request timeout.
func (t *TuningConfig) SlackTimeout() time.Duration {
	return time.Duration(t.HTTP.SlackTimeoutSeconds) * time.Second
}

// GetTuningFile returns the tuning config file that was used, if any.
func GetTuningFile(v *viper.Viper) string {
	if v != nil {
		return v.ConfigFileUsed()
	}
	return ""
}
