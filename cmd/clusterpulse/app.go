package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/config"
	"github.com/rbias/clusterpulse/internal/correlate"
	"github.com/rbias/clusterpulse/internal/events"
	"github.com/rbias/clusterpulse/internal/powershell"
	"github.com/rbias/clusterpulse/internal/render"
	"github.com/rbias/clusterpulse/internal/report"
	"github.com/rbias/clusterpulse/internal/reporting"
	"github.com/rbias/clusterpulse/internal/storage"
	"github.com/rbias/clusterpulse/internal/storage/postgres"
	"github.com/rbias/clusterpulse/internal/storage/sqlite"
)

// app holds the collaborators shared by the report, serve and mcp commands.
type app struct {
	cfg      *config.Config
	tuning   *config.TuningConfig
	registry *cluster.Registry

	// store is nil when no database is configured.
	store storage.StateStore

	generator *report.Generator
	clusters  interface {
		ListClusters(ctx context.Context) ([]string, error)
	}
	notifier *reporting.SlackNotifier
}

func newApp(ctx context.Context, cfg *config.Config, tuning *config.TuningConfig) (*app, error) {
	a := &app{cfg: cfg, tuning: tuning, registry: cluster.NewRegistry()}
	if err := a.registry.Load(cfg.Clusters); err != nil {
		return nil, fmt.Errorf("failed to load clusters: %w", err)
	}

	if cfg.IsDatabaseEnabled() {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	matcher, err := correlate.ParseMatcher(cfg.Report.Matcher)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := report.Options{
		Matcher:          matcher,
		FetchTimeout:     tuning.FetchTimeout(),
		FetchConcurrency: tuning.Events.FetchConcurrency,
	}

	var topology cluster.Topology
	var source events.Source
	switch cfg.Source {
	case config.SourceDatabase:
		if a.store == nil {
			return nil, fmt.Errorf("source %q requires a database", config.SourceDatabase)
		}
		topology, source = a.store, a.store
		a.clusters = a.store
	default:
		runner := powershell.NewRunner(powershell.RunnerConfig{
			Executable: cfg.PowerShell.Executable,
			Timeout:    cfg.GetPowerShellTimeout(),
		})
		topology = powershell.NewTopology(runner, a.registry)
		source = powershell.NewEventSource(runner)
		a.clusters = a.registry
	}
	a.generator = report.NewGenerator(topology, source, opts)

	if cfg.SlackWebhookURL != "" {
		a.notifier = reporting.NewSlackNotifier(cfg.SlackWebhookURL, tuning)
		slog.Info("slack notifications enabled")
	}

	slog.Info("report generator initialized",
		"source", cfg.Source,
		"matcher", matcher.Name(),
		"database_enabled", a.store != nil)
	return a, nil
}

// renderOptions prefers the config timestamp format over the tuning one.
func (a *app) renderOptions() render.Options {
	layout := a.cfg.Report.TimestampFormat
	if layout == "" {
		layout = a.tuning.Report.TimestampFormat
	}
	return render.Options{TimestampFormat: layout}
}

// recordRuns reports whether generations should be written to run history.
func (a *app) recordRuns() bool {
	return a.store != nil && a.cfg.Report.RecordRuns
}

// alerter returns the notifier as a reporting.Alerter, or nil.
func (a *app) alerter() reporting.Alerter {
	if a.notifier == nil {
		return nil
	}
	return a.notifier
}

func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

func migrationConfig(cfg *config.Config) *storage.MigrationConfig {
	return &storage.MigrationConfig{
		MigrationsPath: cfg.Database.MigrationsPath,
		DatabaseType:   cfg.Database.Type,
		DatabasePath:   cfg.Database.Path,
		DatabaseURL:    cfg.Database.URL,
	}
}

// openStore migrates the configured database to the latest schema and
// opens it.
func openStore(ctx context.Context, cfg *config.Config) (storage.StateStore, error) {
	if err := storage.RunMigrations(migrationConfig(cfg)); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	switch cfg.Database.Type {
	case config.DatabasePostgres:
		store, err := postgres.New(ctx, &postgres.Config{ConnectionString: cfg.Database.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		slog.Info("database opened", "type", config.DatabasePostgres)
		return store, nil
	default:
		sqliteCfg := sqlite.DefaultConfig()
		sqliteCfg.Path = cfg.Database.Path
		store, err := sqlite.New(sqliteCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		slog.Info("database opened", "type", config.DatabaseSQLite, "path", cfg.Database.Path)
		return store, nil
	}
}
