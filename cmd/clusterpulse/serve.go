package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbias/clusterpulse/internal/config"
	"github.com/rbias/clusterpulse/internal/mcpserver"
	"github.com/rbias/clusterpulse/internal/reporting"
	"github.com/rbias/clusterpulse/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports over HTTP",
	Long: "Serve reports over HTTP:\n" +
		"  GET /healthz\n" +
		"  GET /clusters\n" +
		"  GET /reports/{cluster}?detailed=true&format=json|csv|html|markdown|table",
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve report tools to MCP clients over stdio",
	RunE:  runMCP,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "Port for the report server (overrides config file and CLUSTERPULSE_PORT env var)")
	config.BindFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	printStartupBanner(os.Stderr, "serve", cfg, config.GetConfigFile())

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, tuning)
	if err != nil {
		return err
	}
	defer a.Close()

	breaker := reporting.NewCircuitBreaker(tuning.Reporting.FailureThreshold, tuning)
	opts := []server.Option{
		server.WithFailureMonitor(reporting.NewFailureMonitor(breaker, a.alerter())),
	}
	if a.store != nil {
		opts = append(opts, server.WithHealthChecker(a.store))
		if a.recordRuns() {
			opts = append(opts, server.WithRunRecorder(a.store))
		}
	}

	srv := server.NewServer(a.generator, a.clusters, server.Config{
		Port:              cfg.Server.Port,
		ReadHeaderTimeout: time.Duration(tuning.HTTP.ReadHeaderTimeoutSeconds) * time.Second,
		Render:            a.renderOptions(),
	}, opts...)
	return srv.Start(ctx)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, tuning)
	if err != nil {
		return err
	}
	defer a.Close()

	var runs mcpserver.RunStore
	if a.recordRuns() {
		runs = a.store
	}
	return mcpserver.New(a.generator, a.clusters, runs, Version).Run(ctx)
}
