package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbias/clusterpulse/internal/render"
	"github.com/rbias/clusterpulse/internal/report"
	"github.com/rbias/clusterpulse/internal/reporting"
	"github.com/rbias/clusterpulse/internal/storage"
)

var reportFlags struct {
	clusters    []string
	all         bool
	detailed    bool
	format      string
	output      string
	passthrough bool
	upload      bool
	notify      bool
}

var reportCmd = &cobra.Command{
	Use:   "report [CLUSTER...]",
	Short: "Generate a cluster status report",
	Long: "Generate a status report for one or more clusters. Each report either succeeds " +
		"as a whole or fails with a diagnostic; no partial report is ever written.",
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringSliceVar(&reportFlags.clusters, "cluster", nil, "Cluster to report on (repeatable)")
	f.BoolVar(&reportFlags.all, "all", false, "Report on every known cluster")
	f.BoolVar(&reportFlags.detailed, "detailed", false, "One row per resource instead of per resource group")
	f.StringVarP(&reportFlags.format, "format", "f", "", "Output format: table, csv, json, markdown, html")
	f.StringVarP(&reportFlags.output, "output", "o", "", "Write the report to this file instead of stdout")
	f.BoolVar(&reportFlags.passthrough, "passthrough", true, "Return the generated rows (false generates and discards them)")
	f.BoolVar(&reportFlags.upload, "upload", false, "Save report artifacts to the workspace or Azure Blob Storage")
	f.BoolVar(&reportFlags.notify, "notify", false, "Post a summary to Slack")
}

// reportSettings is the effective report configuration after flags are
// layered over the config file.
type reportSettings struct {
	detailed    bool
	passthrough bool
	format      render.Format
	output      string
}

func resolveReportSettings(cmd *cobra.Command) (reportSettings, error) {
	s := reportSettings{
		detailed:    cfg.Report.Detailed,
		passthrough: cfg.Report.Passthrough,
		output:      cfg.Report.Output,
	}
	if cmd.Flags().Changed("detailed") {
		s.detailed = reportFlags.detailed
	}
	if cmd.Flags().Changed("passthrough") {
		s.passthrough = reportFlags.passthrough
	}
	if reportFlags.output != "" {
		s.output = reportFlags.output
	}

	format := cfg.Report.Format
	if reportFlags.format != "" {
		format = reportFlags.format
	}
	f, err := render.ParseFormat(format)
	if err != nil {
		return s, err
	}
	s.format = f
	return s, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	settings, err := resolveReportSettings(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg, tuning)
	if err != nil {
		return err
	}
	defer a.Close()

	names := append(append([]string(nil), reportFlags.clusters...), args...)
	if reportFlags.all {
		names, err = a.clusters.ListClusters(ctx)
		if err != nil {
			return fmt.Errorf("failed to list clusters: %w", err)
		}
	}
	if len(names) == 0 {
		return errors.New("no cluster given: use --cluster NAME or --all")
	}

	var artifactStore storage.Storage
	if reportFlags.upload {
		artifactStore, err = storage.NewStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage backend: %w", err)
		}
	}

	var failed []error
	for _, name := range names {
		if err := generateOne(ctx, a, name, settings, len(names) > 1, artifactStore, cmd.OutOrStdout()); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	return nil
}

// generateOne runs one generation and delivers its result. The returned
// error is the generation failure, if any; delivery problems after a
// successful generation are returned too.
func generateOne(ctx context.Context, a *app, name string, s reportSettings, multi bool, artifactStore storage.Storage, stdout io.Writer) error {
	started := time.Now()
	rep, err := a.generator.Generate(ctx, report.Request{
		Cluster:     name,
		Detailed:    s.detailed,
		Passthrough: s.passthrough,
	})

	if a.recordRuns() {
		var id string
		var rows int
		if rep != nil {
			id, rows = rep.ID, rep.Len()
		}
		if recErr := a.store.RecordReportRun(ctx, storage.NewReportRun(id, name, s.detailed, rows, err, started)); recErr != nil {
			slog.Warn("failed to record report run", "cluster", name, "error", recErr)
		}
	}

	if err != nil {
		if reportFlags.notify && a.notifier != nil && a.cfg.NotifyOnFailure {
			if nErr := a.notifier.SendReportFailure(ctx, reporting.NewFailureSummary(name, err)); nErr != nil {
				slog.Error("failed to send slack failure notification", "cluster", name, "error", nErr)
			}
		}
		return err
	}
	if rep == nil {
		slog.Info("report generated without passthrough, rows discarded", "cluster", name)
		return nil
	}

	if err := writeReport(rep, s, multi, stdout, a.renderOptions()); err != nil {
		return err
	}

	summary := reporting.NewReportSummary(rep)
	summary.Duration = time.Since(started)

	if artifactStore != nil {
		artifacts, err := render.Artifacts(rep, a.renderOptions())
		if err != nil {
			return err
		}
		result, err := artifactStore.SaveReport(ctx, rep.ID, artifacts)
		if err != nil {
			return fmt.Errorf("failed to save report artifacts for %s: %w", name, err)
		}
		slog.Info("report artifacts saved", "cluster", name, "report_id", rep.ID, "location", result.ReportURL)
		if strings.HasPrefix(result.ReportURL, "https://") || strings.HasPrefix(result.ReportURL, "http://") {
			summary.ReportURL = result.ReportURL
		} else {
			summary.ReportPath = result.ReportURL
		}
	}

	if reportFlags.notify {
		if a.notifier == nil {
			slog.Warn("--notify given but slack_webhook_url is not configured")
		} else if err := a.notifier.SendReportSummary(ctx, summary); err != nil {
			slog.Error("failed to send slack notification", "cluster", name, "error", err)
		}
	}
	return nil
}

// writeReport renders rep to stdout or to the output file. With several
// clusters the output file name gets the cluster name as a suffix.
func writeReport(rep *report.Report, s reportSettings, multi bool, stdout io.Writer, opts render.Options) error {
	var buf bytes.Buffer
	if err := render.Render(&buf, rep, s.format, opts); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if s.output == "" {
		if multi && s.format == render.FormatTable {
			fmt.Fprintf(stdout, "== %s ==\n", rep.Cluster)
		}
		_, err := stdout.Write(buf.Bytes())
		return err
	}

	path := s.output
	if multi {
		path = outputPath(s.output, rep.Cluster)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("report written", "cluster", rep.Cluster, "path", path, "row_count", rep.Len())
	return nil
}

// outputPath inserts the cluster name before the extension of base.
func outputPath(base, cluster string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + cluster + ext
}
