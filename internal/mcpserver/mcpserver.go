// Package mcpserver exposes report generation as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/report"
	"github.com/rbias/clusterpulse/internal/storage"
)

// Tool names.
const (
	ToolClusterStatusReport = "cluster_status_report"
	ToolListClusters        = "list_clusters"
	ToolReportHistory       = "report_history"
)

// Generator produces reports. *report.Generator implements it.
type Generator interface {
	Generate(ctx context.Context, req report.Request) (*report.Report, error)
}

// ClusterLister returns the names of known clusters.
type ClusterLister interface {
	ListClusters(ctx context.Context) ([]string, error)
}

// RunStore records and lists report run history.
type RunStore interface {
	RecordReportRun(ctx context.Context, run *storage.ReportRun) error
	ListReportRuns(ctx context.Context, filters *storage.ReportRunFilters) ([]*storage.ReportRun, error)
}

// ReportInput is the argument of cluster_status_report.
type ReportInput struct {
	Cluster  string `json:"cluster" jsonschema:"name of the cluster to report on"`
	Detailed bool   `json:"detailed,omitempty" jsonschema:"report one row per resource instead of per resource group"`
}

// ReportOutput is the structured result of cluster_status_report. Rows are
// keyed by column name; missing timestamps are "N/A".
type ReportOutput struct {
	ReportID string              `json:"report_id"`
	Cluster  string              `json:"cluster"`
	Detailed bool                `json:"detailed"`
	Header   []string            `json:"header"`
	Rows     []map[string]string `json:"rows"`
}

// ListClustersInput is the (empty) argument of list_clusters.
type ListClustersInput struct{}

// ListClustersOutput is the result of list_clusters.
type ListClustersOutput struct {
	Clusters []string `json:"clusters"`
}

// HistoryInput is the argument of report_history.
type HistoryInput struct {
	Cluster string `json:"cluster,omitempty" jsonschema:"only runs for this cluster"`
	Failed  bool   `json:"failed,omitempty" jsonschema:"only failed runs"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of runs (default 20)"`
}

// RunInfo is one history entry.
type RunInfo struct {
	ID          string `json:"id"`
	Cluster     string `json:"cluster"`
	Detailed    bool   `json:"detailed"`
	Status      string `json:"status"`
	RowCount    int    `json:"row_count"`
	Error       string `json:"error,omitempty"`
	GeneratedAt string `json:"generated_at"`
}

// HistoryOutput is the result of report_history.
type HistoryOutput struct {
	Runs []RunInfo `json:"runs"`
}

const defaultHistoryLimit = 20

// Server holds the tool handlers.
type Server struct {
	gen      Generator
	clusters ClusterLister
	runs     RunStore
	version  string
	now      func() time.Time
}

// New creates the tool handlers. runs may be nil, in which case runs are
// not recorded and report_history is not offered.
func New(gen Generator, clusters ClusterLister, runs RunStore, version string) *Server {
	return &Server{gen: gen, clusters: clusters, runs: runs, version: version, now: time.Now}
}

// MCPServer builds the protocol server with every tool registered.
func (s *Server) MCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "clusterpulse", Version: s.version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolClusterStatusReport,
		Description: "Generate a status report for a failover cluster: one row per resource group (or per resource when detailed) with its state and the last time it went online, offline or degraded.",
	}, s.clusterStatusReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListClusters,
		Description: "List the clusters reports can be generated for.",
	}, s.listClusters)

	if s.runs != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        ToolReportHistory,
			Description: "List recent report generations, newest first.",
		}, s.reportHistory)
	}

	return server
}

// Run serves the tools on stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting MCP server on stdio")
	return s.MCPServer().Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) clusterStatusReport(ctx context.Context, _ *mcp.CallToolRequest, in ReportInput) (*mcp.CallToolResult, ReportOutput, error) {
	if in.Cluster == "" {
		return nil, ReportOutput{}, errors.New("cluster is required")
	}
	if err := cluster.ValidateName(in.Cluster); err != nil {
		return nil, ReportOutput{}, err
	}

	started := s.now()
	rep, err := s.gen.Generate(ctx, report.Request{Cluster: in.Cluster, Detailed: in.Detailed, Passthrough: true})
	s.record(ctx, in, rep, err, started)
	if err != nil {
		return nil, ReportOutput{}, err
	}

	out := ReportOutput{
		ReportID: rep.ID,
		Cluster:  rep.Cluster,
		Detailed: rep.Detailed,
		Header:   rep.Header(),
		Rows:     make([]map[string]string, 0, rep.Len()),
	}
	for _, rec := range rep.Records(time.RFC3339) {
		row := make(map[string]string, len(out.Header))
		for i, col := range out.Header {
			row[col] = rec[i]
		}
		out.Rows = append(out.Rows, row)
	}

	summary := rep.Summarize()
	text := fmt.Sprintf("Report %s for cluster %s: %d rows", rep.ID, rep.Cluster, summary.Total)
	for _, sc := range summary.Statuses {
		text += fmt.Sprintf(", %s %d", sc.Status, sc.Count)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}

func (s *Server) record(ctx context.Context, in ReportInput, rep *report.Report, err error, at time.Time) {
	if s.runs == nil {
		return
	}
	var id string
	var rows int
	if rep != nil {
		id, rows = rep.ID, rep.Len()
	}
	if recErr := s.runs.RecordReportRun(ctx, storage.NewReportRun(id, in.Cluster, in.Detailed, rows, err, at)); recErr != nil {
		slog.Warn("failed to record report run", "cluster", in.Cluster, "error", recErr)
	}
}

func (s *Server) listClusters(ctx context.Context, _ *mcp.CallToolRequest, _ ListClustersInput) (*mcp.CallToolResult, ListClustersOutput, error) {
	names, err := s.clusters.ListClusters(ctx)
	if err != nil {
		return nil, ListClustersOutput{}, fmt.Errorf("failed to list clusters: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return nil, ListClustersOutput{Clusters: names}, nil
}

func (s *Server) reportHistory(ctx context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	filters := &storage.ReportRunFilters{Cluster: in.Cluster, Limit: in.Limit}
	if filters.Limit <= 0 {
		filters.Limit = defaultHistoryLimit
	}
	if in.Failed {
		filters.Statuses = []string{storage.RunStatusFailed}
	}

	runs, err := s.runs.ListReportRuns(ctx, filters)
	if err != nil {
		return nil, HistoryOutput{}, fmt.Errorf("failed to list report runs: %w", err)
	}

	out := HistoryOutput{Runs: make([]RunInfo, 0, len(runs))}
	for _, run := range runs {
		out.Runs = append(out.Runs, RunInfo{
			ID:          run.ID,
			Cluster:     run.Cluster,
			Detailed:    run.Detailed,
			Status:      run.Status,
			RowCount:    run.RowCount,
			Error:       run.Error,
			GeneratedAt: run.GeneratedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
