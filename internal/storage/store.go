package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/events"
)

// StateStore is a database holding ingested topology snapshots, event
// history and report run history. It serves reports through the
// cluster.Topology and events.Source contracts.
type StateStore interface {
	cluster.Topology
	events.Source
	events.ClusterScoped

	// IngestTopology replaces the stored snapshot of each cluster in snap.
	IngestTopology(ctx context.Context, snap *TopologySnapshot) error

	// IngestEvents stores event records, skipping exact duplicates.
	// It returns the number of records inserted.
	IngestEvents(ctx context.Context, batch *EventBatch) (int, error)

	// ListClusters returns the names of clusters with a stored snapshot.
	ListClusters(ctx context.Context) ([]string, error)

	// RecordReportRun stores the outcome of one report generation.
	RecordReportRun(ctx context.Context, run *ReportRun) error

	// ListReportRuns returns runs newest first.
	ListReportRuns(ctx context.Context, filters *ReportRunFilters) ([]*ReportRun, error)

	Health(ctx context.Context) error
	Close() error
}

// TopologySnapshot is the full state of one or more clusters at ingest time.
type TopologySnapshot struct {
	Clusters []ClusterSnapshot `yaml:"clusters" json:"clusters"`
}

// ClusterSnapshot is one cluster's membership and group/resource state.
// Slice order is preserved and becomes the order reports list groups in.
type ClusterSnapshot struct {
	Name    string          `yaml:"name" json:"name"`
	Address string          `yaml:"address,omitempty" json:"address,omitempty"`
	Nodes   []cluster.Node  `yaml:"nodes" json:"nodes"`
	Groups  []GroupSnapshot `yaml:"groups" json:"groups"`
}

// GroupSnapshot is a resource group with the resources it owns.
type GroupSnapshot struct {
	cluster.ResourceGroup `yaml:",inline"`
	Resources             []cluster.Resource `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// EventRecord is one event-log entry to ingest.
type EventRecord struct {
	Node        string
	LogName     string
	EventID     int
	TimeCreated time.Time
	Message     string
}

// EventBatch is a set of event records collected from one cluster.
type EventBatch struct {
	Cluster string
	Records []EventRecord
}

// Report run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ReportRun is the history entry of one report generation.
type ReportRun struct {
	ID          string    `json:"id"`
	Cluster     string    `json:"cluster"`
	Detailed    bool      `json:"detailed"`
	Status      string    `json:"status"`
	RowCount    int       `json:"row_count"`
	Error       string    `json:"error,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NewReportRun builds the history entry of one generation. A nil err
// marks success. An empty id is replaced by a fresh UUID, since failed
// generations produce no report ID.
func NewReportRun(id, cluster string, detailed bool, rowCount int, err error, at time.Time) *ReportRun {
	if id == "" {
		id = uuid.New().String()
	}
	run := &ReportRun{
		ID:          id,
		Cluster:     cluster,
		Detailed:    detailed,
		Status:      RunStatusSucceeded,
		RowCount:    rowCount,
		GeneratedAt: at,
	}
	if err != nil {
		run.Status = RunStatusFailed
		run.RowCount = 0
		run.Error = err.Error()
	}
	return run
}

// ReportRunFilters narrows ListReportRuns.
type ReportRunFilters struct {
	Cluster  string
	Statuses []string
	Limit    int
}
