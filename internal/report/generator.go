package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/correlate"
	"github.com/rbias/clusterpulse/internal/events"
)

// ErrTopologyFetch marks failures enumerating nodes, groups or resources.
var ErrTopologyFetch = errors.New("topology fetch failed")

// Phase names the driver step that failed.
type Phase string

const (
	PhaseResolve   Phase = "resolve_cluster"
	PhaseNodes     Phase = "list_nodes"
	PhaseEvents    Phase = "aggregate_events"
	PhaseGroups    Phase = "list_resource_groups"
	PhaseAssemble  Phase = "assemble"
	PhaseCompleted Phase = "completed"
)

// GenerationError is returned for any failure that aborts a report.
// No rows accompany it.
type GenerationError struct {
	Cluster string
	Phase   Phase
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate report for cluster %q (%s): %v", e.Cluster, e.Phase, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// State is the driver's lifecycle state.
type State string

const (
	StateRunning          State = "running"
	StateTerminatedOK     State = "terminated_ok"
	StateTerminatedFailed State = "terminated_failed"
)

// Request selects what to generate.
type Request struct {
	Cluster  string
	Detailed bool
	// Passthrough controls whether the caller wants the rows back. When
	// false the report is still generated in full and then discarded.
	Passthrough bool
}

// Generator drives one report generation end to end.
type Generator struct {
	topology cluster.Topology
	source   events.Source
	opts     Options
	agg      *events.Aggregator
	matcher  correlate.Matcher
	now      func() time.Time
}

// Options configures a Generator.
type Options struct {
	// Matcher correlates events to groups. Defaults to correlate.Substring{}.
	Matcher correlate.Matcher
	// FetchTimeout bounds each node fetch. Defaults to events.DefaultFetchTimeout.
	FetchTimeout time.Duration
	// FetchConcurrency caps simultaneous node fetches per category.
	FetchConcurrency int
}

// NewGenerator wires topology and an event source into a Generator. The
// source is wrapped so unreachable nodes degrade to "no events". A source
// that implements events.ClusterScoped is narrowed to each report's cluster.
func NewGenerator(topology cluster.Topology, source events.Source, opts Options) *Generator {
	if opts.Matcher == nil {
		opts.Matcher = correlate.Substring{}
	}
	return &Generator{
		topology: topology,
		source:   source,
		opts:     opts,
		agg:      newAggregator(source, opts),
		matcher:  opts.Matcher,
		now:      time.Now,
	}
}

func newAggregator(source events.Source, opts Options) *events.Aggregator {
	return events.NewAggregator(events.Tolerant(source, opts.FetchTimeout), opts.FetchConcurrency)
}

// aggregatorFor returns the aggregator that reads events of clusterName.
func (g *Generator) aggregatorFor(clusterName string) *events.Aggregator {
	if scoped, ok := g.source.(events.ClusterScoped); ok {
		return newAggregator(scoped.ForCluster(clusterName), g.opts)
	}
	return g.agg
}

// Generate produces the full report for req.Cluster or fails as a whole.
func (g *Generator) Generate(ctx context.Context, req Request) (*Report, error) {
	started := g.now()
	logger := slog.With("cluster", req.Cluster, "detailed", req.Detailed)
	logger.Info("report generation started", "state", StateRunning)

	rep, phase, err := g.run(ctx, req)
	if err != nil {
		genErr := &GenerationError{Cluster: req.Cluster, Phase: phase, Err: err}
		logger.Error("report generation failed",
			"state", StateTerminatedFailed,
			"phase", phase,
			"error", err)
		return nil, genErr
	}

	rep.ID = uuid.New().String()
	rep.GeneratedAt = started
	logger.Info("report generation completed",
		"state", StateTerminatedOK,
		"report_id", rep.ID,
		"row_count", rep.Len(),
		"duration", g.now().Sub(started))

	if !req.Passthrough {
		logger.Debug("passthrough disabled, discarding rows", "report_id", rep.ID)
		return nil, nil
	}
	return rep, nil
}

func (g *Generator) run(ctx context.Context, req Request) (*Report, Phase, error) {
	handle, err := g.topology.ResolveCluster(ctx, req.Cluster)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, PhaseResolve, ctxErr
		}
		if !errors.Is(err, cluster.ErrClusterNotFound) {
			err = fmt.Errorf("%w: %w", cluster.ErrClusterNotFound, err)
		}
		return nil, PhaseResolve, err
	}

	nodes, err := g.topology.ListNodes(ctx, handle)
	if err != nil {
		return nil, PhaseNodes, fmt.Errorf("%w: list nodes: %w", ErrTopologyFetch, err)
	}
	slog.Debug("cluster nodes listed", "cluster", handle.Name, "node_count", len(nodes))

	streams, err := g.aggregatorFor(handle.Name).AggregateAll(ctx, cluster.NodeNames(nodes))
	if err != nil {
		return nil, PhaseEvents, err
	}

	groups, err := g.topology.ListResourceGroups(ctx, handle)
	if err != nil {
		return nil, PhaseGroups, fmt.Errorf("%w: list resource groups: %w", ErrTopologyFetch, err)
	}

	rep, err := Assemble(ctx, AssembleInput{
		Cluster:   handle,
		Groups:    groups,
		Streams:   streams,
		Matcher:   g.matcher,
		Detailed:  req.Detailed,
		Resources: g.topology,
	})
	if err != nil {
		return nil, PhaseAssemble, err
	}
	return rep, PhaseCompleted, nil
}

// Result is the outcome of one cluster in GenerateAll.
type Result struct {
	Cluster string
	Report  *Report
	Err     error
}

// GenerateAll generates a report per cluster, one after another. Each
// report stays all-or-nothing; a failed cluster does not stop the rest.
func (g *Generator) GenerateAll(ctx context.Context, clusters []string, detailed bool) []Result {
	results := make([]Result, 0, len(clusters))
	for _, name := range clusters {
		if ctx.Err() != nil {
			results = append(results, Result{Cluster: name, Err: &GenerationError{Cluster: name, Phase: PhaseResolve, Err: ctx.Err()}})
			continue
		}
		rep, err := g.Generate(ctx, Request{Cluster: name, Detailed: detailed, Passthrough: true})
		results = append(results, Result{Cluster: name, Report: rep, Err: err})
	}
	return results
}
