package events

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Source queries a node's event log for records with a given event id.
type Source interface {
	FetchEvents(ctx context.Context, node, logName string, eventID int) ([]Record, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, node, logName string, eventID int) ([]Record, error)

// FetchEvents calls f.
func (f SourceFunc) FetchEvents(ctx context.Context, node, logName string, eventID int) ([]Record, error) {
	return f(ctx, node, logName, eventID)
}

// ClusterScoped is implemented by sources that hold events for many
// clusters and can narrow fetches to one of them.
type ClusterScoped interface {
	ForCluster(cluster string) Source
}

// DefaultFetchTimeout bounds a single node fetch when no timeout is configured.
const DefaultFetchTimeout = 30 * time.Second

// TolerantSource never fails a fetch because of the node it talks to.
// Unreachable nodes, per-node timeouts and "no matching events" all yield
// an empty result. Only cancellation of the caller's context propagates.
type TolerantSource struct {
	src     Source
	timeout time.Duration
}

// Tolerant wraps src with per-node timeout and failure tolerance.
func Tolerant(src Source, timeout time.Duration) *TolerantSource {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &TolerantSource{src: src, timeout: timeout}
}

// FetchEvents implements Source.
func (t *TolerantSource) FetchEvents(ctx context.Context, node, logName string, eventID int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	records, err := t.src.FetchEvents(fetchCtx, node, logName, eventID)
	if err != nil {
		// The caller's own cancellation is not a node problem.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reason := "fetch_failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		slog.Warn("node_unreachable, treating as no events",
			"node", node,
			"log_name", logName,
			"event_id", eventID,
			"reason", reason,
			"error", err)
		return nil, nil
	}

	for i := range records {
		if records[i].Node == "" {
			records[i].Node = node
		}
	}
	return records, nil
}
