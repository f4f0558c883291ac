package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"
)

// DefaultFetchConcurrency caps simultaneous node fetches per aggregation.
const DefaultFetchConcurrency = 8

// Aggregator merges per-node fetch results into time-descending streams.
type Aggregator struct {
	src         Source
	concurrency int
}

// NewAggregator returns an Aggregator reading from src. A concurrency
// below 1 uses DefaultFetchConcurrency.
func NewAggregator(src Source, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = DefaultFetchConcurrency
	}
	return &Aggregator{src: src, concurrency: concurrency}
}

// Aggregate fetches category's records from every node and returns them
// merged and sorted newest first. Tie order is unspecified.
func (a *Aggregator) Aggregate(ctx context.Context, nodes []string, category Category) (Stream, error) {
	binding, err := BindingFor(category)
	if err != nil {
		return nil, err
	}

	// One slot per node; goroutines never share a slot.
	perNode := make([][]Record, len(nodes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, node := range nodes {
		g.Go(func() error {
			records, err := a.src.FetchEvents(gctx, node, binding.LogName, binding.EventID)
			if err != nil {
				return fmt.Errorf("fetch %s from node %s: %w", category, node, err)
			}
			perNode[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(perNode), nil
}

// AggregateAll builds the stream of every category concurrently.
func (a *Aggregator) AggregateAll(ctx context.Context, nodes []string) (map[Category]Stream, error) {
	streams := make([]Stream, len(Categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range Categories {
		g.Go(func() error {
			stream, err := a.Aggregate(gctx, nodes, category)
			if err != nil {
				return err
			}
			streams[i] = stream
			slog.Debug("event stream aggregated",
				"category", category.String(),
				"node_count", len(nodes),
				"record_count", len(stream))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[Category]Stream, len(Categories))
	for i, category := range Categories {
		result[category] = streams[i]
	}
	return result, nil
}

func merge(perNode [][]Record) Stream {
	total := 0
	for _, records := range perNode {
		total += len(records)
	}

	merged := make(Stream, 0, total)
	for _, records := range perNode {
		merged = append(merged, records...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.After(merged[j].Time)
	})
	return merged
}
