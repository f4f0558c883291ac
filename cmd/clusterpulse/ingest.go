package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rbias/clusterpulse/internal/events"
	"github.com/rbias/clusterpulse/internal/powershell"
	"github.com/rbias/clusterpulse/internal/storage"
)

var ingestFlags struct {
	cluster string
	node    string
	file    string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load topology snapshots and event exports into the database",
}

var ingestEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Ingest a Get-WinEvent JSON export",
	Long: "Ingest a Get-WinEvent export produced with\n" +
		"  Get-WinEvent ... | Select-Object TimeCreated,Id,LogName,Message,MachineName | ConvertTo-Json\n" +
		"Only the failover clustering events used by reports are stored; exact duplicates are skipped.",
	RunE: runIngestEvents,
}

var ingestTopologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Ingest a YAML topology snapshot",
	RunE:  runIngestTopology,
}

func init() {
	ingestEventsCmd.Flags().StringVar(&ingestFlags.cluster, "cluster", "", "Cluster the events belong to")
	ingestEventsCmd.Flags().StringVar(&ingestFlags.node, "node", "", "Node the events were read from (default: host label of each record's MachineName)")
	ingestEventsCmd.Flags().StringVar(&ingestFlags.file, "file", "", "Path to the JSON export")
	_ = ingestEventsCmd.MarkFlagRequired("cluster")
	_ = ingestEventsCmd.MarkFlagRequired("file")

	ingestTopologyCmd.Flags().StringVar(&ingestFlags.file, "file", "", "Path to the YAML snapshot")
	_ = ingestTopologyCmd.MarkFlagRequired("file")

	ingestCmd.AddCommand(ingestEventsCmd, ingestTopologyCmd)
}

func runIngestEvents(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(ingestFlags.file)
	if err != nil {
		return fmt.Errorf("failed to read event export: %w", err)
	}
	exported, err := powershell.ParseEvents(data)
	if err != nil {
		return fmt.Errorf("failed to parse event export %s: %w", ingestFlags.file, err)
	}

	batch, skipped, err := eventBatch(ingestFlags.cluster, ingestFlags.node, exported)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	inserted, err := store.IngestEvents(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to ingest events: %w", err)
	}

	slog.Info("events ingested",
		"cluster", batch.Cluster,
		"file", ingestFlags.file,
		"read", len(exported),
		"skipped_uncategorized", skipped,
		"inserted", inserted,
		"duplicates", len(batch.Records)-inserted)
	return nil
}

// eventBatch keeps the exported events that map to a report category.
// It returns the batch and the number of events dropped as irrelevant.
func eventBatch(clusterName, node string, exported []powershell.ExportedEvent) (*storage.EventBatch, int, error) {
	batch := &storage.EventBatch{Cluster: clusterName}
	skipped := 0
	for i, ev := range exported {
		if _, ok := events.CategoryFor(ev.LogName, ev.ID); !ok {
			skipped++
			continue
		}
		rec := ev.Record(node)
		if rec.Node == "" {
			return nil, 0, fmt.Errorf("event %d (%s/%d) has no MachineName; pass --node", i, ev.LogName, ev.ID)
		}
		batch.Records = append(batch.Records, storage.EventRecord{
			Node:        rec.Node,
			LogName:     ev.LogName,
			EventID:     ev.ID,
			TimeCreated: rec.Time,
			Message:     rec.Message,
		})
	}
	return batch, skipped, nil
}

func runIngestTopology(cmd *cobra.Command, args []string) error {
	snap, err := loadTopology(ingestFlags.file)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.IngestTopology(ctx, snap); err != nil {
		return fmt.Errorf("failed to ingest topology: %w", err)
	}

	for _, c := range snap.Clusters {
		slog.Info("topology ingested",
			"cluster", c.Name,
			"node_count", len(c.Nodes),
			"group_count", len(c.Groups))
	}
	return nil
}

// loadTopology reads and validates a YAML topology snapshot.
func loadTopology(path string) (*storage.TopologySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file: %w", err)
	}

	var snap storage.TopologySnapshot
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse topology file %s: %w", path, err)
	}

	if len(snap.Clusters) == 0 {
		return nil, errors.New("topology file lists no clusters")
	}
	seen := make(map[string]bool)
	for _, c := range snap.Clusters {
		if c.Name == "" {
			return nil, errors.New("topology file has a cluster without a name")
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("cluster %s listed twice", c.Name)
		}
		seen[c.Name] = true
		for _, g := range c.Groups {
			if g.Name == "" {
				return nil, fmt.Errorf("cluster %s has a resource group without a name", c.Name)
			}
		}
	}
	return &snap, nil
}
