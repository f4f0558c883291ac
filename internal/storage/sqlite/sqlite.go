// Package sqlite provides a SQLite implementation of the StateStore interface.
// It uses an embedded SQLite database with WAL mode for better concurrency.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rbias/clusterpulse/internal/cluster"
	"github.com/rbias/clusterpulse/internal/events"
	"github.com/rbias/clusterpulse/internal/storage"
)

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements the StateStore interface using SQLite.
// It provides an embedded database solution with connection pooling
// and WAL mode for improved concurrency performance.
type Store struct {
	db *sql.DB
}

var _ storage.StateStore = (*Store)(nil)

// Config holds configuration options for the SQLite store.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Default: "./clusterpulse.db"
	Path string

	// BusyTimeout is the maximum time to wait for a locked database.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 25
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	// Default: 1 hour
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Path:            "./clusterpulse.db",
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// New creates a new SQLite store with the provided configuration.
// The schema must already exist; run storage.RunMigrations first.
//
// Example usage:
//
//	cfg := sqlite.DefaultConfig()
//	cfg.Path = "/var/lib/clusterpulse/clusterpulse.db"
//	store, err := sqlite.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		absPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// ResolveCluster looks up an ingested cluster snapshot by name.
func (s *Store) ResolveCluster(ctx context.Context, name string) (cluster.Handle, error) {
	var h cluster.Handle
	err := s.db.QueryRowContext(ctx,
		`SELECT name, address FROM clusters WHERE name = ?`, name,
	).Scan(&h.Name, &h.Address)
	if errors.Is(err, sql.ErrNoRows) {
		return cluster.Handle{}, fmt.Errorf("%w: %s", cluster.ErrClusterNotFound, name)
	}
	if err != nil {
		return cluster.Handle{}, fmt.Errorf("failed to resolve cluster: %w", err)
	}
	return h, nil
}

// ListNodes returns the cluster's nodes in ingest order.
func (s *Store) ListNodes(ctx context.Context, c cluster.Handle) ([]cluster.Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, state FROM cluster_nodes WHERE cluster = ? ORDER BY seq`, c.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []cluster.Node
	for rows.Next() {
		var n cluster.Node
		if err := rows.Scan(&n.Name, &n.State); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node rows: %w", err)
	}
	return nodes, nil
}

// ListResourceGroups returns the cluster's groups in ingest order.
func (s *Store) ListResourceGroups(ctx context.Context, c cluster.Handle) ([]cluster.ResourceGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, owner_node, state FROM resource_groups WHERE cluster = ? ORDER BY seq`, c.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to list resource groups: %w", err)
	}
	defer rows.Close()

	var groups []cluster.ResourceGroup
	for rows.Next() {
		var g cluster.ResourceGroup
		if err := rows.Scan(&g.Name, &g.OwnerNode, &g.State); err != nil {
			return nil, fmt.Errorf("failed to scan resource group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource group rows: %w", err)
	}
	return groups, nil
}

// ListResources returns the resources owned by group in ingest order.
func (s *Store) ListResources(ctx context.Context, c cluster.Handle, group cluster.ResourceGroup) ([]cluster.Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, group_name, owner_node, state
		FROM resources
		WHERE cluster = ? AND group_name = ?
		ORDER BY seq
	`, c.Name, group.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []cluster.Resource
	for rows.Next() {
		var r cluster.Resource
		if err := rows.Scan(&r.Name, &r.OwnerGroup, &r.OwnerNode, &r.State); err != nil {
			return nil, fmt.Errorf("failed to scan resource row: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resource rows: %w", err)
	}
	return resources, nil
}

// FetchEvents returns the stored events of one node, log and event ID,
// newest first, across every cluster that has a node by that name.
func (s *Store) FetchEvents(ctx context.Context, node, logName string, eventID int) ([]events.Record, error) {
	return s.fetchEvents(ctx, "", node, logName, eventID)
}

// ForCluster implements events.ClusterScoped. Fetches only see events
// ingested for clusterName, so clusters may reuse node host names.
func (s *Store) ForCluster(clusterName string) events.Source {
	return events.SourceFunc(func(ctx context.Context, node, logName string, eventID int) ([]events.Record, error) {
		return s.fetchEvents(ctx, clusterName, node, logName, eventID)
	})
}

func (s *Store) fetchEvents(ctx context.Context, clusterName, node, logName string, eventID int) ([]events.Record, error) {
	query := `
		SELECT time_created, message
		FROM cluster_events
		WHERE node = ? AND log_name = ? AND event_id = ?`
	args := []interface{}{node, logName, eventID}
	if clusterName != "" {
		query += " AND cluster = ?"
		args = append(args, clusterName)
	}
	query += " ORDER BY time_created DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer rows.Close()

	var records []events.Record
	for rows.Next() {
		var created, message string
		if err := rows.Scan(&created, &message); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		t, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		records = append(records, events.Record{Time: t, Message: message, Node: node})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return records, nil
}

// IngestTopology replaces each cluster's nodes, groups and resources in
// one transaction. Clusters not named in snap are left untouched.
func (s *Store) IngestTopology(ctx context.Context, snap *storage.TopologySnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for _, c := range snap.Clusters {
		if c.Name == "" {
			return fmt.Errorf("cluster name is required")
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO clusters (name, address, ingested_at) VALUES (?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET address = excluded.address, ingested_at = excluded.ingested_at
		`, c.Name, c.Address, now)
		if err != nil {
			return fmt.Errorf("failed to upsert cluster %s: %w", c.Name, err)
		}

		// Resources cascade from resource_groups.
		for _, table := range []string{"cluster_nodes", "resource_groups"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE cluster = ?", c.Name); err != nil {
				return fmt.Errorf("failed to clear %s of %s: %w", table, c.Name, err)
			}
		}

		for i, n := range c.Nodes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cluster_nodes (cluster, name, state, seq) VALUES (?, ?, ?, ?)`,
				c.Name, n.Name, n.State, i)
			if err != nil {
				return fmt.Errorf("failed to insert node %s: %w", n.Name, err)
			}
		}

		for i, g := range c.Groups {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO resource_groups (cluster, name, owner_node, state, seq) VALUES (?, ?, ?, ?, ?)`,
				c.Name, g.Name, g.OwnerNode, g.State, i)
			if err != nil {
				return fmt.Errorf("failed to insert resource group %s: %w", g.Name, err)
			}
			for j, r := range g.Resources {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO resources (cluster, group_name, name, owner_node, state, seq)
					VALUES (?, ?, ?, ?, ?, ?)
				`, c.Name, g.Name, r.Name, r.OwnerNode, r.State, j)
				if err != nil {
					return fmt.Errorf("failed to insert resource %s: %w", r.Name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IngestEvents inserts event records, ignoring exact duplicates.
func (s *Store) IngestEvents(ctx context.Context, batch *storage.EventBatch) (int, error) {
	if batch == nil {
		return 0, fmt.Errorf("batch cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO cluster_events (cluster, node, log_name, event_id, time_created, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range batch.Records {
		res, err := stmt.ExecContext(ctx, batch.Cluster, r.Node, r.LogName, r.EventID, formatTime(r.TimeCreated), r.Message)
		if err != nil {
			return 0, fmt.Errorf("failed to insert event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// ListClusters returns the names of ingested clusters, sorted.
func (s *Store) ListClusters(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM clusters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan cluster row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster rows: %w", err)
	}
	return names, nil
}

// RecordReportRun stores one report run.
func (s *Store) RecordReportRun(ctx context.Context, run *storage.ReportRun) error {
	if run == nil {
		return fmt.Errorf("report run cannot be nil")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_runs (id, cluster, detailed, status, row_count, error, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Cluster, run.Detailed, run.Status, run.RowCount, run.Error, formatTime(run.GeneratedAt))
	if err != nil {
		return fmt.Errorf("failed to record report run: %w", err)
	}
	return nil
}

// ListReportRuns returns runs matching filters, newest first.
func (s *Store) ListReportRuns(ctx context.Context, filters *storage.ReportRunFilters) ([]*storage.ReportRun, error) {
	query := `
		SELECT id, cluster, detailed, status, row_count, error, generated_at
		FROM report_runs
		WHERE 1=1
	`
	args := []interface{}{}

	if filters != nil {
		if filters.Cluster != "" {
			query += " AND cluster = ?"
			args = append(args, filters.Cluster)
		}
		if len(filters.Statuses) > 0 {
			query += " AND status IN (?" + strings.Repeat(", ?", len(filters.Statuses)-1) + ")"
			for _, status := range filters.Statuses {
				args = append(args, status)
			}
		}
	}

	query += " ORDER BY generated_at DESC"

	if filters != nil && filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list report runs: %w", err)
	}
	defer rows.Close()

	var runs []*storage.ReportRun
	for rows.Next() {
		var run storage.ReportRun
		var generatedAt string
		if err := rows.Scan(&run.ID, &run.Cluster, &run.Detailed, &run.Status, &run.RowCount, &run.Error, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report run row: %w", err)
		}
		if run.GeneratedAt, err = parseTime(generatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report run rows: %w", err)
	}
	return runs, nil
}

// Health verifies the database answers queries.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close releases resources held by the store.
// Should be called during application shutdown.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}
