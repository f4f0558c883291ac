// Package report assembles cluster status reports from live topology and
// correlated event history.
package report

import (
	"time"

	"github.com/rbias/clusterpulse/internal/correlate"
)

// DefaultTimestampFormat is used when rendering timestamps as text.
const DefaultTimestampFormat = "2006-01-02 15:04:05"

// GroupRow is one resource group in a non-detailed report.
type GroupRow struct {
	ClusterType    string              `json:"cluster_type"`
	ClusterName    string              `json:"cluster_name"`
	ResourceGroup  string              `json:"resource_group"`
	ServerName     string              `json:"server_name"`
	ResourceStatus string              `json:"resource_status"`
	LastOnline     correlate.Timestamp `json:"last_online"`
	LastOffline    correlate.Timestamp `json:"last_offline"`
	LastDegraded   correlate.Timestamp `json:"last_degraded"`
}

// ResourceRow is one resource in a detailed report. Its timestamps are
// those of the owning group.
type ResourceRow struct {
	ClusterType    string              `json:"cluster_type"`
	ClusterName    string              `json:"cluster_name"`
	ResourceGroup  string              `json:"resource_group"`
	Resource       string              `json:"resource"`
	ServerName     string              `json:"server_name"`
	ResourceStatus string              `json:"resource_status"`
	LastOnline     correlate.Timestamp `json:"last_online"`
	LastOffline    correlate.Timestamp `json:"last_offline"`
	LastError      correlate.Timestamp `json:"last_error"`
}

var (
	groupHeader = []string{
		"ClusterType", "ClusterName", "ResourceGroup", "ServerName",
		"ResourceStatus", "LastOnline", "LastOffline", "LastDegraded",
	}
	resourceHeader = []string{
		"ClusterType", "ClusterName", "ResourceGroup", "Resource", "ServerName",
		"ResourceStatus", "LastOnline", "LastOffline", "LastError",
	}
)

// Report is the result of one generation. Exactly one of GroupRows and
// ResourceRows is used, selected by Detailed.
type Report struct {
	ID           string        `json:"id"`
	Cluster      string        `json:"cluster"`
	Detailed     bool          `json:"detailed"`
	GeneratedAt  time.Time     `json:"generated_at"`
	GroupRows    []GroupRow    `json:"group_rows,omitempty"`
	ResourceRows []ResourceRow `json:"resource_rows,omitempty"`
}

// Len returns the number of rows.
func (r *Report) Len() int {
	if r.Detailed {
		return len(r.ResourceRows)
	}
	return len(r.GroupRows)
}

// Header returns the column names of the report's row shape.
func (r *Report) Header() []string {
	if r.Detailed {
		return append([]string(nil), resourceHeader...)
	}
	return append([]string(nil), groupHeader...)
}

// Records returns every row as text cells aligned with Header.
func (r *Report) Records(timestampFormat string) [][]string {
	if timestampFormat == "" {
		timestampFormat = DefaultTimestampFormat
	}

	if r.Detailed {
		out := make([][]string, 0, len(r.ResourceRows))
		for _, row := range r.ResourceRows {
			out = append(out, []string{
				row.ClusterType, row.ClusterName, row.ResourceGroup, row.Resource, row.ServerName,
				row.ResourceStatus,
				row.LastOnline.Format(timestampFormat),
				row.LastOffline.Format(timestampFormat),
				row.LastError.Format(timestampFormat),
			})
		}
		return out
	}

	out := make([][]string, 0, len(r.GroupRows))
	for _, row := range r.GroupRows {
		out = append(out, []string{
			row.ClusterType, row.ClusterName, row.ResourceGroup, row.ServerName,
			row.ResourceStatus,
			row.LastOnline.Format(timestampFormat),
			row.LastOffline.Format(timestampFormat),
			row.LastDegraded.Format(timestampFormat),
		})
	}
	return out
}

// Summary counts rows by resource status, in first-seen order.
type Summary struct {
	Total    int
	Statuses []StatusCount
}

// StatusCount is the number of rows in one status.
type StatusCount struct {
	Status string
	Count  int
}

// Summarize counts the report's rows by status.
func (r *Report) Summarize() Summary {
	var statuses []string
	if r.Detailed {
		for _, row := range r.ResourceRows {
			statuses = append(statuses, row.ResourceStatus)
		}
	} else {
		for _, row := range r.GroupRows {
			statuses = append(statuses, row.ResourceStatus)
		}
	}

	s := Summary{Total: len(statuses)}
	index := make(map[string]int)
	for _, status := range statuses {
		i, ok := index[status]
		if !ok {
			i = len(s.Statuses)
			index[status] = i
			s.Statuses = append(s.Statuses, StatusCount{Status: status})
		}
		s.Statuses[i].Count++
	}
	return s
}

// Unhealthy returns the names of rows whose status is not "Online".
func (r *Report) Unhealthy() []string {
	var names []string
	if r.Detailed {
		for _, row := range r.ResourceRows {
			if row.ResourceStatus != "Online" {
				names = append(names, row.ResourceGroup+"/"+row.Resource)
			}
		}
		return names
	}
	for _, row := range r.GroupRows {
		if row.ResourceStatus != "Online" {
			names = append(names, row.ResourceGroup)
		}
	}
	return names
}
