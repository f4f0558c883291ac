package powershell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rbias/clusterpulse/internal/events"
)

// noMatchingEvents is the error id Get-WinEvent raises for an empty result.
const noMatchingEvents = "NoMatchingEventsFound"

// ExportedEvent is one Get-WinEvent record as serialized by ConvertTo-Json.
// It is also the format accepted by event ingestion.
type ExportedEvent struct {
	TimeCreated Date   `json:"TimeCreated"`
	ID          int    `json:"Id"`
	LogName     string `json:"LogName"`
	Message     string `json:"Message"`
	MachineName string `json:"MachineName"`
}

// Record converts e to an event record attributed to node. An empty node
// falls back to the host label of MachineName, since Get-WinEvent reports
// the FQDN while cluster nodes are known by their short names.
func (e ExportedEvent) Record(node string) events.Record {
	if node == "" {
		node, _, _ = strings.Cut(e.MachineName, ".")
	}
	return events.Record{Time: e.TimeCreated.Time, Message: e.Message, Node: node}
}

// ParseEvents decodes a Get-WinEvent export.
func ParseEvents(data []byte) ([]ExportedEvent, error) {
	return decodeList[ExportedEvent](data)
}

// EventSource reads event logs from cluster nodes with Get-WinEvent.
type EventSource struct {
	exec Executor
}

// NewEventSource creates an EventSource that runs scripts through exec.
func NewEventSource(exec Executor) *EventSource {
	return &EventSource{exec: exec}
}

func eventScript(node, logName string, eventID int) string {
	return fmt.Sprintf(
		"try { Get-WinEvent -ComputerName %s -FilterHashtable @{LogName=%s; Id=%d} -ErrorAction Stop"+
			" | Select-Object TimeCreated, Id, LogName, Message, MachineName"+
			" | ConvertTo-Json -Compress -Depth 3 }"+
			" catch { if ($_.FullyQualifiedErrorId -like '%s*') { '[]' } else { throw } }",
		quote(node), quote(logName), eventID, noMatchingEvents)
}

// FetchEvents implements events.Source. A node with no matching events
// yields an empty result; every other failure is returned.
func (s *EventSource) FetchEvents(ctx context.Context, node, logName string, eventID int) ([]events.Record, error) {
	out, err := s.exec.Run(ctx, eventScript(node, logName, eventID))
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Stderr, noMatchingEvents) {
			return nil, nil
		}
		return nil, fmt.Errorf("get events %d from %s on %s: %w", eventID, logName, node, err)
	}

	exported, err := ParseEvents(out)
	if err != nil {
		return nil, fmt.Errorf("get events %d from %s on %s: %w", eventID, logName, node, err)
	}

	records := make([]events.Record, 0, len(exported))
	for _, e := range exported {
		records = append(records, e.Record(node))
	}
	return records, nil
}
