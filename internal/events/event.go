// Package events collects cluster event-log records from every node of a
// cluster and merges them into per-category streams ordered by recency.
package events

import (
	"fmt"
	"time"
)

// Record is a single event-log entry as returned by a node.
type Record struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	// Node is informational only; correlation never reads it.
	Node string `json:"node,omitempty"`
}

// Category identifies one of the tracked resource-group state transitions.
type Category int

const (
	CameOnline Category = iota
	WentOffline
	EnteredError
	EnteredDegraded
)

// Categories lists every tracked category in report column order.
var Categories = []Category{CameOnline, WentOffline, EnteredError, EnteredDegraded}

func (c Category) String() string {
	switch c {
	case CameOnline:
		return "came_online"
	case WentOffline:
		return "went_offline"
	case EnteredError:
		return "entered_error"
	case EnteredDegraded:
		return "entered_degraded"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Binding is the event-log query that backs a category.
type Binding struct {
	LogName string
	EventID int
}

const (
	failoverOperationalLog = "Microsoft-Windows-FailoverClustering/Operational"
	systemLog              = "System"
)

// Bindings maps every category to its fixed (log, event id) pair.
var Bindings = map[Category]Binding{
	CameOnline:      {LogName: failoverOperationalLog, EventID: 1201},
	WentOffline:     {LogName: failoverOperationalLog, EventID: 1204},
	EnteredError:    {LogName: systemLog, EventID: 1069},
	EnteredDegraded: {LogName: systemLog, EventID: 1205},
}

// BindingFor returns the binding of c.
func BindingFor(c Category) (Binding, error) {
	b, ok := Bindings[c]
	if !ok {
		return Binding{}, fmt.Errorf("no event binding for %s", c)
	}
	return b, nil
}

// CategoryFor returns the category bound to (logName, eventID), if any.
// Ingestion uses it to discard records that no report will read.
func CategoryFor(logName string, eventID int) (Category, bool) {
	for _, c := range Categories {
		b := Bindings[c]
		if b.EventID == eventID && b.LogName == logName {
			return c, true
		}
	}
	return 0, false
}

// Stream is a merged, time-descending sequence of records for one category.
type Stream []Record
