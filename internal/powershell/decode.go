package powershell

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// decodeList decodes ConvertTo-Json output, which is empty for no results,
// a bare object for one result and an array otherwise.
func decodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	// Windows PowerShell may prefix UTF-8 output with a BOM.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to decode powershell output: %w", err)
		}
		return items, nil
	}

	var item T
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode powershell output: %w", err)
	}
	return []T{item}, nil
}

// msDate matches Windows PowerShell's /Date(ms)/ and /Date(ms+hhmm)/ forms.
var msDate = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// Date is a timestamp as serialized by either PowerShell edition.
type Date struct {
	time.Time
}

// UnmarshalJSON accepts "/Date(ms)/", ISO 8601 strings and the
// {"value": ..., "DateTime": ...} wrapper Windows PowerShell emits for
// DateTime values carrying extended properties.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		if len(wrapped.Value) == 0 {
			return fmt.Errorf("date object has no value")
		}
		return d.UnmarshalJSON(wrapped.Value)
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid date %s: %w", data, err)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ParseDate parses a PowerShell timestamp string.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if m := msDate.FindStringSubmatch(s); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		// The offset suffix is informational; the milliseconds are UTC.
		return time.UnixMilli(ms).UTC(), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// stateString reads a cluster state that may be serialized as its enum
// name or, without ToString(), as the enum's integer value.
type stateString string

var clusterStates = map[int]string{
	-1: "Unknown",
	0:  "Online",
	1:  "Offline",
	2:  "Failed",
	3:  "PartialOnline",
	4:  "Pending",
}

func (s *stateString) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = stateString(text)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid state %s", data)
	}
	if name, ok := clusterStates[n]; ok {
		*s = stateString(name)
		return nil
	}
	*s = stateString(strconv.Itoa(n))
	return nil
}
