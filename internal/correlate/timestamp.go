package correlate

import (
	"encoding/json"
	"time"
)

// NAText is how the not-available sentinel renders.
const NAText = "N/A"

// Timestamp is either a point in time or the not-available sentinel.
// The zero value is NA.
type Timestamp struct {
	t     time.Time
	valid bool
}

// At returns a Timestamp holding t.
func At(t time.Time) Timestamp { return Timestamp{t: t, valid: true} }

// NA returns the not-available sentinel.
func NA() Timestamp { return Timestamp{} }

// IsNA reports whether ts is the sentinel.
func (ts Timestamp) IsNA() bool { return !ts.valid }

// Time returns the held time and whether one is present.
func (ts Timestamp) Time() (time.Time, bool) { return ts.t, ts.valid }

// Format renders ts with layout, or NAText for the sentinel.
func (ts Timestamp) Format(layout string) string {
	if !ts.valid {
		return NAText
	}
	return ts.t.Format(layout)
}

func (ts Timestamp) String() string { return ts.Format(time.RFC3339) }

// MarshalJSON encodes the sentinel as "N/A" and times as RFC 3339.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.valid {
		return json.Marshal(NAText)
	}
	return json.Marshal(ts.t.Format(time.RFC3339))
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == NAText || s == "" {
		*ts = NA()
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*ts = At(t)
	return nil
}
