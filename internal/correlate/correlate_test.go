package correlate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbias/clusterpulse/internal/events"
)

func ts(hour int) time.Time {
	return time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC)
}

func sampleStream() events.Stream {
	return events.Stream{
		{Time: ts(12), Message: "Cluster resource group 'DB2' came online.", Node: "N2"},
		{Time: ts(11), Message: "Cluster resource group 'Web' came online.", Node: "N1"},
		{Time: ts(10), Message: "Cluster resource group 'DB' came online.", Node: "N1"},
		{Time: ts(9), Message: "Cluster resource group 'DB' came online.", Node: "N2"},
		{Time: ts(8), Message: "Cluster resource group 'DB' came online.", Node: "N3"},
	}
}

func TestMostRecentOrNA_NoMatchReturnsSentinel(t *testing.T) {
	got := MostRecentOrNA(sampleStream(), "FileServer", Substring{})
	assert.True(t, got.IsNA())
	assert.Equal(t, NAText, got.Format(time.RFC3339))

	empty := MostRecentOrNA(nil, "DB", Substring{})
	assert.True(t, empty.IsNA())
}

func TestMostRecentOrNA_ReturnsNewestAcrossNodes(t *testing.T) {
	// Records for "Web" scattered across unsorted per-node results.
	online := events.Bindings[events.CameOnline].EventID
	perNode := map[string][]events.Record{
		"N1": {{Time: ts(7), Message: "group Web online"}, {Time: ts(15), Message: "group Web online"}},
		"N2": {{Time: ts(11), Message: "group Web online"}},
	}
	src := events.SourceFunc(func(_ context.Context, node, _ string, eventID int) ([]events.Record, error) {
		if eventID != online {
			return nil, nil
		}
		return perNode[node], nil
	})

	stream, err := events.NewAggregator(src, 0).Aggregate(context.Background(), []string{"N1", "N2"}, events.CameOnline)
	require.NoError(t, err)

	got := MostRecentOrNA(stream, "Web", Substring{})
	when, ok := got.Time()
	require.True(t, ok)
	assert.Equal(t, ts(15), when)
}

func TestSubstringMatcher_MatchesNamesContainingGroup(t *testing.T) {
	// "DB" also correlates events about "DB2"; this is the documented
	// behaviour of the default matcher.
	got := MostRecentOrNA(sampleStream(), "DB", Substring{})
	when, ok := got.Time()
	require.True(t, ok)
	assert.Equal(t, ts(12), when)

	all := Correlate(sampleStream(), "DB", Substring{})
	assert.Equal(t, []time.Time{ts(12), ts(10), ts(9), ts(8)}, all)
}

func TestTokenMatcher_IgnoresLongerNames(t *testing.T) {
	got := MostRecentOrNA(sampleStream(), "DB", Token{})
	when, ok := got.Time()
	require.True(t, ok)
	assert.Equal(t, ts(10), when)
}

func TestCorrelate_PreservesDescendingOrder(t *testing.T) {
	times := Correlate(sampleStream(), "'DB'", Substring{})
	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.True(t, times[i-1].After(times[i]))
	}
}

func TestSubstringMatcher_CaseSensitivity(t *testing.T) {
	assert.False(t, Substring{}.Matches("group sqlcluster online", "SQLCluster"))
	assert.True(t, Substring{FoldCase: true}.Matches("group sqlcluster online", "SQLCluster"))
}

func TestTokenMatcher(t *testing.T) {
	tests := []struct {
		message string
		group   string
		want    bool
	}{
		{"group 'SQL' online", "SQL", true},
		{"group 'SQL2' online", "SQL", false},
		{"group MySQL online", "SQL", false},
		{"SQL", "SQL", true},
		{"SQL-Prod failed, SQL recovered", "SQL", true},
		{"SQL-Prod failed", "SQL", false},
		{"Cluster Group online", "Cluster Group", true},
		{"Available Storage online", "Storage", true},
		{"anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.message+"/"+tt.group, func(t *testing.T) {
			assert.Equal(t, tt.want, Token{}.Matches(tt.message, tt.group))
		})
	}
}

func TestParseMatcher(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "substring", false},
		{"substring", "substring", false},
		{"Substring-Fold", "substring-fold", false},
		{"token", "token", false},
		{"regex", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseMatcher(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Name())
		})
	}
}

func TestTimestampJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
	}{A: At(ts(10)), B: NA()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"2024-03-01T10:00:00Z","b":"N/A"}`, string(data))

	var back struct {
		A Timestamp `json:"a"`
		B Timestamp `json:"b"`
	}
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.B.IsNA())
	when, ok := back.A.Time()
	require.True(t, ok)
	assert.True(t, when.Equal(ts(10)))
}

func TestTimestampZeroValueIsNA(t *testing.T) {
	var zero Timestamp
	assert.True(t, zero.IsNA())
}
