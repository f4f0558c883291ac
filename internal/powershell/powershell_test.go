package powershell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rbias/clusterpulse/internal/cluster"
)

type scripted struct {
	match string
	out   string
	err   error
}

// scriptedExecutor answers scripts with the first rule whose match is a
// substring of the script.
type scriptedExecutor struct {
	rules   []scripted
	scripts []string
}

func (s *scriptedExecutor) Run(_ context.Context, script string) ([]byte, error) {
	s.scripts = append(s.scripts, script)
	for _, r := range s.rules {
		if strings.Contains(script, r.match) {
			if r.err != nil {
				return nil, r.err
			}
			return []byte(r.out), nil
		}
	}
	return nil, nil
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
	}{
		{"windows powershell", "/Date(1709287200000)/"},
		{"windows powershell with offset", "/Date(1709287200000+0100)/"},
		{"pwsh utc", "2024-03-01T10:00:00Z"},
		{"pwsh offset", "2024-03-01T11:00:00+01:00"},
		{"pwsh fractional", "2024-03-01T10:00:00.0000000Z"},
		{"unspecified kind", "2024-03-01T10:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if err != nil {
				t.Fatalf("ParseDate(%q) failed: %v", tt.input, err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}

	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("ParseDate() should reject unrecognized input")
	}
}

func TestParseEvents(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
	}{
		{"empty output", "", 0},
		{"null", "null", 0},
		{"single object", `{"TimeCreated":"/Date(1709287200000)/","Id":1201,"LogName":"Microsoft-Windows-FailoverClustering/Operational","Message":"Cluster group 'SQL' is online.","MachineName":"N1"}`, 1},
		{"array", `[{"TimeCreated":"2024-03-01T10:00:00Z","Id":1069,"LogName":"System","Message":"a"},{"TimeCreated":"2024-03-01T09:00:00Z","Id":1069,"LogName":"System","Message":"b"}]`, 2},
		{"wrapped date", `{"TimeCreated":{"value":"/Date(1709287200000)/","DisplayHint":2,"DateTime":"Friday, March 1, 2024 10:00:00 AM"},"Id":1204,"LogName":"Microsoft-Windows-FailoverClustering/Operational","Message":"x"}`, 1},
		{"bom prefix", "\xef\xbb\xbf[]", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvents([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseEvents() failed: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("len(ParseEvents()) = %d, want %d", len(got), tt.wantCount)
			}
		})
	}

	got, _ := ParseEvents([]byte(tests[4].input))
	if !got[0].TimeCreated.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("wrapped TimeCreated = %v, want 2024-03-01 10:00 UTC", got[0].TimeCreated)
	}

	if _, err := ParseEvents([]byte(`{"TimeCreated":"soon"}`)); err == nil {
		t.Error("ParseEvents() should fail on an invalid date")
	}
}

func TestEventSourceFetchEvents(t *testing.T) {
	fake := &scriptedExecutor{rules: []scripted{{
		match: "Id=1201",
		out: `[{"TimeCreated":"2024-03-01T10:00:00Z","Id":1201,"Message":"Cluster group 'SQL' is online."},` +
			`{"TimeCreated":"2024-03-01T08:00:00Z","Id":1201,"Message":"Cluster group 'SQL' is online.","MachineName":"N1.corp"}]`,
	}}}
	src := NewEventSource(fake)

	records, err := src.FetchEvents(context.Background(), "N1", "Microsoft-Windows-FailoverClustering/Operational", 1201)
	if err != nil {
		t.Fatalf("FetchEvents() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Node != "N1" {
		t.Errorf("records[0].Node = %q, want %q", records[0].Node, "N1")
	}
	if records[1].Node != "N1" {
		t.Errorf("records[1].Node = %q, want the queried node N1", records[1].Node)
	}

	script := fake.scripts[0]
	for _, want := range []string{"-ComputerName 'N1'", "LogName='Microsoft-Windows-FailoverClustering/Operational'", "Id=1201", "ConvertTo-Json"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q: %s", want, script)
		}
	}
}

func TestEventSourceNoMatchingEvents(t *testing.T) {
	fake := &scriptedExecutor{rules: []scripted{{
		match: "Get-WinEvent",
		err: &CommandError{
			ExitCode: 1,
			Stderr:   "Get-WinEvent : No events were found that match the specified selection criteria.\n+ FullyQualifiedErrorId : NoMatchingEventsFound,Microsoft.PowerShell.Commands.GetWinEventCommand",
		},
	}}}
	src := NewEventSource(fake)

	records, err := src.FetchEvents(context.Background(), "N1", "System", 1069)
	if err != nil {
		t.Fatalf("FetchEvents() = %v, want no error for an empty log", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestEventSourceUnreachable(t *testing.T) {
	fake := &scriptedExecutor{rules: []scripted{{
		match: "Get-WinEvent",
		err:   &CommandError{ExitCode: 1, Stderr: "The RPC server is unavailable."},
	}}}
	src := NewEventSource(fake)

	_, err := src.FetchEvents(context.Background(), "N1", "System", 1069)
	if err == nil {
		t.Fatal("FetchEvents() should fail for an unreachable node")
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Errorf("error = %v, want *CommandError in chain", err)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SQL", "'SQL'"},
		{"O'Brien", "'O''Brien'"},
		{"x\u2019; Start-Process calc; \u2019", "'x\u2019\u2019; Start-Process calc; \u2019\u2019'"},
		{"\u2018a\u201Ab\u201B", "'\u2018\u2018a\u201A\u201Ab\u201B\u201B'"},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExportedEventRecordNode(t *testing.T) {
	ev := ExportedEvent{Message: "m", MachineName: "NODE1.contoso.local"}
	if got := ev.Record("N2").Node; got != "N2" {
		t.Errorf("Record(N2).Node = %q, want the explicit node N2", got)
	}
	if got := ev.Record("").Node; got != "NODE1" {
		t.Errorf("Record(\"\").Node = %q, want host label NODE1", got)
	}
	if got := (ExportedEvent{}).Record("").Node; got != "" {
		t.Errorf("Record(\"\").Node without MachineName = %q, want empty", got)
	}
}

func TestTopology(t *testing.T) {
	registry := cluster.NewRegistry()
	if err := registry.Load([]cluster.ClusterConfig{{Name: "sqlclu", Address: "sqlclu.corp.example.com"}}); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	fake := &scriptedExecutor{rules: []scripted{
		{match: "Get-Cluster -Name", out: `{"Name":"SQLCLU"}`},
		{match: "Get-ClusterNode", out: `[{"Name":"N1","State":"Up"},{"Name":"N2","State":"Down"}]`},
		{match: "Get-ClusterResource", out: `[{"Name":"SQL IP","OwnerGroup":"SQL","OwnerNode":"N1","State":"Online"},` +
			`{"Name":"SQL Disk","OwnerGroup":"SQL","OwnerNode":"N1","State":2}]`},
		{match: "Get-ClusterGroup -Cluster", out: `[{"Name":"SQL","OwnerNode":"N1","State":"Online"},{"Name":"Available Storage","OwnerNode":"N2","State":"Offline"}]`},
	}}
	topo := NewTopology(fake, registry)
	ctx := context.Background()

	handle, err := topo.ResolveCluster(ctx, "sqlclu")
	if err != nil {
		t.Fatalf("ResolveCluster() failed: %v", err)
	}
	if handle.Name != "SQLCLU" || handle.Address != "sqlclu.corp.example.com" {
		t.Errorf("handle = %+v, want SQLCLU at sqlclu.corp.example.com", handle)
	}

	nodes, err := topo.ListNodes(ctx, handle)
	if err != nil {
		t.Fatalf("ListNodes() failed: %v", err)
	}
	if len(nodes) != 2 || nodes[1].State != "Down" {
		t.Errorf("ListNodes() = %+v, want N1 Up, N2 Down", nodes)
	}

	groups, err := topo.ListResourceGroups(ctx, handle)
	if err != nil {
		t.Fatalf("ListResourceGroups() failed: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "SQL" || groups[1].OwnerNode != "N2" {
		t.Errorf("ListResourceGroups() = %+v, want SQL then Available Storage", groups)
	}

	resources, err := topo.ListResources(ctx, handle, groups[0])
	if err != nil {
		t.Fatalf("ListResources() failed: %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("len(resources) = %d, want 2", len(resources))
	}
	if resources[1].State != "Failed" {
		t.Errorf("numeric state = %q, want %q", resources[1].State, "Failed")
	}
}

func TestTopologyClusterNotFound(t *testing.T) {
	fake := &scriptedExecutor{rules: []scripted{{
		match: "Get-Cluster -Name",
		err:   &CommandError{ExitCode: 1, Stderr: "The cluster service is not running."},
	}}}
	topo := NewTopology(fake, nil)

	_, err := topo.ResolveCluster(context.Background(), "ghost")
	if !errors.Is(err, cluster.ErrClusterNotFound) {
		t.Errorf("ResolveCluster() = %v, want ErrClusterNotFound", err)
	}
}

func TestTopologyResolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &scriptedExecutor{rules: []scripted{{
		match: "Get-Cluster -Name",
		err:   fmt.Errorf("powershell interrupted: %w", context.Canceled),
	}}}
	topo := NewTopology(fake, nil)

	_, err := topo.ResolveCluster(ctx, "C1")
	if errors.Is(err, cluster.ErrClusterNotFound) {
		t.Errorf("ResolveCluster() = %v, cancellation must not read as ErrClusterNotFound", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ResolveCluster() = %v, want context.Canceled", err)
	}
}

func TestRunnerIntegration(t *testing.T) {
	pwsh, err := exec.LookPath("pwsh")
	if err != nil {
		t.Skip("pwsh not installed")
	}

	r := NewRunner(RunnerConfig{Executable: pwsh, Timeout: 30 * time.Second})
	out, err := r.Run(context.Background(), "'hello' | ConvertTo-Json")
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != `"hello"` {
		t.Errorf("Run() = %q, want %q", out, `"hello"`)
	}

	_, err = r.Run(context.Background(), "exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.ExitCode != 3 {
		t.Errorf("Run(exit 3) = %v, want CommandError with exit code 3", err)
	}
}
