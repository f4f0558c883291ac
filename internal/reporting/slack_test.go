package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rbias/clusterpulse/internal/config"
	"github.com/rbias/clusterpulse/internal/correlate"
	"github.com/rbias/clusterpulse/internal/report"
)

// captureServer records every webhook payload it receives.
func captureServer(t *testing.T, status int) (*httptest.Server, *[]SlackMessage) {
	t.Helper()
	var messages []SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		var msg SlackMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		messages = append(messages, msg)
		w.WriteHeader(status)
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	return srv, &messages
}

func messageText(msg SlackMessage) string {
	data, _ := json.Marshal(msg)
	return string(data)
}

func sampleReport() *report.Report {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &report.Report{
		ID:      "report-123",
		Cluster: "C1",
		GroupRows: []report.GroupRow{
			{ClusterType: "MSCS", ClusterName: "C1", ResourceGroup: "SQL", ResourceStatus: "Online", LastOnline: correlate.At(at)},
			{ClusterType: "MSCS", ClusterName: "C1", ResourceGroup: "FileShare", ResourceStatus: "Failed", LastOnline: correlate.NA()},
			{ClusterType: "MSCS", ClusterName: "C1", ResourceGroup: "Available Storage", ResourceStatus: "Offline", LastOnline: correlate.NA()},
		},
	}
}

func TestNewSlackNotifier_Tuning(t *testing.T) {
	tests := []struct {
		name             string
		tuning           *config.TuningConfig
		expectedTimeout  time.Duration
		expectedUnhealthy int
		expectedReasons  int
	}{
		{"nil tuning uses defaults", nil, 10 * time.Second, 10, 3},
		{"default tuning", defaultTestTuning(), 10 * time.Second, 10, 3},
		{
			name: "custom tuning",
			tuning: &config.TuningConfig{
				HTTP:      config.HTTPTuning{SlackTimeoutSeconds: 30},
				Report:    config.ReportTuning{UnhealthyDisplayCount: 2},
				Reporting: config.ReportingTuning{FailureReasonsDisplayCount: 5},
			},
			expectedTimeout:  30 * time.Second,
			expectedUnhealthy: 2,
			expectedReasons:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewSlackNotifier("https://hooks.example.com/x", tt.tuning)
			if n.httpClient.Timeout != tt.expectedTimeout {
				t.Errorf("timeout = %v, want %v", n.httpClient.Timeout, tt.expectedTimeout)
			}
			if n.unhealthyDisplayCount != tt.expectedUnhealthy {
				t.Errorf("unhealthyDisplayCount = %d, want %d", n.unhealthyDisplayCount, tt.expectedUnhealthy)
			}
			if n.reasonsDisplayCount != tt.expectedReasons {
				t.Errorf("reasonsDisplayCount = %d, want %d", n.reasonsDisplayCount, tt.expectedReasons)
			}
		})
	}
}

func TestNewReportSummary(t *testing.T) {
	s := NewReportSummary(sampleReport())

	if s.ReportID != "report-123" || s.Cluster != "C1" || s.Total != 3 {
		t.Errorf("summary = %+v", s)
	}
	if len(s.Unhealthy) != 2 || s.Unhealthy[0] != "FileShare" {
		t.Errorf("Unhealthy = %v, want [FileShare Available Storage]", s.Unhealthy)
	}
	if len(s.Statuses) != 3 || s.Statuses[0].Status != "Online" {
		t.Errorf("Statuses = %+v", s.Statuses)
	}
}

func TestSendReportSummary_WithURL(t *testing.T) {
	srv, messages := captureServer(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL, defaultTestTuning())

	summary := NewReportSummary(sampleReport())
	summary.ReportURL = "https://storage.example.com/C1/report-123/index.html?sig=abc"

	if err := n.SendReportSummary(context.Background(), summary); err != nil {
		t.Fatalf("SendReportSummary() error = %v", err)
	}
	if len(*messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(*messages))
	}

	msg := (*messages)[0]
	text := messageText(msg)
	for _, want := range []string{"Cluster Status Report :warning:", "*Cluster:*\\nC1", "Online: 1, Failed: 1, Offline: 1", "FileShare", "View Report", "report-123"} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q", want)
		}
	}
	if msg.Attachments[0].Color != "warning" {
		t.Errorf("color = %q, want warning", msg.Attachments[0].Color)
	}
	if msg.Attachments[0].Footer != "Report: URL (see button above)" {
		t.Errorf("footer = %q", msg.Attachments[0].Footer)
	}
}

func TestSendReportSummary_AllOnlineWithPath(t *testing.T) {
	n := NewSlackNotifier("unused", defaultTestTuning())
	msg := n.buildReportSummary(&ReportSummary{
		ReportID:   "r",
		Cluster:    "C1",
		Detailed:   true,
		Total:      2,
		Statuses:   []report.StatusCount{{Status: "Online", Count: 2}},
		ReportPath: "./reports/C1/r/report.html",
	})

	text := messageText(msg)
	if !strings.Contains(text, ":white_check_mark:") || !strings.Contains(text, "*Resources:*") {
		t.Errorf("all-online detailed summary = %s", text)
	}
	if strings.Contains(text, "View Report") {
		t.Errorf("no button expected without URL")
	}
	if msg.Attachments[0].Footer != "Report: ./reports/C1/r/report.html" {
		t.Errorf("footer = %q", msg.Attachments[0].Footer)
	}
}

func TestSendReportSummary_TruncatesUnhealthy(t *testing.T) {
	tuning := defaultTestTuning()
	tuning.Report.UnhealthyDisplayCount = 2
	n := NewSlackNotifier("unused", tuning)

	msg := n.buildReportSummary(&ReportSummary{Cluster: "C1", Unhealthy: []string{"G1", "G2", "G3", "G4"}})
	text := messageText(msg)
	if !strings.Contains(text, "G2") || strings.Contains(text, "G3") {
		t.Errorf("should list only the first two groups: %s", text)
	}
	if !strings.Contains(text, "_and 2 more_") {
		t.Errorf("should note the remaining groups: %s", text)
	}
}

func TestSendReportFailure(t *testing.T) {
	srv, messages := captureServer(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL, defaultTestTuning())

	genErr := &report.GenerationError{Cluster: "C1", Phase: report.PhaseNodes, Err: report.ErrTopologyFetch}
	failure := NewFailureSummary("C1", genErr)
	if failure.Phase != "list_nodes" {
		t.Errorf("Phase = %q, want list_nodes", failure.Phase)
	}

	if err := n.SendReportFailure(context.Background(), failure); err != nil {
		t.Fatalf("SendReportFailure() error = %v", err)
	}
	msg := (*messages)[0]
	text := messageText(msg)
	if !strings.Contains(text, "list_nodes") || !strings.Contains(text, "topology fetch failed") {
		t.Errorf("failure message = %s", text)
	}
	if msg.Attachments[0].Color != "danger" {
		t.Errorf("color = %q, want danger", msg.Attachments[0].Color)
	}

	plain := NewFailureSummary("C2", errors.New("boom"))
	if plain.Phase != "" {
		t.Errorf("Phase of plain error = %q, want empty", plain.Phase)
	}
}

func TestSendSystemDegradedAlert(t *testing.T) {
	n := NewSlackNotifier("unused", defaultTestTuning())
	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	stats := FailureStats{
		Count:            5,
		FirstFailureTime: first,
		LastFailureTime:  first.Add(4 * time.Minute),
		Duration:         4 * time.Minute,
		RecentFailures: []Failure{
			{Cluster: "C1", Reason: "r1"}, {Cluster: "C1", Reason: "r2"},
			{Cluster: "C2", Reason: "r3"}, {Cluster: "C2", Reason: "r4"},
		},
		Clusters: []string{"C1", "C2"},
	}

	text := messageText(n.buildDegradedAlert(stats))
	if strings.Contains(text, "r1") {
		t.Errorf("only the last 3 reasons should be shown: %s", text)
	}
	for _, want := range []string{"C2: r4", "last 3", "4m0s", "C1, C2", "09:00:00", "09:04:00"} {
		if !strings.Contains(text, want) {
			t.Errorf("degraded alert missing %q", want)
		}
	}

	empty := messageText(n.buildDegradedAlert(FailureStats{}))
	if !strings.Contains(empty, "No failure details available") || !strings.Contains(empty, "N/A") {
		t.Errorf("empty stats alert = %s", empty)
	}
}

func TestSendSystemRecoveredAlert(t *testing.T) {
	srv, messages := captureServer(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL, defaultTestTuning())

	if err := n.SendSystemRecoveredAlert(context.Background(), FailureStats{Count: 7, Duration: 90 * time.Second}); err != nil {
		t.Fatalf("SendSystemRecoveredAlert() error = %v", err)
	}
	text := messageText((*messages)[0])
	if !strings.Contains(text, "1m30s") || !strings.Contains(text, "*Total Failures:*\\n7") {
		t.Errorf("recovered alert = %s", text)
	}
}

func TestSend_NoWebhookSkips(t *testing.T) {
	n := NewSlackNotifier("", defaultTestTuning())
	ctx := context.Background()

	if err := n.SendReportSummary(ctx, &ReportSummary{}); err != nil {
		t.Errorf("SendReportSummary() error = %v", err)
	}
	if err := n.SendReportFailure(ctx, &FailureSummary{}); err != nil {
		t.Errorf("SendReportFailure() error = %v", err)
	}
	if err := n.SendSystemDegradedAlert(ctx, FailureStats{}); err != nil {
		t.Errorf("SendSystemDegradedAlert() error = %v", err)
	}
}

func TestSend_Non200(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest)
	n := NewSlackNotifier(srv.URL, defaultTestTuning())

	err := n.SendReportSummary(context.Background(), NewReportSummary(sampleReport()))
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Errorf("error = %v, want status 400", err)
	}
}

func TestSlackButtonMarshaling(t *testing.T) {
	button := SlackButton{
		Type: "button",
		Text: &SlackText{Type: "plain_text", Text: "View Report"},
		URL:  "https://example.com/report?sig=abc&se=2024",
	}

	data, err := json.Marshal(button)
	if err != nil {
		t.Fatalf("Failed to marshal button: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal button JSON: %v", err)
	}
	if decoded["url"] != button.URL {
		t.Errorf("url = %v, want %q", decoded["url"], button.URL)
	}
}
