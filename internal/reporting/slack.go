package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rbias/clusterpulse/internal/config"
	"github.com/rbias/clusterpulse/internal/report"
)

// SlackNotifier sends report notifications to Slack
type SlackNotifier struct {
	WebhookURL            string
	httpClient            *http.Client
	unhealthyDisplayCount int
	reasonsDisplayCount   int
}

// SlackMessage represents a Slack webhook message
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	Blocks      []SlackBlock      `json:"blocks,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackBlock represents a Slack block element
type SlackBlock struct {
	Type     string        `json:"type"`
	Text     *SlackText    `json:"text,omitempty"`
	Fields   []SlackText   `json:"fields,omitempty"`
	Elements []interface{} `json:"elements,omitempty"`
}

// SlackText represents text content in Slack
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackElement represents an element in a context block
type SlackElement struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SlackButton represents a button element in an actions block
type SlackButton struct {
	Type string     `json:"type"`
	Text *SlackText `json:"text"`
	URL  string     `json:"url"`
}

// SlackAttachment represents a Slack attachment
type SlackAttachment struct {
	Color  string `json:"color"`
	Text   string `json:"text,omitempty"`
	Footer string `json:"footer,omitempty"`
}

// ReportSummary contains the key information of a generated report
type ReportSummary struct {
	ReportID   string
	Cluster    string
	Detailed   bool
	Total      int
	Statuses   []report.StatusCount
	Unhealthy  []string
	Duration   time.Duration
	ReportPath string
	ReportURL  string
}

// NewReportSummary builds a summary from a generated report.
func NewReportSummary(r *report.Report) *ReportSummary {
	s := r.Summarize()
	return &ReportSummary{
		ReportID:  r.ID,
		Cluster:   r.Cluster,
		Detailed:  r.Detailed,
		Total:     s.Total,
		Statuses:  s.Statuses,
		Unhealthy: r.Unhealthy(),
	}
}

// FailureSummary describes a report that could not be generated
type FailureSummary struct {
	Cluster string
	Phase   string
	Error   string
}

// NewFailureSummary extracts the cluster and phase from a generation error.
func NewFailureSummary(cluster string, err error) *FailureSummary {
	fs := &FailureSummary{Cluster: cluster, Error: err.Error()}
	var genErr *report.GenerationError
	if errors.As(err, &genErr) {
		fs.Phase = string(genErr.Phase)
	}
	return fs
}

// NewSlackNotifier creates a new Slack notifier
func NewSlackNotifier(webhookURL string, tuning *config.TuningConfig) *SlackNotifier {
	timeout := 10 * time.Second
	unhealthy, reasons := 10, 3
	if tuning != nil {
		timeout = tuning.SlackTimeout()
		unhealthy = tuning.Report.UnhealthyDisplayCount
		reasons = tuning.Reporting.FailureReasonsDisplayCount
	}
	return &SlackNotifier{
		WebhookURL:            webhookURL,
		httpClient:            &http.Client{Timeout: timeout},
		unhealthyDisplayCount: unhealthy,
		reasonsDisplayCount:   reasons,
	}
}

// SendReportSummary posts a report summary with a link to the report
func (s *SlackNotifier) SendReportSummary(ctx context.Context, summary *ReportSummary) error {
	if s.WebhookURL == "" {
		return nil // No webhook configured, skip silently
	}
	return s.send(ctx, s.buildReportSummary(summary))
}

func (s *SlackNotifier) buildReportSummary(summary *ReportSummary) SlackMessage {
	statusEmoji := ":white_check_mark:"
	statusColor := "good"
	if len(summary.Unhealthy) > 0 {
		statusEmoji = ":warning:"
		statusColor = "warning"
	}

	kind := "Resource groups"
	if summary.Detailed {
		kind = "Resources"
	}

	var counts []string
	for _, sc := range summary.Statuses {
		counts = append(counts, fmt.Sprintf("%s: %d", sc.Status, sc.Count))
	}
	countsText := "none"
	if len(counts) > 0 {
		countsText = strings.Join(counts, ", ")
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: fmt.Sprintf("Cluster Status Report %s", statusEmoji),
			},
		},
		{
			Type: "section",
			Fields: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Cluster:*\n%s", summary.Cluster)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%d", kind, summary.Total)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Status:*\n%s", countsText)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Not online:*\n%d", len(summary.Unhealthy))},
			},
		},
	}

	if len(summary.Unhealthy) > 0 {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Not online:*\n%s", bulletList(summary.Unhealthy, s.unhealthyDisplayCount)),
			},
		})
	}

	contextText := fmt.Sprintf("Report ID: `%s`", summary.ReportID)
	if summary.Duration > 0 {
		contextText += fmt.Sprintf(" | Duration: %s", summary.Duration.Round(time.Millisecond))
	}
	blocks = append(blocks, SlackBlock{
		Type:     "context",
		Elements: []interface{}{SlackElement{Type: "mrkdwn", Text: contextText}},
	})

	if summary.ReportURL != "" {
		blocks = append(blocks, SlackBlock{
			Type: "actions",
			Elements: []interface{}{
				SlackButton{
					Type: "button",
					Text: &SlackText{Type: "plain_text", Text: "View Report"},
					URL:  summary.ReportURL,
				},
			},
		})
	}

	var footer string
	if summary.ReportURL != "" {
		footer = "Report: URL (see button above)"
	} else if summary.ReportPath != "" {
		footer = fmt.Sprintf("Report: %s", summary.ReportPath)
	}

	return SlackMessage{
		Blocks:      blocks,
		Attachments: []SlackAttachment{{Color: statusColor, Footer: footer}},
	}
}

// SendReportFailure posts that a report could not be generated
func (s *SlackNotifier) SendReportFailure(ctx context.Context, failure *FailureSummary) error {
	if s.WebhookURL == "" {
		return nil
	}

	fields := []SlackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Cluster:*\n%s", failure.Cluster)}}
	if failure.Phase != "" {
		fields = append(fields, SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Failed step:*\n%s", failure.Phase)})
	}

	msg := SlackMessage{
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackText{Type: "plain_text", Text: "Cluster Status Report Failed :x:"},
			},
			{Type: "section", Fields: fields},
			{
				Type: "section",
				Text: &SlackText{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n```%s```", failure.Error)},
			},
		},
		Attachments: []SlackAttachment{{Color: "danger", Footer: "No partial report was produced."}},
	}
	return s.send(ctx, msg)
}

// SendSystemDegradedAlert reports that generations keep failing
func (s *SlackNotifier) SendSystemDegradedAlert(ctx context.Context, stats FailureStats) error {
	if s.WebhookURL == "" {
		return nil
	}
	return s.send(ctx, s.buildDegradedAlert(stats))
}

func (s *SlackNotifier) buildDegradedAlert(stats FailureStats) SlackMessage {
	timeWindow := "N/A"
	if stats.Duration > 0 {
		timeWindow = stats.Duration.Round(time.Second).String()
	}

	recent := stats.RecentFailures
	if len(recent) > s.reasonsDisplayCount {
		recent = recent[len(recent)-s.reasonsDisplayCount:]
	}
	reasonsText := "No failure details available"
	if len(recent) > 0 {
		lines := make([]string, len(recent))
		for i, f := range recent {
			lines[i] = fmt.Sprintf("• %s: %s", f.Cluster, f.Reason)
		}
		reasonsText = strings.Join(lines, "\n")
	}

	clustersText := "N/A"
	if len(stats.Clusters) > 0 {
		clustersText = strings.Join(stats.Clusters, ", ")
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{Type: "plain_text", Text: "Cluster Reports Degraded"},
		},
		{
			Type: "section",
			Fields: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Failure Count:*\n%d", stats.Count)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Time Window:*\n%s", timeWindow)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Clusters:*\n%s", clustersText)},
			},
		},
		{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Recent failures (last %d):*\n%s", len(recent), reasonsText),
			},
		},
	}
	if !stats.FirstFailureTime.IsZero() {
		blocks = append(blocks, SlackBlock{
			Type: "context",
			Elements: []interface{}{
				SlackElement{Type: "mrkdwn", Text: fmt.Sprintf("First failure: %s | Last failure: %s",
					stats.FirstFailureTime.Format("15:04:05"),
					stats.LastFailureTime.Format("15:04:05"))},
			},
		})
	}

	return SlackMessage{
		Blocks: blocks,
		Attachments: []SlackAttachment{{
			Color:  "warning",
			Footer: "Failure threshold reached. Cluster topology or event sources may be unreachable.",
		}},
	}
}

// SendSystemRecoveredAlert reports that generations succeed again
func (s *SlackNotifier) SendSystemRecoveredAlert(ctx context.Context, stats FailureStats) error {
	if s.WebhookURL == "" {
		return nil
	}

	downtime := "N/A"
	if stats.Duration > 0 {
		downtime = stats.Duration.Round(time.Second).String()
	}

	msg := SlackMessage{
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackText{Type: "plain_text", Text: "Cluster Reports Recovered"},
			},
			{
				Type: "section",
				Fields: []SlackText{
					{Type: "mrkdwn", Text: fmt.Sprintf("*Total Downtime:*\n%s", downtime)},
					{Type: "mrkdwn", Text: fmt.Sprintf("*Total Failures:*\n%d", stats.Count)},
				},
			},
		},
		Attachments: []SlackAttachment{{
			Color:  "good",
			Footer: "Reports are generating normally again.",
		}},
	}
	return s.send(ctx, msg)
}

// send posts a message to the Slack webhook
func (s *SlackNotifier) send(ctx context.Context, msg SlackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// bulletList renders up to limit items and notes how many were left out.
func bulletList(items []string, limit int) string {
	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	lines := make([]string, 0, len(shown)+1)
	for _, item := range shown {
		lines = append(lines, "• "+item)
	}
	if rest := len(items) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("_and %d more_", rest))
	}
	return strings.Join(lines, "\n")
}
