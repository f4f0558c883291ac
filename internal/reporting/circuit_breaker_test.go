package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbias/clusterpulse/internal/config"
)

func defaultTestTuning() *config.TuningConfig {
	return &config.TuningConfig{
		HTTP: config.HTTPTuning{
			SlackTimeoutSeconds: 10,
		},
		Report: config.ReportTuning{
			UnhealthyDisplayCount: 10,
		},
		Reporting: config.ReportingTuning{
			FailureThreshold:           3,
			FailureReasonsDisplayCount: 3,
			MaxFailureReasonsTracked:   5,
		},
	}
}

// steppingClock returns times one minute apart starting at 09:00 UTC.
func steppingClock() func() time.Time {
	next := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t := next
		next = next.Add(time.Minute)
		return t
	}
}

func TestNewCircuitBreaker(t *testing.T) {
	tests := []struct {
		name              string
		threshold         int
		tuning            *config.TuningConfig
		expectedThreshold int
		expectedReasons   int
	}{
		{"positive threshold", 5, defaultTestTuning(), 5, 5},
		{"zero threshold defaults to 3", 0, defaultTestTuning(), 3, 5},
		{"negative threshold defaults to 3", -1, defaultTestTuning(), 3, 5},
		{"nil tuning", 2, nil, 2, 5},
		{"custom reasons tracked", 2, &config.TuningConfig{Reporting: config.ReportingTuning{MaxFailureReasonsTracked: 9}}, 2, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(tt.threshold, tt.tuning)
			if cb.threshold != tt.expectedThreshold {
				t.Errorf("threshold = %d, want %d", cb.threshold, tt.expectedThreshold)
			}
			if cb.maxReasons != tt.expectedReasons {
				t.Errorf("maxReasons = %d, want %d", cb.maxReasons, tt.expectedReasons)
			}
			if cb.GetState() != StateClosed {
				t.Errorf("initial state = %d, want StateClosed", cb.GetState())
			}
		})
	}
}

func TestRecordFailure(t *testing.T) {
	cb := NewCircuitBreaker(3, defaultTestTuning())

	cb.RecordFailure("C1", "list nodes: access denied")
	cb.RecordFailure("C2", "cluster not found")
	if cb.GetState() != StateClosed {
		t.Errorf("state after 2 failures = %d, want StateClosed", cb.GetState())
	}

	cb.RecordFailure("C1", "list nodes: access denied")
	if cb.GetState() != StateOpen {
		t.Errorf("state after 3 failures = %d, want StateOpen", cb.GetState())
	}

	stats := cb.GetStats()
	if stats.Count != 3 {
		t.Errorf("stats.Count = %d, want 3", stats.Count)
	}
	if len(stats.Clusters) != 2 || stats.Clusters[0] != "C1" || stats.Clusters[1] != "C2" {
		t.Errorf("stats.Clusters = %v, want [C1 C2]", stats.Clusters)
	}
}

func TestRecordSuccess(t *testing.T) {
	cb := NewCircuitBreaker(2, defaultTestTuning())

	cb.RecordFailure("C1", "failure 1")
	cb.RecordFailure("C1", "failure 2")
	if !cb.ShouldAlert() {
		t.Error("ShouldAlert() = false after reaching threshold, want true")
	}

	if !cb.RecordSuccess() {
		t.Error("RecordSuccess() = false when recovering from open state, want true")
	}
	if cb.GetFailureCount() != 0 || cb.GetState() != StateClosed {
		t.Errorf("after success count = %d state = %d, want 0 closed", cb.GetFailureCount(), cb.GetState())
	}

	stats := cb.GetStats()
	if len(stats.RecentFailures) != 0 || len(stats.Clusters) != 0 {
		t.Errorf("stats after reset = %+v, want empty", stats)
	}
}

func TestRecordSuccess_NoRecoveryAlertIfNotAlerted(t *testing.T) {
	cb := NewCircuitBreaker(2, defaultTestTuning())

	cb.RecordFailure("C1", "failure 1")
	cb.RecordFailure("C1", "failure 2")

	if cb.RecordSuccess() {
		t.Error("RecordSuccess() = true when never alerted, want false")
	}
}

func TestShouldAlert(t *testing.T) {
	cb := NewCircuitBreaker(3, defaultTestTuning())

	for i := 0; i < 2; i++ {
		cb.RecordFailure("C1", "failure")
		if cb.ShouldAlert() {
			t.Fatalf("ShouldAlert() = true before threshold (failure %d)", i+1)
		}
	}

	cb.RecordFailure("C1", "failure")
	if !cb.ShouldAlert() {
		t.Error("ShouldAlert() = false at threshold, want true")
	}
	if cb.ShouldAlert() {
		t.Error("ShouldAlert() = true on second call, want false (already alerted)")
	}
}

func TestGetStats(t *testing.T) {
	cb := NewCircuitBreaker(5, defaultTestTuning())
	cb.now = steppingClock()

	reasons := []string{"failure 1", "failure 2", "failure 3"}
	for _, reason := range reasons {
		cb.RecordFailure("C1", reason)
	}

	stats := cb.GetStats()
	if stats.Count != 3 {
		t.Errorf("stats.Count = %d, want 3", stats.Count)
	}
	if stats.Duration != 2*time.Minute {
		t.Errorf("stats.Duration = %v, want 2m", stats.Duration)
	}
	for i, reason := range reasons {
		if stats.RecentFailures[i].Reason != reason {
			t.Errorf("RecentFailures[%d].Reason = %q, want %q", i, stats.RecentFailures[i].Reason, reason)
		}
	}
}

func TestMaxReasons(t *testing.T) {
	cb := NewCircuitBreaker(10, defaultTestTuning())

	for i := 0; i < 8; i++ {
		cb.RecordFailure("C1", string(rune('a'+i)))
	}

	stats := cb.GetStats()
	if len(stats.RecentFailures) != 5 {
		t.Fatalf("len(RecentFailures) = %d, want 5", len(stats.RecentFailures))
	}
	if stats.RecentFailures[0].Reason != "d" || stats.RecentFailures[4].Reason != "h" {
		t.Errorf("RecentFailures should keep the newest reasons, got %+v", stats.RecentFailures)
	}
}

func TestThreadSafety(t *testing.T) {
	cb := NewCircuitBreaker(100, defaultTestTuning())
	var wg sync.WaitGroup
	numGoroutines := 50
	failuresPerGoroutine := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < failuresPerGoroutine; j++ {
				cb.RecordFailure("C1", "concurrent failure")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = cb.GetStats()
				_ = cb.GetState()
			}
		}()
	}
	wg.Wait()

	if got, want := cb.GetFailureCount(), numGoroutines*failuresPerGoroutine; got != want {
		t.Errorf("failureCount = %d, want %d", got, want)
	}
}

func TestReset(t *testing.T) {
	cb := NewCircuitBreaker(2, defaultTestTuning())
	cb.RecordFailure("C1", "failure 1")
	cb.RecordFailure("C1", "failure 2")
	cb.ShouldAlert()

	cb.Reset()

	if cb.GetFailureCount() != 0 || cb.GetState() != StateClosed {
		t.Errorf("after reset count = %d state = %d", cb.GetFailureCount(), cb.GetState())
	}
	if cb.ShouldAlert() {
		t.Error("ShouldAlert() = true after reset, want false")
	}
}

func TestMultipleCycles(t *testing.T) {
	cb := NewCircuitBreaker(2, defaultTestTuning())

	for cycle := 1; cycle <= 2; cycle++ {
		cb.RecordFailure("C1", "failure")
		cb.RecordFailure("C1", "failure")
		if !cb.ShouldAlert() {
			t.Errorf("ShouldAlert() = false in cycle %d, want true", cycle)
		}
		if !cb.RecordSuccess() {
			t.Errorf("RecordSuccess() = false in cycle %d, want true", cycle)
		}
	}
}

type recordingAlerter struct {
	degraded  []FailureStats
	recovered []FailureStats
}

func (r *recordingAlerter) SendSystemDegradedAlert(_ context.Context, stats FailureStats) error {
	r.degraded = append(r.degraded, stats)
	return nil
}

func (r *recordingAlerter) SendSystemRecoveredAlert(_ context.Context, stats FailureStats) error {
	r.recovered = append(r.recovered, stats)
	return errors.New("webhook down")
}

func TestFailureMonitor(t *testing.T) {
	ctx := context.Background()
	alerter := &recordingAlerter{}
	m := NewFailureMonitor(NewCircuitBreaker(2, defaultTestTuning()), alerter)

	m.Observe(ctx, "C1", nil)
	m.Observe(ctx, "C1", errors.New("boom"))
	if len(alerter.degraded) != 0 {
		t.Fatalf("degraded alert sent below threshold")
	}

	m.Observe(ctx, "C2", errors.New("boom"))
	m.Observe(ctx, "C2", errors.New("boom"))
	if len(alerter.degraded) != 1 {
		t.Fatalf("degraded alerts = %d, want exactly 1", len(alerter.degraded))
	}
	if alerter.degraded[0].Count != 2 {
		t.Errorf("degraded alert count = %d, want 2", alerter.degraded[0].Count)
	}

	// A failing alerter does not stop the breaker from resetting.
	m.Observe(ctx, "C1", nil)
	if len(alerter.recovered) != 1 {
		t.Fatalf("recovered alerts = %d, want 1", len(alerter.recovered))
	}
	if alerter.recovered[0].Count != 3 {
		t.Errorf("recovered alert count = %d, want 3", alerter.recovered[0].Count)
	}
	if m.Breaker().GetState() != StateClosed {
		t.Errorf("breaker should be closed after recovery")
	}
}

type contextAlerter struct {
	errs []error
}

func (c *contextAlerter) SendSystemDegradedAlert(ctx context.Context, _ FailureStats) error {
	c.errs = append(c.errs, ctx.Err())
	return nil
}

func (c *contextAlerter) SendSystemRecoveredAlert(ctx context.Context, _ FailureStats) error {
	c.errs = append(c.errs, ctx.Err())
	return nil
}

func TestFailureMonitorAlertsOutliveRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	alerter := &contextAlerter{}
	m := NewFailureMonitor(NewCircuitBreaker(1, defaultTestTuning()), alerter)
	m.Observe(ctx, "C1", errors.New("boom"))
	m.Observe(ctx, "C1", nil)

	if len(alerter.errs) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerter.errs))
	}
	for i, err := range alerter.errs {
		if err != nil {
			t.Errorf("alert %d sent with cancelled context: %v", i, err)
		}
	}
}
