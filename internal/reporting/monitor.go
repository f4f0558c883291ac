package reporting

import (
	"context"
	"log/slog"
)

// Alerter sends circuit breaker alerts. SlackNotifier implements it.
type Alerter interface {
	SendSystemDegradedAlert(ctx context.Context, stats FailureStats) error
	SendSystemRecoveredAlert(ctx context.Context, stats FailureStats) error
}

// FailureMonitor feeds generation outcomes into a CircuitBreaker and sends
// a degraded alert when it opens and a recovered alert when it closes.
type FailureMonitor struct {
	breaker *CircuitBreaker
	alerter Alerter
}

// NewFailureMonitor creates a monitor. A nil alerter only tracks state.
func NewFailureMonitor(breaker *CircuitBreaker, alerter Alerter) *FailureMonitor {
	return &FailureMonitor{breaker: breaker, alerter: alerter}
}

// Observe records the outcome of one generation for cluster. Alerts are
// sent even if ctx is cancelled once the outcome is known.
func (m *FailureMonitor) Observe(ctx context.Context, cluster string, err error) {
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		m.breaker.RecordFailure(cluster, err.Error())
		if !m.breaker.ShouldAlert() {
			return
		}
		stats := m.breaker.GetStats()
		slog.Warn("report generation degraded", "failures", stats.Count, "clusters", stats.Clusters)
		if m.alerter != nil {
			if err := m.alerter.SendSystemDegradedAlert(ctx, stats); err != nil {
				slog.Error("failed to send degraded alert", "error", err)
			}
		}
		return
	}

	stats := m.breaker.GetStats()
	if !m.breaker.RecordSuccess() {
		return
	}
	slog.Info("report generation recovered", "failures", stats.Count, "cluster", cluster)
	if m.alerter != nil {
		if err := m.alerter.SendSystemRecoveredAlert(ctx, stats); err != nil {
			slog.Error("failed to send recovery alert", "error", err)
		}
	}
}

// Breaker returns the underlying circuit breaker.
func (m *FailureMonitor) Breaker() *CircuitBreaker {
	return m.breaker
}
