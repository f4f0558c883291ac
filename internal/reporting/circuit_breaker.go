package reporting

import (
	"sort"
	"sync"
	"time"

	"github.com/rbias/clusterpulse/internal/config"
)

// CircuitBreakerState represents the current state of the circuit breaker
type CircuitBreakerState int

const (
	// StateClosed indicates reports are generating normally
	StateClosed CircuitBreakerState = iota
	// StateOpen indicates the failure threshold was reached
	StateOpen
)

// Failure is one failed report generation.
type Failure struct {
	Cluster string
	Reason  string
	At      time.Time
}

// CircuitBreaker tracks consecutive report generation failures across
// clusters and decides when a degraded or recovered alert is due.
type CircuitBreaker struct {
	mu               sync.RWMutex
	threshold        int
	maxReasons       int
	failureCount     int
	firstFailureTime time.Time
	lastFailureTime  time.Time
	state            CircuitBreakerState
	alerted          bool
	recent           []Failure
	clusters         map[string]int
	now              func() time.Time
}

// FailureStats summarizes the current failure streak for alert messages.
type FailureStats struct {
	Count            int
	FirstFailureTime time.Time
	LastFailureTime  time.Time
	Duration         time.Duration
	// RecentFailures holds the newest failures, oldest first.
	RecentFailures []Failure
	// Clusters lists every cluster that failed during the streak, sorted.
	Clusters []string
}

// NewCircuitBreaker creates a circuit breaker that opens after threshold
// consecutive failures.
func NewCircuitBreaker(threshold int, tuning *config.TuningConfig) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	maxReasons := 5
	if tuning != nil && tuning.Reporting.MaxFailureReasonsTracked > 0 {
		maxReasons = tuning.Reporting.MaxFailureReasonsTracked
	}
	return &CircuitBreaker{
		threshold:  threshold,
		maxReasons: maxReasons,
		state:      StateClosed,
		recent:     make([]Failure, 0, maxReasons),
		clusters:   make(map[string]int),
		now:        time.Now,
	}
}

// RecordFailure records a failed generation for cluster.
func (cb *CircuitBreaker) RecordFailure(cluster, reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.failureCount == 0 {
		cb.firstFailureTime = now
	}
	cb.failureCount++
	cb.lastFailureTime = now
	cb.clusters[cluster]++

	cb.recent = append(cb.recent, Failure{Cluster: cluster, Reason: reason, At: now})
	if len(cb.recent) > cb.maxReasons {
		cb.recent = cb.recent[1:]
	}

	if cb.failureCount >= cb.threshold && cb.state == StateClosed {
		cb.state = StateOpen
	}
}

// RecordSuccess ends the failure streak. It reports whether a recovery
// alert is due, which is only when a degraded alert went out.
func (cb *CircuitBreaker) RecordSuccess() (needsRecoveryAlert bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	needsRecoveryAlert = cb.state == StateOpen && cb.alerted
	cb.reset()
	return needsRecoveryAlert
}

// ShouldAlert returns true once per open circuit.
func (cb *CircuitBreaker) ShouldAlert() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && !cb.alerted {
		cb.alerted = true
		return true
	}
	return false
}

// GetStats returns a copy of the current failure statistics.
func (cb *CircuitBreaker) GetStats() FailureStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var duration time.Duration
	if !cb.firstFailureTime.IsZero() {
		duration = cb.lastFailureTime.Sub(cb.firstFailureTime)
	}

	recent := make([]Failure, len(cb.recent))
	copy(recent, cb.recent)

	clusters := make([]string, 0, len(cb.clusters))
	for c := range cb.clusters {
		clusters = append(clusters, c)
	}
	sort.Strings(clusters)

	return FailureStats{
		Count:            cb.failureCount,
		FirstFailureTime: cb.firstFailureTime,
		LastFailureTime:  cb.lastFailureTime,
		Duration:         duration,
		RecentFailures:   recent,
		Clusters:         clusters,
	}
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetFailureCount returns the length of the current failure streak.
func (cb *CircuitBreaker) GetFailureCount() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failureCount
}

// Reset returns the circuit breaker to its initial state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.reset()
}

func (cb *CircuitBreaker) reset() {
	cb.failureCount = 0
	cb.firstFailureTime = time.Time{}
	cb.lastFailureTime = time.Time{}
	cb.state = StateClosed
	cb.alerted = false
	cb.recent = cb.recent[:0]
	cb.clusters = make(map[string]int)
}
