// ABOUTME: Circuit breaker state machine protecting calls to a degraded dependency
// ABOUTME: Rolling window of call outcomes drives CLOSED/OPEN/HALF_OPEN transitions

package breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the breaker's position in its state machine.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// guarded operation.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes one breaker instance.
type Config struct {
	// FailureThreshold is the failure count, relative to MinimumRequests,
	// at which the breaker opens.
	FailureThreshold int
	// MinimumRequests is the minimum number of recent calls before failure
	// or slow-call rates are considered at all.
	MinimumRequests int
	// MonitoringPeriod bounds the rolling window of call records.
	MonitoringPeriod time.Duration
	// ResetTimeout is how long an open breaker waits before allowing a
	// half-open trial call.
	ResetTimeout time.Duration
	// SlowCallThreshold marks a successful call as slow when it takes longer.
	SlowCallThreshold time.Duration
	// SlowCallRateThreshold opens the breaker when the slow-call rate over
	// the window reaches it (0..1; zero disables the check).
	SlowCallRateThreshold float64
}

// DefaultConfig returns conservative defaults suitable for an external engine.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:      5,
		MinimumRequests:       5,
		MonitoringPeriod:      time.Minute,
		ResetTimeout:          30 * time.Second,
		SlowCallThreshold:     10 * time.Second,
		SlowCallRateThreshold: 0.8,
	}
}

// record is one observed call outcome in the rolling window.
type record struct {
	at       time.Time
	success  bool
	duration time.Duration
}

// Status is a read-only snapshot of breaker state.
type Status struct {
	Name          string
	State         State
	RecentCalls   int
	RecentFailed  int
	RecentSlow    int
	TotalCalls    int64
	TotalFailures int64
	NextRetryAt   time.Time
}

// Breaker is a per-dependency failure/slow-call state machine. It is safe
// for concurrent use; all state is guarded by a single mutex so a
// read-modify-write never interleaves with another caller's.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	probing       bool
	window        []record
	totalCalls    int64
	totalFailures int64
	nextRetryAt   time.Time

	// now is swappable in tests.
	now func() time.Time
}

// New creates a closed breaker with the given name and config.
func New(name string, cfg Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger.With("component", "breaker", "breaker", name),
		state:  StateClosed,
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed right now. An open breaker whose
// reset timeout has elapsed transitions to half-open and admits exactly one
// trial call; further callers are rejected until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	if b.now().Before(b.nextRetryAt) {
		return false
	}
	b.transition(StateHalfOpen)
	b.probing = true
	return true
}

// RecordSuccess observes a successful call. A half-open breaker closes and
// clears its counters.
func (b *Breaker) RecordSuccess(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)
	b.totalCalls++
	b.window = append(b.window, record{
		at:       now,
		success:  true,
		duration: duration,
	})

	if b.state == StateHalfOpen {
		b.window = nil
		b.probing = false
		b.transition(StateClosed)
	}
}

// RecordFailure observes a failed call. A half-open breaker reopens
// immediately; a closed breaker opens when the window crosses the configured
// failure or slow-call rate with at least MinimumRequests recent calls.
func (b *Breaker) RecordFailure(duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.prune(now)
	b.totalCalls++
	b.totalFailures++
	b.window = append(b.window, record{at: now, duration: duration})

	if b.state == StateHalfOpen {
		b.probing = false
		b.open(now)
		return
	}
	if b.state != StateClosed {
		return
	}

	calls, failed, slow := b.tally()
	if calls < b.cfg.MinimumRequests {
		return
	}
	failureRate := float64(failed) / float64(calls)
	slowRate := float64(slow) / float64(calls)
	threshold := float64(b.cfg.FailureThreshold) / float64(b.cfg.MinimumRequests)

	if failureRate >= threshold ||
		(b.cfg.SlowCallRateThreshold > 0 && slowRate >= b.cfg.SlowCallRateThreshold) {
		b.open(now)
	}
}

// Call runs op under breaker protection, measuring its duration and
// recording the outcome. When the breaker is open and the cooldown has not
// elapsed, op is never invoked and ErrOpen is returned.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}

	start := b.now()
	err := op(ctx)
	elapsed := b.now().Sub(start)

	if err != nil {
		b.RecordFailure(elapsed)
		return err
	}
	b.RecordSuccess(elapsed)
	return nil
}

// Status returns a read-only snapshot.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(b.now())
	calls, failed, slow := b.tally()
	return Status{
		Name:          b.name,
		State:         b.state,
		RecentCalls:   calls,
		RecentFailed:  failed,
		RecentSlow:    slow,
		TotalCalls:    b.totalCalls,
		TotalFailures: b.totalFailures,
		NextRetryAt:   b.nextRetryAt,
	}
}

// Reset forces the breaker closed with cleared counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.window = nil
	b.probing = false
	b.totalCalls = 0
	b.totalFailures = 0
	b.nextRetryAt = time.Time{}
	b.transition(StateClosed)
}

// open must be called with mu held.
func (b *Breaker) open(now time.Time) {
	b.nextRetryAt = now.Add(b.cfg.ResetTimeout)
	b.transition(StateOpen)
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.logger.Info("circuit breaker state change", "from", b.state, "to", to)
	b.state = to
}

// prune drops window records older than the monitoring period. Must be
// called with mu held.
func (b *Breaker) prune(now time.Time) {
	if b.cfg.MonitoringPeriod <= 0 {
		return
	}
	cutoff := now.Add(-b.cfg.MonitoringPeriod)
	keep := b.window[:0]
	for _, r := range b.window {
		if r.at.After(cutoff) {
			keep = append(keep, r)
		}
	}
	b.window = keep
}

// tally counts recent calls, failures and slow successes. Must be called
// with mu held, after prune.
func (b *Breaker) tally() (calls, failed, slow int) {
	for _, r := range b.window {
		calls++
		if !r.success {
			failed++
		} else if b.cfg.SlowCallThreshold > 0 && r.duration > b.cfg.SlowCallThreshold {
			slow++
		}
	}
	return calls, failed, slow
}
