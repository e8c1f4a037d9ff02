package emergency

import (
	"context"
	"sync"
	"time"

	"github.com/pitabwire/util"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	// BreakerClosed passes operations through and counts failures.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen rejects operations immediately without attempting them.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen allows one trial whose outcome decides the next state.
	BreakerHalfOpen BreakerState = "half_open"
)

// Breaker wraps discrete risky operations, such as apply-to-disk calls.
// N consecutive failures open it; after the recovery timeout the next call
// runs as a half-open trial. There is no terminal state; Reset forces
// closed and clears counters.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration

	state    BreakerState
	failures int
	openedAt time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            BreakerClosed,
	}
}

// Do runs fn through the breaker. A call against an open breaker returns
// *CircuitBreakerOpenError without executing fn. The breaker surfaces fn's
// error untouched; retrying is the caller's policy.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := b.before(ctx); err != nil {
		return err
	}

	err := fn()
	b.after(ctx, err)
	return err
}

func (b *Breaker) before(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		remaining := b.recoveryTimeout - time.Since(b.openedAt)
		if remaining > 0 {
			return &CircuitBreakerOpenError{
				Failures:   b.failures,
				RetryAfter: remaining,
			}
		}
		// Recovery timeout elapsed, allow one trial.
		b.state = BreakerHalfOpen
		util.Log(ctx).Info("circuit breaker half-open, allowing trial")
		return nil
	case BreakerHalfOpen:
		// A trial is already the next call; reject concurrent entries.
		return &CircuitBreakerOpenError{
			Failures:   b.failures,
			RetryAfter: 0,
		}
	default:
		return nil
	}
}

func (b *Breaker) after(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == BreakerHalfOpen {
			util.Log(ctx).Info("circuit breaker trial succeeded, closing")
		}
		b.state = BreakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.failureThreshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		util.Log(ctx).Warn("circuit breaker opened",
			"consecutive_failures", b.failures,
			"recovery_timeout", b.recoveryTimeout,
		)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
}
