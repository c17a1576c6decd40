// Package supervisor routes work to registered workers with bounded
// concurrency, load balancing, health tracking and circuit breaking.
package supervisor

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker state machine state.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is a per-worker circuit breaker.
//
// Transitions: closed -> open when consecutive failures reach the
// threshold; open -> half-open after the timeout elapses since opening;
// half-open -> closed on first success, back to open on failure.
type breaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	openedAt  time.Time
	threshold int
	timeout   time.Duration
	now       func() time.Time
}

func newBreaker(threshold int, timeout time.Duration) *breaker {
	return &breaker{
		state:     breakerClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// allow reports whether a request may proceed. An open breaker admits
// a single probe once the timeout has elapsed (half-open).
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// record feeds one outcome into the state machine.
func (b *breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == breakerHalfOpen {
			b.state = breakerClosed
		}
		return
	}

	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// snapshot returns (open, openedAt, consecutive failures).
func (b *breaker) snapshot() (bool, time.Time, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen, b.openedAt, b.failures
}
