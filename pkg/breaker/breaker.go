// Package breaker implements a per-dependency circuit breaker and a named
// registry over it. A breaker wraps a single fallible operation: after a
// configured number of consecutive failures it opens and fails fast without
// invoking the operation, then probes the dependency again once the reset
// timeout has elapsed.
package breaker

import (
	"context"
	"sync"
	"time"
)

// Operation is the wrapped call guarded by a breaker.
type Operation func(ctx context.Context) error

// CircuitBreaker is a thread-safe failure-isolation state machine with the
// classic Closed -> Open -> HalfOpen -> Closed transitions. While HalfOpen at
// most one probe call is admitted at a time; concurrent callers are rejected
// with ErrOpen instead of issuing uncoordinated probes.
type CircuitBreaker struct {
	name string
	opts *options

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	lastFailure   time.Time
	probeInFlight bool
}

// New constructs a circuit breaker. Invalid option values are replaced with
// defaults rather than rejected.
func New(name string, opts ...Option) *CircuitBreaker {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}
	o.sanitize()

	return &CircuitBreaker{
		name:  name,
		opts:  o,
		state: Closed,
	}
}

// Name returns the breaker's identifier.
func (b *CircuitBreaker) Name() string { return b.name }

// State returns the current breaker state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Counts returns the current failure and success counters.
func (b *CircuitBreaker) Counts() (failures, successes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount, b.successCount
}

// Execute runs op under the breaker's admission rules. It returns ErrOpen
// without invoking op when the circuit is open (or a half-open probe is
// already in flight), ErrTimeout when op exceeds the configured call timeout,
// and otherwise op's own error.
func (b *CircuitBreaker) Execute(ctx context.Context, op Operation) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := b.run(ctx, op)
	b.afterCall(err)
	return err
}

// ForceOpen trips the breaker regardless of counters. The circuit stays open
// for the reset timeout from now, then recovers through the normal half-open
// path. Intended for manual incident response and tests.
func (b *CircuitBreaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.opts.clock()
	b.transition(Open)
}

// ForceClose resets the breaker to Closed and zeroes both counters,
// bypassing the half-open recovery rules.
func (b *CircuitBreaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(Closed)
}

// beforeCall decides whether the call is admitted, performing the
// Open -> HalfOpen transition when the reset timeout has elapsed.
func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.opts.clock().Sub(b.lastFailure) < b.opts.resetTimeout {
			return ErrOpen
		}
		// Reset timeout elapsed: this caller becomes the single probe.
		b.transition(HalfOpen)
		b.probeInFlight = true
		return nil
	default: // HalfOpen
		if b.probeInFlight {
			return ErrOpen
		}
		b.probeInFlight = true
		return nil
	}
}

// run invokes op, raced against the call timeout when one is configured.
// On timeout the operation's eventual result is discarded.
func (b *CircuitBreaker) run(ctx context.Context, op Operation) error {
	if b.opts.callTimeout <= 0 {
		return op(ctx)
	}

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	timer := time.NewTimer(b.opts.callTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// afterCall records the outcome and applies the resulting transition.
func (b *CircuitBreaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.probeInFlight = false
	}

	if err != nil {
		b.onFailure()
		return
	}
	b.onSuccess()
}

// onFailure must be called with the lock held.
func (b *CircuitBreaker) onFailure() {
	b.lastFailure = b.opts.clock()

	switch b.state {
	case HalfOpen:
		// Half-open trust is revoked on the first sign of continued failure.
		b.transition(Open)
	case Closed:
		b.failureCount++
		if b.failureCount >= b.opts.failureThreshold {
			b.transition(Open)
		}
	}
}

// onSuccess must be called with the lock held.
func (b *CircuitBreaker) onSuccess() {
	if b.state != HalfOpen {
		return
	}
	b.successCount++
	if b.successCount >= b.opts.halfOpenSuccessThreshold {
		b.transition(Closed)
	}
}

// transition moves to the target state, resets the counters and notifies the
// monitor callback. Must be called with the lock held.
func (b *CircuitBreaker) transition(target State) {
	if b.state == target && (b.failureCount == 0 && b.successCount == 0) {
		return
	}
	b.state = target
	b.failureCount = 0
	b.successCount = 0
	b.probeInFlight = false

	if b.opts.monitor != nil {
		b.opts.monitor(b.name, target)
	}
}
