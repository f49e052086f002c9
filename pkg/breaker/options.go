package breaker

import "time"

const (
	// DefaultFailureThreshold opens the circuit after this many consecutive
	// failures while closed.
	DefaultFailureThreshold = 5
	// DefaultResetTimeout is how long the circuit stays open before a probe
	// is admitted.
	DefaultResetTimeout = 30 * time.Second
	// DefaultHalfOpenSuccessThreshold closes the circuit after this many
	// consecutive half-open successes.
	DefaultHalfOpenSuccessThreshold = 2
)

// Monitor observes state transitions. It is the only side effect visible
// outside a breaker instance and is invoked with the breaker's lock held, so
// implementations must not call back into the breaker.
type Monitor func(name string, state State)

type options struct {
	failureThreshold         int
	resetTimeout             time.Duration
	halfOpenSuccessThreshold int
	callTimeout              time.Duration
	clock                    func() time.Time
	monitor                  Monitor
}

// Option configures a CircuitBreaker.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		failureThreshold:         DefaultFailureThreshold,
		resetTimeout:             DefaultResetTimeout,
		halfOpenSuccessThreshold: DefaultHalfOpenSuccessThreshold,
		clock:                    time.Now,
	}
}

// sanitize replaces invalid values with defaults.
func (o *options) sanitize() {
	if o.failureThreshold <= 0 {
		o.failureThreshold = DefaultFailureThreshold
	}
	if o.resetTimeout <= 0 {
		o.resetTimeout = DefaultResetTimeout
	}
	if o.halfOpenSuccessThreshold <= 0 {
		o.halfOpenSuccessThreshold = DefaultHalfOpenSuccessThreshold
	}
	if o.callTimeout < 0 {
		o.callTimeout = 0
	}
	if o.clock == nil {
		o.clock = time.Now
	}
}

// WithFailureThreshold sets the consecutive-failure count that opens the circuit.
func WithFailureThreshold(n int) Option {
	return func(o *options) { o.failureThreshold = n }
}

// WithResetTimeout sets how long the circuit stays open before probing.
func WithResetTimeout(d time.Duration) Option {
	return func(o *options) { o.resetTimeout = d }
}

// WithHalfOpenSuccessThreshold sets the consecutive-success count that closes
// the circuit from half-open.
func WithHalfOpenSuccessThreshold(n int) Option {
	return func(o *options) { o.halfOpenSuccessThreshold = n }
}

// WithCallTimeout bounds each wrapped operation. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) { o.callTimeout = d }
}

// WithClock overrides the time source. Used by tests to drive the reset
// timeout deterministically.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithMonitor registers the state-transition callback.
func WithMonitor(m Monitor) Option {
	return func(o *options) { o.monitor = m }
}
