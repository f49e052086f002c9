package breaker

// State is the breaker's position in the failure-isolation state machine.
type State int32

const (
	// Closed lets every call through and counts consecutive failures.
	Closed State = iota
	// Open fails fast; the wrapped operation is never invoked.
	Open
	// HalfOpen admits a single trial call at a time to test recovery.
	HalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
