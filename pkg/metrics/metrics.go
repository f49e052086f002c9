// Package metrics defines the narrow observability sink consumed by the
// resilience layer. The layer reports circuit transitions, admission
// rejections, region health and replication lag; how those series are stored
// or exported is the sink implementation's concern.
package metrics

import "time"

// Sink receives observability signals from the resilience components.
// Implementations must be safe for concurrent use.
type Sink interface {
	// CircuitState records a circuit breaker transition to the given state
	// ("closed", "open", "half-open").
	CircuitState(name, state string)
	// RateLimitRejected counts one admission rejection for the named policy.
	RateLimitRejected(policy string)
	// RegionLatency records one observed round-trip to a region.
	RegionLatency(region string, latency time.Duration)
	// RegionAvailability records a region's derived availability (0/1).
	RegionAvailability(region string, active bool)
	// ReplicationLag records the origin-to-apply delay of one replicated write.
	ReplicationLag(lag time.Duration)
	// CoordinatorError counts one swallowed background-loop error for op.
	CoordinatorError(op string)
}

// Nop is a Sink that discards everything. Used in tests and as a fallback
// when no exporter is wired.
type Nop struct{}

var _ Sink = Nop{}

func (Nop) CircuitState(string, string)         {}
func (Nop) RateLimitRejected(string)            {}
func (Nop) RegionLatency(string, time.Duration) {}
func (Nop) RegionAvailability(string, bool)     {}
func (Nop) ReplicationLag(time.Duration)        {}
func (Nop) CoordinatorError(string)             {}
