package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// stateValues maps breaker state names onto the gauge scale.
var stateValues = map[string]float64{
	"closed":    0,
	"open":      1,
	"half-open": 2,
}

// PrometheusSink exports the resilience signals as Prometheus series.
type PrometheusSink struct {
	circuitTransitions *prometheus.CounterVec
	circuitState       *prometheus.GaugeVec
	rateLimitRejected  *prometheus.CounterVec
	regionLatency      *prometheus.HistogramVec
	regionAvailable    *prometheus.GaugeVec
	replicationLag     prometheus.Histogram
	coordinatorErrors  *prometheus.CounterVec
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink registers the resilience metrics on reg and returns the sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)

	return &PrometheusSink{
		circuitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_circuit_transitions_total",
			Help: "Circuit breaker state transitions by breaker name and new state.",
		}, []string{"breaker", "state"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_circuit_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"breaker"}),
		rateLimitRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_rate_limit_rejections_total",
			Help: "Admission-control rejections by policy.",
		}, []string{"policy"}),
		regionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meridian_region_latency_seconds",
			Help:    "Observed round-trip latency per region.",
			Buckets: prometheus.DefBuckets,
		}, []string{"region"}),
		regionAvailable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meridian_region_available",
			Help: "Derived region availability (1=active, 0=inactive).",
		}, []string{"region"}),
		replicationLag: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meridian_replication_lag_seconds",
			Help:    "Delay between a replicated write's origin timestamp and its local apply.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60},
		}),
		coordinatorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meridian_coordinator_errors_total",
			Help: "Swallowed background-loop errors by operation.",
		}, []string{"op"}),
	}
}

func (s *PrometheusSink) CircuitState(name, state string) {
	s.circuitTransitions.WithLabelValues(name, state).Inc()
	if v, ok := stateValues[state]; ok {
		s.circuitState.WithLabelValues(name).Set(v)
	}
}

func (s *PrometheusSink) RateLimitRejected(policy string) {
	s.rateLimitRejected.WithLabelValues(policy).Inc()
}

func (s *PrometheusSink) RegionLatency(region string, latency time.Duration) {
	s.regionLatency.WithLabelValues(region).Observe(latency.Seconds())
}

func (s *PrometheusSink) RegionAvailability(region string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	s.regionAvailable.WithLabelValues(region).Set(v)
}

func (s *PrometheusSink) ReplicationLag(lag time.Duration) {
	s.replicationLag.Observe(lag.Seconds())
}

func (s *PrometheusSink) CoordinatorError(op string) {
	s.coordinatorErrors.WithLabelValues(op).Inc()
}
