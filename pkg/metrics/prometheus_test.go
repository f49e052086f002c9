package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusSink_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.CircuitState("upstream", "open")
	sink.CircuitState("upstream", "open")
	sink.CircuitState("upstream", "closed")
	sink.RateLimitRejected("auth")
	sink.CoordinatorError("heartbeat")

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.circuitTransitions.WithLabelValues("upstream", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.circuitTransitions.WithLabelValues("upstream", "closed")))
	// Gauge tracks the most recent state.
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.circuitState.WithLabelValues("upstream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.rateLimitRejected.WithLabelValues("auth")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.coordinatorErrors.WithLabelValues("heartbeat")))
}

func TestPrometheusSink_RegionSignals(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.RegionAvailability("eu-west", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.regionAvailable.WithLabelValues("eu-west")))

	sink.RegionAvailability("eu-west", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.regionAvailable.WithLabelValues("eu-west")))

	// Histograms only need to accept observations without panicking here;
	// bucket contents are covered by client_golang itself.
	sink.RegionLatency("eu-west", 120*time.Millisecond)
	sink.ReplicationLag(300 * time.Millisecond)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNopSinkIsSilent(t *testing.T) {
	var sink Sink = Nop{}
	sink.CircuitState("a", "open")
	sink.RateLimitRejected("api")
	sink.RegionLatency("r", time.Second)
	sink.RegionAvailability("r", true)
	sink.ReplicationLag(time.Second)
	sink.CoordinatorError("probe")
}
