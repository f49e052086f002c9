package server

import (
	"Meridian/pkg/metrics"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(
	NewHTTPServer,
	NewMetricsRegistry,
	metrics.NewPrometheusSink,
	wire.Bind(new(prometheus.Registerer), new(*prometheus.Registry)),
	wire.Bind(new(metrics.Sink), new(*metrics.PrometheusSink)),
)
