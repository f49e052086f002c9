// Package server assembles the HTTP transport: routes, middleware and the
// metrics endpoint.
package server

import (
	"encoding/json"
	nethttp "net/http"

	"Meridian/internal/biz"
	"Meridian/internal/conf"
	"Meridian/internal/server/middleware"
	"Meridian/internal/service"
	"Meridian/pkg/breaker"
	pkglog "Meridian/pkg/log"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsRegistry builds the Prometheus registry with the standard
// process and Go runtime collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// crossRegionCall is the proxy request body.
type crossRegionCall struct {
	Method string          `json:"method"`
	Path   string          `json:"path"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// crossRegionReply wraps the proxied response.
type crossRegionReply struct {
	Region string          `json:"region"`
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

type resetRequest struct {
	Policy string `json:"policy"`
	Key    string `json:"key"`
}

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	regionSvc *service.RegionService,
	admissionSvc *service.AdmissionService,
	apiLimiter *biz.APILimiter,
	authLimiter *biz.AuthLimiter,
	registry *prometheus.Registry,
	logger log.Logger,
) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Source(logHelper),
			middleware.Logging(logHelper),
			middleware.RateLimit(apiLimiter.AdmissionController, logHelper,
				middleware.WithSkipPrefixes("/healthz", "/metrics"),
				middleware.WithSkipCrossRegion(),
			),
			// Admin operations ride the stricter auth policy: a few tries
			// per window, then a cooldown block.
			middleware.RateLimit(authLimiter.AdmissionController, logHelper,
				middleware.WithOnlyPrefixes("/v1/admission"),
			),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	srv.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	registerRoutes(srv, regionSvc, admissionSvc)

	return srv
}

func registerRoutes(srv *http.Server, regionSvc *service.RegionService, admissionSvc *service.AdmissionService) {
	r := srv.Route("/")

	r.GET("/healthz", func(ctx http.Context) error {
		return ctx.Result(nethttp.StatusOK, regionSvc.Healthz(ctx))
	})

	r.GET("/v1/regions", func(ctx http.Context) error {
		return ctx.Result(nethttp.StatusOK, regionSvc.ListRegions(ctx))
	})

	r.GET("/v1/breakers", func(ctx http.Context) error {
		return ctx.Result(nethttp.StatusOK, regionSvc.Breakers(ctx))
	})

	r.POST("/v1/replicate", func(ctx http.Context) error {
		var req service.ReplicateRequest
		if err := ctx.Bind(&req); err != nil {
			return kerrors.BadRequest("INVALID_BODY", err.Error())
		}
		if req.Key == "" {
			return kerrors.BadRequest("INVALID_BODY", "key is required")
		}
		if err := regionSvc.Replicate(ctx, &req); err != nil {
			return mapError(err)
		}
		return ctx.Result(nethttp.StatusOK, map[string]bool{"ok": true})
	})

	r.GET("/v1/replicated/{key}", func(ctx http.Context) error {
		key := ctx.Vars().Get("key")
		reply, err := regionSvc.ReadReplicated(ctx, key)
		if err != nil {
			return mapError(err)
		}
		if !reply.Found {
			return kerrors.NotFound("KEY_NOT_FOUND", "no replicated value for key")
		}
		return ctx.Result(nethttp.StatusOK, reply)
	})

	r.POST("/v1/regions/{region}/proxy", func(ctx http.Context) error {
		target := ctx.Vars().Get("region")
		var call crossRegionCall
		if err := ctx.Bind(&call); err != nil {
			return kerrors.BadRequest("INVALID_BODY", err.Error())
		}
		if call.Method == "" || call.Path == "" {
			return kerrors.BadRequest("INVALID_BODY", "method and path are required")
		}

		payload, status, err := regionSvc.CrossRegion(ctx, target, call.Method, call.Path, call.Body)
		if err != nil {
			return mapError(err)
		}
		// Non-JSON upstream bodies are re-encoded as a JSON string.
		body := json.RawMessage(payload)
		if len(payload) > 0 && !json.Valid(payload) {
			body, _ = json.Marshal(string(payload))
		}
		return ctx.Result(nethttp.StatusOK, &crossRegionReply{
			Region: target,
			Status: status,
			Body:   body,
		})
	})

	r.POST("/v1/admission/reset", func(ctx http.Context) error {
		var req resetRequest
		if err := ctx.Bind(&req); err != nil {
			return kerrors.BadRequest("INVALID_BODY", err.Error())
		}
		if err := admissionSvc.Reset(ctx, req.Policy, req.Key); err != nil {
			return kerrors.BadRequest("RESET_FAILED", err.Error())
		}
		return ctx.Result(nethttp.StatusOK, map[string]bool{"ok": true})
	})
}

// mapError translates domain errors into transport status codes.
func mapError(err error) error {
	if rue, ok := biz.AsRegionUnavailable(err); ok {
		return kerrors.New(nethttp.StatusServiceUnavailable, "REGION_UNAVAILABLE", rue.Error()).
			WithMetadata(map[string]string{"region": rue.Region})
	}
	if breaker.IsOpen(err) {
		return kerrors.New(nethttp.StatusServiceUnavailable, "CIRCUIT_OPEN", err.Error())
	}
	if breaker.IsTimeout(err) {
		return kerrors.New(nethttp.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", err.Error())
	}
	if rle, ok := biz.AsRateLimitExceeded(err); ok {
		return kerrors.New(nethttp.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", rle.Error())
	}
	return kerrors.InternalServer("INTERNAL", err.Error())
}
