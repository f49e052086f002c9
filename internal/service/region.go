// Package service exposes the coordination layer's operations to the
// transport layer as plain request/reply methods.
package service

import (
	"context"
	"time"

	"Meridian/internal/biz"
	"Meridian/internal/conf"
	"Meridian/pkg/breaker"
	"Meridian/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// RegionInfo is the wire representation of one region table entry.
type RegionInfo struct {
	Name          string     `json:"name"`
	ApiURL        string     `json:"api_url"`
	Primary       bool       `json:"primary"`
	Active        bool       `json:"active"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	LatencyMs     int64      `json:"latency_ms"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ListRegionsReply is the region table as seen from the local region.
type ListRegionsReply struct {
	Self    string        `json:"self"`
	Regions []*RegionInfo `json:"regions"`
}

// HealthReply answers the health probe other regions poll.
type HealthReply struct {
	Status string    `json:"status"`
	Region string    `json:"region"`
	Time   time.Time `json:"time"`
}

// ReplicateRequest asks the local region to store a value and fan it out.
type ReplicateRequest struct {
	Key        string `json:"key"`
	Value      string `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// ReadReplicatedReply returns a replicated value, Found=false on a miss.
type ReadReplicatedReply struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// BreakerInfo reports one circuit breaker's current state.
type BreakerInfo struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// RegionService fronts the region coordinator. Cross-region calls run
// through a per-target circuit breaker from the shared registry, so a
// persistently failing region is cut off instead of being retried on every
// request.
type RegionService struct {
	coord    *biz.RegionCoordinator
	breakers *breaker.Registry
	logger   *log.Helper
}

// NewRegionService wires the coordinator behind a breaker registry tuned
// from configuration. Breaker transitions are mirrored to the metrics sink.
func NewRegionService(c *conf.Breaker, coord *biz.RegionCoordinator, sink metrics.Sink, logger log.Logger) *RegionService {
	defaults := []breaker.Option{
		breaker.WithMonitor(func(name string, state breaker.State) {
			sink.CircuitState(name, state.String())
		}),
	}
	if c != nil {
		defaults = append(defaults,
			breaker.WithFailureThreshold(int(c.FailureThreshold)),
			breaker.WithResetTimeout(c.ResetTimeout.AsDuration()),
			breaker.WithHalfOpenSuccessThreshold(int(c.HalfOpenSuccessThreshold)),
			breaker.WithCallTimeout(c.CallTimeout.AsDuration()),
		)
	}

	return &RegionService{
		coord:    coord,
		breakers: breaker.NewRegistry(defaults...),
		logger:   log.NewHelper(logger),
	}
}

// Healthz answers the liveness probe. It reports only local process health;
// peer availability is a region-table concern.
func (s *RegionService) Healthz(_ context.Context) *HealthReply {
	return &HealthReply{
		Status: "ok",
		Region: s.coord.Self(),
		Time:   time.Now(),
	}
}

// ListRegions returns the current region table.
func (s *RegionService) ListRegions(_ context.Context) *ListRegionsReply {
	records := s.coord.Regions()
	regions := make([]*RegionInfo, 0, len(records))
	for _, rec := range records {
		regions = append(regions, &RegionInfo{
			Name:          rec.Name,
			ApiURL:        rec.ApiURL,
			Primary:       rec.Primary,
			Active:        rec.Active,
			LastHeartbeat: rec.LastHeartbeat,
			LatencyMs:     rec.Latency.Milliseconds(),
			UpdatedAt:     rec.UpdatedAt,
		})
	}
	return &ListRegionsReply{Self: s.coord.Self(), Regions: regions}
}

// Replicate stores a value locally and fans it out to the other regions.
func (s *RegionService) Replicate(ctx context.Context, req *ReplicateRequest) error {
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.coord.ReplicateData(ctx, req.Key, req.Value, ttl); err != nil {
		s.logger.Errorw("failed to replicate data", "key", req.Key, "error", err)
		return err
	}
	return nil
}

// ReadReplicated reads a replicated value from the local store.
func (s *RegionService) ReadReplicated(ctx context.Context, key string) (*ReadReplicatedReply, error) {
	value, found, err := s.coord.ReadReplicated(ctx, key)
	if err != nil {
		s.logger.Errorw("failed to read replicated data", "key", key, "error", err)
		return nil, err
	}
	return &ReadReplicatedReply{Key: key, Value: value, Found: found}, nil
}

// CrossRegion routes a request to another region through that region's
// circuit breaker. Routing refusals count as failures too: a region that
// keeps refusing eventually opens its breaker and is skipped without even
// consulting the table.
func (s *RegionService) CrossRegion(ctx context.Context, region, method, path string, body []byte) ([]byte, int, error) {
	cb := s.breakers.GetOrCreate("cross-region:" + region)

	var (
		payload []byte
		status  int
	)
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		payload, status, opErr = s.coord.CrossRegionRequest(ctx, region, method, path, body)
		return opErr
	})
	if err != nil {
		s.logger.Warnw("cross-region request failed",
			"region", region,
			"method", method,
			"path", path,
			"breaker_state", cb.State().String(),
			"error", err)
		return nil, status, err
	}
	return payload, status, nil
}

// Breakers lists the registered circuit breakers and their states.
func (s *RegionService) Breakers(_ context.Context) []*BreakerInfo {
	names := s.breakers.Names()
	out := make([]*BreakerInfo, 0, len(names))
	for _, name := range names {
		if cb, ok := s.breakers.Get(name); ok {
			out = append(out, &BreakerInfo{Name: name, State: cb.State().String()})
		}
	}
	return out
}
