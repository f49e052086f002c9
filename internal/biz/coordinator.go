package biz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"Meridian/internal/conf"
	"Meridian/internal/model"
	"Meridian/pkg/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// Headers tagging coordinator traffic between regions.
const (
	// HeaderSourceRegion names the region originating a probe or request.
	HeaderSourceRegion = "X-Source-Region"
	// HeaderCrossRegion marks requests routed between regions.
	HeaderCrossRegion = "X-Cross-Region-Request"
)

// maxCrossRegionBody bounds response bodies read from peer regions.
const maxCrossRegionBody = 4 << 20

// RegionCoordinator maintains the region table and runs the coordination
// protocols: periodic heartbeats, peer health checks, status propagation
// over the broker, cross-region request routing and asynchronous
// last-write-wins data replication.
//
// Background loops swallow and log their errors so one failing tick never
// halts coordination; the synchronous operations (CrossRegionRequest,
// ReplicateData, ReadReplicated) propagate errors to their caller.
type RegionCoordinator struct {
	self   string
	repo   RegionRepo
	client Doer
	sink   metrics.Sink
	logger *log.Helper

	heartbeatInterval   time.Duration
	heartbeatTTL        time.Duration
	healthCheckInterval time.Duration
	probeTimeout        time.Duration
	freshnessBound      time.Duration

	static []*conf.Region_Peer

	mu      sync.RWMutex
	regions map[string]*model.RegionRecord

	clock func() time.Time

	// skip-if-busy semaphores: a hung store or peer must never stack ticks.
	hbBusy chan struct{}
	hcBusy chan struct{}

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closers []func() error
}

// NewRegionCoordinator builds the coordinator from configuration. The
// static peer list becomes the initial region table; Start later overlays
// whatever table a previous coordinator persisted to the shared store.
func NewRegionCoordinator(c *conf.Region, repo RegionRepo, client Doer, sink metrics.Sink, logger log.Logger) (*RegionCoordinator, error) {
	if c == nil || c.Name == "" {
		return nil, fmt.Errorf("region configuration is required")
	}

	rc := &RegionCoordinator{
		self:                c.Name,
		repo:                repo,
		client:              client,
		sink:                sink,
		logger:              log.NewHelper(logger),
		heartbeatInterval:   c.HeartbeatInterval.AsDuration(),
		heartbeatTTL:        c.HeartbeatTTL.AsDuration(),
		healthCheckInterval: c.HealthCheckInterval.AsDuration(),
		probeTimeout:        c.ProbeTimeout.AsDuration(),
		freshnessBound:      c.FreshnessBound.AsDuration(),
		static:              c.Peers,
		regions:             make(map[string]*model.RegionRecord),
		clock:               time.Now,
		hbBusy:              make(chan struct{}, 1),
		hcBusy:              make(chan struct{}, 1),
	}

	for _, p := range c.Peers {
		rc.regions[p.Name] = &model.RegionRecord{
			Name:    p.Name,
			ApiURL:  p.ApiUrl,
			Primary: p.Primary,
			// The local region is trivially reachable from itself.
			Active:    p.Name == c.Name,
			UpdatedAt: rc.clock(),
		}
	}

	return rc, nil
}

// Self returns the local region name.
func (c *RegionCoordinator) Self() string { return c.self }

// Regions returns a snapshot of the region table.
func (c *RegionCoordinator) Regions() []*model.RegionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.RegionRecord, 0, len(c.regions))
	for _, rec := range c.regions {
		out = append(out, rec.Clone())
	}
	return out
}

// Region returns a snapshot of one region table entry.
func (c *RegionCoordinator) Region(name string) (*model.RegionRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.regions[name]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Start bootstraps the table from the shared store, subscribes to the
// status and replication channels and launches the heartbeat and
// health-check loops.
func (c *RegionCoordinator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.bootstrap(runCtx)

	closeStatus, err := c.repo.SubscribeStatus(runCtx, c.ApplyStatusEvent)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to status channel: %w", err)
	}
	c.closers = append(c.closers, closeStatus)

	closeRepl, err := c.repo.SubscribeReplication(runCtx, c.ApplyReplication)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to replication channel: %w", err)
	}
	c.closers = append(c.closers, closeRepl)

	// Announce ourselves immediately instead of waiting a full interval.
	c.RunHeartbeatTick(runCtx)

	c.wg.Add(2)
	go c.heartbeatLoop(runCtx)
	go c.healthCheckLoop(runCtx)

	c.logger.Infow("region coordinator started",
		"region", c.self,
		"peers", len(c.regions)-1,
		"heartbeat_interval", c.heartbeatInterval,
		"health_check_interval", c.healthCheckInterval)

	return nil
}

// Stop cancels the loops and closes the subscriptions.
func (c *RegionCoordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			c.logger.Warnw("failed to close subscription", "error", err)
		}
	}
	c.closers = nil
	c.wg.Wait()
	c.logger.Infow("region coordinator stopped", "region", c.self)
}

// bootstrap overlays the persisted region table onto the static
// configuration so a restarted coordinator converges without waiting for a
// full health-check cycle. Configuration stays authoritative for
// membership, URL and primary flag.
func (c *RegionCoordinator) bootstrap(ctx context.Context) {
	stored, err := c.repo.LoadTable(ctx)
	if err != nil {
		c.sink.CoordinatorError("bootstrap")
		c.logger.Warnw("failed to load persisted region table, using static configuration", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range stored {
		known, ok := c.regions[rec.Name]
		if !ok || rec.Name == c.self {
			continue
		}
		next := known.Clone()
		next.Active = rec.Active
		next.LastHeartbeat = rec.LastHeartbeat
		next.Latency = rec.Latency
		next.UpdatedAt = rec.UpdatedAt
		c.regions[rec.Name] = next
	}
}

func (c *RegionCoordinator) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case c.hbBusy <- struct{}{}:
				go func() {
					defer func() { <-c.hbBusy }()
					c.RunHeartbeatTick(ctx)
				}()
			default:
				c.logger.Warn("heartbeat tick skipped, previous tick still running")
			}
		}
	}
}

func (c *RegionCoordinator) healthCheckLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case c.hcBusy <- struct{}{}:
				go func() {
					defer func() { <-c.hcBusy }()
					c.RunHealthCheckTick(ctx)
				}()
			default:
				c.logger.Warn("health-check tick skipped, previous tick still running")
			}
		}
	}
}

// RunHeartbeatTick publishes this region's liveness: a TTL'd heartbeat key
// plus a status event. Failures are logged and counted, never propagated.
func (c *RegionCoordinator) RunHeartbeatTick(ctx context.Context) {
	now := c.clock()

	tickCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := c.repo.WriteHeartbeat(tickCtx, c.self, now, c.heartbeatTTL); err != nil {
		c.sink.CoordinatorError("heartbeat")
		c.logger.Warnw("failed to write heartbeat", "error", err)
		return
	}

	if err := c.repo.PublishStatus(tickCtx, model.StatusEvent{
		Region:    c.self,
		Active:    true,
		Timestamp: now,
	}); err != nil {
		c.sink.CoordinatorError("heartbeat")
		c.logger.Warnw("failed to publish heartbeat status", "error", err)
	}

	c.mu.Lock()
	if rec, ok := c.regions[c.self]; ok {
		next := rec.Clone()
		next.Active = true
		next.LastHeartbeat = &now
		next.UpdatedAt = now
		c.regions[c.self] = next
	}
	c.mu.Unlock()
}

// RunHealthCheckTick recomputes every other region's availability from two
// independent signals: heartbeat freshness in the shared store and a live
// HTTP probe. Either signal alone can be a false positive (a stalled process
// still answers probes; a heartbeat can lag without an outage), so a region
// is active only when both agree. Transitions are published on the status
// channel and the updated table is persisted for late joiners.
func (c *RegionCoordinator) RunHealthCheckTick(ctx context.Context) {
	now := c.clock()
	changed := false

	for _, rec := range c.Regions() {
		if rec.Name == c.self {
			continue
		}

		hb, err := c.repo.LastHeartbeat(ctx, rec.Name)
		if err != nil {
			c.sink.CoordinatorError("health_check")
			c.logger.Warnw("failed to read peer heartbeat", "region", rec.Name, "error", err)
			// Treat an unreadable heartbeat like an expired one; the probe
			// alone must not keep the region active.
			hb = nil
		}

		probeOK, latency := c.probe(ctx, rec.ApiURL)
		fresh := hb != nil && now.Sub(*hb) < c.freshnessBound
		active := probeOK && fresh

		next := rec.Clone()
		next.Active = active
		next.LastHeartbeat = hb
		next.UpdatedAt = now
		if probeOK {
			next.Latency = latency
			c.sink.RegionLatency(rec.Name, latency)
		}
		c.sink.RegionAvailability(rec.Name, active)

		c.mu.Lock()
		c.regions[rec.Name] = next
		c.mu.Unlock()

		if active != rec.Active {
			changed = true
			c.logger.Infow("region availability changed",
				"region", rec.Name,
				"active", active,
				"probe_ok", probeOK,
				"heartbeat_fresh", fresh)
			if err := c.repo.PublishStatus(ctx, model.StatusEvent{
				Region:    rec.Name,
				Active:    active,
				Timestamp: now,
			}); err != nil {
				c.sink.CoordinatorError("health_check")
				c.logger.Warnw("failed to publish status change", "region", rec.Name, "error", err)
			}
		}
	}

	if changed {
		if err := c.PersistTable(ctx); err != nil {
			c.sink.CoordinatorError("health_check")
			c.logger.Warnw("failed to persist region table", "error", err)
		}
	}
}

// PersistTable writes the current region table snapshot to the shared store.
func (c *RegionCoordinator) PersistTable(ctx context.Context) error {
	return c.repo.SaveTable(ctx, c.Regions())
}

// probe issues the HTTP health check against a peer region.
func (c *RegionCoordinator) probe(ctx context.Context, apiURL string) (bool, time.Duration) {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, apiURL+"/healthz", nil)
	if err != nil {
		return false, 0
	}
	req.Header.Set(HeaderSourceRegion, c.self)

	start := c.clock()
	resp, err := c.client.Do(req)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return resp.StatusCode >= 200 && resp.StatusCode < 300, c.clock().Sub(start)
}

// ApplyStatusEvent folds a peer-reported availability change into the table.
// Events resolve last-write-wins by timestamp, so status propagates faster
// than the local polling interval without ever rolling back newer local
// observations.
func (c *RegionCoordinator) ApplyStatusEvent(ev model.StatusEvent) {
	if ev.Region == c.self {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.regions[ev.Region]
	if !ok {
		// Membership is configuration-driven; ignore unknown regions.
		return
	}
	if !ev.Timestamp.After(rec.UpdatedAt) {
		return
	}

	next := rec.Clone()
	next.Active = ev.Active
	next.UpdatedAt = ev.Timestamp
	c.regions[ev.Region] = next

	c.sink.RegionAvailability(ev.Region, ev.Active)
}

// CrossRegionRequest routes a call to another region. It refuses immediately
// with *RegionUnavailableError when the target is unknown or inactive: no
// round trip is wasted on a known-bad region. Network failures propagate to
// the caller, who is expected to wrap this in a circuit breaker keyed by
// target region.
func (c *RegionCoordinator) CrossRegionRequest(ctx context.Context, region, method, path string, body []byte) ([]byte, int, error) {
	rec, ok := c.Region(region)
	if !ok || !rec.Active {
		return nil, 0, &RegionUnavailableError{Region: region}
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rec.ApiURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build cross-region request: %w", err)
	}
	req.Header.Set(HeaderCrossRegion, "true")
	req.Header.Set(HeaderSourceRegion, c.self)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.clock()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("cross-region request to %s failed: %w", region, err)
	}
	defer resp.Body.Close()

	latency := c.clock().Sub(start)
	c.sink.RegionLatency(region, latency)

	c.mu.Lock()
	if cur, ok := c.regions[region]; ok {
		next := cur.Clone()
		next.Latency = latency
		c.regions[region] = next
	}
	c.mu.Unlock()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxCrossRegionBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read cross-region response from %s: %w", region, err)
	}

	return payload, resp.StatusCode, nil
}

// ReplicateData writes locally, then publishes a replication envelope that
// every other region applies. Best-effort, last-write-wins: appropriate for
// cache-like data, not authoritative state.
func (c *RegionCoordinator) ReplicateData(ctx context.Context, key, value string, ttl time.Duration) error {
	now := c.clock()

	if err := c.repo.SetReplicated(ctx, key, value, ttl); err != nil {
		return err
	}

	return c.repo.PublishReplication(ctx, model.ReplicationEnvelope{
		Key:          key,
		Value:        value,
		TTL:          ttl,
		SourceRegion: c.self,
		Timestamp:    now,
	})
}

// ReadReplicated reads a replicated value from the local store.
func (c *RegionCoordinator) ReadReplicated(ctx context.Context, key string) (string, bool, error) {
	return c.repo.GetReplicated(ctx, key)
}

// ApplyReplication consumes one replication envelope: self-originated
// envelopes are skipped, everything else is applied locally and its
// origin-to-apply lag reported. Errors are logged and counted only; a bad
// envelope must not disturb unrelated request paths.
func (c *RegionCoordinator) ApplyReplication(env model.ReplicationEnvelope) {
	if env.SourceRegion == c.self {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.probeTimeout)
	defer cancel()

	if err := c.repo.SetReplicated(ctx, env.Key, env.Value, env.TTL); err != nil {
		c.sink.CoordinatorError("replication")
		c.logger.Warnw("failed to apply replicated write",
			"key", env.Key,
			"source_region", env.SourceRegion,
			"error", err)
		return
	}

	lag := c.clock().Sub(env.Timestamp)
	if lag < 0 {
		lag = 0
	}
	c.sink.ReplicationLag(lag)

	c.logger.Debugw("replicated write applied",
		"key", env.Key,
		"source_region", env.SourceRegion,
		"lag", lag)
}
