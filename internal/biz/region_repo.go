package biz

import (
	"context"
	"net/http"
	"time"

	"Meridian/internal/model"
)

// RegionRepo defines the shared-store operations behind the region
// coordinator: heartbeat keys, region-table persistence, the status and
// replication channels, and replicated key storage. The implementation is
// data.RegionRepo.
type RegionRepo interface {
	// WriteHeartbeat records this region's liveness with a TTL.
	WriteHeartbeat(ctx context.Context, region string, now time.Time, ttl time.Duration) error
	// LastHeartbeat returns a region's most recent heartbeat, nil if expired.
	LastHeartbeat(ctx context.Context, region string) (*time.Time, error)

	// SaveTable persists the full region table for late-joining coordinators.
	SaveTable(ctx context.Context, records []*model.RegionRecord) error
	// LoadTable returns the persisted table, nil if none exists yet.
	LoadTable(ctx context.Context) ([]*model.RegionRecord, error)

	// PublishStatus announces an availability change or heartbeat.
	PublishStatus(ctx context.Context, ev model.StatusEvent) error
	// SubscribeStatus delivers peer status events until closed.
	SubscribeStatus(ctx context.Context, handler func(model.StatusEvent)) (func() error, error)

	// PublishReplication fans one replicated write out to all regions.
	PublishReplication(ctx context.Context, env model.ReplicationEnvelope) error
	// SubscribeReplication delivers replication envelopes until closed.
	SubscribeReplication(ctx context.Context, handler func(model.ReplicationEnvelope)) (func() error, error)

	// SetReplicated applies a replicated write locally (idempotent on key).
	SetReplicated(ctx context.Context, key, value string, ttl time.Duration) error
	// GetReplicated reads a replicated value.
	GetReplicated(ctx context.Context, key string) (string, bool, error)
}

// Doer is the outbound HTTP seam used for health probes and cross-region
// requests. *http.Client satisfies it; tests substitute call-counting fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient builds the outbound HTTP client. Individual calls carry
// their own context deadlines; the client timeout is a backstop.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
