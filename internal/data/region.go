package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Meridian/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Shared-store keys and channels of the coordination protocol.
const (
	// heartbeatKeyPrefix holds per-region liveness timestamps with a TTL.
	heartbeatKeyPrefix = "heartbeat:"
	// regionTableKey persists the full region table so late-joining
	// coordinators converge without a leader.
	regionTableKey = "region:table"
	// replicaKeyPrefix stores replicated key/value data.
	replicaKeyPrefix = "replica:"

	// StatusChannel carries model.StatusEvent messages.
	StatusChannel = "meridian:status"
	// ReplicationChannel carries model.ReplicationEnvelope messages.
	ReplicationChannel = "meridian:replication"
)

// replicaCacheSize bounds the local read cache of replicated values.
const replicaCacheSize = 1024

// replicaEntry is one locally cached replicated value. ExpiresAt mirrors the
// Redis TTL so the cache never outlives the authoritative copy.
type replicaEntry struct {
	value     string
	expiresAt time.Time
}

// RegionRepo implements biz.RegionRepo: heartbeat keys, region-table
// persistence, the status/replication channels and replicated key storage
// with a local LRU read cache.
type RegionRepo struct {
	rdb    *redis.Client
	broker Broker
	cache  *lru.Cache[string, replicaEntry]
	logger *log.Helper
}

// NewRegionRepo creates a new region repository.
func NewRegionRepo(rdb *redis.Client, broker Broker, logger log.Logger) (*RegionRepo, error) {
	cache, err := lru.New[string, replicaEntry](replicaCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create replica cache: %w", err)
	}

	return &RegionRepo{
		rdb:    rdb,
		broker: broker,
		cache:  cache,
		logger: log.NewHelper(logger),
	}, nil
}

// WriteHeartbeat records this region's liveness in the shared store. The TTL
// makes a stopped process disappear passively; nothing ever deletes the key.
func (r *RegionRepo) WriteHeartbeat(ctx context.Context, region string, now time.Time, ttl time.Duration) error {
	key := heartbeatKeyPrefix + region
	if err := r.rdb.Set(ctx, key, now.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write heartbeat for %s: %w", region, err)
	}
	return nil
}

// LastHeartbeat returns the most recent heartbeat timestamp for region, or
// nil when the key has expired or was never written.
func (r *RegionRepo) LastHeartbeat(ctx context.Context, region string) (*time.Time, error) {
	val, err := r.rdb.Get(ctx, heartbeatKeyPrefix+region).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read heartbeat for %s: %w", region, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return nil, fmt.Errorf("malformed heartbeat timestamp for %s: %w", region, err)
	}
	return &ts, nil
}

// SaveTable persists the full region table as JSON.
func (r *RegionRepo) SaveTable(ctx context.Context, records []*model.RegionRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal region table: %w", err)
	}
	if err := r.rdb.Set(ctx, regionTableKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save region table: %w", err)
	}
	return nil
}

// LoadTable returns the previously persisted region table, or nil when no
// coordinator has published one yet.
func (r *RegionRepo) LoadTable(ctx context.Context) ([]*model.RegionRecord, error) {
	val, err := r.rdb.Get(ctx, regionTableKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load region table: %w", err)
	}

	var records []*model.RegionRecord
	if err := json.Unmarshal([]byte(val), &records); err != nil {
		return nil, fmt.Errorf("malformed region table: %w", err)
	}
	return records, nil
}

// PublishStatus announces a region's availability on the status channel.
func (r *RegionRepo) PublishStatus(ctx context.Context, ev model.StatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}
	return r.broker.Publish(ctx, StatusChannel, payload)
}

// SubscribeStatus delivers peer status events to handler until the returned
// close function is called. Malformed messages are logged and dropped.
func (r *RegionRepo) SubscribeStatus(ctx context.Context, handler func(model.StatusEvent)) (func() error, error) {
	return r.broker.Subscribe(ctx, StatusChannel, func(payload []byte) {
		var ev model.StatusEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			r.logger.Warnw("dropping malformed status event", "error", err)
			return
		}
		handler(ev)
	})
}

// PublishReplication publishes one replicated write to every peer region.
func (r *RegionRepo) PublishReplication(ctx context.Context, env model.ReplicationEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal replication envelope: %w", err)
	}
	return r.broker.Publish(ctx, ReplicationChannel, payload)
}

// SubscribeReplication delivers replication envelopes to handler until the
// returned close function is called.
func (r *RegionRepo) SubscribeReplication(ctx context.Context, handler func(model.ReplicationEnvelope)) (func() error, error) {
	return r.broker.Subscribe(ctx, ReplicationChannel, func(payload []byte) {
		var env model.ReplicationEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			r.logger.Warnw("dropping malformed replication envelope", "error", err)
			return
		}
		handler(env)
	})
}

// SetReplicated applies a replicated write locally and refreshes the read
// cache. Applying the same envelope twice is harmless: the write is
// idempotent on key.
func (r *RegionRepo) SetReplicated(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, replicaKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to apply replicated write %s: %w", key, err)
	}

	entry := replicaEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	r.cache.Add(key, entry)

	return nil
}

// GetReplicated reads a replicated value, serving from the local LRU cache
// when the entry is still fresh.
func (r *RegionRepo) GetReplicated(ctx context.Context, key string) (string, bool, error) {
	if entry, ok := r.cache.Get(key); ok {
		if entry.expiresAt.IsZero() || time.Now().Before(entry.expiresAt) {
			return entry.value, true, nil
		}
		r.cache.Remove(key)
	}

	pipe := r.rdb.Pipeline()
	get := pipe.Get(ctx, replicaKeyPrefix+key)
	pttl := pipe.PTTL(ctx, replicaKeyPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read replicated key %s: %w", key, err)
	}

	entry := replicaEntry{value: get.Val()}
	if ttl := pttl.Val(); ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	r.cache.Add(key, entry)
	return entry.value, true, nil
}
