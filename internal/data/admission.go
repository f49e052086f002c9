package data

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// AdmissionRepo implements biz.AdmissionRepo on top of Redis counters.
// Following Kratos v2 DDD architecture, the interface is defined in the biz
// layer. Correctness depends on Redis's atomic INCRBY: the repo never does a
// read-then-write across the network hop.
type AdmissionRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewAdmissionRepo creates a new admission-control repository.
func NewAdmissionRepo(rdb *redis.Client, logger log.Logger) *AdmissionRepo {
	return &AdmissionRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Consume atomically adds cost to the window counter for (policy, key) and
// returns the new count plus the remaining window TTL. The TTL is started on
// the first consumption of a window, so the window is fixed rather than
// sliding.
func (r *AdmissionRepo) Consume(ctx context.Context, policy, key string, cost int64, window time.Duration) (int64, time.Duration, error) {
	if r.rdb == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}

	counterKey := rateKey(policy, key)

	pipe := r.rdb.TxPipeline()
	incr := pipe.IncrBy(ctx, counterKey, cost)
	pttl := pipe.PTTL(ctx, counterKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to consume %s: %w", counterKey, err)
	}

	count := incr.Val()
	ttl := pttl.Val()

	// PTTL < 0 means the key has no expiry yet: this consumption opened the
	// window, so start its clock now.
	if ttl < 0 {
		if err := r.rdb.Expire(ctx, counterKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set window expiry for %s: %w", counterKey, err)
		}
		ttl = window
	}

	return count, ttl, nil
}

// Block marks (policy, key) as blocked for the given duration. While the
// block key exists, consumption is refused regardless of the window counter.
func (r *AdmissionRepo) Block(ctx context.Context, policy, key string, d time.Duration) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.rdb.Set(ctx, blockKey(policy, key), "1", d).Err(); err != nil {
		return fmt.Errorf("failed to set block for %s:%s: %w", policy, key, err)
	}

	r.logger.Warnw("admission key blocked",
		"policy", policy,
		"key", key,
		"duration", d)

	return nil
}

// BlockRemaining returns how long (policy, key) stays blocked. Zero means
// not blocked.
func (r *AdmissionRepo) BlockRemaining(ctx context.Context, policy, key string) (time.Duration, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}

	ttl, err := r.rdb.PTTL(ctx, blockKey(policy, key)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read block ttl for %s:%s: %w", policy, key, err)
	}
	if ttl < 0 {
		// -2 key missing, -1 no expiry; either way the key is not an active block.
		return 0, nil
	}
	return ttl, nil
}

// Reset clears the window counter and any block for (policy, key).
// Used for administrative unblocking and tests.
func (r *AdmissionRepo) Reset(ctx context.Context, policy, key string) error {
	if r.rdb == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := r.rdb.Del(ctx, rateKey(policy, key), blockKey(policy, key)).Err(); err != nil {
		return fmt.Errorf("failed to reset %s:%s: %w", policy, key, err)
	}
	return nil
}

// rateKey generates the window counter key.
// Format: ratelimit:{policy}:{key}
func rateKey(policy, key string) string {
	return fmt.Sprintf("ratelimit:%s:%s", policy, key)
}

// blockKey generates the block marker key.
// Format: ratelimit:block:{policy}:{key}
func blockKey(policy, key string) string {
	return fmt.Sprintf("ratelimit:block:%s:%s", policy, key)
}
