package data

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestConsume_FirstConsumptionOpensWindow(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	count, ttl, err := repo.Consume(ctx, "api", "tenant-1:1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, ttl)

	// The window key carries a TTL from the very first consumption.
	storeTTL := rdb.TTL(ctx, rateKey("api", "tenant-1:1.2.3.4")).Val()
	assert.Greater(t, storeTTL, time.Duration(0))
	assert.LessOrEqual(t, storeTTL, time.Minute)
}

func TestConsume_CountsAccumulateWithinWindow(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		count, ttl, err := repo.Consume(ctx, "api", "k", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Greater(t, ttl, time.Duration(0))
	}
}

func TestConsume_CostGreaterThanOne(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	count, _, err := repo.Consume(ctx, "api", "k", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, _, err = repo.Consume(ctx, "api", "k", 2, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestConsume_WindowExpiryResetsCount(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	_, _, err := repo.Consume(ctx, "api", "k", 1, time.Minute)
	require.NoError(t, err)

	// Let the window expire in the store.
	mr.FastForward(61 * time.Second)

	count, ttl, err := repo.Consume(ctx, "api", "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, ttl)
}

func TestConsume_PoliciesAreIndependent(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	count, _, err := repo.Consume(ctx, "api", "k", 4, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	count, _, err = repo.Consume(ctx, "auth", "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBlock_AndBlockRemaining(t *testing.T) {
	rdb, mr := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()

	remaining, err := repo.BlockRemaining(ctx, "auth", "1.2.3.4:alice")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	require.NoError(t, repo.Block(ctx, "auth", "1.2.3.4:alice", 15*time.Minute))

	remaining, err = repo.BlockRemaining(ctx, "auth", "1.2.3.4:alice")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, 15*time.Minute)

	// The block outlives any window but still expires on its own.
	mr.FastForward(16 * time.Minute)
	remaining, err = repo.BlockRemaining(ctx, "auth", "1.2.3.4:alice")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestReset_ClearsCounterAndBlock(t *testing.T) {
	rdb, _ := setupTestRedis(t)
	repo := NewAdmissionRepo(rdb, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	_, _, err := repo.Consume(ctx, "auth", "k", 5, time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Block(ctx, "auth", "k", time.Hour))

	require.NoError(t, repo.Reset(ctx, "auth", "k"))

	count, _, err := repo.Consume(ctx, "auth", "k", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	remaining, err := repo.BlockRemaining(ctx, "auth", "k")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestAdmissionRepo_NilRedis(t *testing.T) {
	repo := NewAdmissionRepo(nil, log.NewStdLogger(os.Stdout))

	ctx := context.Background()
	_, _, err := repo.Consume(ctx, "api", "k", 1, time.Minute)
	assert.Error(t, err)

	err = repo.Block(ctx, "api", "k", time.Minute)
	assert.Error(t, err)

	_, err = repo.BlockRemaining(ctx, "api", "k")
	assert.Error(t, err)

	err = repo.Reset(ctx, "api", "k")
	assert.Error(t, err)
}

func TestRateKeyFormats(t *testing.T) {
	assert.Equal(t, "ratelimit:api:tenant:1.2.3.4", rateKey("api", "tenant:1.2.3.4"))
	assert.Equal(t, "ratelimit:block:auth:1.2.3.4:alice", blockKey("auth", "1.2.3.4:alice"))
}
