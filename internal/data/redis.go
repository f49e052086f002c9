// Package data provides data access layer implementations.
package data

import (
	"context"
	"fmt"
	"time"

	"Meridian/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a new Redis client with connection pool configuration.
// It returns the client, a cleanup function, and an error.
// Redis is the shared key-value and pub/sub store of the coordination layer:
// heartbeats, admission counters, the region table and replication envelopes
// all live here, so unlike a pure cache a failed connection is reported (but
// still does not prevent startup, since the background loops retry on every
// tick).
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	helper := log.NewHelper(logger)

	if c == nil || c.Redis == nil {
		return nil, nil, fmt.Errorf("redis configuration is required")
	}

	addr := c.Redis.Addr
	if addr == "" {
		return nil, nil, fmt.Errorf("redis address is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        c.Redis.Password,
		DB:              0, // Use default DB
		PoolSize:        100,
		MinIdleConns:    10,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout:    c.Redis.WriteTimeout.AsDuration(),
		ConnMaxIdleTime: 5 * time.Minute,
	})

	// Health check: verify connection with ping
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		helper.Warnf("Failed to connect to Redis at %s: %v (coordination loops will retry)", addr, err)
	} else {
		helper.Infof("Successfully connected to Redis at %s", addr)
	}

	cleanup := func() {
		helper.Info("Closing Redis client")
		if err := rdb.Close(); err != nil {
			helper.Errorf("Failed to close Redis client: %v", err)
		}
	}

	return rdb, cleanup, nil
}
