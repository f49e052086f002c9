// Package data provides data access layer implementations.
// It owns the Redis connection used as the shared key-value and
// pub/sub store of the coordination layer.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewBroker,
)
