package biz

import (
	"context"
	"time"
)

// AdmissionRepo defines the shared-store operations behind the admission
// controller. Following Kratos v2 DDD architecture, interfaces are defined
// in the biz layer; the implementation is in the data layer
// (data.AdmissionRepo).
//
// Implementations must provide atomic increment-and-expire semantics: the
// controller never assumes read-then-write is atomic across the network hop.
type AdmissionRepo interface {
	// Consume atomically adds cost to the (policy, key) window counter and
	// returns the new count plus the remaining window TTL.
	Consume(ctx context.Context, policy, key string, cost int64, window time.Duration) (int64, time.Duration, error)

	// Block marks (policy, key) blocked for d, independent of the window.
	Block(ctx context.Context, policy, key string, d time.Duration) error

	// BlockRemaining returns the remaining block duration, zero if unblocked.
	BlockRemaining(ctx context.Context, policy, key string) (time.Duration, error)

	// Reset clears the counter and block for (policy, key).
	Reset(ctx context.Context, policy, key string) error
}
