package data

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Broker is the narrow pub/sub seam between the coordination layer and the
// shared store. Keeping it this small makes the broker swappable and lets
// tests subscribe with plain in-memory fakes.
type Broker interface {
	// Publish sends payload on channel. Delivery is best effort and
	// at-least-once from the subscriber's point of view.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe invokes handler for every message on channel until the
	// returned close function is called. Handler runs on the subscription
	// goroutine, so it must not block for long.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (func() error, error)
}

// redisBroker implements Broker over Redis pub/sub.
type redisBroker struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewBroker creates a Redis-backed Broker.
func NewBroker(rdb *redis.Client, logger log.Logger) Broker {
	return &redisBroker{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

func (b *redisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *redisBroker) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (func() error, error) {
	sub := b.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so callers never miss messages
	// published right after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	ch := sub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()

	return sub.Close, nil
}
