package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker implements Broker on top of Redis pub/sub. One Redis
// subscription is held per gateway connection and released on unsubscribe.
type RedisBroker struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{
		rdb:    rdb,
		logger: logger,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string, h Handler) (func(), error) {
	sub := b.rdb.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round-trip so a broken backend fails the
	// connection attempt instead of silently dropping messages.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	msgs := sub.Channel()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				h([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	b.logger.Debug("Channel subscribed", zap.String("channel", channel))

	unsubscribe := func() {
		close(done)
		if err := sub.Close(); err != nil {
			b.logger.Warn("Failed to close redis subscription",
				zap.String("channel", channel),
				zap.Error(err),
			)
		}
		b.logger.Debug("Channel unsubscribed", zap.String("channel", channel))
	}
	return unsubscribe, nil
}
