package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Channel publishes and receives plain string messages on one Redis pub/sub
// channel. Delivery is at most once: subscribers that are offline miss messages.
type Channel struct {
	db   redis.UniversalClient
	name string
}

// NewChannel returns the channel called name under the key prefix from cfg.
func NewChannel(client redis.UniversalClient, cfg Config, name string) *Channel {
	return &Channel{db: client, name: cfg.KeyPrefix + name}
}

// Name returns the full channel name.
func (c *Channel) Name() string {
	return c.name
}

// Publish sends payload to every current subscriber.
func (c *Channel) Publish(ctx context.Context, payload string) error {
	return c.db.Publish(ctx, c.name, payload).Err()
}

// Listen subscribes and calls handle for each message, one at a time, until
// ctx is done. It returns nil on cancellation.
func (c *Channel) Listen(ctx context.Context, handle func(ctx context.Context, payload string)) error {
	sub := c.db.Subscribe(ctx, c.name)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Join(ErrSubscribeFailed, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return ErrSubscriptionClosed
			}
			handle(ctx, msg.Payload)
		}
	}
}
