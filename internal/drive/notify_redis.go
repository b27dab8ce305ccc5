package drive

import (
	"context"
	"encoding/json"

	errors "github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes activity events as JSON on a Redis channel.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisNotifier binds a notifier to one pub/sub channel.
func NewRedisNotifier(client redis.UniversalClient, channel string) (*RedisNotifier, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("channel is required")
	}
	return &RedisNotifier{client: client, channel: channel}, nil
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %q", n.channel)
	}
	return nil
}
