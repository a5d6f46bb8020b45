package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes events as JSON messages on Redis pub/sub
// channels. Subscribers that are not listening at publish time miss the
// message; delivery is at-most-once.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a publisher backed by the given Redis client
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger,
	}
}

// Publish serializes the payload and publishes it on the topic channel.
// Failures are logged and swallowed.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to serialize event payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	if err := p.client.Publish(ctx, topic, body).Err(); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("Event published", zap.String("topic", topic))
}

// NoopPublisher discards all events. Used in tests and when no sink is
// configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, topic string, payload any) {}
