// README: Redis pub/sub transport so other API replicas and dashboards can follow incidents.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Deliver(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encoding envelope: %v", ErrDelivery, err)
	}
	if err := p.client.Publish(ctx, env.Recipient.Channel(p.prefix), payload).Err(); err != nil {
		return fmt.Errorf("%w: redis publish: %v", ErrDelivery, err)
	}
	return nil
}
