package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared Store used by the deployed consumers. Keys are
// namespaced per consumer group and topic, expiring after the configured TTL
// (the broker's own retention makes very old redeliveries impossible).
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Seen(ctx context.Context, namespace, key string) (bool, error) {
	n, err := r.client.Exists(ctx, namespace+":"+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Redis) MarkProcessed(ctx context.Context, namespace, key string, ttl time.Duration) (bool, error) {
	set, err := r.client.SetNX(ctx, namespace+":"+key, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
