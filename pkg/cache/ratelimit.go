package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateStore keeps fixed window counters in Redis so every API instance shares them.
type RedisRateStore struct {
	client *redis.Client
}

// NewRedisRateStore constructs a store over client.
func NewRedisRateStore(client *redis.Client) *RedisRateStore {
	return &RedisRateStore{client: client}
}

// Hit increments key and starts its expiry on the first hit of a window.
func (s *RedisRateStore) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = "ratelimit:" + key
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
