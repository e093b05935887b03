package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyRepository guards workflow commands against concurrent duplicates using
// Redis SETNX keys, falling back to an in-process set.
type IdempotencyRepository struct {
	client *redis.Client

	mu    sync.Mutex
	local map[string]time.Time
	now   func() time.Time
}

// NewIdempotencyRepository constructs the repository. client may be nil.
func NewIdempotencyRepository(client *redis.Client) *IdempotencyRepository {
	return &IdempotencyRepository{client: client, local: make(map[string]time.Time), now: time.Now}
}

// Acquire claims key for ttl. It returns false when another request holds the key.
func (r *IdempotencyRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		now := r.now()
		if until, ok := r.local[key]; ok && until.After(now) {
			return false, nil
		}
		r.local[key] = now.Add(ttl)
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release frees key so a failed command can be retried immediately.
func (r *IdempotencyRepository) Release(ctx context.Context, key string) error {
	if r.client == nil {
		r.mu.Lock()
		delete(r.local, key)
		r.mu.Unlock()
		return nil
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
