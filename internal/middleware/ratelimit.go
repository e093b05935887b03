package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

// RateStore counts hits of a key within a fixed window.
type RateStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter rejects clients that exceed limit requests per window, keyed by client IP.
type RateLimiter struct {
	store  RateStore
	prefix string
	limit  int64
	window time.Duration
	logger *zap.Logger
}

// NewRateLimiter constructs a limiter. A non-positive limit disables it.
func NewRateLimiter(store RateStore, prefix string, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, prefix: prefix, limit: int64(limit), window: window, logger: logger}
}

// Middleware returns the gin handler. Store failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 || rl.store == nil {
			c.Next()
			return
		}
		count, err := rl.store.Hit(c.Request.Context(), rl.prefix+":"+c.ClientIP(), rl.window)
		if err != nil {
			rl.logger.Warn("rate limit store failed", zap.Error(err))
			c.Next()
			return
		}
		remaining := rl.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > rl.limit {
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			response.Error(c, appErrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}

// MemoryRateStore is the in-process fixed window counter used without Redis.
type MemoryRateStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryRateStore constructs an in-process store.
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{windows: make(map[string]*rateWindow), now: time.Now}
}

// Hit increments the counter of key, opening a new window when the previous one ended.
func (s *MemoryRateStore) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++
	s.sweep(now)
	return w.count, nil
}

func (s *MemoryRateStore) sweep(now time.Time) {
	if len(s.windows) < 1024 {
		return
	}
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}
