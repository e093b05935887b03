package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

const changeChannelPrefix = "erp:changes:"

// ChangeChannel returns the pub/sub channel carrying events for a collection.
func ChangeChannel(collection string) string {
	return changeChannelPrefix + collection
}

// Subscription delivers change events until Close is called.
type Subscription struct {
	C     <-chan models.ChangeEvent
	close func()
	once  sync.Once
}

// Close stops delivery and releases the subscription.
func (s *Subscription) Close() {
	s.once.Do(s.close)
}

// RedisChangeFeed fans change events out through Redis Pub/Sub so every API instance sees them.
type RedisChangeFeed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisChangeFeed constructs a RedisChangeFeed.
func NewRedisChangeFeed(client *redis.Client, logger *zap.Logger) *RedisChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChangeFeed{client: client, logger: logger}
}

// Publish sends an event to the collection channel.
func (f *RedisChangeFeed) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, ChangeChannel(event.Collection), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe attaches to the collection channel. The subscription ends with ctx or Close.
func (f *RedisChangeFeed) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	pubsub := f.client.Subscribe(ctx, ChangeChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	out := make(chan models.ChangeEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var event models.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Warn("drop malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	return &Subscription{C: out, close: func() {
		close(done)
		_ = pubsub.Close()
	}}, nil
}

// MemoryChangeFeed is the in-process broker used when Redis is not configured.
type MemoryChangeFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan models.ChangeEvent
	logger *zap.Logger
}

// NewMemoryChangeFeed constructs an in-process broker.
func NewMemoryChangeFeed(logger *zap.Logger) *MemoryChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryChangeFeed{subs: make(map[string]map[int]chan models.ChangeEvent), logger: logger}
}

// Publish delivers the event to every current subscriber of the collection. Slow subscribers
// whose buffer is full miss the event.
func (f *MemoryChangeFeed) Publish(_ context.Context, event models.ChangeEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.subs[event.Collection] {
		select {
		case ch <- event:
		default:
			f.logger.Warn("change subscriber lagging, event dropped", zap.String("collection", event.Collection), zap.Int("subscriber", id))
		}
	}
	return nil
}

// Subscribe registers a subscriber for the collection.
func (f *MemoryChangeFeed) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	ch := make(chan models.ChangeEvent, 16)
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if f.subs[collection] == nil {
		f.subs[collection] = make(map[int]chan models.ChangeEvent)
	}
	f.subs[collection][id] = ch
	f.mu.Unlock()

	done := make(chan struct{})
	sub := &Subscription{C: ch}
	sub.close = func() {
		f.mu.Lock()
		delete(f.subs[collection], id)
		close(ch)
		f.mu.Unlock()
		close(done)
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-done:
		}
	}()
	return sub, nil
}

// Subscribers counts active subscriptions across collections.
func (f *MemoryChangeFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	total := 0
	for _, subs := range f.subs {
		total += len(subs)
	}
	return total
}
