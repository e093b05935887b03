package service

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type changeSubscriber interface {
	Subscribe(ctx context.Context, collection string) (*repository.Subscription, error)
}

// SnapshotLoader reads the current contents of a collection as seen by session.
type SnapshotLoader func(ctx context.Context, session *models.Session) (interface{}, error)

// EventScope reports whether a change event may reach the session.
type EventScope func(session *models.Session, event models.ChangeEvent) bool

type streamSource struct {
	load  SnapshotLoader
	scope EventScope
	roles map[models.Role]struct{}
}

// Stream is an open collection subscription: the snapshot at connect time followed by
// change events.
type Stream struct {
	Collection string
	Snapshot   interface{}
	Events     <-chan models.ChangeEvent

	sub     *repository.Subscription
	metrics *MetricsService
	done    chan struct{}
	once    sync.Once
}

// Close releases the subscription.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.sub.Close()
		s.metrics.AddStreamSubscribers(-1)
	})
}

// StreamService serves snapshot-plus-push subscriptions for registered collections.
type StreamService struct {
	feed    changeSubscriber
	metrics *MetricsService
	logger  *zap.Logger

	mu      sync.RWMutex
	sources map[string]streamSource
}

// NewStreamService constructs a StreamService.
func NewStreamService(feed changeSubscriber, metrics *MetricsService, logger *zap.Logger) *StreamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamService{feed: feed, metrics: metrics, logger: logger, sources: make(map[string]streamSource)}
}

// Register exposes a collection to the given roles.
func (s *StreamService) Register(collection string, load SnapshotLoader, roles ...models.Role) {
	s.RegisterScoped(collection, load, nil, roles...)
}

// RegisterScoped is Register with a per-session event filter. A nil scope delivers every event.
func (s *StreamService) RegisterScoped(collection string, load SnapshotLoader, scope EventScope, roles ...models.Role) {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	s.mu.Lock()
	s.sources[collection] = streamSource{load: load, scope: scope, roles: allowed}
	s.mu.Unlock()
}

// Collections lists the registered collections the role may subscribe to.
func (s *StreamService) Collections(role models.Role) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sources))
	for name, src := range s.sources {
		if _, ok := src.roles[role]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Subscribe opens a stream. The subscription is attached before the snapshot is read so no
// change committed after the snapshot is missed.
func (s *StreamService) Subscribe(ctx context.Context, session *models.Session, collection string) (*Stream, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	s.mu.RLock()
	src, ok := s.sources[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown collection")
	}
	if _, allowed := src.roles[session.Role]; !allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "role cannot subscribe to "+collection)
	}

	sub, err := s.feed.Subscribe(ctx, collection)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe")
	}
	snapshot, err := src.load(ctx, session)
	if err != nil {
		sub.Close()
		return nil, translateErr(err, "", "failed to load snapshot")
	}
	s.metrics.AddStreamSubscribers(1)
	s.logger.Debug("stream opened", zap.String("collection", collection), zap.String("user_id", session.UserID))
	stream := &Stream{Collection: collection, Snapshot: snapshot, Events: sub.C, sub: sub, metrics: s.metrics, done: make(chan struct{})}
	if src.scope != nil {
		stream.Events = scopeEvents(sub.C, stream.done, session, src.scope)
	}
	return stream, nil
}

func scopeEvents(in <-chan models.ChangeEvent, done <-chan struct{}, session *models.Session, scope EventScope) <-chan models.ChangeEvent {
	out := make(chan models.ChangeEvent, cap(in))
	go func() {
		defer close(out)
		for event := range in {
			if !scope(session, event) {
				continue
			}
			select {
			case out <- event:
			case <-done:
				return
			}
		}
	}()
	return out
}
