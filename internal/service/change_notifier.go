package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

// ChangePublisher is implemented by the Redis and in-process change feeds.
type ChangePublisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// ChangeNotifier publishes change events after a mutation committed. A failed publish is
// logged; the mutation itself already succeeded.
type ChangeNotifier struct {
	publisher ChangePublisher
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewChangeNotifier constructs a ChangeNotifier. A nil publisher drops every event.
func NewChangeNotifier(publisher ChangePublisher, metrics *MetricsService, logger *zap.Logger) *ChangeNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeNotifier{publisher: publisher, metrics: metrics, logger: logger, now: time.Now}
}

// Notify publishes one event per id.
func (n *ChangeNotifier) Notify(ctx context.Context, collection string, change models.ChangeType, ids ...string) {
	if n == nil || n.publisher == nil {
		return
	}
	at := n.now().UTC()
	for _, id := range ids {
		if id == "" {
			continue
		}
		event := models.ChangeEvent{Collection: collection, Type: change, ID: id, At: at}
		if err := n.publisher.Publish(ctx, event); err != nil {
			n.logger.Warn("publish change event failed",
				zap.String("collection", collection),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		n.metrics.RecordChangeEvent(collection)
	}
}
