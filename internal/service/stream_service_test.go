package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

func newTestStreamService() (*StreamService, *repository.MemoryChangeFeed, *MetricsService) {
	feed := repository.NewMemoryChangeFeed(zap.NewNop())
	metrics := NewMetricsService()
	svc := NewStreamService(feed, metrics, zap.NewNop())
	svc.Register(models.CollectionNotices, func(ctx context.Context, session *models.Session) (interface{}, error) {
		return []string{"welcome"}, nil
	}, models.RoleAdmin, models.RoleTeacher, models.RoleStudent, models.RoleFinance)
	svc.Register(models.CollectionFees, func(ctx context.Context, session *models.Session) (interface{}, error) {
		return []string{}, nil
	}, models.RoleAdmin, models.RoleFinance)
	return svc, feed, metrics
}

func TestStreamServiceCollections(t *testing.T) {
	svc, _, _ := newTestStreamService()

	assert.Equal(t, []string{models.CollectionFees, models.CollectionNotices}, svc.Collections(models.RoleFinance))
	assert.Equal(t, []string{models.CollectionNotices}, svc.Collections(models.RoleStudent))
}

func TestStreamServiceSnapshotThenEvents(t *testing.T) {
	svc, feed, metrics := newTestStreamService()
	notifier := NewChangeNotifier(feed, metrics, zap.NewNop())

	stream, err := svc.Subscribe(context.Background(), studentSession("stu-1"), models.CollectionNotices)
	require.NoError(t, err)
	assert.Equal(t, []string{"welcome"}, stream.Snapshot)
	assert.Equal(t, 1, metrics.Snapshot().StreamSubscribers)

	notifier.Notify(context.Background(), models.CollectionNotices, models.ChangeAdded, "ntc-2")
	notifier.Notify(context.Background(), models.CollectionFees, models.ChangeModified, "f-1")

	select {
	case event := <-stream.Events:
		assert.Equal(t, models.CollectionNotices, event.Collection)
		assert.Equal(t, models.ChangeAdded, event.Type)
		assert.Equal(t, "ntc-2", event.ID)
	case <-time.After(time.Second):
		t.Fatal("expected change event")
	}
	assert.Equal(t, uint64(2), metrics.Snapshot().ChangeEventsPublished)

	stream.Close()
	stream.Close()
	assert.Equal(t, 0, metrics.Snapshot().StreamSubscribers)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestStreamServiceAccessRules(t *testing.T) {
	svc, feed, _ := newTestStreamService()
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, studentSession("stu-1"), models.CollectionFees)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Subscribe(ctx, studentSession("stu-1"), "grades")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Subscribe(ctx, nil, models.CollectionNotices)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestStreamServiceSnapshotFailureReleasesSubscription(t *testing.T) {
	svc, feed, _ := newTestStreamService()
	svc.Register(models.CollectionStudents, func(ctx context.Context, session *models.Session) (interface{}, error) {
		return nil, errors.New("db down")
	}, models.RoleAdmin)

	_, err := svc.Subscribe(context.Background(), &models.Session{Role: models.RoleAdmin}, models.CollectionStudents)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, 0, feed.Subscribers())
}

func TestStreamClosesWithContext(t *testing.T) {
	svc, feed, _ := newTestStreamService()
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := svc.Subscribe(ctx, &models.Session{Role: models.RoleAdmin}, models.CollectionNotices)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-stream.Events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("expected events channel to close")
	}
	stream.Close()
	assert.Equal(t, 0, feed.Subscribers())
}

func TestStreamServiceScopedEventsStayWithOwner(t *testing.T) {
	feed := repository.NewMemoryChangeFeed(zap.NewNop())
	metrics := NewMetricsService()
	svc := NewStreamService(feed, metrics, zap.NewNop())
	svc.RegisterScoped(models.CollectionStudentAttendance, func(ctx context.Context, session *models.Session) (interface{}, error) {
		return nil, nil
	}, func(session *models.Session, event models.ChangeEvent) bool {
		return session.Role != models.RoleStudent || session.OwnsStudent(event.ID)
	}, models.RoleTeacher, models.RoleStudent)
	notifier := NewChangeNotifier(feed, metrics, zap.NewNop())
	ctx := context.Background()

	own, err := svc.Subscribe(ctx, studentSession("stu-1"), models.CollectionStudentAttendance)
	require.NoError(t, err)
	staff, err := svc.Subscribe(ctx, teacherSession(), models.CollectionStudentAttendance)
	require.NoError(t, err)

	notifier.Notify(ctx, models.CollectionStudentAttendance, models.ChangeModified, "stu-2", "stu-1")

	var staffIDs []string
	for i := 0; i < 2; i++ {
		select {
		case event := <-staff.Events:
			staffIDs = append(staffIDs, event.ID)
		case <-time.After(time.Second):
			t.Fatal("expected staff change event")
		}
	}
	assert.ElementsMatch(t, []string{"stu-1", "stu-2"}, staffIDs)

	select {
	case event := <-own.Events:
		assert.Equal(t, "stu-1", event.ID)
	case <-time.After(time.Second):
		t.Fatal("expected own change event")
	}
	select {
	case event := <-own.Events:
		t.Fatalf("unexpected event for %s", event.ID)
	case <-time.After(50 * time.Millisecond):
	}

	own.Close()
	staff.Close()
	_, open := <-own.Events
	assert.False(t, open)
	assert.Equal(t, 0, feed.Subscribers())
}
