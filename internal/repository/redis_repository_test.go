package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

func TestSessionRepositoryLocalLifecycle(t *testing.T) {
	repo := NewSessionRepository(nil)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	session := models.Session{ID: "sess-1", UserID: "admin", Role: models.RoleAdmin, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, repo.Save(context.Background(), session))

	got, err := repo.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)

	require.NoError(t, repo.Delete(context.Background(), "sess-1"))
	_, err = repo.Get(context.Background(), "sess-1")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
}

func TestSessionRepositoryLocalExpiry(t *testing.T) {
	repo := NewSessionRepository(nil)
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	require.NoError(t, repo.Save(context.Background(), models.Session{ID: "s", ExpiresAt: now.Add(time.Minute)}))
	now = now.Add(2 * time.Minute)

	_, err := repo.Get(context.Background(), "s")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.Error(t, repo.Save(context.Background(), models.Session{ID: "old", ExpiresAt: now.Add(-time.Second)}))
}

func TestIdempotencyRepositoryLocal(t *testing.T) {
	repo := NewIdempotencyRepository(nil)
	ctx := context.Background()

	ok, err := repo.Acquire(ctx, "erp:idem:admission:app-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Acquire(ctx, "erp:idem:admission:app-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Release(ctx, "erp:idem:admission:app-1"))
	ok, err = repo.Acquire(ctx, "erp:idem:admission:app-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var out []models.AdmissionStat
	err := repo.Get(context.Background(), "erp:cache:admissions", &out)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Set(context.Background(), "k", out, time.Minute))
}

func TestMemoryChangeFeedDeliversPerCollection(t *testing.T) {
	feed := NewMemoryChangeFeed(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	students, err := feed.Subscribe(ctx, models.CollectionStudents)
	require.NoError(t, err)
	fees, err := feed.Subscribe(ctx, models.CollectionFees)
	require.NoError(t, err)
	assert.Equal(t, 2, feed.Subscribers())

	event := models.ChangeEvent{Collection: models.CollectionStudents, Type: models.ChangeAdded, ID: "stu-1", At: time.Now()}
	require.NoError(t, feed.Publish(ctx, event))

	select {
	case got := <-students.C:
		assert.Equal(t, "stu-1", got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected student event")
	}
	select {
	case got := <-fees.C:
		t.Fatalf("unexpected fee event %+v", got)
	default:
	}

	students.Close()
	students.Close()
	assert.Equal(t, 1, feed.Subscribers())
	_, open := <-students.C
	assert.False(t, open)
}

func TestMemoryChangeFeedClosesOnContextCancel(t *testing.T) {
	feed := NewMemoryChangeFeed(nil)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := feed.Subscribe(ctx, models.CollectionNotices)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-sub.C:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	assert.Zero(t, feed.Subscribers())
}
