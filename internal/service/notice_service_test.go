package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type fakeNoticeRepo struct {
	notices   []models.Notice
	lastLimit int
}

func (f *fakeNoticeRepo) Create(ctx context.Context, notice *models.Notice) error {
	notice.ID = fmt.Sprintf("ntc-%d", len(f.notices)+1)
	f.notices = append([]models.Notice{*notice}, f.notices...)
	return nil
}

func (f *fakeNoticeRepo) List(ctx context.Context, limit int) ([]models.Notice, error) {
	f.lastLimit = limit
	if limit > 0 && limit < len(f.notices) {
		return f.notices[:limit], nil
	}
	return f.notices, nil
}

func TestNoticeServicePost(t *testing.T) {
	repo := &fakeNoticeRepo{}
	pub := &recordingPublisher{}
	svc := NewNoticeService(repo, NewChangeNotifier(pub, nil, zap.NewNop()), nil, zap.NewNop())
	svc.now = func() time.Time { return feeTestNow }
	teacher := &models.Session{AccountID: "acc-t1", UserID: "SCH-PRIYA1", Role: models.RoleTeacher, DisplayName: "Priya Nair"}

	notice, err := svc.Post(context.Background(), teacher, dto.NoticeRequest{Title: " Sports Day ", Content: "Friday on the main ground."})
	require.NoError(t, err)
	assert.Equal(t, "Sports Day", notice.Title)
	assert.Equal(t, "Priya Nair", notice.Author)
	assert.Equal(t, models.RoleTeacher, notice.Role)
	assert.Equal(t, feeTestNow, notice.Date)
	assert.Equal(t, []string{models.CollectionNotices}, pub.collections())

	admin := &models.Session{AccountID: "acc-admin", UserID: "admin", Role: models.RoleAdmin}
	notice, err = svc.Post(context.Background(), admin, dto.NoticeRequest{Title: "Fees", Content: "Hostel fees due."})
	require.NoError(t, err)
	assert.Equal(t, "admin", notice.Author)
}

func TestNoticeServicePostRules(t *testing.T) {
	svc := NewNoticeService(&fakeNoticeRepo{}, nil, nil, nil)

	_, err := svc.Post(context.Background(), studentSession("stu-1"), dto.NoticeRequest{Title: "Party", Content: "Tonight"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Post(context.Background(), nil, dto.NoticeRequest{Title: "Party", Content: "Tonight"})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	admin := &models.Session{AccountID: "acc-admin", Role: models.RoleAdmin}
	_, err = svc.Post(context.Background(), admin, dto.NoticeRequest{Title: "Hi", Content: "x"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "title")
}

func TestNoticeServiceListNewestFirst(t *testing.T) {
	repo := &fakeNoticeRepo{}
	svc := NewNoticeService(repo, nil, nil, nil)
	admin := &models.Session{AccountID: "acc-admin", Role: models.RoleAdmin, DisplayName: "Admin"}
	for _, title := range []string{"First notice", "Second notice", "Third notice"} {
		_, err := svc.Post(context.Background(), admin, dto.NoticeRequest{Title: title, Content: "body"})
		require.NoError(t, err)
	}

	notices, err := svc.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "Third notice", notices[0].Title)
	assert.Equal(t, 2, repo.lastLimit)
}
