package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

type noticeRepository interface {
	Create(ctx context.Context, notice *models.Notice) error
	List(ctx context.Context, limit int) ([]models.Notice, error)
}

// NoticeService manages the notice board.
type NoticeService struct {
	repo      noticeRepository
	notifier  *ChangeNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewNoticeService constructs a NoticeService.
func NewNoticeService(repo noticeRepository, notifier *ChangeNotifier, validate *validator.Validate, logger *zap.Logger) *NoticeService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoticeService{repo: repo, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// Post publishes a notice authored by the session user. Only Admin and Teacher may post.
func (s *NoticeService) Post(ctx context.Context, session *models.Session, req dto.NoticeRequest) (*models.Notice, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if session.Role != models.RoleAdmin && session.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins and teachers can post notices")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if err := validateStruct(s.validator, req, "invalid notice"); err != nil {
		return nil, err
	}
	notice := &models.Notice{
		Title:   req.Title,
		Content: req.Content,
		Author:  session.DisplayName,
		Role:    session.Role,
		Date:    s.now().UTC(),
	}
	if notice.Author == "" {
		notice.Author = session.UserID
	}
	if err := s.repo.Create(ctx, notice); err != nil {
		return nil, translateErr(err, "", "failed to post notice")
	}
	s.notifier.Notify(ctx, models.CollectionNotices, models.ChangeAdded, notice.ID)
	return notice, nil
}

// List returns notices newest first; limit <= 0 returns all.
func (s *NoticeService) List(ctx context.Context, limit int) ([]models.Notice, error) {
	notices, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, translateErr(err, "", "failed to list notices")
	}
	return notices, nil
}
