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

type homeworkRepository interface {
	Create(ctx context.Context, hw *models.Homework) error
	List(ctx context.Context, filter models.HomeworkFilter) ([]models.Homework, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// HomeworkService assigns and lists homework.
type HomeworkService struct {
	repo      homeworkRepository
	students  studentReader
	notifier  *ChangeNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewHomeworkService constructs a HomeworkService.
func NewHomeworkService(repo homeworkRepository, students studentReader, notifier *ChangeNotifier, validate *validator.Validate, logger *zap.Logger) *HomeworkService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HomeworkService{repo: repo, students: students, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// Assign creates homework for one class section.
func (s *HomeworkService) Assign(ctx context.Context, session *models.Session, req dto.HomeworkRequest) (*models.Homework, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Class = strings.TrimSpace(req.Class)
	req.Section = strings.ToUpper(strings.TrimSpace(req.Section))
	req.Subject = strings.TrimSpace(req.Subject)
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(s.validator, req, "invalid homework"); err != nil {
		return nil, err
	}
	due, _ := time.Parse("2006-01-02", req.DueDate)
	hw := &models.Homework{
		Class:       req.Class,
		Section:     req.Section,
		Subject:     req.Subject,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     due,
		AssignedBy:  session.DisplayName,
		CreatedAt:   s.now().UTC(),
	}
	if hw.AssignedBy == "" {
		hw.AssignedBy = session.UserID
	}
	if err := s.repo.Create(ctx, hw); err != nil {
		return nil, translateErr(err, "", "failed to assign homework")
	}
	s.notifier.Notify(ctx, models.CollectionHomeworks, models.ChangeAdded, hw.ID)
	return hw, nil
}

// List returns homework. Students only see their own class and section; other roles may filter.
func (s *HomeworkService) List(ctx context.Context, session *models.Session, filter models.HomeworkFilter) ([]models.Homework, error) {
	if session != nil && session.Role == models.RoleStudent {
		if session.StudentID == nil {
			return []models.Homework{}, nil
		}
		student, err := s.students.FindByID(ctx, *session.StudentID)
		if err != nil {
			return nil, translateErr(err, "student not found", "failed to load student")
		}
		filter = models.HomeworkFilter{Class: student.Class, Section: student.Section}
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translateErr(err, "", "failed to list homework")
	}
	return items, nil
}
