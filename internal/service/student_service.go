package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	All(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateAvatar(ctx context.Context, id, avatar string) error
}

// StudentService handles student use-cases.
type StudentService struct {
	repo           studentRepository
	notifier       *ChangeNotifier
	cache          *CacheService
	validator      *validator.Validate
	logger         *zap.Logger
	defaultSection string
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, notifier *ChangeNotifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger, defaultSection string) *StudentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultSection == "" {
		defaultSection = "A"
	}
	return &StudentService{repo: repo, notifier: notifier, cache: cache, validator: validate, logger: logger, defaultSection: defaultSection}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	filter.Page, filter.PageSize = repository.NormalizePage(filter.Page, filter.PageSize)
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, translateErr(err, "", "failed to list students")
	}
	return students, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// All returns every student, unpaginated.
func (s *StudentService) All(ctx context.Context) ([]models.Student, error) {
	students, err := s.repo.All(ctx)
	if err != nil {
		return nil, translateErr(err, "", "failed to list students")
	}
	return students, nil
}

// Get returns a student. Students can only read their own profile.
func (s *StudentService) Get(ctx context.Context, session *models.Session, id string) (*models.Student, error) {
	if err := ensureStudentSelf(session, id); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateErr(err, "student not found", "failed to load student")
	}
	return student, nil
}

// Create enrols a student without an admission application. The roll number comes from the
// same per-section sequence the admission workflow uses.
func (s *StudentService) Create(ctx context.Context, req dto.StudentRequest) (*models.Student, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Class = strings.TrimSpace(req.Class)
	if err := validateStruct(s.validator, req, "invalid student payload"); err != nil {
		return nil, err
	}
	student := &models.Student{
		Name:    req.Name,
		Class:   req.Class,
		Section: strings.ToUpper(strings.TrimSpace(req.Section)),
		Avatar:  req.Avatar,
	}
	if student.Section == "" {
		student.Section = s.defaultSection
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, translateErr(err, "", "failed to create student")
	}
	s.notifier.Notify(ctx, models.CollectionStudents, models.ChangeAdded, student.ID)
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	s.logger.Info("student created", zap.String("student_id", student.ID), zap.Int("roll_number", student.RollNumber))
	return student, nil
}

// UpdateAvatar changes the avatar. A Student may only change its own; Admin may change any.
func (s *StudentService) UpdateAvatar(ctx context.Context, session *models.Session, id string, req dto.AvatarRequest) (*models.Student, error) {
	if err := ensureStudentSelf(session, id); err != nil {
		return nil, err
	}
	if err := validateStruct(s.validator, req, "invalid avatar"); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAvatar(ctx, id, req.Avatar); err != nil {
		return nil, translateErr(err, "student not found", "failed to update avatar")
	}
	s.notifier.Notify(ctx, models.CollectionStudents, models.ChangeModified, id)
	return s.Get(ctx, session, id)
}

func ensureStudentSelf(session *models.Session, studentID string) error {
	if session == nil || session.Role != models.RoleStudent {
		return nil
	}
	if !session.OwnsStudent(studentID) {
		return appErrors.Clone(appErrors.ErrForbidden, "students can only access their own profile")
	}
	return nil
}
