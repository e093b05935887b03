package service

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

const minPhoneDigits = 10

type jobApplicationRepository interface {
	Create(ctx context.Context, app *models.JobApplication) error
	List(ctx context.Context, status models.JobApplicationStatus) ([]models.JobApplication, error)
	FindByID(ctx context.Context, id string) (*models.JobApplication, error)
	Accept(ctx context.Context, id string) (*models.JobApplication, *models.Teacher, error)
	Reject(ctx context.Context, id string) error
}

// JobApplicationService runs the careers pipeline: public submissions and the Admin decision
// that turns an accepted applicant into a teacher.
type JobApplicationService struct {
	repo      jobApplicationRepository
	audit     auditRecorder
	cache     *CacheService
	notifier  *ChangeNotifier
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewJobApplicationService constructs a JobApplicationService.
func NewJobApplicationService(repo jobApplicationRepository, audit auditRecorder, cache *CacheService, notifier *ChangeNotifier, validate *validator.Validate, logger *zap.Logger) *JobApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &JobApplicationService{repo: repo, audit: audit, cache: cache, notifier: notifier, validator: validate, logger: logger, now: time.Now}
}

// Submit stores a Pending application.
func (s *JobApplicationService) Submit(ctx context.Context, req dto.JobApplicationRequest) (*models.JobApplication, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Resume = strings.TrimSpace(req.Resume)
	if err := validateStruct(s.validator, req, "invalid job application"); err != nil {
		return nil, err
	}
	if countDigits(req.Phone) < minPhoneDigits {
		return nil, fieldError("invalid job application", "phone", "phone must contain at least 10 digits")
	}
	app := &models.JobApplication{
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      strings.TrimSpace(req.Phone),
		Subject:    req.Subject,
		Experience: req.Experience,
		Resume:     req.Resume,
		Status:     models.JobApplicationPending,
		Date:       s.now().UTC(),
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, translateErr(err, "", "failed to submit job application")
	}
	s.notifier.Notify(ctx, models.CollectionJobApplications, models.ChangeAdded, app.ID)
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	return app, nil
}

// List returns applications with the given status; an empty status lists all of them.
func (s *JobApplicationService) List(ctx context.Context, status string) ([]models.JobApplication, error) {
	st := models.JobApplicationStatus(status)
	switch st {
	case "", models.JobApplicationPending, models.JobApplicationAccepted, models.JobApplicationRejected:
	default:
		return nil, fieldError("invalid status filter", "status", "status must be Pending, Accepted or Rejected")
	}
	apps, err := s.repo.List(ctx, st)
	if err != nil {
		return nil, translateErr(err, "", "failed to list job applications")
	}
	return apps, nil
}

// Get returns one application.
func (s *JobApplicationService) Get(ctx context.Context, id string) (*models.JobApplication, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateErr(err, "job application not found", "failed to load job application")
	}
	return app, nil
}

// Accept creates exactly one teacher from a Pending application.
func (s *JobApplicationService) Accept(ctx context.Context, actor *models.Session, id string) (*dto.JobApplicationDecision, error) {
	app, teacher, err := s.repo.Accept(ctx, id)
	if err != nil {
		return nil, translateErr(err, "job application not found", "failed to accept job application")
	}
	s.notifier.Notify(ctx, models.CollectionTeachers, models.ChangeAdded, teacher.ID)
	s.notifier.Notify(ctx, models.CollectionJobApplications, models.ChangeModified, app.ID)
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	s.record(ctx, actor, models.AuditActionJobAccept, id)
	s.logger.Info("job application accepted", zap.String("application_id", id), zap.String("teacher_id", teacher.ID))
	return &dto.JobApplicationDecision{Application: app, Teacher: teacher}, nil
}

// Reject closes a Pending application without creating a teacher.
func (s *JobApplicationService) Reject(ctx context.Context, actor *models.Session, id string) (*models.JobApplication, error) {
	if err := s.repo.Reject(ctx, id); err != nil {
		return nil, translateErr(err, "job application not found", "failed to reject job application")
	}
	s.notifier.Notify(ctx, models.CollectionJobApplications, models.ChangeModified, id)
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	s.record(ctx, actor, models.AuditActionJobReject, id)
	return s.Get(ctx, id)
}

func (s *JobApplicationService) record(ctx context.Context, actor *models.Session, action, id string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: models.CollectionJobApplications, ResourceID: &id}
	if actor != nil {
		entry.UserID = &actor.AccountID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record job application audit log", zap.Error(err))
	}
}

func countDigits(raw string) int {
	n := 0
	for _, r := range raw {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
