package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

const admissionIdempotencyPrefix = "erp:idem:admission:"

type admissionRepository interface {
	Create(ctx context.Context, app *models.AdmissionApplication) error
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionApplication, error)
	FindByID(ctx context.Context, id string) (*models.AdmissionApplication, error)
	Reject(ctx context.Context, id string, decidedAt time.Time) error
	Approve(ctx context.Context, id string, params repository.ApprovalParams) (*repository.ApprovalResult, error)
	AllocateHostel(ctx context.Context, id string, params repository.HostelAllocationParams) (*repository.HostelAllocationResult, error)
	ListStats(ctx context.Context) ([]models.AdmissionStat, error)
	UpsertStat(ctx context.Context, stat models.AdmissionStat) error
}

type idempotencyGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AdmissionConfig carries the amounts and defaults written by admission decisions.
type AdmissionConfig struct {
	Section        string
	Avatars        []string
	TuitionFee     decimal.Decimal
	HostelFee      decimal.Decimal
	DueDays        int
	IdempotencyTTL time.Duration
}

// AdmissionService runs the admission workflow: submit, approve, reject and hostel allocation.
type AdmissionService struct {
	repo      admissionRepository
	guard     idempotencyGuard
	audit     auditRecorder
	cache     *CacheService
	notifier  *ChangeNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AdmissionConfig
	now       func() time.Time
	pick      func(n int) int
}

// NewAdmissionService constructs an AdmissionService.
func NewAdmissionService(repo admissionRepository, guard idempotencyGuard, audit auditRecorder, cache *CacheService, notifier *ChangeNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AdmissionConfig) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if config.Section == "" {
		config.Section = "A"
	}
	if config.DueDays <= 0 {
		config.DueDays = 30
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = time.Minute
	}
	if config.TuitionFee.IsZero() {
		config.TuitionFee = decimal.NewFromInt(5500)
	}
	if config.HostelFee.IsZero() {
		config.HostelFee = decimal.NewFromInt(2500)
	}
	return &AdmissionService{
		repo:      repo,
		guard:     guard,
		audit:     audit,
		cache:     cache,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
		pick:      rand.Intn,
	}
}

// Submit stores a new Pending application from the public form.
func (s *AdmissionService) Submit(ctx context.Context, req dto.AdmissionRequest) (*models.AdmissionApplication, error) {
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.ParentName = strings.TrimSpace(req.ParentName)
	req.ParentEmail = strings.TrimSpace(req.ParentEmail)
	if err := validateStruct(s.validator, req, "invalid admission application"); err != nil {
		return nil, err
	}
	app := &models.AdmissionApplication{
		StudentName:      req.StudentName,
		ApplyingForGrade: strings.TrimSpace(req.ApplyingForGrade),
		ParentName:       req.ParentName,
		ParentEmail:      req.ParentEmail,
		Gender:           req.Gender,
		Status:           models.AdmissionStatusPending,
		Date:             s.now().UTC(),
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, translateErr(err, "", "failed to submit application")
	}
	s.notifier.Notify(ctx, models.CollectionAdmissionApplications, models.ChangeAdded, app.ID)
	return app, nil
}

// List returns applications; an empty status lists the Pending queue.
func (s *AdmissionService) List(ctx context.Context, status string) ([]models.AdmissionApplication, error) {
	filter := models.AdmissionFilter{Status: models.AdmissionStatusPending}
	switch models.AdmissionStatus(status) {
	case "":
	case models.AdmissionStatusPending, models.AdmissionStatusApproved, models.AdmissionStatusRejected:
		filter.Status = models.AdmissionStatus(status)
	default:
		if strings.EqualFold(status, "all") {
			filter.Status = ""
			break
		}
		return nil, fieldError("invalid status filter", "status", "status must be Pending, Approved, Rejected or all")
	}
	apps, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, translateErr(err, "", "failed to list applications")
	}
	return apps, nil
}

// Get returns one application.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.AdmissionApplication, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateErr(err, "application not found", "failed to load application")
	}
	return app, nil
}

// Approve admits the applicant: the student, the tuition fee and the status change are written
// in one transaction. A second approval of the same application is a CONFLICT and changes nothing.
func (s *AdmissionService) Approve(ctx context.Context, actor *models.Session, id string) (*dto.AdmissionDecision, error) {
	release, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := s.repo.Approve(ctx, id, s.approvalParams())
	s.metrics.ObserveDBQuery("admission_approve", time.Since(start))
	if err != nil {
		return nil, translateErr(err, "application not found", "failed to approve application")
	}

	s.metrics.RecordAdmission("approved")
	s.afterAdmission(ctx, result.Student.ID, result.TuitionFee.ID)
	s.notifier.Notify(ctx, models.CollectionAdmissionApplications, models.ChangeModified, result.Application.ID)
	s.record(ctx, actor, models.AuditActionAdmissionApprove, result.Application.ID,
		fmt.Sprintf(`{"student_id":%q,"roll_number":%d}`, result.Student.ID, result.Student.RollNumber))
	s.logger.Info("admission approved",
		zap.String("application_id", result.Application.ID),
		zap.String("student_id", result.Student.ID))

	return &dto.AdmissionDecision{
		Application: result.Application,
		Student:     result.Student,
		TuitionFee:  result.TuitionFee,
	}, nil
}

// Reject closes a Pending application without creating anything.
func (s *AdmissionService) Reject(ctx context.Context, actor *models.Session, id string) error {
	release, err := s.claim(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.repo.Reject(ctx, id, s.now().UTC()); err != nil {
		return translateErr(err, "application not found", "failed to reject application")
	}
	s.metrics.RecordAdmission("rejected")
	s.notifier.Notify(ctx, models.CollectionAdmissionApplications, models.ChangeModified, id)
	s.record(ctx, actor, models.AuditActionAdmissionReject, id, "")
	return nil
}

// AllocateHostel places the applicant into a room, approving a still Pending application in the
// same transaction. Eligibility and capacity are re-checked server side.
func (s *AdmissionService) AllocateHostel(ctx context.Context, actor *models.Session, id string, req dto.HostelAllocationRequest) (*dto.AdmissionDecision, error) {
	req.HostelID = strings.TrimSpace(req.HostelID)
	req.RoomID = strings.TrimSpace(req.RoomID)
	if req.HostelID == "" || req.RoomID == "" {
		fields := map[string]string{}
		if req.HostelID == "" {
			fields["hostelId"] = "hostelId is a required field"
		}
		if req.RoomID == "" {
			fields["roomId"] = "roomId is a required field"
		}
		return nil, appErrors.WithFields(nil, "all fields required", fields)
	}

	release, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	approval := s.approvalParams()
	params := repository.HostelAllocationParams{
		ApprovalParams: approval,
		HostelID:       req.HostelID,
		RoomID:         req.RoomID,
		HostelFee: repository.FeeDraft{
			Amount:  s.config.HostelFee,
			DueDate: approval.DecidedAt.AddDate(0, 0, s.config.DueDays),
		},
	}
	start := time.Now()
	result, err := s.repo.AllocateHostel(ctx, id, params)
	s.metrics.ObserveDBQuery("admission_allocate_hostel", time.Since(start))
	if err != nil {
		return nil, translateErr(err, "application not found", "failed to allocate hostel")
	}

	if result.Approved {
		s.metrics.RecordAdmission("approved")
		s.afterAdmission(ctx, result.Student.ID, result.TuitionFee.ID)
		s.notifier.Notify(ctx, models.CollectionAdmissionApplications, models.ChangeModified, result.Application.ID)
	}
	s.metrics.RecordHostelAllocation(hostelTypeOf(result.Application.Gender))
	s.notifier.Notify(ctx, models.CollectionHostelRooms, models.ChangeModified, result.Room.ID)
	if result.HostelFee != nil {
		s.notifier.Notify(ctx, models.CollectionHostelFees, models.ChangeAdded, result.HostelFee.ID)
	}
	s.record(ctx, actor, models.AuditActionHostelAllocate, result.Application.ID,
		fmt.Sprintf(`{"student_id":%q,"room_id":%q}`, result.Student.ID, result.Room.ID))

	return &dto.AdmissionDecision{
		Application: result.Application,
		Student:     result.Student,
		TuitionFee:  result.TuitionFee,
		Room:        result.Room,
		HostelFee:   result.HostelFee,
	}, nil
}

// Stats returns the monthly admission trend, served from cache when possible.
func (s *AdmissionService) Stats(ctx context.Context) ([]models.AdmissionStat, bool, error) {
	stats, hit, err := Remember(ctx, s.cache, cacheKeyAdmissionTrend, 0, func(ctx context.Context) ([]models.AdmissionStat, error) {
		return s.repo.ListStats(ctx)
	})
	if err != nil {
		return nil, false, translateErr(err, "", "failed to load admission stats")
	}
	return stats, hit, nil
}

// UpsertStat sets the trend figures of one month.
func (s *AdmissionService) UpsertStat(ctx context.Context, req dto.AdmissionStatRequest) (*models.AdmissionStat, error) {
	if err := validateStruct(s.validator, req, "invalid admission stat"); err != nil {
		return nil, err
	}
	stat := models.AdmissionStat{Month: req.Month, Admitted: req.Admitted, Capacity: req.Capacity}
	if err := s.repo.UpsertStat(ctx, stat); err != nil {
		return nil, translateErr(err, "", "failed to save admission stat")
	}
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	s.notifier.Notify(ctx, models.CollectionAdmissions, models.ChangeModified, stat.Month)
	return &stat, nil
}

func (s *AdmissionService) approvalParams() repository.ApprovalParams {
	now := s.now().UTC()
	return repository.ApprovalParams{
		Section: s.config.Section,
		Avatar:  s.avatar(),
		TuitionFee: repository.FeeDraft{
			Amount:  s.config.TuitionFee,
			DueDate: now.AddDate(0, 0, s.config.DueDays),
		},
		DecidedAt: now,
	}
}

func (s *AdmissionService) avatar() string {
	if len(s.config.Avatars) == 0 {
		return ""
	}
	return s.config.Avatars[s.pick(len(s.config.Avatars))]
}

// claim takes the per-application idempotency key. A held key means another decision for the
// same application is in flight.
func (s *AdmissionService) claim(ctx context.Context, id string) (func(), error) {
	if s.guard == nil {
		return func() {}, nil
	}
	key := admissionIdempotencyPrefix + id
	ok, err := s.guard.Acquire(ctx, key, s.config.IdempotencyTTL)
	if err != nil {
		s.logger.Warn("idempotency guard unavailable", zap.String("key", key), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, "application is already being processed")
	}
	return func() {
		if err := s.guard.Release(context.Background(), key); err != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *AdmissionService) afterAdmission(ctx context.Context, studentID, feeID string) {
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	s.notifier.Notify(ctx, models.CollectionStudents, models.ChangeAdded, studentID)
	s.notifier.Notify(ctx, models.CollectionFees, models.ChangeAdded, feeID)
	s.notifier.Notify(ctx, models.CollectionAdmissions, models.ChangeModified, s.now().UTC().Format("2006-01"))
}

func (s *AdmissionService) record(ctx context.Context, actor *models.Session, action, id, values string) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: "admission_applications", ResourceID: &id}
	if values != "" {
		entry.NewValues = []byte(values)
	}
	if actor != nil {
		entry.UserID = &actor.AccountID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record admission audit log", zap.Error(err))
	}
}

func hostelTypeOf(gender models.Gender) models.HostelType {
	t, _ := models.HostelTypeForGender(gender)
	return t
}
