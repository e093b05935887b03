package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

type feeRepository interface {
	List(ctx context.Context, kind models.FeeKind, filter models.FeeFilter) ([]models.Fee, error)
	FindByID(ctx context.Context, kind models.FeeKind, id string) (*models.Fee, error)
	UpdateAmount(ctx context.Context, kind models.FeeKind, id string, amount decimal.Decimal) error
	UpdateStatus(ctx context.Context, kind models.FeeKind, id string, status models.FeeStatus) error
	MarkPaid(ctx context.Context, kind models.FeeKind, id string, paidAt time.Time) error
}

// FeeService lists and edits tuition and hostel fees and records simulated payments.
type FeeService struct {
	repo      feeRepository
	audit     auditRecorder
	notifier  *ChangeNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFeeService constructs a FeeService.
func NewFeeService(repo feeRepository, audit auditRecorder, notifier *ChangeNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &FeeService{repo: repo, audit: audit, notifier: notifier, metrics: metrics, validator: validate, logger: logger, now: time.Now}
}

// ParseFeeKind validates the kind path segment.
func ParseFeeKind(raw string) (models.FeeKind, error) {
	kind := models.FeeKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", fieldError("invalid fee kind", "kind", "kind must be tuition or hostel")
	}
	return kind, nil
}

// List returns fees of one kind. The status filter matches the effective status, so
// "Overdue" also returns unpaid fees past their due date. Students only see their own fees.
func (s *FeeService) List(ctx context.Context, session *models.Session, kind models.FeeKind, filter models.FeeFilter) ([]dto.FeeView, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fieldError("invalid status filter", "status", "status must be Paid, Due or Overdue")
	}
	if session != nil && session.Role == models.RoleStudent {
		if session.StudentID == nil {
			return []dto.FeeView{}, nil
		}
		filter.StudentID = *session.StudentID
	}
	fees, err := s.repo.List(ctx, kind, models.FeeFilter{StudentID: filter.StudentID})
	if err != nil {
		return nil, translateErr(err, "", "failed to list fees")
	}
	now := s.now()
	views := make([]dto.FeeView, 0, len(fees))
	for _, fee := range fees {
		view := dto.FeeView{Fee: fee, EffectiveStatus: fee.EffectiveStatus(now)}
		if filter.Status != "" && view.EffectiveStatus != filter.Status {
			continue
		}
		views = append(views, view)
	}
	return views, nil
}

// Get returns one fee. A Student may only read its own fees.
func (s *FeeService) Get(ctx context.Context, session *models.Session, kind models.FeeKind, id string) (*dto.FeeView, error) {
	fee, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, translateErr(err, "fee not found", "failed to load fee")
	}
	if err := ensureFeeOwner(session, fee); err != nil {
		return nil, err
	}
	return &dto.FeeView{Fee: *fee, EffectiveStatus: fee.EffectiveStatus(s.now())}, nil
}

// UpdateAmount changes the amount only; the status is kept.
func (s *FeeService) UpdateAmount(ctx context.Context, actor *models.Session, kind models.FeeKind, id string, req dto.FeeAmountRequest) (*dto.FeeView, error) {
	if !req.Amount.IsPositive() {
		return nil, fieldError("invalid fee amount", "amount", "amount must be greater than 0")
	}
	amount := req.Amount.Round(2)
	if err := s.repo.UpdateAmount(ctx, kind, id, amount); err != nil {
		return nil, translateErr(err, "fee not found", "failed to update fee")
	}
	s.changed(ctx, actor, kind, id, models.AuditActionFeeUpdate, fmt.Sprintf(`{"amount":%q}`, amount.StringFixed(2)))
	return s.Get(ctx, nil, kind, id)
}

// UpdateStatus sets the status manually.
func (s *FeeService) UpdateStatus(ctx context.Context, actor *models.Session, kind models.FeeKind, id string, req dto.FeeStatusRequest) (*dto.FeeView, error) {
	if err := validateStruct(s.validator, req, "invalid fee status"); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, kind, id, req.Status); err != nil {
		return nil, translateErr(err, "fee not found", "failed to update fee")
	}
	s.changed(ctx, actor, kind, id, models.AuditActionFeeUpdate, fmt.Sprintf(`{"status":%q}`, req.Status))
	return s.Get(ctx, nil, kind, id)
}

// Pay validates the card form and marks the fee Paid. Paying a Paid fee is a CONFLICT.
func (s *FeeService) Pay(ctx context.Context, session *models.Session, kind models.FeeKind, id string, req dto.PaymentRequest) (*dto.FeeView, error) {
	req.CardNumber = strings.ReplaceAll(req.CardNumber, " ", "")
	req.CardHolder = strings.TrimSpace(req.CardHolder)
	if err := validateStruct(s.validator, req, "invalid payment details"); err != nil {
		return nil, err
	}
	fee, err := s.repo.FindByID(ctx, kind, id)
	if err != nil {
		return nil, translateErr(err, "fee not found", "failed to load fee")
	}
	if err := ensureFeeOwner(session, fee); err != nil {
		return nil, err
	}
	if fee.Status == models.FeeStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "fee already paid")
	}
	if err := s.repo.MarkPaid(ctx, kind, id, s.now().UTC()); err != nil {
		return nil, translateErr(err, "fee not found", "failed to record payment")
	}
	s.metrics.RecordPayment(kind)
	s.changed(ctx, session, kind, id, models.AuditActionFeePay, fmt.Sprintf(`{"card_last4":%q}`, req.CardNumber[len(req.CardNumber)-4:]))
	s.logger.Info("fee paid", zap.String("kind", string(kind)), zap.String("fee_id", id))
	return s.Get(ctx, nil, kind, id)
}

func (s *FeeService) changed(ctx context.Context, actor *models.Session, kind models.FeeKind, id, action, values string) {
	s.notifier.Notify(ctx, kind.Collection(), models.ChangeModified, id)
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{Action: action, Resource: kind.Collection(), ResourceID: &id, NewValues: []byte(values)}
	if actor != nil {
		entry.UserID = &actor.AccountID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record fee audit log", zap.Error(err))
	}
}

func ensureFeeOwner(session *models.Session, fee *models.Fee) error {
	if session == nil || session.Role != models.RoleStudent {
		return nil
	}
	if !session.OwnsStudent(fee.StudentID) {
		return appErrors.Clone(appErrors.ErrForbidden, "fee belongs to another student")
	}
	return nil
}
