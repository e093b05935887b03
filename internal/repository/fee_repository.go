package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

// FeeRepository persists tuition fees and hostel fees. The two kinds live in separate tables
// with the same shape; hostel fees additionally reference the room.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

func feeTable(kind models.FeeKind) string {
	if kind == models.FeeKindHostel {
		return "hostel_fees"
	}
	return "fees"
}

func feeSelect(kind models.FeeKind) string {
	if kind == models.FeeKindHostel {
		return `SELECT f.id, f.student_id, s.name AS student_name, s.class, f.room_id, r.room_number,
f.amount, f.status, f.due_date, f.paid_at, f.created_at, f.updated_at
FROM hostel_fees f JOIN students s ON s.id = f.student_id LEFT JOIN hostel_rooms r ON r.id = f.room_id`
	}
	return `SELECT f.id, f.student_id, s.name AS student_name, s.class, NULL AS room_id, NULL AS room_number,
f.amount, f.status, f.due_date, f.paid_at, f.created_at, f.updated_at
FROM fees f JOIN students s ON s.id = f.student_id`
}

func tagKind(fees []models.Fee, kind models.FeeKind) []models.Fee {
	for i := range fees {
		fees[i].Kind = kind
	}
	return fees
}

// List returns fees of one kind. A status filter matches the stored status.
func (r *FeeRepository) List(ctx context.Context, kind models.FeeKind, filter models.FeeFilter) ([]models.Fee, error) {
	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("f.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("f.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	query := feeSelect(kind)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY f.due_date ASC, s.name ASC"

	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, storeErr(fmt.Sprintf("list %s fees", kind), err)
	}
	return tagKind(fees, kind), nil
}

// FindByID fetches one fee.
func (r *FeeRepository) FindByID(ctx context.Context, kind models.FeeKind, id string) (*models.Fee, error) {
	query := feeSelect(kind) + " WHERE f.id = $1"
	var fee models.Fee
	if err := r.db.GetContext(ctx, &fee, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr(fmt.Sprintf("find %s fee", kind), err)
	}
	fee.Kind = kind
	return &fee, nil
}

// UpdateAmount changes the amount and leaves the status untouched.
func (r *FeeRepository) UpdateAmount(ctx context.Context, kind models.FeeKind, id string, amount decimal.Decimal) error {
	query := fmt.Sprintf(`UPDATE %s SET amount = $2, updated_at = $3 WHERE id = $1`, feeTable(kind))
	return r.execOne(ctx, "update fee amount", query, id, amount, time.Now().UTC())
}

// UpdateStatus sets the status manually. paid_at follows the Paid transition.
func (r *FeeRepository) UpdateStatus(ctx context.Context, kind models.FeeKind, id string, status models.FeeStatus) error {
	now := time.Now().UTC()
	var paidAt *time.Time
	if status == models.FeeStatusPaid {
		paidAt = &now
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $2, paid_at = $3, updated_at = $4 WHERE id = $1`, feeTable(kind))
	return r.execOne(ctx, "update fee status", query, id, status, paidAt, now)
}

// MarkPaid records a payment. Paying an already paid fee is a CONFLICT.
func (r *FeeRepository) MarkPaid(ctx context.Context, kind models.FeeKind, id string, paidAt time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET status = 'Paid', paid_at = $2, updated_at = $2 WHERE id = $1 AND status <> 'Paid'`, feeTable(kind))
	res, err := r.db.ExecContext(ctx, query, id, paidAt)
	if err != nil {
		return storeErr("mark fee paid", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("mark fee paid", err)
	}
	if affected == 0 {
		if _, err := r.FindByID(ctx, kind, id); err != nil {
			return err
		}
		return appErrors.Clone(appErrors.ErrConflict, "fee already paid")
	}
	return nil
}

func (r *FeeRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr(op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
