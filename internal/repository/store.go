package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

const (
	pqUniqueViolation       = "23505"
	pqInsufficientPrivilege = "42501"
)

// storeErr wraps a persistence failure. Permission errors reported by Postgres surface as
// FORBIDDEN so callers never retry them.
func storeErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqInsufficientPrivilege {
		return appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "record store denied "+op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// NormalizePage returns the page and page size a list query actually uses.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func normalizePage(page, pageSize int) (int, int, int) {
	page, pageSize = NormalizePage(page, pageSize)
	return page, pageSize, (page - 1) * pageSize
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextRollNumber reserves the next roll number for a class section. The upsert row lock
// serialises concurrent approvals for the same section.
func nextRollNumber(ctx context.Context, q sqlx.QueryerContext, class, section string) (int, error) {
	const query = `INSERT INTO roll_sequences (class, section, last_value) VALUES ($1, $2, 1)
ON CONFLICT (class, section) DO UPDATE SET last_value = roll_sequences.last_value + 1
RETURNING last_value`
	var roll int
	if err := sqlx.GetContext(ctx, q, &roll, query, class, section); err != nil {
		return 0, storeErr("allocate roll number", err)
	}
	return roll, nil
}

func insertStudent(ctx context.Context, e sqlx.ExtContext, student *models.Student) error {
	const query = `INSERT INTO students (id, name, class, section, roll_number, avatar, created_at, updated_at)
VALUES (:id, :name, :class, :section, :roll_number, :avatar, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, e, query, student); err != nil {
		return storeErr("insert student", err)
	}
	return nil
}

// FeeDraft carries the values needed to raise a new fee inside a unit of work.
type FeeDraft struct {
	Amount  decimal.Decimal
	DueDate time.Time
}

func insertFee(ctx context.Context, e sqlx.ExtContext, kind models.FeeKind, fee *models.Fee) error {
	query := `INSERT INTO fees (id, student_id, amount, status, due_date, paid_at, created_at, updated_at)
VALUES (:id, :student_id, :amount, :status, :due_date, :paid_at, :created_at, :updated_at)`
	if kind == models.FeeKindHostel {
		query = `INSERT INTO hostel_fees (id, student_id, room_id, amount, status, due_date, paid_at, created_at, updated_at)
VALUES (:id, :student_id, :room_id, :amount, :status, :due_date, :paid_at, :created_at, :updated_at)`
	}
	if _, err := sqlx.NamedExecContext(ctx, e, query, fee); err != nil {
		return storeErr(fmt.Sprintf("insert %s fee", kind), err)
	}
	return nil
}

// hasFee reports whether the student already owes or paid a fee of the kind.
func hasFee(ctx context.Context, q sqlx.QueryerContext, kind models.FeeKind, studentID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE student_id = $1)`, feeTable(kind))
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, query, studentID); err != nil {
		return false, storeErr(fmt.Sprintf("check %s fee", kind), err)
	}
	return exists, nil
}

const roomColumns = `r.id, r.hostel_id, h.name AS hostel_name, r.room_number, r.capacity,
(SELECT COUNT(*) FROM room_occupants o WHERE o.room_id = r.id) AS occupied, r.created_at, r.updated_at`

// lockRoom loads a room with its occupancy and holds the row lock until the transaction ends.
func lockRoom(ctx context.Context, tx *sqlx.Tx, roomID string) (*models.HostelRoom, error) {
	const lockQuery = `SELECT id FROM hostel_rooms WHERE id = $1 FOR UPDATE`
	var id string
	if err := tx.GetContext(ctx, &id, lockQuery, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("lock room", err)
	}
	query := `SELECT ` + roomColumns + ` FROM hostel_rooms r JOIN hostels h ON h.id = r.hostel_id WHERE r.id = $1`
	var room models.HostelRoom
	if err := tx.GetContext(ctx, &room, query, roomID); err != nil {
		return nil, storeErr("load locked room", err)
	}
	return &room, nil
}
