package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

// AttendanceRepository persists daily attendance marks.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes one mark per student and date; re-logging a day overwrites the earlier mark.
func (r *AttendanceRepository) Upsert(ctx context.Context, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance transaction: %w", err)
	}
	const query = `INSERT INTO student_attendance (student_id, date, status, marked_by)
VALUES (:student_id, :date, :status, :marked_by)
ON CONFLICT (student_id, date) DO UPDATE SET status = EXCLUDED.status, marked_by = EXCLUDED.marked_by`
	for i := range records {
		records[i].Date = dateOnly(records[i].Date)
		if _, err := tx.NamedExecContext(ctx, query, records[i]); err != nil {
			_ = tx.Rollback()
			return storeErr("upsert attendance", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance transaction: %w", err)
	}
	return nil
}

// ListByStudent returns a student's marks, oldest first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT student_id, date, status, marked_by FROM student_attendance WHERE student_id = $1 ORDER BY date ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, storeErr("list attendance", err)
	}
	return records, nil
}

// All returns every mark.
func (r *AttendanceRepository) All(ctx context.Context) ([]models.AttendanceRecord, error) {
	const query = `SELECT student_id, date, status, marked_by FROM student_attendance ORDER BY date ASC`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, storeErr("list all attendance", err)
	}
	return records, nil
}
