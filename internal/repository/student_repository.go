package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

const studentColumns = `id, name, class, section, roll_number, avatar, created_at, updated_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Class != "" {
		conditions = append(conditions, fmt.Sprintf("class = $%d", len(args)+1))
		args = append(args, filter.Class)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base := "FROM students WHERE " + strings.Join(conditions, " AND ")

	_, size, offset := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY class ASC, section ASC, roll_number ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, storeErr("list students", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, storeErr("count students", err)
	}
	return students, total, nil
}

// All returns every student, used for collection snapshots.
func (r *StudentRepository) All(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students ORDER BY created_at ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, storeErr("list all students", err)
	}
	return students, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("find student", err)
	}
	return &student, nil
}

// Create inserts a student, reserving the next roll number of its section in the same transaction.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) (err error) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin student transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if student.RollNumber, err = nextRollNumber(ctx, tx, student.Class, student.Section); err != nil {
		return err
	}
	if err = insertStudent(ctx, tx, student); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit student transaction: %w", err)
	}
	return nil
}

// UpdateAvatar replaces the avatar reference of a student.
func (r *StudentRepository) UpdateAvatar(ctx context.Context, id, avatar string) error {
	const query = `UPDATE students SET avatar = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, avatar, time.Now().UTC())
	if err != nil {
		return storeErr("update student avatar", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update student avatar", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of enrolled students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM students`); err != nil {
		return 0, storeErr("count students", err)
	}
	return total, nil
}

// Rosters groups head counts by class section.
func (r *StudentRepository) Rosters(ctx context.Context) ([]models.ClassRoster, error) {
	const query = `SELECT class, section, COUNT(*) AS students FROM students GROUP BY class, section ORDER BY class, section`
	var rosters []models.ClassRoster
	if err := r.db.SelectContext(ctx, &rosters, query); err != nil {
		return nil, storeErr("list class rosters", err)
	}
	return rosters, nil
}
