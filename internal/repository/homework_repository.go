package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

// HomeworkRepository persists homework assignments.
type HomeworkRepository struct {
	db *sqlx.DB
}

// NewHomeworkRepository constructs a HomeworkRepository.
func NewHomeworkRepository(db *sqlx.DB) *HomeworkRepository {
	return &HomeworkRepository{db: db}
}

// Create stores an assignment.
func (r *HomeworkRepository) Create(ctx context.Context, hw *models.Homework) error {
	if hw.ID == "" {
		hw.ID = uuid.NewString()
	}
	hw.CreatedAt = time.Now().UTC()
	hw.DueDate = dateOnly(hw.DueDate)
	const query = `INSERT INTO homeworks (id, class, section, subject, title, description, due_date, assigned_by, created_at)
VALUES (:id, :class, :section, :subject, :title, :description, :due_date, :assigned_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hw); err != nil {
		return storeErr("create homework", err)
	}
	return nil
}

// List returns assignments ordered by due date.
func (r *HomeworkRepository) List(ctx context.Context, filter models.HomeworkFilter) ([]models.Homework, error) {
	var conditions []string
	var args []interface{}
	if filter.Class != "" {
		conditions = append(conditions, fmt.Sprintf("class = $%d", len(args)+1))
		args = append(args, filter.Class)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	query := `SELECT id, class, section, subject, title, description, due_date, assigned_by, created_at FROM homeworks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY due_date ASC"
	var items []models.Homework
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, storeErr("list homework", err)
	}
	return items, nil
}
