package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

// NoticeRepository persists notice board posts.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository constructs a NoticeRepository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// Create stores a notice.
func (r *NoticeRepository) Create(ctx context.Context, notice *models.Notice) error {
	if notice.ID == "" {
		notice.ID = uuid.NewString()
	}
	if notice.Date.IsZero() {
		notice.Date = time.Now().UTC()
	}
	const query = `INSERT INTO notices (id, title, content, author, role, posted_at) VALUES (:id, :title, :content, :author, :role, :posted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notice); err != nil {
		return storeErr("create notice", err)
	}
	return nil
}

// List returns notices newest first. A non-positive limit returns all of them.
func (r *NoticeRepository) List(ctx context.Context, limit int) ([]models.Notice, error) {
	query := `SELECT id, title, content, author, role, posted_at FROM notices ORDER BY posted_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var notices []models.Notice
	if err := r.db.SelectContext(ctx, &notices, query); err != nil {
		return nil, storeErr("list notices", err)
	}
	return notices, nil
}
