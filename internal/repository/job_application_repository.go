package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

const jobApplicationColumns = `id, full_name, email, phone, subject, experience, resume, status, submitted_at, teacher_id`

// JobApplicationRepository persists careers applications.
type JobApplicationRepository struct {
	db *sqlx.DB
}

// NewJobApplicationRepository constructs a JobApplicationRepository.
func NewJobApplicationRepository(db *sqlx.DB) *JobApplicationRepository {
	return &JobApplicationRepository{db: db}
}

// Create stores a submitted application as Pending.
func (r *JobApplicationRepository) Create(ctx context.Context, app *models.JobApplication) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Date.IsZero() {
		app.Date = time.Now().UTC()
	}
	app.Status = models.JobApplicationPending
	const query = `INSERT INTO job_applications (id, full_name, email, phone, subject, experience, resume, status, submitted_at)
VALUES (:id, :full_name, :email, :phone, :subject, :experience, :resume, :status, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return storeErr("create job application", err)
	}
	return nil
}

// List returns applications, newest first.
func (r *JobApplicationRepository) List(ctx context.Context, status models.JobApplicationStatus) ([]models.JobApplication, error) {
	query := `SELECT ` + jobApplicationColumns + ` FROM job_applications`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY submitted_at DESC`
	var apps []models.JobApplication
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, storeErr("list job applications", err)
	}
	return apps, nil
}

// FindByID fetches one application.
func (r *JobApplicationRepository) FindByID(ctx context.Context, id string) (*models.JobApplication, error) {
	const query = `SELECT ` + jobApplicationColumns + ` FROM job_applications WHERE id = $1`
	var app models.JobApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("find job application", err)
	}
	return &app, nil
}

// CountByStatus counts applications in a status.
func (r *JobApplicationRepository) CountByStatus(ctx context.Context, status models.JobApplicationStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM job_applications WHERE status = $1`, status); err != nil {
		return 0, storeErr("count job applications", err)
	}
	return total, nil
}

// Accept creates exactly one teacher from a Pending application and marks it Accepted.
func (r *JobApplicationRepository) Accept(ctx context.Context, id string) (app *models.JobApplication, teacher *models.Teacher, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin accept transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked models.JobApplication
	if err = tx.GetContext(ctx, &locked, `SELECT `+jobApplicationColumns+` FROM job_applications WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "job application not found")
			return nil, nil, err
		}
		return nil, nil, storeErr("lock job application", err)
	}
	if locked.Status != models.JobApplicationPending {
		err = appErrors.Clone(appErrors.ErrAlreadyProcessed, "job application already processed")
		return nil, nil, err
	}

	teacher = &models.Teacher{
		ID:        uuid.NewString(),
		Name:      locked.FullName,
		Subject:   locked.Subject,
		Email:     locked.Email,
		CreatedAt: time.Now().UTC(),
	}
	const insert = `INSERT INTO teachers (id, name, subject, email, created_at) VALUES (:id, :name, :subject, :email, :created_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insert, teacher); err != nil {
		return nil, nil, storeErr("create teacher", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE job_applications SET status = 'Accepted', teacher_id = $2 WHERE id = $1`, id, teacher.ID); err != nil {
		return nil, nil, storeErr("accept job application", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit accept: %w", err)
	}
	locked.Status = models.JobApplicationAccepted
	locked.TeacherID = &teacher.ID
	return &locked, teacher, nil
}

// Reject moves a Pending application to Rejected.
func (r *JobApplicationRepository) Reject(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE job_applications SET status = 'Rejected' WHERE id = $1 AND status = 'Pending'`, id)
	if err != nil {
		return storeErr("reject job application", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("reject job application", err)
	}
	if affected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "job application already processed")
	}
	return nil
}
