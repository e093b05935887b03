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

const admissionColumns = `id, student_name, applying_for_grade, parent_name, parent_email, gender, status, submitted_at, decided_at, student_id`

// AdmissionRepository persists admission applications and runs the approval unit of work.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository constructs an AdmissionRepository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Create stores a submitted application as Pending.
func (r *AdmissionRepository) Create(ctx context.Context, app *models.AdmissionApplication) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Date.IsZero() {
		app.Date = time.Now().UTC()
	}
	app.Status = models.AdmissionStatusPending
	const query = `INSERT INTO admission_applications (id, student_name, applying_for_grade, parent_name, parent_email, gender, status, submitted_at)
VALUES (:id, :student_name, :applying_for_grade, :parent_name, :parent_email, :gender, :status, :submitted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return storeErr("create admission application", err)
	}
	return nil
}

// List returns applications, newest first.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionApplication, error) {
	query := `SELECT ` + admissionColumns + ` FROM admission_applications`
	var args []interface{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY submitted_at DESC`
	var apps []models.AdmissionApplication
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, storeErr("list admission applications", err)
	}
	return apps, nil
}

// FindByID fetches one application.
func (r *AdmissionRepository) FindByID(ctx context.Context, id string) (*models.AdmissionApplication, error) {
	const query = `SELECT ` + admissionColumns + ` FROM admission_applications WHERE id = $1`
	var app models.AdmissionApplication
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("find admission application", err)
	}
	return &app, nil
}

// CountByStatus counts applications in a status.
func (r *AdmissionRepository) CountByStatus(ctx context.Context, status models.AdmissionStatus) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM admission_applications WHERE status = $1`, status); err != nil {
		return 0, storeErr("count admission applications", err)
	}
	return total, nil
}

// Reject moves a Pending application to Rejected.
func (r *AdmissionRepository) Reject(ctx context.Context, id string, decidedAt time.Time) error {
	const query = `UPDATE admission_applications SET status = 'Rejected', decided_at = $2 WHERE id = $1 AND status = 'Pending'`
	res, err := r.db.ExecContext(ctx, query, id, decidedAt)
	if err != nil {
		return storeErr("reject admission application", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("reject admission application", err)
	}
	if affected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return appErrors.ErrAlreadyProcessed
	}
	return nil
}

// ApprovalParams carries the values the approval unit of work writes.
type ApprovalParams struct {
	Section    string
	Avatar     string
	TuitionFee FeeDraft
	DecidedAt  time.Time
}

// ApprovalResult lists every record created or changed by an approval.
type ApprovalResult struct {
	Application *models.AdmissionApplication
	Student     *models.Student
	TuitionFee  *models.Fee
}

// Approve runs the approval unit of work: the student, the tuition fee and the status change
// commit together or not at all.
func (r *AdmissionRepository) Approve(ctx context.Context, id string, params ApprovalParams) (result *ApprovalResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin approval transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	app, err := lockApplication(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != models.AdmissionStatusPending {
		err = appErrors.ErrAlreadyProcessed
		return nil, err
	}
	result, err = approveLocked(ctx, tx, app, params)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit approval: %w", err)
	}
	return result, nil
}

// HostelAllocationParams extends an approval with the chosen room.
type HostelAllocationParams struct {
	ApprovalParams
	HostelID  string
	RoomID    string
	HostelFee FeeDraft
}

// HostelAllocationResult lists the records written by a hostel allocation.
type HostelAllocationResult struct {
	ApprovalResult
	Approved  bool
	Room      *models.HostelRoom
	HostelFee *models.Fee
}

// AllocateHostel places an applicant into a room. Eligibility is re-checked with the room row
// locked; a still Pending application is approved in the same transaction.
func (r *AdmissionRepository) AllocateHostel(ctx context.Context, id string, params HostelAllocationParams) (result *HostelAllocationResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin hostel allocation transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	app, err := lockApplication(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if app.Status == models.AdmissionStatusRejected {
		err = appErrors.ErrAlreadyProcessed
		return nil, err
	}

	wantType, ok := models.HostelTypeForGender(app.Gender)
	if !ok {
		err = appErrors.Clone(appErrors.ErrValidation, "no hostel category for applicant gender")
		return nil, err
	}
	var hostel models.Hostel
	if err = tx.GetContext(ctx, &hostel, `SELECT `+hostelColumns+` FROM hostels WHERE id = $1`, params.HostelID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "hostel not found")
			return nil, err
		}
		return nil, storeErr("load hostel", err)
	}
	if hostel.Type != wantType {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s hostel is not eligible for this applicant", hostel.Type))
		return nil, err
	}

	room, err := lockRoom(ctx, tx, params.RoomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, err
	}
	if room.HostelID != hostel.ID {
		err = appErrors.Clone(appErrors.ErrValidation, "room does not belong to hostel")
		return nil, err
	}
	if !room.HasSpace() {
		err = appErrors.ErrNoCapacity
		return nil, err
	}

	result = &HostelAllocationResult{Room: room}
	if app.Status == models.AdmissionStatusPending {
		approved, approveErr := approveLocked(ctx, tx, app, params.ApprovalParams)
		if approveErr != nil {
			err = approveErr
			return nil, err
		}
		result.ApprovalResult = *approved
		result.Approved = true
	} else {
		if app.StudentID == nil {
			err = fmt.Errorf("approved application %s has no student", app.ID)
			return nil, err
		}
		var student models.Student
		if err = tx.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, *app.StudentID); err != nil {
			return nil, storeErr("load admitted student", err)
		}
		var housed bool
		if err = tx.GetContext(ctx, &housed, `SELECT EXISTS (SELECT 1 FROM room_occupants WHERE student_id = $1)`, student.ID); err != nil {
			return nil, storeErr("check occupancy", err)
		}
		if housed {
			err = appErrors.Clone(appErrors.ErrConflict, "student already has a room")
			return nil, err
		}
		result.Application = app
		result.Student = &student
	}

	now := params.DecidedAt
	if _, err = tx.ExecContext(ctx, `INSERT INTO room_occupants (room_id, student_id, allocated_at) VALUES ($1, $2, $3)`, room.ID, result.Student.ID, now); err != nil {
		return nil, storeErr("insert occupant", err)
	}
	room.Occupied++

	// A student re-housed after leaving a room keeps the hostel fee already raised.
	var billed bool
	if !result.Approved {
		if billed, err = hasFee(ctx, tx, models.FeeKindHostel, result.Student.ID); err != nil {
			return nil, err
		}
	}
	if !billed {
		roomRef := room.ID
		fee := &models.Fee{
			ID:          uuid.NewString(),
			Kind:        models.FeeKindHostel,
			StudentID:   result.Student.ID,
			StudentName: result.Student.Name,
			Class:       result.Student.Class,
			RoomID:      &roomRef,
			RoomNumber:  &room.RoomNumber,
			Amount:      params.HostelFee.Amount,
			Status:      models.FeeStatusDue,
			DueDate:     dateOnly(params.HostelFee.DueDate),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err = insertFee(ctx, tx, models.FeeKindHostel, fee); err != nil {
			return nil, err
		}
		result.HostelFee = fee
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit hostel allocation: %w", err)
	}
	return result, nil
}

func lockApplication(ctx context.Context, tx *sqlx.Tx, id string) (*models.AdmissionApplication, error) {
	const query = `SELECT ` + admissionColumns + ` FROM admission_applications WHERE id = $1 FOR UPDATE`
	var app models.AdmissionApplication
	if err := tx.GetContext(ctx, &app, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, storeErr("lock admission application", err)
	}
	return &app, nil
}

// approveLocked writes the approval effects for an application whose row is already locked.
func approveLocked(ctx context.Context, tx *sqlx.Tx, app *models.AdmissionApplication, params ApprovalParams) (*ApprovalResult, error) {
	now := params.DecidedAt
	student := &models.Student{
		ID:        uuid.NewString(),
		Name:      app.StudentName,
		Class:     app.ApplyingForGrade,
		Section:   params.Section,
		Avatar:    params.Avatar,
		CreatedAt: now,
		UpdatedAt: now,
	}
	roll, err := nextRollNumber(ctx, tx, student.Class, student.Section)
	if err != nil {
		return nil, err
	}
	student.RollNumber = roll
	if err := insertStudent(ctx, tx, student); err != nil {
		return nil, err
	}

	fee := &models.Fee{
		ID:          uuid.NewString(),
		Kind:        models.FeeKindTuition,
		StudentID:   student.ID,
		StudentName: student.Name,
		Class:       student.Class,
		Amount:      params.TuitionFee.Amount,
		Status:      models.FeeStatusDue,
		DueDate:     dateOnly(params.TuitionFee.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := insertFee(ctx, tx, models.FeeKindTuition, fee); err != nil {
		return nil, err
	}

	const update = `UPDATE admission_applications SET status = 'Approved', decided_at = $2, student_id = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, app.ID, now, student.ID); err != nil {
		return nil, storeErr("approve admission application", err)
	}
	const stat = `INSERT INTO admission_stats (month, admitted, capacity) VALUES ($1, 1, 0)
ON CONFLICT (month) DO UPDATE SET admitted = admission_stats.admitted + 1`
	if _, err := tx.ExecContext(ctx, stat, now.Format("2006-01")); err != nil {
		return nil, storeErr("record admission stat", err)
	}

	app.Status = models.AdmissionStatusApproved
	app.DecidedAt = &now
	app.StudentID = &student.ID
	return &ApprovalResult{Application: app, Student: student, TuitionFee: fee}, nil
}

// ListStats returns the monthly admission trend in month order.
func (r *AdmissionRepository) ListStats(ctx context.Context) ([]models.AdmissionStat, error) {
	var stats []models.AdmissionStat
	if err := r.db.SelectContext(ctx, &stats, `SELECT month, admitted, capacity FROM admission_stats ORDER BY month ASC`); err != nil {
		return nil, storeErr("list admission stats", err)
	}
	return stats, nil
}

// UpsertStat sets the figures for one month.
func (r *AdmissionRepository) UpsertStat(ctx context.Context, stat models.AdmissionStat) error {
	const query = `INSERT INTO admission_stats (month, admitted, capacity) VALUES (:month, :admitted, :capacity)
ON CONFLICT (month) DO UPDATE SET admitted = EXCLUDED.admitted, capacity = EXCLUDED.capacity`
	if _, err := r.db.NamedExecContext(ctx, query, stat); err != nil {
		return storeErr("upsert admission stat", err)
	}
	return nil
}
