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

const hostelColumns = `id, name, type, created_at, updated_at`

// HostelRepository persists hostels, their rooms and room occupancy.
type HostelRepository struct {
	db *sqlx.DB
}

// NewHostelRepository constructs a HostelRepository.
func NewHostelRepository(db *sqlx.DB) *HostelRepository {
	return &HostelRepository{db: db}
}

// ListHostels returns hostels, optionally restricted to one type.
func (r *HostelRepository) ListHostels(ctx context.Context, hostelType models.HostelType) ([]models.Hostel, error) {
	query := `SELECT ` + hostelColumns + ` FROM hostels`
	var args []interface{}
	if hostelType != "" {
		query += ` WHERE type = $1`
		args = append(args, hostelType)
	}
	query += ` ORDER BY name ASC`
	var hostels []models.Hostel
	if err := r.db.SelectContext(ctx, &hostels, query, args...); err != nil {
		return nil, storeErr("list hostels", err)
	}
	return hostels, nil
}

// FindHostel fetches a hostel by ID.
func (r *HostelRepository) FindHostel(ctx context.Context, id string) (*models.Hostel, error) {
	const query = `SELECT ` + hostelColumns + ` FROM hostels WHERE id = $1`
	var hostel models.Hostel
	if err := r.db.GetContext(ctx, &hostel, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("find hostel", err)
	}
	return &hostel, nil
}

// HostelNameTaken reports whether another hostel already uses the name, ignoring case.
func (r *HostelRepository) HostelNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM hostels WHERE LOWER(name) = LOWER($1)`
	args := []interface{}{name}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	query += `)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, args...); err != nil {
		return false, storeErr("check hostel name", err)
	}
	return taken, nil
}

// CreateHostel inserts a hostel.
func (r *HostelRepository) CreateHostel(ctx context.Context, hostel *models.Hostel) error {
	if hostel.ID == "" {
		hostel.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	hostel.CreatedAt = now
	hostel.UpdatedAt = now
	const query = `INSERT INTO hostels (id, name, type, created_at, updated_at) VALUES (:id, :name, :type, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, hostel); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "duplicate hostel name")
		}
		return storeErr("create hostel", err)
	}
	return nil
}

// UpdateHostel saves the name and type of a hostel.
func (r *HostelRepository) UpdateHostel(ctx context.Context, hostel *models.Hostel) error {
	hostel.UpdatedAt = time.Now().UTC()
	const query = `UPDATE hostels SET name = :name, type = :type, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, hostel)
	if err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "duplicate hostel name")
		}
		return storeErr("update hostel", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("update hostel", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteHostel removes a hostel together with its rooms and their occupancy rows.
// It returns the IDs of the removed rooms.
func (r *HostelRepository) DeleteHostel(ctx context.Context, id string) (roomIDs []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete hostel transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM hostels WHERE id = $1 FOR UPDATE`, id); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			err = storeErr("lock hostel", err)
		}
		return nil, err
	}
	if err = tx.SelectContext(ctx, &roomIDs, `SELECT id FROM hostel_rooms WHERE hostel_id = $1`, id); err != nil {
		return nil, storeErr("list hostel rooms", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM room_occupants WHERE room_id IN (SELECT id FROM hostel_rooms WHERE hostel_id = $1)`, id); err != nil {
		return nil, storeErr("delete hostel occupants", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM hostel_rooms WHERE hostel_id = $1`, id); err != nil {
		return nil, storeErr("delete hostel rooms", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM hostels WHERE id = $1`, id); err != nil {
		return nil, storeErr("delete hostel", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete hostel: %w", err)
	}
	return roomIDs, nil
}

// ListRooms returns rooms with their occupancy, optionally for one hostel.
func (r *HostelRepository) ListRooms(ctx context.Context, hostelID string) ([]models.HostelRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM hostel_rooms r JOIN hostels h ON h.id = r.hostel_id`
	var args []interface{}
	if hostelID != "" {
		query += ` WHERE r.hostel_id = $1`
		args = append(args, hostelID)
	}
	query += ` ORDER BY h.name ASC, r.room_number ASC`
	var rooms []models.HostelRoom
	if err := r.db.SelectContext(ctx, &rooms, query, args...); err != nil {
		return nil, storeErr("list rooms", err)
	}
	return rooms, nil
}

// AvailableRooms returns the rooms of a hostel that still have a free bed.
func (r *HostelRepository) AvailableRooms(ctx context.Context, hostelID string) ([]models.HostelRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM hostel_rooms r JOIN hostels h ON h.id = r.hostel_id
WHERE r.hostel_id = $1 AND (SELECT COUNT(*) FROM room_occupants o WHERE o.room_id = r.id) < r.capacity`
	var rooms []models.HostelRoom
	if err := r.db.SelectContext(ctx, &rooms, query, hostelID); err != nil {
		return nil, storeErr("list available rooms", err)
	}
	return rooms, nil
}

// FindRoom fetches a room with its occupancy.
func (r *HostelRepository) FindRoom(ctx context.Context, id string) (*models.HostelRoom, error) {
	query := `SELECT ` + roomColumns + ` FROM hostel_rooms r JOIN hostels h ON h.id = r.hostel_id WHERE r.id = $1`
	var room models.HostelRoom
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("find room", err)
	}
	return &room, nil
}

// RoomNumberTaken reports whether the hostel already has a room with the number.
func (r *HostelRepository) RoomNumberTaken(ctx context.Context, hostelID, roomNumber, excludeID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM hostel_rooms WHERE hostel_id = $1 AND LOWER(room_number) = LOWER($2)`
	args := []interface{}{hostelID, roomNumber}
	if excludeID != "" {
		query += ` AND id <> $3`
		args = append(args, excludeID)
	}
	query += `)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, query, args...); err != nil {
		return false, storeErr("check room number", err)
	}
	return taken, nil
}

// CreateRoom inserts a room.
func (r *HostelRepository) CreateRoom(ctx context.Context, room *models.HostelRoom) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now
	const query = `INSERT INTO hostel_rooms (id, hostel_id, room_number, capacity, created_at, updated_at)
VALUES (:id, :hostel_id, :room_number, :capacity, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		if isUniqueViolation(err) {
			return appErrors.Clone(appErrors.ErrConflict, "duplicate room number")
		}
		return storeErr("create room", err)
	}
	return nil
}

// UpdateRoom changes number and capacity. Capacity may not drop below the current occupancy.
func (r *HostelRepository) UpdateRoom(ctx context.Context, room *models.HostelRoom) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update room transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := lockRoom(ctx, tx, room.ID)
	if err != nil {
		return err
	}
	if room.Capacity < current.Occupied {
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("capacity cannot be lower than current occupancy (%d)", current.Occupied))
		return err
	}
	room.HostelID = current.HostelID
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE hostel_rooms SET room_number = $2, capacity = $3, updated_at = $4 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, query, room.ID, room.RoomNumber, room.Capacity, room.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			err = appErrors.Clone(appErrors.ErrConflict, "duplicate room number")
			return err
		}
		return storeErr("update room", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update room: %w", err)
	}
	return nil
}

// DeleteRoom removes a room and its occupancy rows.
func (r *HostelRepository) DeleteRoom(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM hostel_rooms WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete room", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("delete room", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOccupants resolves every occupied bed to the student name, optionally for one room.
func (r *HostelRepository) ListOccupants(ctx context.Context, roomID string) ([]models.Occupant, error) {
	query := `SELECT o.room_id, r.room_number, r.hostel_id, h.name AS hostel_name, o.student_id, s.name AS student_name, o.allocated_at
FROM room_occupants o
JOIN hostel_rooms r ON r.id = o.room_id
JOIN hostels h ON h.id = r.hostel_id
JOIN students s ON s.id = o.student_id`
	var args []interface{}
	if roomID != "" {
		query += ` WHERE o.room_id = $1`
		args = append(args, roomID)
	}
	query += ` ORDER BY h.name ASC, r.room_number ASC, s.name ASC`
	var occupants []models.Occupant
	if err := r.db.SelectContext(ctx, &occupants, query, args...); err != nil {
		return nil, storeErr("list occupants", err)
	}
	return occupants, nil
}

// FindOccupancy returns the room a student lives in.
func (r *HostelRepository) FindOccupancy(ctx context.Context, studentID string) (*models.Occupant, error) {
	const query = `SELECT o.room_id, r.room_number, r.hostel_id, h.name AS hostel_name, o.student_id, s.name AS student_name, o.allocated_at
FROM room_occupants o
JOIN hostel_rooms r ON r.id = o.room_id
JOIN hostels h ON h.id = r.hostel_id
JOIN students s ON s.id = o.student_id
WHERE o.student_id = $1`
	var occupant models.Occupant
	if err := r.db.GetContext(ctx, &occupant, query, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, storeErr("find occupancy", err)
	}
	return &occupant, nil
}

// AllocateResult describes the effect of placing a student into a room.
type AllocateResult struct {
	Room         *models.HostelRoom
	PreviousRoom string
	HostelFee    *models.Fee
}

// AllocateStudent places a student into a room, moving them out of any other room in the
// same transaction. A hostel fee is raised when the student has none and draft is set.
func (r *HostelRepository) AllocateStudent(ctx context.Context, roomID, studentID string, draft *FeeDraft) (result *AllocateResult, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocate transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	room, err := lockRoom(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, studentID); err != nil {
		return nil, storeErr("check student", err)
	}
	if !exists {
		err = sql.ErrNoRows
		return nil, err
	}

	result = &AllocateResult{Room: room}
	var previous []string
	if err = tx.SelectContext(ctx, &previous, `SELECT room_id FROM room_occupants WHERE student_id = $1`, studentID); err != nil {
		return nil, storeErr("find current room", err)
	}
	for _, prev := range previous {
		if prev == roomID {
			err = appErrors.Clone(appErrors.ErrConflict, "student already lives in this room")
			return nil, err
		}
		result.PreviousRoom = prev
	}
	if !room.HasSpace() {
		err = appErrors.ErrNoCapacity
		return nil, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM room_occupants WHERE student_id = $1`, studentID); err != nil {
		return nil, storeErr("release previous room", err)
	}
	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `INSERT INTO room_occupants (room_id, student_id, allocated_at) VALUES ($1, $2, $3)`, roomID, studentID, now); err != nil {
		return nil, storeErr("insert occupant", err)
	}
	room.Occupied++

	if draft != nil {
		var billed bool
		if billed, err = hasFee(ctx, tx, models.FeeKindHostel, studentID); err != nil {
			return nil, err
		}
		if !billed {
			roomRef := room.ID
			fee := &models.Fee{
				ID:        uuid.NewString(),
				Kind:      models.FeeKindHostel,
				StudentID: studentID,
				RoomID:    &roomRef,
				Amount:    draft.Amount,
				Status:    models.FeeStatusDue,
				DueDate:   dateOnly(draft.DueDate),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err = insertFee(ctx, tx, models.FeeKindHostel, fee); err != nil {
				return nil, err
			}
			result.HostelFee = fee
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit allocate: %w", err)
	}
	return result, nil
}

// RemoveOccupant frees a student's bed in the room.
func (r *HostelRepository) RemoveOccupant(ctx context.Context, roomID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM room_occupants WHERE room_id = $1 AND student_id = $2`, roomID, studentID)
	if err != nil {
		return storeErr("remove occupant", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storeErr("remove occupant", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HostelOccupancy aggregates beds per hostel.
type HostelOccupancy struct {
	HostelID   string            `db:"hostel_id" json:"hostel_id"`
	HostelName string            `db:"hostel_name" json:"hostel_name"`
	Type       models.HostelType `db:"type" json:"type"`
	Capacity   int               `db:"capacity" json:"capacity"`
	Occupied   int               `db:"occupied" json:"occupied"`
}

// Occupancy summarises capacity against occupied beds per hostel.
func (r *HostelRepository) Occupancy(ctx context.Context) ([]HostelOccupancy, error) {
	const query = `SELECT h.id AS hostel_id, h.name AS hostel_name, h.type,
COALESCE(SUM(r.capacity), 0) AS capacity,
COALESCE(SUM((SELECT COUNT(*) FROM room_occupants o WHERE o.room_id = r.id)), 0) AS occupied
FROM hostels h LEFT JOIN hostel_rooms r ON r.hostel_id = h.id
GROUP BY h.id, h.name, h.type ORDER BY h.name ASC`
	var rows []HostelOccupancy
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storeErr("hostel occupancy", err)
	}
	return rows, nil
}
