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
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

type hostelRepository interface {
	ListHostels(ctx context.Context, hostelType models.HostelType) ([]models.Hostel, error)
	FindHostel(ctx context.Context, id string) (*models.Hostel, error)
	HostelNameTaken(ctx context.Context, name, excludeID string) (bool, error)
	CreateHostel(ctx context.Context, hostel *models.Hostel) error
	UpdateHostel(ctx context.Context, hostel *models.Hostel) error
	DeleteHostel(ctx context.Context, id string) ([]string, error)
	ListRooms(ctx context.Context, hostelID string) ([]models.HostelRoom, error)
	AvailableRooms(ctx context.Context, hostelID string) ([]models.HostelRoom, error)
	FindRoom(ctx context.Context, id string) (*models.HostelRoom, error)
	RoomNumberTaken(ctx context.Context, hostelID, roomNumber, excludeID string) (bool, error)
	CreateRoom(ctx context.Context, room *models.HostelRoom) error
	UpdateRoom(ctx context.Context, room *models.HostelRoom) error
	DeleteRoom(ctx context.Context, id string) error
	ListOccupants(ctx context.Context, roomID string) ([]models.Occupant, error)
	AllocateStudent(ctx context.Context, roomID, studentID string, draft *repository.FeeDraft) (*repository.AllocateResult, error)
	RemoveOccupant(ctx context.Context, roomID, studentID string) error
	Occupancy(ctx context.Context) ([]repository.HostelOccupancy, error)
}

// HostelConfig carries the hostel fee raised for newly housed students.
type HostelConfig struct {
	HostelFee decimal.Decimal
	DueDays   int
}

// HostelService manages hostels, rooms and occupants.
type HostelService struct {
	repo      hostelRepository
	audit     auditRecorder
	cache     *CacheService
	notifier  *ChangeNotifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    HostelConfig
	now       func() time.Time
}

// NewHostelService constructs a HostelService.
func NewHostelService(repo hostelRepository, audit auditRecorder, cache *CacheService, notifier *ChangeNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config HostelConfig) *HostelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if config.HostelFee.IsZero() {
		config.HostelFee = decimal.NewFromInt(2500)
	}
	if config.DueDays <= 0 {
		config.DueDays = 30
	}
	return &HostelService{repo: repo, audit: audit, cache: cache, notifier: notifier, metrics: metrics, validator: validate, logger: logger, config: config, now: time.Now}
}

// EligibleHostels maps the applicant gender to a hostel category and lists its hostels.
// A missing gender is a validation error; a gender without a category is not eligible.
func (s *HostelService) EligibleHostels(ctx context.Context, gender string) (*dto.EligibleHostels, error) {
	gender = strings.TrimSpace(gender)
	if gender == "" {
		return nil, fieldError("gender is required", "gender", "gender is a required field")
	}
	out := &dto.EligibleHostels{Gender: models.Gender(strings.ToLower(gender)), Hostels: []models.Hostel{}}
	category, ok := models.HostelTypeForGender(out.Gender)
	if !ok {
		out.Reason = "no hostel category for this gender"
		return out, nil
	}
	out.Category = category
	hostels, err := s.repo.ListHostels(ctx, category)
	if err != nil {
		return nil, translateErr(err, "", "failed to list hostels")
	}
	if len(hostels) == 0 {
		out.Reason = fmt.Sprintf("no %s hostels configured", category)
		return out, nil
	}
	out.Hostels = hostels
	out.Eligible = true
	return out, nil
}

// ListHostels returns hostels, optionally of one type.
func (s *HostelService) ListHostels(ctx context.Context, hostelType string) ([]models.Hostel, error) {
	t := models.HostelType(hostelType)
	if t != "" && !t.Valid() {
		return nil, fieldError("invalid hostel type", "type", "type must be Boys or Girls")
	}
	hostels, err := s.repo.ListHostels(ctx, t)
	if err != nil {
		return nil, translateErr(err, "", "failed to list hostels")
	}
	return hostels, nil
}

// CreateHostel adds a hostel. Duplicate names are rejected before any write.
func (s *HostelService) CreateHostel(ctx context.Context, actor *models.Session, req dto.HostelRequest) (*models.Hostel, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(s.validator, req, "invalid hostel"); err != nil {
		return nil, err
	}
	if err := s.ensureHostelName(ctx, req.Name, ""); err != nil {
		return nil, err
	}
	hostel := &models.Hostel{Name: req.Name, Type: req.Type}
	if err := s.repo.CreateHostel(ctx, hostel); err != nil {
		return nil, translateErr(err, "", "failed to create hostel")
	}
	s.changed(ctx, actor, models.CollectionHostels, models.ChangeAdded, hostel.ID)
	return hostel, nil
}

// UpdateHostel renames or retypes a hostel. Room listings resolve the new name by join.
func (s *HostelService) UpdateHostel(ctx context.Context, actor *models.Session, id string, req dto.HostelRequest) (*models.Hostel, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(s.validator, req, "invalid hostel"); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindHostel(ctx, id); err != nil {
		return nil, translateErr(err, "hostel not found", "failed to load hostel")
	}
	if err := s.ensureHostelName(ctx, req.Name, id); err != nil {
		return nil, err
	}
	hostel := &models.Hostel{ID: id, Name: req.Name, Type: req.Type}
	if err := s.repo.UpdateHostel(ctx, hostel); err != nil {
		return nil, translateErr(err, "hostel not found", "failed to update hostel")
	}
	s.changed(ctx, actor, models.CollectionHostels, models.ChangeModified, hostel.ID)
	return s.reloadHostel(ctx, hostel)
}

// DeleteHostel removes the hostel, its rooms and their occupancy in one transaction.
func (s *HostelService) DeleteHostel(ctx context.Context, actor *models.Session, id string) error {
	roomIDs, err := s.repo.DeleteHostel(ctx, id)
	if err != nil {
		return translateErr(err, "hostel not found", "failed to delete hostel")
	}
	s.changed(ctx, actor, models.CollectionHostels, models.ChangeRemoved, id)
	s.notifier.Notify(ctx, models.CollectionHostelRooms, models.ChangeRemoved, roomIDs...)
	return nil
}

// ListRooms returns rooms with occupants resolved to names, optionally for one hostel.
func (s *HostelService) ListRooms(ctx context.Context, hostelID string) ([]models.HostelRoom, error) {
	rooms, err := s.repo.ListRooms(ctx, hostelID)
	if err != nil {
		return nil, translateErr(err, "", "failed to list rooms")
	}
	occupants, err := s.repo.ListOccupants(ctx, "")
	if err != nil {
		return nil, translateErr(err, "", "failed to list occupants")
	}
	byRoom := make(map[string][]models.Occupant, len(rooms))
	for _, o := range occupants {
		byRoom[o.RoomID] = append(byRoom[o.RoomID], o)
	}
	for i := range rooms {
		rooms[i].Occupants = byRoom[rooms[i].ID]
	}
	return rooms, nil
}

// AvailableRooms returns the rooms of a hostel with at least one free bed.
func (s *HostelService) AvailableRooms(ctx context.Context, hostelID string) ([]models.HostelRoom, error) {
	if strings.TrimSpace(hostelID) == "" {
		return nil, fieldError("hostel is required", "hostelId", "hostelId is a required field")
	}
	if _, err := s.repo.FindHostel(ctx, hostelID); err != nil {
		return nil, translateErr(err, "hostel not found", "failed to load hostel")
	}
	rooms, err := s.repo.AvailableRooms(ctx, hostelID)
	if err != nil {
		return nil, translateErr(err, "", "failed to list rooms")
	}
	return rooms, nil
}

// ListOccupants returns every housed student with room and hostel.
func (s *HostelService) ListOccupants(ctx context.Context) ([]models.Occupant, error) {
	occupants, err := s.repo.ListOccupants(ctx, "")
	if err != nil {
		return nil, translateErr(err, "", "failed to list occupants")
	}
	return occupants, nil
}

// CreateRoom adds a room to an existing hostel.
func (s *HostelService) CreateRoom(ctx context.Context, actor *models.Session, req dto.RoomRequest) (*models.HostelRoom, error) {
	req.RoomNumber = strings.TrimSpace(req.RoomNumber)
	if err := validateStruct(s.validator, req, "invalid room"); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindHostel(ctx, req.HostelID); err != nil {
		return nil, translateErr(err, "hostel not found", "failed to load hostel")
	}
	if err := s.ensureRoomNumber(ctx, req.HostelID, req.RoomNumber, ""); err != nil {
		return nil, err
	}
	room := &models.HostelRoom{HostelID: req.HostelID, RoomNumber: req.RoomNumber, Capacity: req.Capacity}
	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, translateErr(err, "", "failed to create room")
	}
	s.changed(ctx, actor, models.CollectionHostelRooms, models.ChangeAdded, room.ID)
	return s.reloadRoom(ctx, room)
}

// UpdateRoom changes room number and capacity; the hostel of a room never changes.
func (s *HostelService) UpdateRoom(ctx context.Context, actor *models.Session, id string, req dto.RoomRequest) (*models.HostelRoom, error) {
	req.RoomNumber = strings.TrimSpace(req.RoomNumber)
	current, err := s.repo.FindRoom(ctx, id)
	if err != nil {
		return nil, translateErr(err, "room not found", "failed to load room")
	}
	if req.HostelID == "" {
		req.HostelID = current.HostelID
	}
	if err := validateStruct(s.validator, req, "invalid room"); err != nil {
		return nil, err
	}
	if req.HostelID != current.HostelID {
		return nil, fieldError("room cannot change hostel", "hostelId", "a room stays in its hostel")
	}
	if err := s.ensureRoomNumber(ctx, current.HostelID, req.RoomNumber, id); err != nil {
		return nil, err
	}
	room := &models.HostelRoom{ID: id, HostelID: current.HostelID, RoomNumber: req.RoomNumber, Capacity: req.Capacity}
	if err := s.repo.UpdateRoom(ctx, room); err != nil {
		return nil, translateErr(err, "room not found", "failed to update room")
	}
	s.changed(ctx, actor, models.CollectionHostelRooms, models.ChangeModified, id)
	return s.reloadRoom(ctx, room)
}

// DeleteRoom removes a room and frees its occupants.
func (s *HostelService) DeleteRoom(ctx context.Context, actor *models.Session, id string) error {
	if err := s.repo.DeleteRoom(ctx, id); err != nil {
		return translateErr(err, "room not found", "failed to delete room")
	}
	s.changed(ctx, actor, models.CollectionHostelRooms, models.ChangeRemoved, id)
	return nil
}

// AllocateStudent moves an existing student into a room, leaving any other room in the same
// transaction. A hostel fee is raised when the student has none yet.
func (s *HostelService) AllocateStudent(ctx context.Context, actor *models.Session, roomID string, req dto.RoomAssignmentRequest) (*dto.RoomAssignment, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := validateStruct(s.validator, req, "invalid room assignment"); err != nil {
		return nil, err
	}
	draft := &repository.FeeDraft{
		Amount:  s.config.HostelFee,
		DueDate: s.now().UTC().AddDate(0, 0, s.config.DueDays),
	}
	start := time.Now()
	result, err := s.repo.AllocateStudent(ctx, roomID, req.StudentID, draft)
	s.metrics.ObserveDBQuery("hostel_allocate_student", time.Since(start))
	if err != nil {
		return nil, translateErr(err, "room or student not found", "failed to allocate room")
	}

	s.changed(ctx, actor, models.CollectionHostelRooms, models.ChangeModified, roomID)
	if result.PreviousRoom != "" {
		s.notifier.Notify(ctx, models.CollectionHostelRooms, models.ChangeModified, result.PreviousRoom)
	}
	if result.HostelFee != nil {
		s.notifier.Notify(ctx, models.CollectionHostelFees, models.ChangeAdded, result.HostelFee.ID)
	}
	if hostel, err := s.repo.FindHostel(ctx, result.Room.HostelID); err == nil {
		s.metrics.RecordHostelAllocation(hostel.Type)
	}
	return &dto.RoomAssignment{Room: result.Room, PreviousRoom: result.PreviousRoom, HostelFee: result.HostelFee}, nil
}

// RemoveOccupant frees the student's bed.
func (s *HostelService) RemoveOccupant(ctx context.Context, actor *models.Session, roomID, studentID string) error {
	if err := s.repo.RemoveOccupant(ctx, roomID, studentID); err != nil {
		return translateErr(err, "student is not in this room", "failed to remove occupant")
	}
	s.changed(ctx, actor, models.CollectionHostelRooms, models.ChangeModified, roomID)
	return nil
}

// Occupancy summarises beds per hostel for the Admin dashboard.
func (s *HostelService) Occupancy(ctx context.Context) ([]repository.HostelOccupancy, error) {
	rows, err := s.repo.Occupancy(ctx)
	if err != nil {
		return nil, translateErr(err, "", "failed to load occupancy")
	}
	return rows, nil
}

func (s *HostelService) ensureHostelName(ctx context.Context, name, excludeID string) error {
	taken, err := s.repo.HostelNameTaken(ctx, name, excludeID)
	if err != nil {
		return translateErr(err, "", "failed to check hostel name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "duplicate hostel name")
	}
	return nil
}

func (s *HostelService) ensureRoomNumber(ctx context.Context, hostelID, number, excludeID string) error {
	taken, err := s.repo.RoomNumberTaken(ctx, hostelID, number, excludeID)
	if err != nil {
		return translateErr(err, "", "failed to check room number")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "duplicate room number")
	}
	return nil
}

func (s *HostelService) reloadHostel(ctx context.Context, fallback *models.Hostel) (*models.Hostel, error) {
	hostel, err := s.repo.FindHostel(ctx, fallback.ID)
	if err != nil {
		return fallback, nil
	}
	return hostel, nil
}

func (s *HostelService) reloadRoom(ctx context.Context, fallback *models.HostelRoom) (*models.HostelRoom, error) {
	room, err := s.repo.FindRoom(ctx, fallback.ID)
	if err != nil {
		return fallback, nil
	}
	return room, nil
}

func (s *HostelService) changed(ctx context.Context, actor *models.Session, collection string, change models.ChangeType, id string) {
	_ = s.cache.Invalidate(ctx, cachePatternDashboard)
	s.notifier.Notify(ctx, collection, change, id)
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     models.AuditActionHostelWrite,
		Resource:   collection,
		ResourceID: &id,
		NewValues:  []byte(fmt.Sprintf(`{"change":%q}`, change)),
	}
	if actor != nil {
		entry.UserID = &actor.AccountID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record hostel audit log", zap.Error(err))
	}
}
