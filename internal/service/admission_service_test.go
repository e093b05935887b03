package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) collections() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Collection)
	}
	return out
}

type fakeAuditRecorder struct {
	entries []*models.AuditLog
}

func (f *fakeAuditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.entries = append(f.entries, log)
	return nil
}

type fakeIdempotencyGuard struct {
	held map[string]bool
}

func (f *fakeIdempotencyGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeIdempotencyGuard) Release(ctx context.Context, key string) error {
	delete(f.held, key)
	return nil
}

// fakeAdmissionRepo keeps applications, students, fees and rooms in memory and applies the
// same all-or-nothing rules as the SQL implementation.
type fakeAdmissionRepo struct {
	apps       map[string]*models.AdmissionApplication
	students   map[string]*models.Student
	fees       []*models.Fee
	hostels    map[string]*models.Hostel
	rooms      map[string]*models.HostelRoom
	housed     map[string]string
	stats      map[string]models.AdmissionStat
	statsCalls int
	rolls      map[string]int
	seq        int
}

func newFakeAdmissionRepo() *fakeAdmissionRepo {
	return &fakeAdmissionRepo{
		apps:     make(map[string]*models.AdmissionApplication),
		students: make(map[string]*models.Student),
		hostels:  make(map[string]*models.Hostel),
		rooms:    make(map[string]*models.HostelRoom),
		housed:   make(map[string]string),
		stats:    make(map[string]models.AdmissionStat),
		rolls:    make(map[string]int),
	}
}

func (f *fakeAdmissionRepo) id(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeAdmissionRepo) Create(ctx context.Context, app *models.AdmissionApplication) error {
	app.ID = f.id("app")
	copy := *app
	f.apps[app.ID] = &copy
	return nil
}

func (f *fakeAdmissionRepo) List(ctx context.Context, filter models.AdmissionFilter) ([]models.AdmissionApplication, error) {
	var out []models.AdmissionApplication
	for _, a := range f.apps {
		if filter.Status == "" || a.Status == filter.Status {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAdmissionRepo) FindByID(ctx context.Context, id string) (*models.AdmissionApplication, error) {
	a, ok := f.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (f *fakeAdmissionRepo) Reject(ctx context.Context, id string, decidedAt time.Time) error {
	a, ok := f.apps[id]
	if !ok {
		return sql.ErrNoRows
	}
	if a.Status != models.AdmissionStatusPending {
		return appErrors.ErrAlreadyProcessed
	}
	a.Status = models.AdmissionStatusRejected
	a.DecidedAt = &decidedAt
	return nil
}

func (f *fakeAdmissionRepo) approve(app *models.AdmissionApplication, params repository.ApprovalParams) *repository.ApprovalResult {
	key := app.ApplyingForGrade + "/" + params.Section
	f.rolls[key]++
	student := &models.Student{
		ID: f.id("stu"), Name: app.StudentName, Class: app.ApplyingForGrade,
		Section: params.Section, RollNumber: f.rolls[key], Avatar: params.Avatar,
	}
	f.students[student.ID] = student
	fee := &models.Fee{
		ID: f.id("fee"), Kind: models.FeeKindTuition, StudentID: student.ID, StudentName: student.Name,
		Amount: params.TuitionFee.Amount, Status: models.FeeStatusDue, DueDate: params.TuitionFee.DueDate,
	}
	f.fees = append(f.fees, fee)
	app.Status = models.AdmissionStatusApproved
	app.StudentID = &student.ID
	decided := params.DecidedAt
	app.DecidedAt = &decided
	copy := *app
	return &repository.ApprovalResult{Application: &copy, Student: student, TuitionFee: fee}
}

func (f *fakeAdmissionRepo) Approve(ctx context.Context, id string, params repository.ApprovalParams) (*repository.ApprovalResult, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if app.Status != models.AdmissionStatusPending {
		return nil, appErrors.ErrAlreadyProcessed
	}
	return f.approve(app, params), nil
}

func (f *fakeAdmissionRepo) AllocateHostel(ctx context.Context, id string, params repository.HostelAllocationParams) (*repository.HostelAllocationResult, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if app.Status == models.AdmissionStatusRejected {
		return nil, appErrors.ErrAlreadyProcessed
	}
	want, ok := models.HostelTypeForGender(app.Gender)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no hostel category for applicant gender")
	}
	hostel, ok := f.hostels[params.HostelID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "hostel not found")
	}
	if hostel.Type != want {
		return nil, appErrors.Clone(appErrors.ErrValidation, "hostel is not eligible for this applicant")
	}
	room, ok := f.rooms[params.RoomID]
	if !ok || room.HostelID != hostel.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
	}
	if !room.HasSpace() {
		return nil, appErrors.ErrNoCapacity
	}

	result := &repository.HostelAllocationResult{Room: room}
	if app.Status == models.AdmissionStatusPending {
		result.ApprovalResult = *f.approve(app, params.ApprovalParams)
		result.Approved = true
	} else {
		if _, housed := f.housed[*app.StudentID]; housed {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has a room")
		}
		copy := *app
		result.Application = &copy
		result.Student = f.students[*app.StudentID]
	}
	f.housed[result.Student.ID] = room.ID
	room.Occupied++
	for _, existing := range f.feesOf(models.FeeKindHostel) {
		if existing.StudentID == result.Student.ID {
			return result, nil
		}
	}
	fee := &models.Fee{
		ID: f.id("hfee"), Kind: models.FeeKindHostel, StudentID: result.Student.ID,
		Amount: params.HostelFee.Amount, Status: models.FeeStatusDue, DueDate: params.HostelFee.DueDate,
		RoomID: &room.ID, RoomNumber: &room.RoomNumber,
	}
	f.fees = append(f.fees, fee)
	result.HostelFee = fee
	return result, nil
}

func (f *fakeAdmissionRepo) ListStats(ctx context.Context) ([]models.AdmissionStat, error) {
	f.statsCalls++
	out := make([]models.AdmissionStat, 0, len(f.stats))
	for _, s := range f.stats {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAdmissionRepo) UpsertStat(ctx context.Context, stat models.AdmissionStat) error {
	f.stats[stat.Month] = stat
	return nil
}

func (f *fakeAdmissionRepo) feesOf(kind models.FeeKind) []*models.Fee {
	var out []*models.Fee
	for _, fee := range f.fees {
		if fee.Kind == kind {
			out = append(out, fee)
		}
	}
	return out
}

type admissionFixture struct {
	svc       *AdmissionService
	repo      *fakeAdmissionRepo
	guard     *fakeIdempotencyGuard
	audit     *fakeAuditRecorder
	publisher *recordingPublisher
	now       time.Time
}

func newAdmissionFixture(t *testing.T) *admissionFixture {
	t.Helper()
	fx := &admissionFixture{
		repo:      newFakeAdmissionRepo(),
		guard:     &fakeIdempotencyGuard{held: make(map[string]bool)},
		audit:     &fakeAuditRecorder{},
		publisher: &recordingPublisher{},
		now:       time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	notifier := NewChangeNotifier(fx.publisher, nil, zap.NewNop())
	fx.svc = NewAdmissionService(fx.repo, fx.guard, fx.audit, nil, notifier, nil, validation.New(), zap.NewNop(), AdmissionConfig{
		Avatars: []string{"https://example.com/a.png", "https://example.com/b.png"},
	})
	fx.svc.now = func() time.Time { return fx.now }
	fx.svc.pick = func(int) int { return 1 }
	return fx
}

func (fx *admissionFixture) submit(t *testing.T, name string, gender models.Gender) *models.AdmissionApplication {
	t.Helper()
	app, err := fx.svc.Submit(context.Background(), dto.AdmissionRequest{
		StudentName: name, ApplyingForGrade: "Grade 5", ParentName: "Parent " + name,
		ParentEmail: "parent@example.com", Gender: gender,
	})
	require.NoError(t, err)
	return app
}

func (fx *admissionFixture) addRoom(hostelType models.HostelType, capacity, occupied int) (*models.Hostel, *models.HostelRoom) {
	hostel := &models.Hostel{ID: fx.repo.id("hostel"), Name: string(hostelType) + " Hostel", Type: hostelType}
	fx.repo.hostels[hostel.ID] = hostel
	room := &models.HostelRoom{ID: fx.repo.id("room"), HostelID: hostel.ID, RoomNumber: "101", Capacity: capacity, Occupied: occupied}
	fx.repo.rooms[room.ID] = room
	return hostel, room
}

func TestAdmissionServiceSubmitValidates(t *testing.T) {
	fx := newAdmissionFixture(t)

	_, err := fx.svc.Submit(context.Background(), dto.AdmissionRequest{StudentName: "A", ParentEmail: "nope", Gender: "robot"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "studentName")
	assert.Contains(t, appErr.Fields, "parentEmail")
	assert.Contains(t, appErr.Fields, "gender")
	assert.Empty(t, fx.repo.apps)
}

func TestAdmissionServiceApproveCreatesStudentAndTuitionFee(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)

	decision, err := fx.svc.Approve(context.Background(), &models.Session{AccountID: "admin"}, app.ID)
	require.NoError(t, err)

	assert.Equal(t, models.AdmissionStatusApproved, decision.Application.Status)
	assert.Equal(t, "Aarav Sharma", decision.Student.Name)
	assert.Equal(t, "Grade 5", decision.Student.Class)
	assert.Equal(t, "A", decision.Student.Section)
	assert.Equal(t, 1, decision.Student.RollNumber)
	assert.Equal(t, "https://example.com/b.png", decision.Student.Avatar)

	require.NotNil(t, decision.TuitionFee)
	assert.True(t, decision.TuitionFee.Amount.Equal(decimal.NewFromInt(5500)))
	assert.Equal(t, models.FeeStatusDue, decision.TuitionFee.Status)
	assert.Equal(t, fx.now.AddDate(0, 0, 30), decision.TuitionFee.DueDate)

	assert.Len(t, fx.repo.students, 1)
	assert.Len(t, fx.repo.feesOf(models.FeeKindTuition), 1)
	assert.Empty(t, fx.guard.held)
	assert.Subset(t, fx.publisher.collections(), []string{models.CollectionStudents, models.CollectionFees, models.CollectionAdmissionApplications})
	require.Len(t, fx.audit.entries, 1)
	assert.Equal(t, models.AuditActionAdmissionApprove, fx.audit.entries[0].Action)
}

func TestAdmissionServiceApproveTwiceIsConflictWithoutSideEffects(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)

	_, err := fx.svc.Approve(context.Background(), nil, app.ID)
	require.NoError(t, err)

	_, err = fx.svc.Approve(context.Background(), nil, app.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
	assert.Len(t, fx.repo.students, 1)
	assert.Len(t, fx.repo.feesOf(models.FeeKindTuition), 1)
}

func TestAdmissionServiceApproveWhileHeldIsRejected(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)
	fx.guard.held[admissionIdempotencyPrefix+app.ID] = true

	_, err := fx.svc.Approve(context.Background(), nil, app.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
	assert.Empty(t, fx.repo.students)
}

func TestAdmissionServiceRollNumbersIncrease(t *testing.T) {
	fx := newAdmissionFixture(t)
	first := fx.submit(t, "Aarav Sharma", models.GenderMale)
	second := fx.submit(t, "Meera Iyer", models.GenderFemale)

	d1, err := fx.svc.Approve(context.Background(), nil, first.ID)
	require.NoError(t, err)
	d2, err := fx.svc.Approve(context.Background(), nil, second.ID)
	require.NoError(t, err)
	assert.Equal(t, d1.Student.RollNumber+1, d2.Student.RollNumber)
}

func TestAdmissionServiceRejectKeepsRecordsUntouched(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)

	require.NoError(t, fx.svc.Reject(context.Background(), nil, app.ID))
	stored, err := fx.svc.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusRejected, stored.Status)
	assert.Empty(t, fx.repo.students)

	_, err = fx.svc.Approve(context.Background(), nil, app.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
}

func TestAdmissionServiceAllocateHostelApprovesPending(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Meera Iyer", models.GenderFemale)
	hostel, room := fx.addRoom(models.HostelTypeGirls, 2, 1)

	decision, err := fx.svc.AllocateHostel(context.Background(), nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	require.NoError(t, err)

	assert.Equal(t, models.AdmissionStatusApproved, decision.Application.Status)
	assert.Equal(t, 2, room.Occupied)
	require.NotNil(t, decision.HostelFee)
	assert.True(t, decision.HostelFee.Amount.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, decision.Student.ID, decision.HostelFee.StudentID)
	assert.Len(t, fx.repo.feesOf(models.FeeKindTuition), 1)
	assert.Len(t, fx.repo.feesOf(models.FeeKindHostel), 1)
	assert.Contains(t, fx.publisher.collections(), models.CollectionHostelRooms)
	assert.Contains(t, fx.publisher.collections(), models.CollectionHostelFees)
}

func TestAdmissionServiceAllocateHostelForApprovedApplicant(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)
	hostel, room := fx.addRoom(models.HostelTypeBoys, 4, 0)
	approved, err := fx.svc.Approve(context.Background(), nil, app.ID)
	require.NoError(t, err)

	decision, err := fx.svc.AllocateHostel(context.Background(), nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	require.NoError(t, err)
	assert.Equal(t, approved.Student.ID, decision.Student.ID)
	assert.Nil(t, decision.TuitionFee)
	assert.Len(t, fx.repo.students, 1)
	assert.Len(t, fx.repo.feesOf(models.FeeKindTuition), 1)

	_, err = fx.svc.AllocateHostel(context.Background(), nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, 1, room.Occupied)
}

func TestAdmissionServiceReallocationDoesNotBillTwice(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)
	hostel, room := fx.addRoom(models.HostelTypeBoys, 4, 0)
	ctx := context.Background()

	first, err := fx.svc.AllocateHostel(ctx, nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	require.NoError(t, err)
	require.NotNil(t, first.HostelFee)

	delete(fx.repo.housed, first.Student.ID)
	room.Occupied--

	second, err := fx.svc.AllocateHostel(ctx, nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	require.NoError(t, err)
	assert.Nil(t, second.HostelFee)
	assert.Len(t, fx.repo.feesOf(models.FeeKindHostel), 1)

	hostelFeeEvents := 0
	for _, c := range fx.publisher.collections() {
		if c == models.CollectionHostelFees {
			hostelFeeEvents++
		}
	}
	assert.Equal(t, 1, hostelFeeEvents)
}

func TestAdmissionServiceAllocateHostelFullRoom(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)
	hostel, room := fx.addRoom(models.HostelTypeBoys, 2, 2)

	_, err := fx.svc.AllocateHostel(context.Background(), nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	assert.ErrorIs(t, err, appErrors.ErrNoCapacity)
	assert.Empty(t, fx.repo.students)
	assert.Empty(t, fx.repo.fees)

	stored, err := fx.svc.Get(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdmissionStatusPending, stored.Status)
}

func TestAdmissionServiceAllocateHostelRequiresBothIDs(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)

	_, err := fx.svc.AllocateHostel(context.Background(), nil, app.ID, dto.HostelAllocationRequest{HostelID: "h"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, "all fields required", appErr.Message)
	assert.Contains(t, appErr.Fields, "roomId")
}

func TestAdmissionServiceAllocateHostelRejectsWrongCategory(t *testing.T) {
	fx := newAdmissionFixture(t)
	app := fx.submit(t, "Aarav Sharma", models.GenderMale)
	hostel, room := fx.addRoom(models.HostelTypeGirls, 2, 0)

	_, err := fx.svc.AllocateHostel(context.Background(), nil, app.ID, dto.HostelAllocationRequest{HostelID: hostel.ID, RoomID: room.ID})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, 0, room.Occupied)
}

func TestAdmissionServiceListDefaultsToPending(t *testing.T) {
	fx := newAdmissionFixture(t)
	pending := fx.submit(t, "Aarav Sharma", models.GenderMale)
	approved := fx.submit(t, "Meera Iyer", models.GenderFemale)
	_, err := fx.svc.Approve(context.Background(), nil, approved.ID)
	require.NoError(t, err)

	apps, err := fx.svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, pending.ID, apps[0].ID)

	all, err := fx.svc.List(context.Background(), "all")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = fx.svc.List(context.Background(), "Maybe")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAdmissionServiceUpsertStat(t *testing.T) {
	fx := newAdmissionFixture(t)

	stat, err := fx.svc.UpsertStat(context.Background(), dto.AdmissionStatRequest{Month: "2024-05", Admitted: 40, Capacity: 50})
	require.NoError(t, err)
	assert.Equal(t, "2024-05", stat.Month)

	stats, hit, err := fx.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, stats, 1)

	_, err = fx.svc.UpsertStat(context.Background(), dto.AdmissionStatRequest{Month: "May 2024"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
