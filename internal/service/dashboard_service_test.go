package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type fixedCounter struct {
	n   int
	err error
}

func (c fixedCounter) Count(context.Context) (int, error) { return c.n, c.err }

type admissionCounts map[models.AdmissionStatus]int

func (c admissionCounts) CountByStatus(_ context.Context, status models.AdmissionStatus) (int, error) {
	return c[status], nil
}

type jobApplicationCounts map[models.JobApplicationStatus]int

func (c jobApplicationCounts) CountByStatus(_ context.Context, status models.JobApplicationStatus) (int, error) {
	return c[status], nil
}

type occupancyStub []repository.HostelOccupancy

func (o occupancyStub) Occupancy(context.Context) ([]repository.HostelOccupancy, error) { return o, nil }

type roomStub map[string]models.Occupant

func (r roomStub) FindOccupancy(_ context.Context, studentID string) (*models.Occupant, error) {
	occupant, ok := r[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &occupant, nil
}

type trendStub struct {
	stats []models.AdmissionStat
	hit   bool
}

func (t trendStub) Stats(context.Context) ([]models.AdmissionStat, bool, error) {
	return t.stats, t.hit, nil
}

type rosterStub struct {
	*mockStudentRepo
	rosters []models.ClassRoster
}

func (r rosterStub) Rosters(context.Context) ([]models.ClassRoster, error) { return r.rosters, nil }

func newTestDashboardService(t *testing.T) *DashboardService {
	t.Helper()
	fees := newFakeFeeRepo(append(sampleFees(), models.Fee{
		ID: "hf-1", Kind: models.FeeKindHostel, StudentID: "stu-1", Amount: decimal.NewFromInt(2500),
		Status: models.FeeStatusDue, DueDate: feeTestNow.AddDate(0, 0, 5),
	})...)
	attendance := newFakeAttendanceRepo()
	require.NoError(t, attendance.Upsert(context.Background(), []models.AttendanceRecord{
		{StudentID: "stu-1", Date: feeTestNow.AddDate(0, 0, -2), Status: models.AttendancePresent},
		{StudentID: "stu-1", Date: feeTestNow.AddDate(0, 0, -1), Status: models.AttendanceAbsent},
	}))
	homework := &fakeHomeworkRepo{items: []models.Homework{
		{ID: "hw-1", Class: "Grade 5", Section: "A", Title: "Fractions"},
		{ID: "hw-2", Class: "Grade 6", Section: "B", Title: "Empires"},
	}}
	notices := &fakeNoticeRepo{notices: []models.Notice{{ID: "ntc-1", Title: "Sports Day"}}}

	svc := NewDashboardService(DashboardServiceParams{
		Students:        fixedCounter{n: 3},
		Rosters:         rosterStub{mockStudentRepo: classroomStudents(), rosters: []models.ClassRoster{{Class: "Grade 5", Section: "A", Students: 2}}},
		Teachers:        fixedCounter{n: 2},
		Admissions:      admissionCounts{models.AdmissionStatusPending: 4},
		JobApplications: jobApplicationCounts{models.JobApplicationPending: 1},
		Hostels: occupancyStub{
			{HostelID: "h-1", HostelName: "North Wing", Capacity: 10, Occupied: 7},
			{HostelID: "h-2", HostelName: "South Wing", Capacity: 2, Occupied: 3},
		},
		Trend:      trendStub{stats: []models.AdmissionStat{{Month: "Jan", Admitted: 10, Capacity: 40}}, hit: true},
		Fees:       fees,
		Attendance: attendance,
		Rooms:      roomStub{"stu-1": {RoomID: "r-1", RoomNumber: "101", HostelID: "h-1", HostelName: "North Wing", StudentID: "stu-1"}},
		Homework:   homework,
		Notices:    notices,
	})
	svc.now = func() time.Time { return feeTestNow }
	return svc
}

func TestDashboardServiceAdmin(t *testing.T) {
	svc := newTestDashboardService(t)

	view, cached, err := svc.View(context.Background(), &models.Session{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, cached)
	require.NotNil(t, view.Admin)
	assert.Nil(t, view.Student)
	assert.Equal(t, 3, view.Admin.Counts.Students)
	assert.Equal(t, 2, view.Admin.Counts.Teachers)
	assert.Equal(t, 4, view.Admin.Counts.PendingAdmissions)
	assert.Equal(t, 1, view.Admin.Counts.PendingJobApplications)
	require.Len(t, view.Admin.Occupancy, 2)
	assert.Equal(t, 3, view.Admin.Occupancy[0].Available)
	assert.Equal(t, 0, view.Admin.Occupancy[1].Available)
	assert.Len(t, view.Admin.AdmissionTrend, 1)
	assert.Len(t, view.Admin.Notices, 1)
}

func TestDashboardServiceTeacher(t *testing.T) {
	svc := newTestDashboardService(t)

	view, cached, err := svc.View(context.Background(), teacherSession())
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, view.Teacher)
	assert.Len(t, view.Teacher.Homework, 2)
	assert.Len(t, view.Teacher.Rosters, 1)
}

func TestDashboardServiceStudentSeesOwnData(t *testing.T) {
	svc := newTestDashboardService(t)

	view, _, err := svc.View(context.Background(), studentSession("stu-1"))
	require.NoError(t, err)
	require.NotNil(t, view.Student)
	assert.Equal(t, "Aarav", view.Student.Profile.Name)
	require.NotNil(t, view.Student.TuitionFee)
	assert.Equal(t, "f-1", view.Student.TuitionFee.ID)
	require.NotNil(t, view.Student.HostelFee)
	assert.Equal(t, models.FeeStatusDue, view.Student.HostelFee.EffectiveStatus)
	assert.Equal(t, 1, view.Student.Attendance.Present)
	assert.InDelta(t, 50.0, view.Student.Attendance.Rate, 0.001)
	require.Len(t, view.Student.Homework, 1)
	assert.Equal(t, "Fractions", view.Student.Homework[0].Title)
	require.NotNil(t, view.Student.Room)
	assert.Equal(t, "101", view.Student.Room.RoomNumber)
	assert.Equal(t, "North Wing", view.Student.Room.HostelName)

	unhoused, _, err := svc.View(context.Background(), studentSession("stu-2"))
	require.NoError(t, err)
	assert.Nil(t, unhoused.Student.Room)

	unlinked := &models.Session{Role: models.RoleStudent}
	_, _, err = svc.View(context.Background(), unlinked)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestDashboardServiceFinance(t *testing.T) {
	svc := newTestDashboardService(t)

	view, cached, err := svc.View(context.Background(), &models.Session{Role: models.RoleFinance})
	require.NoError(t, err)
	assert.False(t, cached)
	require.NotNil(t, view.Finance)
	assert.Equal(t, 2, view.Finance.Tuition.FeeCount)
	assert.Equal(t, 1, view.Finance.Tuition.OverdueCount)
	assert.Equal(t, 1, view.Finance.Hostel.FeeCount)
	require.Len(t, view.Finance.Overdue, 1)
	assert.Equal(t, "f-2", view.Finance.Overdue[0].ID)
}

func TestDashboardServiceRejectsUnknownRoles(t *testing.T) {
	svc := newTestDashboardService(t)

	_, _, err := svc.View(context.Background(), nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, _, err = svc.View(context.Background(), &models.Session{Role: models.Role("Janitor")})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestDashboardServicePropagatesCountErrors(t *testing.T) {
	svc := newTestDashboardService(t)
	svc.p.Students = fixedCounter{err: errors.New("db down")}

	_, _, err := svc.View(context.Background(), &models.Session{Role: models.RoleAdmin})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
