package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type dashboardCounter interface {
	Count(ctx context.Context) (int, error)
}

type admissionCounter interface {
	CountByStatus(ctx context.Context, status models.AdmissionStatus) (int, error)
}

type jobApplicationCounter interface {
	CountByStatus(ctx context.Context, status models.JobApplicationStatus) (int, error)
}

type occupancyReader interface {
	Occupancy(ctx context.Context) ([]repository.HostelOccupancy, error)
}

type admissionTrendReader interface {
	Stats(ctx context.Context) ([]models.AdmissionStat, bool, error)
}

type rosterReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Rosters(ctx context.Context) ([]models.ClassRoster, error)
}

type dashboardFeeReader interface {
	List(ctx context.Context, kind models.FeeKind, filter models.FeeFilter) ([]models.Fee, error)
}

type dashboardAttendanceReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error)
}

type dashboardRoomReader interface {
	FindOccupancy(ctx context.Context, studentID string) (*models.Occupant, error)
}

type dashboardHomeworkReader interface {
	List(ctx context.Context, filter models.HomeworkFilter) ([]models.Homework, error)
}

type dashboardNoticeReader interface {
	List(ctx context.Context, limit int) ([]models.Notice, error)
}

// DashboardServiceConfig tunes dashboard composition.
type DashboardServiceConfig struct {
	NoticeLimit int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Students        dashboardCounter
	Rosters         rosterReader
	Teachers        dashboardCounter
	Admissions      admissionCounter
	JobApplications jobApplicationCounter
	Hostels         occupancyReader
	Trend           admissionTrendReader
	Fees            dashboardFeeReader
	Attendance      dashboardAttendanceReader
	Rooms           dashboardRoomReader
	Homework        dashboardHomeworkReader
	Notices         dashboardNoticeReader
	Logger          *zap.Logger
	Config          DashboardServiceConfig
}

type dashboardBuilder func(ctx context.Context, session *models.Session) (*dto.DashboardView, bool, error)

// DashboardService maps every role to exactly one view builder.
type DashboardService struct {
	p        DashboardServiceParams
	logger   *zap.Logger
	now      func() time.Time
	builders map[models.Role]dashboardBuilder
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	if params.Config.NoticeLimit <= 0 {
		params.Config.NoticeLimit = 5
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DashboardService{p: params, logger: logger, now: time.Now}
	s.builders = map[models.Role]dashboardBuilder{
		models.RoleAdmin:   s.admin,
		models.RoleTeacher: s.teacher,
		models.RoleStudent: s.student,
		models.RoleFinance: s.finance,
	}
	return s
}

// View returns the dashboard of the session's role. The boolean reports whether any part was
// served from cache.
func (s *DashboardService) View(ctx context.Context, session *models.Session) (*dto.DashboardView, bool, error) {
	if session == nil {
		return nil, false, appErrors.ErrUnauthorized
	}
	build, ok := s.builders[session.Role]
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("no dashboard for role %q", session.Role))
	}
	return build(ctx, session)
}

func (s *DashboardService) admin(ctx context.Context, _ *models.Session) (*dto.DashboardView, bool, error) {
	var (
		out dto.AdminDashboard
		err error
	)
	if out.Counts.Students, err = s.p.Students.Count(ctx); err != nil {
		return nil, false, translateErr(err, "", "failed to count students")
	}
	if out.Counts.Teachers, err = s.p.Teachers.Count(ctx); err != nil {
		return nil, false, translateErr(err, "", "failed to count teachers")
	}
	if out.Counts.PendingAdmissions, err = s.p.Admissions.CountByStatus(ctx, models.AdmissionStatusPending); err != nil {
		return nil, false, translateErr(err, "", "failed to count admissions")
	}
	if out.Counts.PendingJobApplications, err = s.p.JobApplications.CountByStatus(ctx, models.JobApplicationPending); err != nil {
		return nil, false, translateErr(err, "", "failed to count job applications")
	}

	occupancy, err := s.p.Hostels.Occupancy(ctx)
	if err != nil {
		return nil, false, translateErr(err, "", "failed to load hostel occupancy")
	}
	out.Occupancy = make([]dto.HostelOccupancy, 0, len(occupancy))
	for _, o := range occupancy {
		available := o.Capacity - o.Occupied
		if available < 0 {
			available = 0
		}
		out.Occupancy = append(out.Occupancy, dto.HostelOccupancy{
			HostelID: o.HostelID, HostelName: o.HostelName, Type: o.Type,
			Capacity: o.Capacity, Occupied: o.Occupied, Available: available,
		})
	}

	trend, hit, err := s.p.Trend.Stats(ctx)
	if err != nil {
		return nil, false, err
	}
	out.AdmissionTrend = trend

	if out.Notices, err = s.notices(ctx); err != nil {
		return nil, false, err
	}
	return &dto.DashboardView{Role: models.RoleAdmin, Admin: &out}, hit, nil
}

func (s *DashboardService) teacher(ctx context.Context, _ *models.Session) (*dto.DashboardView, bool, error) {
	var (
		out dto.TeacherDashboard
		err error
	)
	if out.Homework, err = s.p.Homework.List(ctx, models.HomeworkFilter{}); err != nil {
		return nil, false, translateErr(err, "", "failed to list homework")
	}
	if out.Rosters, err = s.p.Rosters.Rosters(ctx); err != nil {
		return nil, false, translateErr(err, "", "failed to load class rosters")
	}
	if out.Notices, err = s.notices(ctx); err != nil {
		return nil, false, err
	}
	return &dto.DashboardView{Role: models.RoleTeacher, Teacher: &out}, false, nil
}

func (s *DashboardService) student(ctx context.Context, session *models.Session) (*dto.DashboardView, bool, error) {
	if session.StudentID == nil {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "account is not linked to a student")
	}
	studentID := *session.StudentID
	profile, err := s.p.Rosters.FindByID(ctx, studentID)
	if err != nil {
		return nil, false, translateErr(err, "student not found", "failed to load student")
	}
	out := dto.StudentDashboard{Profile: profile}
	now := s.now()
	for _, kind := range []models.FeeKind{models.FeeKindTuition, models.FeeKindHostel} {
		fees, err := s.p.Fees.List(ctx, kind, models.FeeFilter{StudentID: studentID})
		if err != nil {
			return nil, false, translateErr(err, "", "failed to load fees")
		}
		if len(fees) == 0 {
			continue
		}
		view := &dto.FeeView{Fee: fees[0], EffectiveStatus: fees[0].EffectiveStatus(now)}
		if kind == models.FeeKindTuition {
			out.TuitionFee = view
		} else {
			out.HostelFee = view
		}
	}

	records, err := s.p.Attendance.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, false, translateErr(err, "", "failed to load attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	out.Attendance = models.SummarizeAttendance(studentID, records)

	room, err := s.p.Rooms.FindOccupancy(ctx, studentID)
	switch {
	case err == nil:
		out.Room = room
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, translateErr(err, "", "failed to load room")
	}

	if out.Homework, err = s.p.Homework.List(ctx, models.HomeworkFilter{Class: profile.Class, Section: profile.Section}); err != nil {
		return nil, false, translateErr(err, "", "failed to list homework")
	}
	if out.Notices, err = s.notices(ctx); err != nil {
		return nil, false, err
	}
	return &dto.DashboardView{Role: models.RoleStudent, Student: &out}, false, nil
}

// finance is never cached; fee summaries are recomputed on every request.
func (s *DashboardService) finance(ctx context.Context, _ *models.Session) (*dto.DashboardView, bool, error) {
	now := s.now()
	out := dto.FinanceDashboard{Overdue: []dto.FeeView{}}
	for _, kind := range []models.FeeKind{models.FeeKindTuition, models.FeeKindHostel} {
		fees, err := s.p.Fees.List(ctx, kind, models.FeeFilter{})
		if err != nil {
			return nil, false, translateErr(err, "", "failed to load fees")
		}
		summary := ComputeLedger(kind, fees, now)
		if kind == models.FeeKindTuition {
			out.Tuition = summary
		} else {
			out.Hostel = summary
		}
		for _, fee := range fees {
			if status := fee.EffectiveStatus(now); status == models.FeeStatusOverdue {
				out.Overdue = append(out.Overdue, dto.FeeView{Fee: fee, EffectiveStatus: status})
			}
		}
	}
	return &dto.DashboardView{Role: models.RoleFinance, Finance: &out}, false, nil
}

func (s *DashboardService) notices(ctx context.Context) ([]models.Notice, error) {
	notices, err := s.p.Notices.List(ctx, s.p.Config.NoticeLimit)
	if err != nil {
		return nil, translateErr(err, "", "failed to list notices")
	}
	if notices == nil {
		notices = []models.Notice{}
	}
	return notices, nil
}
