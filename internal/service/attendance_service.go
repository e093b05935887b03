package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/validation"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, records []models.AttendanceRecord) error
	ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceRecord, error)
	All(ctx context.Context) ([]models.AttendanceRecord, error)
}

// AttendanceService logs daily attendance per class section and reports per-student rates.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentReader
	notifier  *ChangeNotifier
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, students studentReader, notifier *ChangeNotifier, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, students: students, notifier: notifier, validator: validate, logger: logger}
}

// Log writes one record per entry for the given date. Every student must belong to the
// requested class section. Re-logging a date overwrites the earlier marks.
func (s *AttendanceService) Log(ctx context.Context, session *models.Session, req dto.AttendanceLogRequest) (*dto.AttendanceLogResult, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req.Class = strings.TrimSpace(req.Class)
	req.Section = strings.ToUpper(strings.TrimSpace(req.Section))
	if err := validateStruct(s.validator, req, "invalid attendance log"); err != nil {
		return nil, err
	}
	date, _ := time.Parse("2006-01-02", req.Date)

	holiday := make(map[string]struct{}, len(req.Holiday))
	for _, id := range req.Holiday {
		holiday[id] = struct{}{}
	}

	records := make([]models.AttendanceRecord, 0, len(req.Entries))
	for studentID, present := range req.Entries {
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			return nil, translateErr(err, fmt.Sprintf("student %s not found", studentID), "failed to load student")
		}
		if student.Class != req.Class || !strings.EqualFold(student.Section, req.Section) {
			return nil, fieldError("invalid attendance log", "entries", fmt.Sprintf("student %s is not in class %s-%s", studentID, req.Class, req.Section))
		}
		status := models.AttendanceAbsent
		if present {
			status = models.AttendancePresent
		}
		if _, ok := holiday[studentID]; ok {
			status = models.AttendanceHoliday
		}
		records = append(records, models.AttendanceRecord{StudentID: studentID, Date: date, Status: status, MarkedBy: session.AccountID})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StudentID < records[j].StudentID })

	if err := s.repo.Upsert(ctx, records); err != nil {
		return nil, translateErr(err, "", "failed to log attendance")
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.StudentID)
	}
	s.notifier.Notify(ctx, models.CollectionStudentAttendance, models.ChangeModified, ids...)
	s.logger.Info("attendance logged", zap.String("class", req.Class), zap.String("section", req.Section), zap.String("date", req.Date), zap.Int("records", len(records)))
	return &dto.AttendanceLogResult{Date: date, Recorded: len(records), Records: records}, nil
}

// Get returns a student's records and attendance rate. Students can only read their own.
func (s *AttendanceService) Get(ctx context.Context, session *models.Session, studentID string) (*models.StudentAttendance, error) {
	if err := ensureStudentSelf(session, studentID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, translateErr(err, "", "failed to load attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	summary := models.SummarizeAttendance(studentID, records)
	return &summary, nil
}

// All summarises attendance for every student with at least one mark, ordered by student id.
// Students only ever see their own record through Get.
func (s *AttendanceService) All(ctx context.Context, session *models.Session) ([]models.StudentAttendance, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if session.Role == models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students can only access their own attendance")
	}
	records, err := s.repo.All(ctx)
	if err != nil {
		return nil, translateErr(err, "", "failed to load attendance")
	}
	byStudent := make(map[string][]models.AttendanceRecord)
	for _, r := range records {
		byStudent[r.StudentID] = append(byStudent[r.StudentID], r)
	}
	ids := make([]string, 0, len(byStudent))
	for id := range byStudent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.StudentAttendance, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.SummarizeAttendance(id, byStudent[id]))
	}
	return out, nil
}
