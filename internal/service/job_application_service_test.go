package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type fakeJobApplicationRepo struct {
	apps     map[string]*models.JobApplication
	teachers []models.Teacher
	seq      int
}

func newFakeJobApplicationRepo() *fakeJobApplicationRepo {
	return &fakeJobApplicationRepo{apps: map[string]*models.JobApplication{}}
}

func (f *fakeJobApplicationRepo) Create(ctx context.Context, app *models.JobApplication) error {
	f.seq++
	app.ID = fmt.Sprintf("job-%d", f.seq)
	copy := *app
	f.apps[app.ID] = &copy
	return nil
}

func (f *fakeJobApplicationRepo) List(ctx context.Context, status models.JobApplicationStatus) ([]models.JobApplication, error) {
	var out []models.JobApplication
	for _, app := range f.apps {
		if status == "" || app.Status == status {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (f *fakeJobApplicationRepo) FindByID(ctx context.Context, id string) (*models.JobApplication, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *app
	return &copy, nil
}

func (f *fakeJobApplicationRepo) Accept(ctx context.Context, id string) (*models.JobApplication, *models.Teacher, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "job application not found")
	}
	if app.Status != models.JobApplicationPending {
		return nil, nil, appErrors.Clone(appErrors.ErrAlreadyProcessed, "job application already processed")
	}
	teacher := models.Teacher{ID: fmt.Sprintf("tch-%d", len(f.teachers)+1), Name: app.FullName, Subject: app.Subject, Email: app.Email}
	f.teachers = append(f.teachers, teacher)
	app.Status = models.JobApplicationAccepted
	app.TeacherID = &teacher.ID
	copy := *app
	return &copy, &teacher, nil
}

func (f *fakeJobApplicationRepo) Reject(ctx context.Context, id string) error {
	app, ok := f.apps[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "job application not found")
	}
	if app.Status != models.JobApplicationPending {
		return appErrors.Clone(appErrors.ErrAlreadyProcessed, "job application already processed")
	}
	app.Status = models.JobApplicationRejected
	return nil
}

func newTestJobApplicationService() (*JobApplicationService, *fakeJobApplicationRepo, *recordingPublisher, *fakeAuditRecorder) {
	repo := newFakeJobApplicationRepo()
	pub := &recordingPublisher{}
	audit := &fakeAuditRecorder{}
	svc := NewJobApplicationService(repo, audit, nil, NewChangeNotifier(pub, nil, zap.NewNop()), nil, zap.NewNop())
	return svc, repo, pub, audit
}

func validJobApplication() dto.JobApplicationRequest {
	return dto.JobApplicationRequest{
		FullName:   "  Priya Nair ",
		Email:      "priya@example.com",
		Phone:      "+91 98765 43210",
		Subject:    "Physics",
		Experience: 6,
		Resume:     strings.Repeat("Taught senior physics for six years. ", 3),
	}
}

func TestJobApplicationSubmit(t *testing.T) {
	svc, _, pub, _ := newTestJobApplicationService()

	app, err := svc.Submit(context.Background(), validJobApplication())
	require.NoError(t, err)
	assert.Equal(t, "Priya Nair", app.FullName)
	assert.Equal(t, models.JobApplicationPending, app.Status)
	assert.False(t, app.Date.IsZero())
	assert.Equal(t, []string{models.CollectionJobApplications}, pub.collections())
}

func TestJobApplicationSubmitValidation(t *testing.T) {
	svc, repo, _, _ := newTestJobApplicationService()

	shortPhone := validJobApplication()
	shortPhone.Phone = "12-345"
	_, err := svc.Submit(context.Background(), shortPhone)
	require.ErrorIs(t, err, appErrors.ErrValidation)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "phone")

	shortResume := validJobApplication()
	shortResume.Resume = "too short"
	_, err = svc.Submit(context.Background(), shortResume)
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "resume")

	badEmail := validJobApplication()
	badEmail.Email = "not-an-email"
	_, err = svc.Submit(context.Background(), badEmail)
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "email")

	assert.Empty(t, repo.apps)
}

func TestJobApplicationAcceptCreatesOneTeacher(t *testing.T) {
	svc, repo, pub, audit := newTestJobApplicationService()
	ctx := context.Background()
	app, err := svc.Submit(ctx, validJobApplication())
	require.NoError(t, err)
	admin := &models.Session{AccountID: "acc-admin", Role: models.RoleAdmin}

	decision, err := svc.Accept(ctx, admin, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobApplicationAccepted, decision.Application.Status)
	assert.Equal(t, "Priya Nair", decision.Teacher.Name)
	assert.Equal(t, "Physics", decision.Teacher.Subject)
	assert.Contains(t, pub.collections(), models.CollectionTeachers)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionJobAccept, audit.entries[0].Action)

	_, err = svc.Accept(ctx, admin, app.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
	_, err = svc.Reject(ctx, admin, app.ID)
	assert.ErrorIs(t, err, appErrors.ErrAlreadyProcessed)
	assert.Len(t, repo.teachers, 1)
}

func TestJobApplicationReject(t *testing.T) {
	svc, repo, _, audit := newTestJobApplicationService()
	ctx := context.Background()
	app, err := svc.Submit(ctx, validJobApplication())
	require.NoError(t, err)

	rejected, err := svc.Reject(ctx, nil, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobApplicationRejected, rejected.Status)
	assert.Empty(t, repo.teachers)
	require.Len(t, audit.entries, 1)
	assert.Nil(t, audit.entries[0].UserID)

	_, err = svc.Accept(ctx, nil, "job-404")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestJobApplicationList(t *testing.T) {
	svc, _, _, _ := newTestJobApplicationService()
	ctx := context.Background()
	first, err := svc.Submit(ctx, validJobApplication())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, validJobApplication())
	require.NoError(t, err)
	_, err = svc.Reject(ctx, nil, first.ID)
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.List(ctx, "Pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = svc.List(ctx, "Hired")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCountDigits(t *testing.T) {
	assert.Equal(t, 10, countDigits("(987) 654-3210"))
	assert.Equal(t, 0, countDigits("call me"))
}
