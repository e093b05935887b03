package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type fakeAuthService struct {
	lastLogin   models.LoginRequest
	loginErr    error
	loggedOut   *models.Session
	changed     models.ChangePasswordRequest
	changeErr   error
	logoutCalls int
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "token-1", ExpiresIn: 3600, Session: models.Session{UserID: req.UserID, Role: req.Role}}, nil
}

func (f *fakeAuthService) Logout(_ context.Context, session *models.Session, _, _ string) error {
	f.logoutCalls++
	f.loggedOut = session
	return nil
}

func (f *fakeAuthService) ChangePassword(_ context.Context, _ *models.Session, req models.ChangePasswordRequest) error {
	f.changed = req
	return f.changeErr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &fakeAuthService{}
	handler := NewAuthHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/auth/login", nil)
	c.Request = jsonRequest(http.MethodPost, "/auth/login", `{"role":"Teacher","user_id":"TCH-PRIYA","password":"secret"}`)
	c.Request.Header.Set("User-Agent", "test-agent")

	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleTeacher, svc.lastLogin.Role)
	assert.Equal(t, "TCH-PRIYA", svc.lastLogin.UserID)
	assert.Equal(t, "test-agent", svc.lastLogin.UserAgent)
	assert.NotEmpty(t, svc.lastLogin.IP)

	var res models.LoginResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &res))
	assert.Equal(t, "token-1", res.AccessToken)
}

func TestAuthHandlerLoginRejectsMalformedBody(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthService{})
	c, rec := newTestContext(http.MethodPost, "/auth/login", nil)
	c.Request = jsonRequest(http.MethodPost, "/auth/login", `{"role":`)

	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthService{loginErr: appErrors.ErrInvalidCredentials})
	c, rec := newTestContext(http.MethodPost, "/auth/login", nil)
	c.Request = jsonRequest(http.MethodPost, "/auth/login", `{"role":"Admin","user_id":"ADMIN","password":"wrong"}`)

	handler.Login(c)

	assert.Equal(t, appErrors.ErrInvalidCredentials.Status, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestAuthHandlerLogoutAndMe(t *testing.T) {
	svc := &fakeAuthService{}
	handler := NewAuthHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/auth/logout", nil)
	handler.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, svc.logoutCalls)

	session := adminSession()
	c, rec = newTestContext(http.MethodPost, "/auth/logout", session)
	handler.Logout(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Same(t, session, svc.loggedOut)

	c, rec = newTestContext(http.MethodGet, "/auth/me", session)
	handler.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.Session
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &me))
	assert.Equal(t, "ADMIN", me.UserID)
}

func TestAuthHandlerChangePassword(t *testing.T) {
	svc := &fakeAuthService{}
	handler := NewAuthHandler(svc)
	c, rec := newTestContext(http.MethodPost, "/auth/change-password", adminSession())
	c.Request = jsonRequest(http.MethodPost, "/auth/change-password", `{"old_password":"old","new_password":"newpass"}`)

	handler.ChangePassword(c)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "newpass", svc.changed.NewPassword)
}
