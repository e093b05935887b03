package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type stubValidator map[string]*models.Session

func (s stubValidator) ValidateToken(_ context.Context, token string) (*models.Session, error) {
	if session, ok := s[token]; ok {
		return session, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
}

type auditSink struct{ entries []*models.AuditLog }

func (a *auditSink) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func sessions() stubValidator {
	stu := "stu-1"
	return stubValidator{
		"admin-token":   {AccountID: "acc-admin", Role: models.RoleAdmin},
		"student-token": {AccountID: "acc-stu-1", Role: models.RoleStudent, StudentID: &stu},
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func serve(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAttachesSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWT(sessions()), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentSession(c).AccountID)
	})

	rec := serve(router, http.MethodGet, "/me", "admin-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-admin", rec.Body.String())

	rec = serve(router, http.MethodGet, "/me?token=student-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-stu-1", rec.Body.String())

	rec = serve(router, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/me", "logged-out")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(JWT(sessions()))
	router.GET("/ledger", RequireRoles(models.RoleAdmin, models.RoleFinance), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/students/:id", RequireRolesOrSelf("id", models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/ledger", "admin-token").Code)

	rec := serve(router, http.MethodGet, "/ledger", "student-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, rec))

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/students/stu-1", "student-token").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/students/stu-2", "student-token").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodGet, "/students/stu-2", "admin-token").Code)
}

func TestRequireRolesWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ledger", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/ledger", "").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &auditSink{}
	router := gin.New()
	router.Use(JWT(sessions()))
	router.POST("/applications/:id/approve", Audit(sink, nil, "ADMISSION_APPROVE", "admissionApplications"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/applications/:id/reject", Audit(sink, nil, "ADMISSION_REJECT", "admissionApplications"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	serve(router, http.MethodPost, "/applications/app-1/approve", "admin-token")
	serve(router, http.MethodPost, "/applications/app-1/reject", "admin-token")

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, "ADMISSION_APPROVE", entry.Action)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "app-1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "acc-admin", *entry.UserID)
	assert.Contains(t, string(entry.NewValues), `"status":200`)
}

func TestRateLimiterBlocksAfterLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryRateStore()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	limiter := NewRateLimiter(store, "login", 2, time.Minute, nil)
	router := gin.New()
	router.POST("/auth/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/auth/login", "").Code)
	rec := serve(router, http.MethodPost, "/auth/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = serve(router, http.MethodPost, "/auth/login", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, appErrors.ErrRateLimited.Code, errorCode(t, rec))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/auth/login", "").Code)
}

func TestRateLimiterDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(NewMemoryRateStore(), "login", 0, time.Minute, nil)
	router := gin.New()
	router.POST("/auth/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/auth/login", "").Code)
	}
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	router := gin.New()
	router.Use(WithResponseMeta())
	router.GET("/dashboard", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	rec := serve(router, http.MethodGet, "/dashboard", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, "processing_time_ms")
}

type observerFunc func(method, path string, status int)

func (f observerFunc) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	f(method, path, status)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen []string
	router := gin.New()
	router.Use(Metrics(observerFunc(func(method, path string, status int) {
		seen = append(seen, method+" "+path)
	})))
	router.GET("/students/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(router, http.MethodGet, "/students/stu-9", "")
	serve(router, http.MethodGet, "/nowhere", "")
	assert.Equal(t, []string{"GET /students/:id", "GET unmatched"}, seen)
}
