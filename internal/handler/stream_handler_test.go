package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/middleware"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	"github.com/noah-isme/sma-erp-api/internal/service"
)

func newStreamServer(t *testing.T, session *models.Session) (*httptest.Server, *repository.MemoryChangeFeed) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	feed := repository.NewMemoryChangeFeed(zap.NewNop())
	streams := service.NewStreamService(feed, nil, zap.NewNop())
	streams.Register(models.CollectionNotices, func(context.Context, *models.Session) (interface{}, error) {
		return []string{"welcome"}, nil
	}, models.Roles()...)
	streams.Register(models.CollectionFees, func(context.Context, *models.Session) (interface{}, error) {
		return []string{}, nil
	}, models.RoleAdmin, models.RoleFinance)

	handler := NewStreamHandler(streams, nil, zap.NewNop())
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextSessionKey, session)
		c.Next()
	})
	router.GET("/stream", handler.Collections)
	router.GET("/stream/:collection", handler.Subscribe)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, feed
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestStreamHandlerSendsSnapshotThenChanges(t *testing.T) {
	srv, feed := newStreamServer(t, studentSession("stu-1"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/stream/notices"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var snapshot StreamMessage
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "snapshot", snapshot.Type)
	assert.Equal(t, models.CollectionNotices, snapshot.Collection)
	assert.Equal(t, []interface{}{"welcome"}, snapshot.Data)

	require.NoError(t, feed.Publish(context.Background(), models.ChangeEvent{
		Collection: models.CollectionNotices, Type: models.ChangeAdded, ID: "ntc-7", At: time.Now(),
	}))

	var change StreamMessage
	require.NoError(t, conn.ReadJSON(&change))
	assert.Equal(t, "change", change.Type)
	require.NotNil(t, change.Event)
	assert.Equal(t, "ntc-7", change.Event.ID)
	assert.Equal(t, models.ChangeAdded, change.Event.Type)
}

func TestStreamHandlerRejectsForbiddenCollection(t *testing.T) {
	srv, _ := newStreamServer(t, studentSession("stu-1"))

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/stream/fees"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/stream/lockers"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamHandlerCollections(t *testing.T) {
	srv, _ := newStreamServer(t, &models.Session{UserID: "FIN", Role: models.RoleFinance})

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBuildUpgraderChecksOrigin(t *testing.T) {
	upgrader := buildUpgrader([]string{"https://school.example"})
	req := httptest.NewRequest(http.MethodGet, "/stream/notices", nil)

	req.Header.Set("Origin", "https://SCHOOL.example")
	assert.True(t, upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, upgrader.CheckOrigin(req))
	req.Header.Del("Origin")
	assert.True(t, upgrader.CheckOrigin(req))
}
