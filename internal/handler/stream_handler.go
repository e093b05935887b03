package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/service"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

type streamService interface {
	Subscribe(ctx context.Context, session *models.Session, collection string) (*service.Stream, error)
	Collections(role models.Role) []string
}

// StreamMessage is one frame sent to a subscriber. The first frame of a connection is the
// snapshot; every later frame carries a change event.
type StreamMessage struct {
	Type       string              `json:"type"`
	Collection string              `json:"collection"`
	Data       interface{}         `json:"data,omitempty"`
	Event      *models.ChangeEvent `json:"event,omitempty"`
}

// StreamHandler pushes collection snapshots and change events over WebSocket.
type StreamHandler struct {
	streams  streamService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler constructs StreamHandler. An empty origin list accepts every origin.
func NewStreamHandler(streams streamService, allowedOrigins []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{streams: streams, upgrader: buildUpgrader(allowedOrigins), logger: logger}
}

func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowedOrigins) == 0 || origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// Collections godoc
// @Summary Collections the caller may subscribe to
// @Tags Stream
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stream [get]
func (h *StreamHandler) Collections(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, h.streams.Collections(session.Role), nil)
}

// Subscribe godoc
// @Summary Live collection subscription
// @Description Upgrades to WebSocket. Sends a snapshot frame, then one frame per change. The token may be passed as the token query parameter.
// @Tags Stream
// @Param collection path string true "Collection name"
// @Success 101
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stream/{collection} [get]
func (h *StreamHandler) Subscribe(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	collection := c.Param("collection")
	stream, err := h.streams.Subscribe(ctx, sessionFromContext(c), collection)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer stream.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("collection", collection))
	if err := writeFrame(conn, StreamMessage{Type: "snapshot", Collection: collection, Data: stream.Snapshot}); err != nil {
		log.Debug("snapshot write failed", zap.Error(err))
		return
	}

	go h.readPump(conn, cancel)

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(streamWriteWait))
			return
		case event, ok := <-stream.Events:
			if !ok {
				return
			}
			ev := event
			if err := writeFrame(conn, StreamMessage{Type: "change", Collection: collection, Event: &ev}); err != nil {
				log.Debug("change write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed. Subscribers never
// send data.
func (h *StreamHandler) readPump(conn *websocket.Conn, done context.CancelFunc) {
	defer done()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, msg StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(msg)
}
