package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/middleware"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

type dashboardService interface {
	View(ctx context.Context, session *models.Session) (*dto.DashboardView, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// View godoc
// @Summary Role dashboard
// @Description Returns the view of the caller's role: Admin, Teacher, Student or Finance
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) View(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	session := sessionFromContext(c)
	if session == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	start := time.Now()
	view, cacheHit, err := h.service.View(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, view, nil, meta)
}
