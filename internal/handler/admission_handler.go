package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/middleware"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

type admissionService interface {
	Submit(ctx context.Context, req dto.AdmissionRequest) (*models.AdmissionApplication, error)
	List(ctx context.Context, status string) ([]models.AdmissionApplication, error)
	Get(ctx context.Context, id string) (*models.AdmissionApplication, error)
	Approve(ctx context.Context, actor *models.Session, id string) (*dto.AdmissionDecision, error)
	Reject(ctx context.Context, actor *models.Session, id string) error
	AllocateHostel(ctx context.Context, actor *models.Session, id string, req dto.HostelAllocationRequest) (*dto.AdmissionDecision, error)
	Stats(ctx context.Context) ([]models.AdmissionStat, bool, error)
	UpsertStat(ctx context.Context, req dto.AdmissionStatRequest) (*models.AdmissionStat, error)
}

// AdmissionHandler exposes the admission workflow.
type AdmissionHandler struct {
	admissions admissionService
}

// NewAdmissionHandler constructs AdmissionHandler.
func NewAdmissionHandler(admissions admissionService) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions}
}

// Submit godoc
// @Summary Submit admission application
// @Description Public admission form. Resubmitting the same form within the idempotency window returns the first application.
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.AdmissionRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admissions/applications [post]
func (h *AdmissionHandler) Submit(c *gin.Context) {
	var req dto.AdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	app, err := h.admissions.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List admission applications
// @Tags Admissions
// @Produce json
// @Param status query string false "Pending (default), Approved, Rejected or all"
// @Success 200 {object} response.Envelope
// @Router /admissions/applications [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	apps, err := h.admissions.List(c.Request.Context(), strings.TrimSpace(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Get godoc
// @Summary Get admission application
// @Tags Admissions
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admissions/applications/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	app, err := h.admissions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Approve godoc
// @Summary Approve admission
// @Description Creates the student record and tuition fee, then marks the application Approved
// @Tags Admissions
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/applications/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) {
	decision, err := h.admissions.Approve(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Reject godoc
// @Summary Reject admission
// @Tags Admissions
// @Param id path string true "Application ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /admissions/applications/{id}/reject [post]
func (h *AdmissionHandler) Reject(c *gin.Context) {
	if err := h.admissions.Reject(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AllocateHostel godoc
// @Summary Approve admission with hostel
// @Description Approves the application and places the new student in a room of an eligible hostel
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.HostelAllocationRequest true "Hostel and room"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/applications/{id}/hostel [post]
func (h *AdmissionHandler) AllocateHostel(c *gin.Context) {
	var req dto.HostelAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	decision, err := h.admissions.AllocateHostel(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Stats godoc
// @Summary Monthly admission stats
// @Tags Admissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admissions/stats [get]
func (h *AdmissionHandler) Stats(c *gin.Context) {
	stats, hit, err := h.admissions.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, stats, nil, middleware.ExtractMeta(c))
}

// UpsertStat godoc
// @Summary Record monthly admission stat
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.AdmissionStatRequest true "Stat"
// @Success 200 {object} response.Envelope
// @Router /admissions/stats [put]
func (h *AdmissionHandler) UpsertStat(c *gin.Context) {
	var req dto.AdmissionStatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	stat, err := h.admissions.UpsertStat(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stat, nil)
}
