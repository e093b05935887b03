package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/service"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

// JobApplicationHandler exposes the careers workflow.
type JobApplicationHandler struct {
	applications *service.JobApplicationService
}

// NewJobApplicationHandler constructs JobApplicationHandler.
func NewJobApplicationHandler(applications *service.JobApplicationService) *JobApplicationHandler {
	return &JobApplicationHandler{applications: applications}
}

// Submit godoc
// @Summary Apply for a teaching position
// @Tags Careers
// @Accept json
// @Produce json
// @Param payload body dto.JobApplicationRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /careers/applications [post]
func (h *JobApplicationHandler) Submit(c *gin.Context) {
	var req dto.JobApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	app, err := h.applications.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List job applications
// @Tags Careers
// @Produce json
// @Param status query string false "Pending, Accepted or Rejected"
// @Success 200 {object} response.Envelope
// @Router /careers/applications [get]
func (h *JobApplicationHandler) List(c *gin.Context) {
	apps, err := h.applications.List(c.Request.Context(), strings.TrimSpace(c.Query("status")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Get godoc
// @Summary Get job application
// @Tags Careers
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /careers/applications/{id} [get]
func (h *JobApplicationHandler) Get(c *gin.Context) {
	app, err := h.applications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Accept godoc
// @Summary Accept job application
// @Description Creates the teacher record
// @Tags Careers
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /careers/applications/{id}/accept [post]
func (h *JobApplicationHandler) Accept(c *gin.Context) {
	decision, err := h.applications.Accept(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, decision, nil)
}

// Reject godoc
// @Summary Reject job application
// @Tags Careers
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /careers/applications/{id}/reject [post]
func (h *JobApplicationHandler) Reject(c *gin.Context) {
	app, err := h.applications.Reject(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}
