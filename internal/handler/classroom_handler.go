package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/service"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

// ClassroomHandler groups the day-to-day classroom collections: notices, homework and
// attendance.
type ClassroomHandler struct {
	notices    *service.NoticeService
	homework   *service.HomeworkService
	attendance *service.AttendanceService
}

// NewClassroomHandler constructs ClassroomHandler.
func NewClassroomHandler(notices *service.NoticeService, homework *service.HomeworkService, attendance *service.AttendanceService) *ClassroomHandler {
	return &ClassroomHandler{notices: notices, homework: homework, attendance: attendance}
}

// ListNotices godoc
// @Summary List notices
// @Tags Notices
// @Produce json
// @Param limit query int false "Maximum number of notices"
// @Success 200 {object} response.Envelope
// @Router /notices [get]
func (h *ClassroomHandler) ListNotices(c *gin.Context) {
	notices, err := h.notices.List(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notices, nil)
}

// PostNotice godoc
// @Summary Post notice
// @Tags Notices
// @Accept json
// @Produce json
// @Param payload body dto.NoticeRequest true "Notice"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notices [post]
func (h *ClassroomHandler) PostNotice(c *gin.Context) {
	var req dto.NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	notice, err := h.notices.Post(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notice)
}

// ListHomework godoc
// @Summary List homework
// @Description Students only see homework of their own class and section
// @Tags Homework
// @Produce json
// @Param class query string false "Class"
// @Param section query string false "Section"
// @Success 200 {object} response.Envelope
// @Router /homework [get]
func (h *ClassroomHandler) ListHomework(c *gin.Context) {
	filter := models.HomeworkFilter{
		Class:   strings.TrimSpace(c.Query("class")),
		Section: strings.TrimSpace(c.Query("section")),
	}
	items, err := h.homework.List(c.Request.Context(), sessionFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// AssignHomework godoc
// @Summary Assign homework
// @Tags Homework
// @Accept json
// @Produce json
// @Param payload body dto.HomeworkRequest true "Homework"
// @Success 201 {object} response.Envelope
// @Router /homework [post]
func (h *ClassroomHandler) AssignHomework(c *gin.Context) {
	var req dto.HomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	item, err := h.homework.Assign(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// LogAttendance godoc
// @Summary Log attendance for a class section
// @Description Re-logging the same date overwrites the earlier records
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.AttendanceLogRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Router /attendance [post]
func (h *ClassroomHandler) LogAttendance(c *gin.Context) {
	var req dto.AttendanceLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.attendance.Log(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// StudentAttendance godoc
// @Summary Attendance of one student
// @Tags Attendance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/{studentId} [get]
func (h *ClassroomHandler) StudentAttendance(c *gin.Context) {
	record, err := h.attendance.Get(c.Request.Context(), sessionFromContext(c), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
