package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/service"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

// HostelHandler exposes hostel, room and occupant management.
type HostelHandler struct {
	hostels *service.HostelService
}

// NewHostelHandler constructs HostelHandler.
func NewHostelHandler(hostels *service.HostelService) *HostelHandler {
	return &HostelHandler{hostels: hostels}
}

// Eligible godoc
// @Summary Hostels an applicant may join
// @Tags Hostels
// @Produce json
// @Param gender query string true "male, female or other"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /hostels/eligible [get]
func (h *HostelHandler) Eligible(c *gin.Context) {
	result, err := h.hostels.EligibleHostels(c.Request.Context(), c.Query("gender"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List hostels
// @Tags Hostels
// @Produce json
// @Param type query string false "Boys or Girls"
// @Success 200 {object} response.Envelope
// @Router /hostels [get]
func (h *HostelHandler) List(c *gin.Context) {
	hostels, err := h.hostels.ListHostels(c.Request.Context(), c.Query("type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hostels, nil)
}

// Create godoc
// @Summary Create hostel
// @Tags Hostels
// @Accept json
// @Produce json
// @Param payload body dto.HostelRequest true "Hostel"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /hostels [post]
func (h *HostelHandler) Create(c *gin.Context) {
	var req dto.HostelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	hostel, err := h.hostels.CreateHostel(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, hostel)
}

// Update godoc
// @Summary Update hostel
// @Tags Hostels
// @Accept json
// @Produce json
// @Param id path string true "Hostel ID"
// @Param payload body dto.HostelRequest true "Hostel"
// @Success 200 {object} response.Envelope
// @Router /hostels/{id} [put]
func (h *HostelHandler) Update(c *gin.Context) {
	var req dto.HostelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	hostel, err := h.hostels.UpdateHostel(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, hostel, nil)
}

// Delete godoc
// @Summary Delete hostel and its rooms
// @Tags Hostels
// @Param id path string true "Hostel ID"
// @Success 204
// @Router /hostels/{id} [delete]
func (h *HostelHandler) Delete(c *gin.Context) {
	if err := h.hostels.DeleteHostel(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rooms godoc
// @Summary List rooms of a hostel
// @Tags Hostels
// @Produce json
// @Param id path string true "Hostel ID"
// @Param available query bool false "Only rooms with free beds"
// @Success 200 {object} response.Envelope
// @Router /hostels/{id}/rooms [get]
func (h *HostelHandler) Rooms(c *gin.Context) {
	list := h.hostels.ListRooms
	if c.Query("available") == "true" {
		list = h.hostels.AvailableRooms
	}
	rooms, err := list(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// Occupants godoc
// @Summary List hostel residents
// @Tags Hostels
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /hostels/occupants [get]
func (h *HostelHandler) Occupants(c *gin.Context) {
	occupants, err := h.hostels.ListOccupants(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, occupants, nil)
}

// Occupancy godoc
// @Summary Beds per hostel
// @Tags Hostels
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /hostels/occupancy [get]
func (h *HostelHandler) Occupancy(c *gin.Context) {
	rows, err := h.hostels.Occupancy(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// CreateRoom godoc
// @Summary Create room
// @Tags Hostels
// @Accept json
// @Produce json
// @Param payload body dto.RoomRequest true "Room"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms [post]
func (h *HostelHandler) CreateRoom(c *gin.Context) {
	var req dto.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	room, err := h.hostels.CreateRoom(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// UpdateRoom godoc
// @Summary Update room
// @Tags Hostels
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param payload body dto.RoomRequest true "Room"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [put]
func (h *HostelHandler) UpdateRoom(c *gin.Context) {
	var req dto.RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	room, err := h.hostels.UpdateRoom(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// DeleteRoom godoc
// @Summary Delete room
// @Tags Hostels
// @Param id path string true "Room ID"
// @Success 204
// @Router /rooms/{id} [delete]
func (h *HostelHandler) DeleteRoom(c *gin.Context) {
	if err := h.hostels.DeleteRoom(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignOccupant godoc
// @Summary Assign or move a student into a room
// @Tags Hostels
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param payload body dto.RoomAssignmentRequest true "Student"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /rooms/{id}/occupants [post]
func (h *HostelHandler) AssignOccupant(c *gin.Context) {
	var req dto.RoomAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	assignment, err := h.hostels.AllocateStudent(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// RemoveOccupant godoc
// @Summary Remove a student from a room
// @Tags Hostels
// @Param id path string true "Room ID"
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /rooms/{id}/occupants/{studentId} [delete]
func (h *HostelHandler) RemoveOccupant(c *gin.Context) {
	if err := h.hostels.RemoveOccupant(c.Request.Context(), sessionFromContext(c), c.Param("id"), c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
