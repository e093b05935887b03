package dto

import "github.com/noah-isme/sma-erp-api/internal/models"

// HostelRequest creates or renames a hostel.
type HostelRequest struct {
	Name string            `json:"name" validate:"required,min=2,max=100"`
	Type models.HostelType `json:"type" validate:"required,oneof=Boys Girls"`
}

// RoomRequest creates or edits a room.
type RoomRequest struct {
	HostelID   string `json:"hostelId" validate:"required"`
	RoomNumber string `json:"roomNumber" validate:"required,max=20"`
	Capacity   int    `json:"capacity" validate:"required,gt=0,lte=50"`
}

// RoomAssignmentRequest moves an existing student into a room.
type RoomAssignmentRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// EligibleHostels answers which hostels an applicant may be placed in. Category is empty when
// the gender maps to no hostel type.
type EligibleHostels struct {
	Gender   models.Gender     `json:"gender"`
	Category models.HostelType `json:"category,omitempty"`
	Eligible bool              `json:"eligible"`
	Reason   string            `json:"reason,omitempty"`
	Hostels  []models.Hostel   `json:"hostels"`
}

// RoomAssignment reports the effect of moving a student.
type RoomAssignment struct {
	Room         *models.HostelRoom `json:"room"`
	PreviousRoom string             `json:"previousRoomId,omitempty"`
	HostelFee    *models.Fee        `json:"hostelFee,omitempty"`
}
