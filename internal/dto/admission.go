package dto

import "github.com/noah-isme/sma-erp-api/internal/models"

// AdmissionRequest is the public admissions form.
type AdmissionRequest struct {
	StudentName      string        `json:"studentName" validate:"required,min=2"`
	ApplyingForGrade string        `json:"applyingForGrade" validate:"required"`
	ParentName       string        `json:"parentName" validate:"required,min=2"`
	ParentEmail      string        `json:"parentEmail" validate:"required,email"`
	Gender           models.Gender `json:"gender" validate:"required,oneof=male female other"`
}

// HostelAllocationRequest picks the hostel and room for an applicant.
type HostelAllocationRequest struct {
	HostelID string `json:"hostelId"`
	RoomID   string `json:"roomId"`
}

// AdmissionDecision is returned by approve and hostel allocation.
type AdmissionDecision struct {
	Application *models.AdmissionApplication `json:"application"`
	Student     *models.Student              `json:"student,omitempty"`
	TuitionFee  *models.Fee                  `json:"tuitionFee,omitempty"`
	Room        *models.HostelRoom           `json:"room,omitempty"`
	HostelFee   *models.Fee                  `json:"hostelFee,omitempty"`
}

// AdmissionStatRequest sets the trend figures of one month (YYYY-MM).
type AdmissionStatRequest struct {
	Month    string `json:"month" validate:"required,datetime=2006-01"`
	Admitted int    `json:"admitted" validate:"gte=0"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}
