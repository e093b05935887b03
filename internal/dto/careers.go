package dto

import "github.com/noah-isme/sma-erp-api/internal/models"

// JobApplicationRequest is the public careers form. Phone must carry at least ten digits;
// separators such as spaces or dashes are allowed.
type JobApplicationRequest struct {
	FullName   string `json:"fullName" validate:"required,min=2"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required"`
	Subject    string `json:"subject" validate:"required"`
	Experience int    `json:"experience" validate:"gte=0"`
	Resume     string `json:"resume" validate:"required,min=50"`
}

// JobApplicationDecision is returned when an application is accepted.
type JobApplicationDecision struct {
	Application *models.JobApplication `json:"application"`
	Teacher     *models.Teacher        `json:"teacher,omitempty"`
}
