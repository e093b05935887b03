package dto

import (
	"time"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

// StudentRequest creates a student directly, outside the admission workflow.
type StudentRequest struct {
	Name    string `json:"name" validate:"required,min=2"`
	Class   string `json:"class" validate:"required"`
	Section string `json:"section" validate:"omitempty,max=5"`
	Avatar  string `json:"avatar" validate:"omitempty,url"`
}

// AvatarRequest replaces a student's avatar.
type AvatarRequest struct {
	Avatar string `json:"avatar" validate:"required,url"`
}

// NoticeRequest posts a notice to the board.
type NoticeRequest struct {
	Title   string `json:"title" validate:"required,min=3,max=200"`
	Content string `json:"content" validate:"required"`
}

// HomeworkRequest assigns homework to one class section. DueDate is YYYY-MM-DD.
type HomeworkRequest struct {
	Class       string `json:"class" validate:"required"`
	Section     string `json:"section" validate:"required"`
	Subject     string `json:"subject" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	DueDate     string `json:"dueDate" validate:"required,datetime=2006-01-02"`
}

// AttendanceLogRequest marks one date for a class section. Entries maps student id to
// presence; Holiday lists students explicitly marked as on holiday.
type AttendanceLogRequest struct {
	Class   string          `json:"class" validate:"required"`
	Section string          `json:"section" validate:"required"`
	Date    string          `json:"date" validate:"required,datetime=2006-01-02"`
	Entries map[string]bool `json:"entries" validate:"required,min=1"`
	Holiday []string        `json:"holiday"`
}

// AttendanceLogResult reports what was written.
type AttendanceLogResult struct {
	Date     time.Time                 `json:"date"`
	Recorded int                       `json:"recorded"`
	Records  []models.AttendanceRecord `json:"records"`
}
