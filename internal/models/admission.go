package models

import "time"

// AdmissionStatus tracks an application's decision. Approved and Rejected are terminal.
type AdmissionStatus string

const (
	AdmissionStatusPending  AdmissionStatus = "Pending"
	AdmissionStatusApproved AdmissionStatus = "Approved"
	AdmissionStatusRejected AdmissionStatus = "Rejected"
)

// Gender as captured by the admission form.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// AdmissionApplication is a prospective student's request awaiting a decision.
type AdmissionApplication struct {
	ID               string          `db:"id" json:"id"`
	StudentName      string          `db:"student_name" json:"student_name"`
	ApplyingForGrade string          `db:"applying_for_grade" json:"applying_for_grade"`
	ParentName       string          `db:"parent_name" json:"parent_name"`
	ParentEmail      string          `db:"parent_email" json:"parent_email"`
	Gender           Gender          `db:"gender" json:"gender"`
	Status           AdmissionStatus `db:"status" json:"status"`
	Date             time.Time       `db:"submitted_at" json:"date"`
	DecidedAt        *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	StudentID        *string         `db:"student_id" json:"student_id,omitempty"`
}

// AdmissionFilter narrows application listings.
type AdmissionFilter struct {
	Status AdmissionStatus
}

// AdmissionStat is one month of the admissions trend.
type AdmissionStat struct {
	Month    string `db:"month" json:"month"`
	Admitted int    `db:"admitted" json:"admitted"`
	Capacity int    `db:"capacity" json:"capacity"`
}

// JobApplicationStatus tracks a careers application.
type JobApplicationStatus string

const (
	JobApplicationPending  JobApplicationStatus = "Pending"
	JobApplicationAccepted JobApplicationStatus = "Accepted"
	JobApplicationRejected JobApplicationStatus = "Rejected"
)

// JobApplication is a teaching-position application.
type JobApplication struct {
	ID         string               `db:"id" json:"id"`
	FullName   string               `db:"full_name" json:"full_name"`
	Email      string               `db:"email" json:"email"`
	Phone      string               `db:"phone" json:"phone"`
	Subject    string               `db:"subject" json:"subject"`
	Experience int                  `db:"experience" json:"experience"`
	Resume     string               `db:"resume" json:"resume"`
	Status     JobApplicationStatus `db:"status" json:"status"`
	Date       time.Time            `db:"submitted_at" json:"date"`
	TeacherID  *string              `db:"teacher_id" json:"teacher_id,omitempty"`
}
