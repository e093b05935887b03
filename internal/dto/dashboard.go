package dto

import "github.com/noah-isme/sma-erp-api/internal/models"

// DashboardView is the role-dispatched dashboard payload. Exactly one section is set,
// matching Role.
type DashboardView struct {
	Role    models.Role       `json:"role"`
	Admin   *AdminDashboard   `json:"admin,omitempty"`
	Teacher *TeacherDashboard `json:"teacher,omitempty"`
	Student *StudentDashboard `json:"student,omitempty"`
	Finance *FinanceDashboard `json:"finance,omitempty"`
}

// AdminCounts are the headline figures of the admin dashboard.
type AdminCounts struct {
	Students               int `json:"students"`
	Teachers               int `json:"teachers"`
	PendingAdmissions      int `json:"pendingAdmissions"`
	PendingJobApplications int `json:"pendingJobApplications"`
}

// HostelOccupancy is capacity against occupied beds for one hostel.
type HostelOccupancy struct {
	HostelID   string            `json:"hostelId"`
	HostelName string            `json:"hostelName"`
	Type       models.HostelType `json:"type"`
	Capacity   int               `json:"capacity"`
	Occupied   int               `json:"occupied"`
	Available  int               `json:"available"`
}

// AdminDashboard aggregates school-wide figures.
type AdminDashboard struct {
	Counts         AdminCounts            `json:"counts"`
	Occupancy      []HostelOccupancy      `json:"occupancy"`
	AdmissionTrend []models.AdmissionStat `json:"admissionTrend"`
	Notices        []models.Notice        `json:"notices"`
}

// TeacherDashboard shows classroom work.
type TeacherDashboard struct {
	Homework []models.Homework    `json:"homework"`
	Rosters  []models.ClassRoster `json:"rosters"`
	Notices  []models.Notice      `json:"notices"`
}

// StudentDashboard is the signed-in student's own view.
type StudentDashboard struct {
	Profile    *models.Student          `json:"profile"`
	TuitionFee *FeeView                 `json:"tuitionFee,omitempty"`
	HostelFee  *FeeView                 `json:"hostelFee,omitempty"`
	Room       *models.Occupant         `json:"room,omitempty"`
	Attendance models.StudentAttendance `json:"attendance"`
	Homework   []models.Homework        `json:"homework"`
	Notices    []models.Notice          `json:"notices"`
}

// FinanceDashboard summarises both ledgers and lists overdue fees.
type FinanceDashboard struct {
	Tuition LedgerSummary `json:"tuition"`
	Hostel  LedgerSummary `json:"hostel"`
	Overdue []FeeView     `json:"overdue"`
}
