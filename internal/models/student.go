package models

import "time"

// Student represents an enrolled learner. Identity never changes once created; the
// avatar is the only field students edit themselves.
type Student struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Class      string    `db:"class" json:"class"`
	Section    string    `db:"section" json:"section"`
	RollNumber int       `db:"roll_number" json:"roll_number"`
	Avatar     string    `db:"avatar" json:"avatar"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Class    string
	Section  string
	Page     int
	PageSize int
}

// ClassRoster is the head count of one class section.
type ClassRoster struct {
	Class    string `db:"class" json:"class"`
	Section  string `db:"section" json:"section"`
	Students int    `db:"students" json:"students"`
}
