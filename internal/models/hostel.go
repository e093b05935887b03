package models

import (
	"strings"
	"time"
)

// HostelType is the residents' category of a hostel.
type HostelType string

const (
	HostelTypeBoys  HostelType = "Boys"
	HostelTypeGirls HostelType = "Girls"
)

// Valid reports whether t is a known hostel type.
func (t HostelType) Valid() bool {
	return t == HostelTypeBoys || t == HostelTypeGirls
}

// HostelTypeForGender maps an applicant gender to the hostel category they may live in.
// The second result is false when no category applies.
func HostelTypeForGender(g Gender) (HostelType, bool) {
	switch Gender(strings.ToLower(string(g))) {
	case GenderMale:
		return HostelTypeBoys, true
	case GenderFemale:
		return HostelTypeGirls, true
	}
	return "", false
}

// Hostel is a residence building.
type Hostel struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Type      HostelType `db:"type" json:"type"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// HostelRoom belongs to exactly one hostel. Occupied counts rows in room_occupants.
type HostelRoom struct {
	ID         string     `db:"id" json:"id"`
	HostelID   string     `db:"hostel_id" json:"hostel_id"`
	HostelName string     `db:"hostel_name" json:"hostel_name"`
	RoomNumber string     `db:"room_number" json:"room_number"`
	Capacity   int        `db:"capacity" json:"capacity"`
	Occupied   int        `db:"occupied" json:"occupied"`
	Occupants  []Occupant `db:"-" json:"occupants,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// HasSpace reports whether one more occupant fits.
func (r HostelRoom) HasSpace() bool {
	return r.Occupied < r.Capacity
}

// Occupant references a student living in a room; the name is resolved at read time.
type Occupant struct {
	RoomID      string    `db:"room_id" json:"room_id"`
	RoomNumber  string    `db:"room_number" json:"room_number"`
	HostelID    string    `db:"hostel_id" json:"hostel_id"`
	HostelName  string    `db:"hostel_name" json:"hostel_name"`
	StudentID   string    `db:"student_id" json:"student_id"`
	StudentName string    `db:"student_name" json:"student_name"`
	AllocatedAt time.Time `db:"allocated_at" json:"allocated_at"`
}
