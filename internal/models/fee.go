package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeKind separates the two independent obligations tracked per student.
type FeeKind string

const (
	FeeKindTuition FeeKind = "tuition"
	FeeKindHostel  FeeKind = "hostel"
)

// Valid reports whether k is a known fee kind.
func (k FeeKind) Valid() bool {
	return k == FeeKindTuition || k == FeeKindHostel
}

// Collection returns the record-store collection name for the kind.
func (k FeeKind) Collection() string {
	if k == FeeKindHostel {
		return CollectionHostelFees
	}
	return CollectionFees
}

// Label is the human readable kind.
func (k FeeKind) Label() string {
	if k == FeeKindHostel {
		return "Hostel Fee"
	}
	return "Tuition Fee"
}

// FeeStatus is the payment state of a fee.
type FeeStatus string

const (
	FeeStatusPaid    FeeStatus = "Paid"
	FeeStatusDue     FeeStatus = "Due"
	FeeStatusOverdue FeeStatus = "Overdue"
)

// Valid reports whether s is a known fee status.
func (s FeeStatus) Valid() bool {
	switch s {
	case FeeStatusPaid, FeeStatusDue, FeeStatusOverdue:
		return true
	}
	return false
}

// Fee is a tuition or hostel obligation. StudentName, Class and RoomNumber are resolved by join.
type Fee struct {
	ID          string          `db:"id" json:"id"`
	Kind        FeeKind         `db:"-" json:"kind"`
	StudentID   string          `db:"student_id" json:"student_id"`
	StudentName string          `db:"student_name" json:"student_name"`
	Class       string          `db:"class" json:"class"`
	RoomID      *string         `db:"room_id" json:"room_id,omitempty"`
	RoomNumber  *string         `db:"room_number" json:"room_number,omitempty"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Status      FeeStatus       `db:"status" json:"status"`
	DueDate     time.Time       `db:"due_date" json:"due_date"`
	PaidAt      *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// EffectiveStatus derives Overdue for unpaid fees whose due date has passed.
// The stored status is never rewritten by this.
func (f Fee) EffectiveStatus(now time.Time) FeeStatus {
	if f.Status != FeeStatusDue {
		return f.Status
	}
	today := truncateDay(now)
	if truncateDay(f.DueDate).Before(today) {
		return FeeStatusOverdue
	}
	return FeeStatusDue
}

// FeeFilter narrows fee listings.
type FeeFilter struct {
	Status    FeeStatus
	StudentID string
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
