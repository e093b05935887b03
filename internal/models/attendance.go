package models

import "time"

// AttendanceStatus is a student's mark for one day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceHoliday AttendanceStatus = "Holiday"
)

// Valid reports whether s is a known attendance mark.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceHoliday:
		return true
	}
	return false
}

// AttendanceRecord is one student's mark on one date.
type AttendanceRecord struct {
	StudentID string           `db:"student_id" json:"student_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  string           `db:"marked_by" json:"marked_by"`
}

// StudentAttendance groups a student's records with the derived attendance rate.
// Holidays count towards neither side of the rate.
type StudentAttendance struct {
	StudentID string             `json:"student_id"`
	Records   []AttendanceRecord `json:"records"`
	Present   int                `json:"present"`
	Absent    int                `json:"absent"`
	Rate      float64            `json:"rate"`
}

// SummarizeAttendance computes present/absent totals and the rate in percent.
func SummarizeAttendance(studentID string, records []AttendanceRecord) StudentAttendance {
	out := StudentAttendance{StudentID: studentID, Records: records}
	for _, r := range records {
		switch r.Status {
		case AttendancePresent:
			out.Present++
		case AttendanceAbsent:
			out.Absent++
		}
	}
	if marked := out.Present + out.Absent; marked > 0 {
		out.Rate = float64(out.Present) * 100 / float64(marked)
	}
	return out
}
