package models

import "time"

// Record-store collection names.
const (
	CollectionStudents              = "students"
	CollectionTeachers              = "teachers"
	CollectionFees                  = "fees"
	CollectionHostelFees            = "hostelFees"
	CollectionHostelRooms           = "hostelRooms"
	CollectionHostels               = "hostels"
	CollectionAdmissionApplications = "admissionApplications"
	CollectionJobApplications       = "jobApplications"
	CollectionUsers                 = "users"
	CollectionNotices               = "notices"
	CollectionHomeworks             = "homeworks"
	CollectionStudentAttendance     = "studentAttendance"
	CollectionAdmissions            = "admissions"
)

// Collections lists every collection in a stable order.
func Collections() []string {
	return []string{
		CollectionStudents, CollectionTeachers, CollectionFees, CollectionHostelFees,
		CollectionHostelRooms, CollectionHostels, CollectionAdmissionApplications,
		CollectionJobApplications, CollectionUsers, CollectionNotices, CollectionHomeworks,
		CollectionStudentAttendance, CollectionAdmissions,
	}
}

// ChangeType classifies a mutation.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ChangeEvent is pushed to collection subscribers after every committed mutation.
type ChangeEvent struct {
	Collection string     `json:"collection"`
	Type       ChangeType `json:"type"`
	ID         string     `json:"id"`
	At         time.Time  `json:"at"`
}
