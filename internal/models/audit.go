package models

import "time"

// Audit actions recorded for state-changing operations.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionLogout            = "LOGOUT"
	AuditActionPasswordChange    = "PASSWORD_CHANGE"
	AuditActionAdmissionApprove  = "ADMISSION_APPROVE"
	AuditActionAdmissionReject   = "ADMISSION_REJECT"
	AuditActionHostelAllocate    = "HOSTEL_ALLOCATE"
	AuditActionFeePay            = "FEE_PAY"
	AuditActionFeeUpdate         = "FEE_UPDATE"
	AuditActionJobAccept         = "JOB_ACCEPT"
	AuditActionJobReject         = "JOB_REJECT"
	AuditActionHostelWrite       = "HOSTEL_WRITE"
	AuditActionCredentialsIssued = "CREDENTIALS_ISSUED"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
