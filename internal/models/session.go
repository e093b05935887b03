package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated-session context handed to every request after login.
// It exists from a successful login until logout or expiry.
type Session struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	StudentID   *string   `json:"student_id,omitempty"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// OwnsStudent reports whether the session belongs to the given student record.
func (s *Session) OwnsStudent(studentID string) bool {
	return s != nil && s.StudentID != nil && *s.StudentID == studentID
}

// SessionClaims is the JWT payload pointing at a stored session.
type SessionClaims struct {
	SessionID string  `json:"sid"`
	UserID    string  `json:"user_id"`
	Role      Role    `json:"role"`
	StudentID *string `json:"student_id,omitempty"`
	jwt.RegisteredClaims
}
