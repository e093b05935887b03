package models

import "time"

// LoginRequest holds the (role, user id, password) triple typed on the login form.
type LoginRequest struct {
	Role      Role   `json:"role" validate:"required,oneof=Admin Teacher Student Finance"`
	UserID    string `json:"user_id" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token together with the session it points at.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	Session     Session   `json:"session"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// IssuedCredentials is returned once when an account is generated for a new student or teacher.
// The plaintext password is never stored.
type IssuedCredentials struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}
