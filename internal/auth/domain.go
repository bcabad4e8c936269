package auth

import (
	"time"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionView is the response body describing the signed-in user.
type SessionView struct {
	User      *users.Record `json:"user"`
	State     string        `json:"state"`
	Dashboard string        `json:"dashboard,omitempty"`
	Token     string        `json:"token,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	CSRFToken string        `json:"csrf_token,omitempty"`
}
