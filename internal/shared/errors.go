package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates no signed-in user is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrSessionExpired indicates the session is gone or could not be refreshed.
	ErrSessionExpired = errors.New("session expired")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// Result reports the outcome of a user-facing operation that should not fail
// the request, such as a profile update.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Succeeded builds a successful Result.
func Succeeded(message string) Result {
	return Result{OK: true, Message: message}
}

// Failed builds a failed Result.
func Failed(message string) Result {
	return Result{OK: false, Message: message}
}
