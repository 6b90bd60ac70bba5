package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login errors
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLockedOut          = errors.New("account is temporarily locked")

	// Session errors
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrSessionIPMismatch = errors.New("session address mismatch")

	// ErrAuditStoreDisabled is returned when event history is requested without a database
	ErrAuditStoreDisabled = errors.New("audit event store is not configured")
)

// LockedOutError reports a rejected login for an identity under lockout.
// errors.Is(err, ErrLockedOut) matches it.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("account is temporarily locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedOutError) Unwrap() error {
	return ErrLockedOut
}

// RetryAfterMinutes rounds the remaining lockout up to whole minutes for user-facing messages
func (e *LockedOutError) RetryAfterMinutes() int {
	minutes := int(e.RetryAfter / time.Minute)
	if e.RetryAfter%time.Minute != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
