package models

import "time"

// Session is one authenticated console context
type Session struct {
	Token           string    `json:"-"`
	AccountIdentity string    `json:"username"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	BoundIP         string    `json:"bound_ip"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// ExpiredAt reports whether the session is no longer valid at now
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AttemptRecord tracks consecutive failed logins for one identity
type AttemptRecord struct {
	FailureCount  int
	LockedUntil   *time.Time
	LastAttemptAt time.Time
}

// LockedAt reports whether the lockout is still in force at now
func (r *AttemptRecord) LockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// LockLapsedAt reports whether a lockout was set and has since passed
func (r *AttemptRecord) LockLapsedAt(now time.Time) bool {
	return r.LockedUntil != nil && !now.Before(*r.LockedUntil)
}

// ValidationReason explains why a session token was rejected
type ValidationReason string

const (
	ReasonNone       ValidationReason = ""
	ReasonNotFound   ValidationReason = "not_found"
	ReasonExpired    ValidationReason = "expired"
	ReasonIPMismatch ValidationReason = "ip_mismatch"
)

// ValidationResult is the outcome of validating a presented session token
type ValidationResult struct {
	Valid  bool
	Reason ValidationReason
}

// Err maps the result onto the session error taxonomy; nil when valid
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	switch r.Reason {
	case ReasonExpired:
		return ErrSessionExpired
	case ReasonIPMismatch:
		return ErrSessionIPMismatch
	default:
		return ErrSessionNotFound
	}
}

// SecurityStatus summarises guard state for the console security page
type SecurityStatus struct {
	ActiveSessions         int `json:"active_sessions"`
	TotalSessions          int `json:"total_sessions"`
	TrackedIdentities      int `json:"tracked_identities"`
	FailedLoginAttempts    int `json:"failed_login_attempts"`
	LockedAccounts         int `json:"locked_accounts"`
	SessionTimeoutMinutes  int `json:"session_timeout_minutes"`
	MaxLoginAttempts       int `json:"max_login_attempts"`
	LockoutDurationMinutes int `json:"lockout_duration_minutes"`
}
