package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/pkg/clock"
)

// SessionStore is the part of auth.SessionManager the login flow uses
type SessionStore interface {
	Issue(ctx context.Context, identity, sourceIP string) (*models.Session, error)
	Revoke(ctx context.Context, token string)
	ActiveCount() int
	TotalCount() int
	Timeout() time.Duration
}

// LoginService runs the console login flow: lockout check, credential check,
// then either a new session or a recorded failure.
type LoginService struct {
	tracker  *AttemptTracker
	sessions SessionStore
	creds    CredentialStore
	sink     EventSink
	clock    clock.Clock
	logger   *slog.Logger
}

// NewLoginService creates a new LoginService
func NewLoginService(tracker *AttemptTracker, sessions SessionStore, creds CredentialStore, sink EventSink, clk clock.Clock, logger *slog.Logger) *LoginService {
	if clk == nil {
		clk = clock.Real{}
	}
	return &LoginService{
		tracker:  tracker,
		sessions: sessions,
		creds:    creds,
		sink:     sink,
		clock:    clk,
		logger:   logger,
	}
}

// Login authenticates username from sourceIP.
// Returns *models.LockedOutError while the identity is locked and
// models.ErrInvalidCredentials for every other refusal.
func (s *LoginService) Login(ctx context.Context, username, password, sourceIP string) (*models.Session, error) {
	if username == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	release, err := s.tracker.Acquire(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("waiting for login gate: %w", err)
	}
	defer release()

	if allowed, retryAfter := s.tracker.CheckAllowed(username); !allowed {
		s.emit(ctx, models.NewSecurityEvent(models.EventLoginFailure, username, sourceIP, s.clock.Now()).
			WithMetadata("reason", "locked_out").
			WithMetadata("retry_after_seconds", int(retryAfter.Seconds())))
		return nil, &models.LockedOutError{RetryAfter: retryAfter}
	}

	ok, err := s.creds.VerifyCredentials(ctx, username, password)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential store failure during login", slog.Any("error", err))
		s.emit(ctx, models.NewSecurityEvent(models.EventCredentialStoreError, username, sourceIP, s.clock.Now()))
		return nil, models.ErrInvalidCredentials
	}

	if !ok {
		s.tracker.RecordFailure(ctx, username, sourceIP)
		return nil, models.ErrInvalidCredentials
	}

	s.tracker.RecordSuccess(ctx, username, sourceIP)

	session, err := s.sessions.Issue(ctx, username, sourceIP)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue session", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	s.emit(ctx, models.NewSecurityEvent(models.EventLoginSuccess, username, sourceIP, session.IssuedAt))
	return session, nil
}

// Logout revokes the session for token. Unknown tokens are not an error.
func (s *LoginService) Logout(ctx context.Context, token string) {
	s.sessions.Revoke(ctx, token)
}

// SecurityStatus reports guard state for the console security page
func (s *LoginService) SecurityStatus() models.SecurityStatus {
	stats := s.tracker.Snapshot()
	cfg := s.tracker.Config()

	return models.SecurityStatus{
		ActiveSessions:         s.sessions.ActiveCount(),
		TotalSessions:          s.sessions.TotalCount(),
		TrackedIdentities:      stats.TrackedIdentities,
		FailedLoginAttempts:    stats.TotalFailures,
		LockedAccounts:         stats.LockedIdentities,
		SessionTimeoutMinutes:  int(s.sessions.Timeout() / time.Minute),
		MaxLoginAttempts:       cfg.MaxLoginAttempts,
		LockoutDurationMinutes: int(cfg.LockoutDuration / time.Minute),
	}
}

// IsLockedOut reports whether err is a lockout refusal and returns it
func IsLockedOut(err error) (*models.LockedOutError, bool) {
	var locked *models.LockedOutError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}

func (s *LoginService) emit(ctx context.Context, event models.SecurityEvent) {
	if s.sink == nil {
		return
	}
	s.sink.Record(ctx, event)
}
