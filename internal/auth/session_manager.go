package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/pkg/clock"
)

const (
	// DefaultSessionTimeout is how long a session lives after issue
	DefaultSessionTimeout = 8 * time.Hour

	// sessionTokenBytes gives 256 bits of entropy per token
	sessionTokenBytes = 32
)

// EventSink receives security events
type EventSink interface {
	Record(ctx context.Context, event models.SecurityEvent)
}

// SessionManager issues and validates IP-bound sessions.
// Expiry is checked when a token is presented; Sweep removes the rest.
type SessionManager struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex
	timeout  time.Duration
	clock    clock.Clock
	sink     EventSink
	logger   *slog.Logger
	random   func([]byte) (int, error)
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(timeout time.Duration, clk clock.Clock, sink EventSink, logger *slog.Logger) *SessionManager {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &SessionManager{
		sessions: make(map[string]*models.Session),
		timeout:  timeout,
		clock:    clk,
		sink:     sink,
		logger:   logger,
		random:   rand.Read,
	}
}

// Timeout returns the configured session lifetime
func (m *SessionManager) Timeout() time.Duration {
	return m.timeout
}

// Issue creates a session for identity bound to sourceIP.
// Every call yields a fresh token; an identity may hold several sessions.
func (m *SessionManager) Issue(ctx context.Context, identity, sourceIP string) (*models.Session, error) {
	token, err := m.newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.clock.Now()
	session := &models.Session{
		Token:           token,
		AccountIdentity: identity,
		IssuedAt:        now,
		ExpiresAt:       now.Add(m.timeout),
		BoundIP:         sourceIP,
		LastActivityAt:  now,
	}

	m.mu.Lock()
	m.sessions[token] = session
	m.mu.Unlock()

	copied := *session
	return &copied, nil
}

// Validate checks a presented token. Lookup happens first, then expiry, then
// the address binding. An expired session is removed; a mismatched address
// leaves the session in place for its rightful owner.
func (m *SessionManager) Validate(ctx context.Context, token, sourceIP string) (*models.Session, models.ValidationResult) {
	if token == "" {
		return nil, models.ValidationResult{Reason: models.ReasonNotFound}
	}

	m.mu.Lock()
	session, ok := m.sessions[token]
	if !ok {
		m.mu.Unlock()
		return nil, models.ValidationResult{Reason: models.ReasonNotFound}
	}

	now := m.clock.Now()
	if session.ExpiredAt(now) {
		delete(m.sessions, token)
		m.mu.Unlock()

		m.emit(ctx, models.NewSecurityEvent(models.EventSessionExpired, session.AccountIdentity, sourceIP, now).
			WithMetadata("expired_at", session.ExpiresAt.Format(time.RFC3339)))
		return nil, models.ValidationResult{Reason: models.ReasonExpired}
	}

	if !SameAddress(session.BoundIP, sourceIP) {
		identity, bound := session.AccountIdentity, session.BoundIP
		m.mu.Unlock()

		m.emit(ctx, models.NewSecurityEvent(models.EventIPMismatch, identity, sourceIP, now).
			WithMetadata("bound_ip", bound))
		return nil, models.ValidationResult{Reason: models.ReasonIPMismatch}
	}

	session.LastActivityAt = now
	copied := *session
	m.mu.Unlock()

	return &copied, models.ValidationResult{Valid: true}
}

// Revoke removes the session for token. Unknown tokens are ignored.
func (m *SessionManager) Revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}

	m.mu.Lock()
	session, ok := m.sessions[token]
	delete(m.sessions, token)
	m.mu.Unlock()

	if ok {
		m.emit(ctx, models.NewSecurityEvent(models.EventLogout, session.AccountIdentity, session.BoundIP, m.clock.Now()))
	}
}

// RevokeAll removes every session held by identity and returns how many were removed
func (m *SessionManager) RevokeAll(ctx context.Context, identity string) int {
	m.mu.Lock()
	removed := 0
	for token, session := range m.sessions {
		if session.AccountIdentity == identity {
			delete(m.sessions, token)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 && m.logger != nil {
		m.logger.Info("revoked all sessions for identity",
			slog.String("identity", identity),
			slog.Int("count", removed))
	}
	return removed
}

// ActiveCount returns the number of stored sessions that have not expired
func (m *SessionManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	active := 0
	for _, session := range m.sessions {
		if !session.ExpiredAt(now) {
			active++
		}
	}
	return active
}

// TotalCount returns the number of stored sessions, expired ones included
func (m *SessionManager) TotalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes expired sessions and returns how many were removed
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for token, session := range m.sessions {
		if session.ExpiredAt(now) {
			delete(m.sessions, token)
			removed++
		}
	}
	return removed
}

// Reset drops every session
func (m *SessionManager) Reset() {
	m.mu.Lock()
	m.sessions = make(map[string]*models.Session)
	m.mu.Unlock()
}

func (m *SessionManager) newToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := m.random(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (m *SessionManager) emit(ctx context.Context, event models.SecurityEvent) {
	if m.sink == nil {
		return
	}
	m.sink.Record(ctx, event)
}

// SameAddress compares two client addresses, treating IPv4-mapped IPv6 forms as equal
func SameAddress(a, b string) bool {
	if a == b {
		return true
	}
	addrA, errA := netip.ParseAddr(a)
	addrB, errB := netip.ParseAddr(b)
	if errA != nil || errB != nil {
		return false
	}
	return addrA.Unmap() == addrB.Unmap()
}
