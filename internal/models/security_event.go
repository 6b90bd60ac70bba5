package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a security event
type EventKind string

const (
	EventLoginSuccess         EventKind = "login_success"
	EventLoginFailure         EventKind = "login_failure"
	EventLockoutTriggered     EventKind = "lockout_triggered"
	EventLockoutCleared       EventKind = "lockout_cleared"
	EventSessionExpired       EventKind = "session_expired"
	EventIPMismatch           EventKind = "ip_mismatch"
	EventLogout               EventKind = "logout"
	EventCredentialStoreError EventKind = "credential_store_error"
)

// AllEventKinds lists every kind in a stable order (metrics pre-registration, filters)
var AllEventKinds = []EventKind{
	EventLoginSuccess,
	EventLoginFailure,
	EventLockoutTriggered,
	EventLockoutCleared,
	EventSessionExpired,
	EventIPMismatch,
	EventLogout,
	EventCredentialStoreError,
}

// Valid reports whether k is a known kind
func (k EventKind) Valid() bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Benign reports whether the kind records a normal, non-suspicious outcome
func (k EventKind) Benign() bool {
	switch k {
	case EventLoginSuccess, EventLockoutCleared, EventLogout:
		return true
	default:
		return false
	}
}

// SecurityEvent is an immutable audit record
type SecurityEvent struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	Kind            EventKind     `db:"kind" json:"kind"`
	AccountIdentity string        `db:"account_identity" json:"account_identity"`
	SourceIP        string        `db:"source_ip" json:"source_ip"`
	Timestamp       time.Time     `db:"occurred_at" json:"timestamp"`
	Metadata        EventMetadata `db:"metadata" json:"metadata,omitempty"`
}

// NewSecurityEvent stamps a new event with a random ID
func NewSecurityEvent(kind EventKind, identity, sourceIP string, at time.Time) SecurityEvent {
	return SecurityEvent{
		ID:              uuid.New(),
		Kind:            kind,
		AccountIdentity: identity,
		SourceIP:        sourceIP,
		Timestamp:       at,
	}
}

// WithMetadata returns a copy of the event carrying the given key/value
func (e SecurityEvent) WithMetadata(key string, value interface{}) SecurityEvent {
	md := make(EventMetadata, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	e.Metadata = md
	return e
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(EventMetadata)
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}

	decoded := make(map[string]interface{})
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*m = EventMetadata(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(map[string]interface{}(m))
}

// EventFilter narrows a history query; zero values match everything
type EventFilter struct {
	Kind            EventKind
	AccountIdentity string
	Since           *time.Time
	Limit           int
}
