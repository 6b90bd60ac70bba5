package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
)

// RecordingSink collects events in memory for tests
type RecordingSink struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (s *RecordingSink) Record(ctx context.Context, event models.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events
func (s *RecordingSink) Events() []models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SecurityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the recorded event kinds in order
func (s *RecordingSink) Kinds() []models.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]models.EventKind, len(s.events))
	for i, e := range s.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Last returns the most recent event, or a zero event when none were recorded
func (s *RecordingSink) Last() models.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return models.SecurityEvent{}
	}
	return s.events[len(s.events)-1]
}

// MockCredentialStore implements CredentialStore for testing
type MockCredentialStore struct {
	VerifyCredentialsFunc func(ctx context.Context, username, password string) (bool, error)
}

func (m *MockCredentialStore) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	if m.VerifyCredentialsFunc != nil {
		return m.VerifyCredentialsFunc(ctx, username, password)
	}
	return false, nil
}

// MockUserLookup implements UserLookup for testing
type MockUserLookup struct {
	GetByUsernameFunc  func(ctx context.Context, username string) (*models.ConsoleUser, error)
	TouchLastLoginFunc func(ctx context.Context, id string, at time.Time) error
}

func (m *MockUserLookup) GetByUsername(ctx context.Context, username string) (*models.ConsoleUser, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserLookup) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	if m.TouchLastLoginFunc != nil {
		return m.TouchLastLoginFunc(ctx, id, at)
	}
	return nil
}

// MockEventStore implements EventStore for testing
type MockEventStore struct {
	CreateFunc          func(ctx context.Context, event *models.SecurityEvent) error
	ListFunc            func(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockEventStore) Create(ctx context.Context, event *models.SecurityEvent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return nil
}

func (m *MockEventStore) List(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []*models.SecurityEvent{}, nil
}

func (m *MockEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockAlertNotifier implements AlertNotifier for testing
type MockAlertNotifier struct {
	NotifyLockoutFunc func(ctx context.Context, event models.SecurityEvent) error
}

func (m *MockAlertNotifier) NotifyLockout(ctx context.Context, event models.SecurityEvent) error {
	if m.NotifyLockoutFunc != nil {
		return m.NotifyLockoutFunc(ctx, event)
	}
	return nil
}
