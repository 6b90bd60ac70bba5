package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/google/uuid"
)

// StaticUserStore holds console users in memory. It backs the bootstrap
// admin account when no database is configured.
type StaticUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.ConsoleUser
}

func NewStaticUserStore() *StaticUserStore {
	return &StaticUserStore{users: make(map[string]*models.ConsoleUser)}
}

// Put adds or replaces a user by username
func (s *StaticUserStore) Put(username, passwordHash string, now time.Time) *models.ConsoleUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &models.ConsoleUser{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, ok := s.users[username]; ok {
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	}
	s.users[username] = user

	out := *user
	return &out
}

func (s *StaticUserStore) GetByUsername(_ context.Context, username string) (*models.ConsoleUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (s *StaticUserStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.ID == id {
			t := at
			user.LastLoginAt = &t
			return nil
		}
	}
	return models.ErrNotFound
}

// UserLookup is the read side shared by the Postgres and in-memory stores
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.ConsoleUser, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// FallbackUserLookup consults primary first and falls back to secondary
// only when primary has no such user.
type FallbackUserLookup struct {
	primary   UserLookup
	secondary UserLookup
}

func NewFallbackUserLookup(primary, secondary UserLookup) *FallbackUserLookup {
	return &FallbackUserLookup{primary: primary, secondary: secondary}
}

func (f *FallbackUserLookup) GetByUsername(ctx context.Context, username string) (*models.ConsoleUser, error) {
	user, err := f.primary.GetByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return f.secondary.GetByUsername(ctx, username)
	}
	return user, err
}

func (f *FallbackUserLookup) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	err := f.primary.TouchLastLogin(ctx, id, at)
	if errors.Is(err, models.ErrNotFound) {
		return f.secondary.TouchLastLogin(ctx, id, at)
	}
	return err
}
