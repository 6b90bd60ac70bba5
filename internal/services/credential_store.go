package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	pkgauth "github.com/BradenHooton/consoleguard/pkg/auth"
	"github.com/BradenHooton/consoleguard/pkg/clock"
)

// CredentialStore verifies a username/password pair.
// (false, nil) means the credentials are wrong; a non-nil error means the
// store itself could not answer.
type CredentialStore interface {
	VerifyCredentials(ctx context.Context, username, password string) (bool, error)
}

// UserLookup finds console users by name
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.ConsoleUser, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// PasswordCredentialStore checks bcrypt hashes held by a UserLookup
type PasswordCredentialStore struct {
	users     UserLookup
	hasher    *pkgauth.Hasher
	dummyHash string
	clock     clock.Clock
	logger    *slog.Logger
}

// NewPasswordCredentialStore creates a PasswordCredentialStore
func NewPasswordCredentialStore(users UserLookup, hasher *pkgauth.Hasher, clk clock.Clock, logger *slog.Logger) (*PasswordCredentialStore, error) {
	// Unknown users are compared against this hash so lookups cost the same
	dummy, err := hasher.Hash("consoleguard-unknown-user")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &PasswordCredentialStore{
		users:     users,
		hasher:    hasher,
		dummyHash: dummy,
		clock:     clk,
		logger:    logger,
	}, nil
}

// VerifyCredentials implements CredentialStore
func (s *PasswordCredentialStore) VerifyCredentials(ctx context.Context, username, password string) (bool, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = s.hasher.Compare(s.dummyHash, password)
			return false, nil
		}
		return false, fmt.Errorf("failed to look up console user: %w", err)
	}

	err = s.hasher.Compare(user.PasswordHash, password)
	if errors.Is(err, pkgauth.ErrPasswordMismatch) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stored password hash unusable for user %s: %w", user.ID, err)
	}

	if user.Disabled {
		s.logger.InfoContext(ctx, "login refused for disabled console user", slog.String("user_id", user.ID))
		return false, nil
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, s.clock.Now()); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return true, nil
}
