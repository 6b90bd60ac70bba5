package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/consoleguard/internal/database"
	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// TxRunner runs fn inside a transaction; *database.DB satisfies it
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

func scanUserRow(scanner rowScanner) (*models.ConsoleUser, error) {
	var user models.ConsoleUser
	var lastLogin *time.Time

	err := scanner.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Disabled,
		&user.CreatedAt, &user.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	user.LastLoginAt = lastLogin

	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.ConsoleUser, error) {
	query := `
		SELECT id, username, password_hash, disabled, created_at, updated_at, last_login_at
		FROM console_users WHERE username = $1
	`

	user, err := scanUserRow(r.db.QueryRow(ctx, query, username))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureUser creates username with passwordHash unless a row already exists,
// in which case the row is left untouched. Callers racing on the same username
// are serialised by a transaction-scoped advisory lock. Reports whether the
// user was created.
func EnsureUser(ctx context.Context, db TxRunner, username, passwordHash string) (bool, error) {
	created := false

	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "console_users:"+username); err != nil {
			return fmt.Errorf("failed to lock console user: %w", err)
		}

		users := NewUserRepository(tx)
		_, err := users.GetByUsername(ctx, username)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to check console user: %w", err)
		}

		if _, err := users.Upsert(ctx, username, passwordHash); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Upsert creates the user or replaces its password hash, re-enabling it
func (r *UserRepository) Upsert(ctx context.Context, username, passwordHash string) (*models.ConsoleUser, error) {
	query := `
		INSERT INTO console_users (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE
		SET password_hash = EXCLUDED.password_hash, disabled = FALSE, updated_at = NOW()
		RETURNING id, username, password_hash, disabled, created_at, updated_at, last_login_at
	`

	user, err := scanUserRow(r.db.QueryRow(ctx, query, username, passwordHash))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert console user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) SetDisabled(ctx context.Context, username string, disabled bool) error {
	query := `UPDATE console_users SET disabled = $2, updated_at = NOW() WHERE username = $1`

	result, err := r.db.Exec(ctx, query, username, disabled)
	if err != nil {
		return fmt.Errorf("failed to update console user: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE console_users SET last_login_at = $2 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record last login: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
