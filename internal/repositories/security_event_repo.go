package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/consoleguard/internal/database"
	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// SecurityEventRepository persists security events to Postgres
type SecurityEventRepository struct {
	db database.Querier
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db database.Querier) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent
	var kind string
	var metadata []byte

	err := row.Scan(
		&event.ID, &kind, &event.AccountIdentity, &event.SourceIP,
		&event.Timestamp, &metadata,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	event.Kind = models.EventKind(kind)
	if metadata != nil {
		if err := event.Metadata.Scan(metadata); err != nil {
			return nil, fmt.Errorf("invalid event metadata: %w", err)
		}
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create inserts an event. Events are immutable so a duplicate ID is a conflict.
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, kind, account_identity, source_ip, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		event.ID, string(event.Kind), event.AccountIdentity, event.SourceIP,
		event.Timestamp.UTC(), event.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", database.MapPostgresError(err))
	}

	return nil
}

// List returns the newest events matching filter. Limit must already be bounded by the caller.
func (r *SecurityEventRepository) List(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.AccountIdentity != "" {
		args = append(args, filter.AccountIdentity)
		conditions = append(conditions, fmt.Sprintf("account_identity = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		conditions = append(conditions, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`
		SELECT id, kind, account_identity, source_ip, occurred_at, metadata
		FROM security_events`)
	if len(conditions) > 0 {
		b.WriteString("\n\t\tWHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, filter.Limit)
	fmt.Fprintf(&b, "\n\t\tORDER BY occurred_at DESC\n\t\tLIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// DeleteOlderThan prunes events that occurred before cutoff
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM security_events WHERE occurred_at < $1`

	result, err := r.db.Exec(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune security events: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountByKindSince reports how many events of each kind occurred at or after since
func (r *SecurityEventRepository) CountByKindSince(ctx context.Context, since time.Time) (map[models.EventKind]int64, error) {
	query := `
		SELECT kind, COUNT(*)
		FROM security_events
		WHERE occurred_at >= $1
		GROUP BY kind
	`

	rows, err := r.db.Query(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count security events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EventKind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[models.EventKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}

	return counts, nil
}
