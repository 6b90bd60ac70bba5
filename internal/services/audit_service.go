package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/consoleguard/internal/metrics"
	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/pkg/logger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500

	persistTimeout = 3 * time.Second
	alertTimeout   = 5 * time.Second
)

// EventStore persists security events
type EventStore interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
	List(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditService is the security-event sink. Every event is logged and counted;
// persistence and lockout alerts are optional and never fail the caller.
// Alerts are sent in the background so a slow mail provider does not hold
// up the login that triggered the lockout.
type AuditService struct {
	audit    *logger.AuditLogger
	store    EventStore
	notifier AlertNotifier
	logger   *slog.Logger

	alerts sync.WaitGroup
}

// NewAuditService creates a new AuditService. store and notifier may be nil.
func NewAuditService(audit *logger.AuditLogger, store EventStore, notifier AlertNotifier, logger *slog.Logger) *AuditService {
	return &AuditService{
		audit:    audit,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// Record implements EventSink
func (s *AuditService) Record(ctx context.Context, event models.SecurityEvent) {
	s.audit.LogSecurityEvent(ctx, event)
	metrics.SecurityEvents.WithLabelValues(string(event.Kind)).Inc()

	// Detach from request cancellation so a client hang-up does not drop the record
	detached := context.WithoutCancel(ctx)

	if s.store != nil {
		persistCtx, cancel := context.WithTimeout(detached, persistTimeout)
		err := s.store.Create(persistCtx, &event)
		cancel()
		if err != nil {
			metrics.AuditPersistFailures.Inc()
			s.logger.ErrorContext(ctx, "failed to persist security event",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", string(event.Kind)),
				slog.Any("error", err),
			)
		}
	}

	if s.notifier != nil && event.Kind == models.EventLockoutTriggered {
		s.alerts.Add(1)
		go func() {
			defer s.alerts.Done()

			alertCtx, cancel := context.WithTimeout(detached, alertTimeout)
			defer cancel()
			if err := s.notifier.NotifyLockout(alertCtx, event); err != nil {
				s.logger.ErrorContext(alertCtx, "failed to send lockout alert",
					slog.String("event_id", event.ID.String()),
					slog.Any("error", err),
				)
			}
		}()
	}
}

// Wait blocks until in-flight lockout alerts have finished
func (s *AuditService) Wait() {
	s.alerts.Wait()
}

// StoreEnabled reports whether events are persisted
func (s *AuditService) StoreEnabled() bool {
	return s.store != nil
}

// ListEvents returns persisted events, newest first
func (s *AuditService) ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	if s.store == nil {
		return nil, models.ErrAuditStoreDisabled
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %q", models.ErrBadRequest, filter.Kind)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultEventLimit
	}
	if filter.Limit > maxEventLimit {
		filter.Limit = maxEventLimit
	}

	events, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return events, nil
}

// Prune deletes persisted events older than cutoff
func (s *AuditService) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune security events: %w", err)
	}
	return deleted, nil
}
