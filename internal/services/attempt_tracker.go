package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/pkg/clock"
)

// EventSink receives security events. Implementations must not block for long.
type EventSink interface {
	Record(ctx context.Context, event models.SecurityEvent)
}

// AttemptConfig holds the lockout policy
type AttemptConfig struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

// DefaultAttemptConfig returns 5 attempts / 30 minutes
func DefaultAttemptConfig() AttemptConfig {
	return AttemptConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  30 * time.Minute,
	}
}

// AttemptStats is a point-in-time view of the tracker
type AttemptStats struct {
	TrackedIdentities int
	TotalFailures     int
	LockedIdentities  int
}

// AttemptTracker counts consecutive failed logins per identity and locks
// an identity out once the threshold is reached. Lock expiry is evaluated
// lazily on each call; state lives in memory only.
type AttemptTracker struct {
	mu      sync.Mutex
	records map[string]*models.AttemptRecord
	config  AttemptConfig
	clock   clock.Clock
	sink    EventSink
	logger  *slog.Logger

	gateMu sync.Mutex
	gates  map[string]*identityGate
}

// identityGate serialises login attempts for one identity.
// refs counts holders and waiters so the gate can be dropped when idle.
type identityGate struct {
	sem  chan struct{}
	refs int
}

// NewAttemptTracker creates a new AttemptTracker
func NewAttemptTracker(config AttemptConfig, clk clock.Clock, sink EventSink, logger *slog.Logger) *AttemptTracker {
	if config.MaxLoginAttempts <= 0 {
		config.MaxLoginAttempts = DefaultAttemptConfig().MaxLoginAttempts
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = DefaultAttemptConfig().LockoutDuration
	}
	if clk == nil {
		clk = clock.Real{}
	}

	return &AttemptTracker{
		records: make(map[string]*models.AttemptRecord),
		gates:   make(map[string]*identityGate),
		config:  config,
		clock:   clk,
		sink:    sink,
		logger:  logger,
	}
}

// Config returns the active lockout policy
func (t *AttemptTracker) Config() AttemptConfig {
	return t.config
}

// Acquire blocks until the caller holds the login gate for identity and
// returns the function that releases it. While the gate is held no other
// attempt for identity can check, verify or record, so concurrent guesses
// cannot all pass CheckAllowed before the threshold failure is counted.
func (t *AttemptTracker) Acquire(ctx context.Context, identity string) (func(), error) {
	t.gateMu.Lock()
	gate, ok := t.gates[identity]
	if !ok {
		gate = &identityGate{sem: make(chan struct{}, 1)}
		t.gates[identity] = gate
	}
	gate.refs++
	t.gateMu.Unlock()

	select {
	case gate.sem <- struct{}{}:
	case <-ctx.Done():
		t.dropGate(identity, gate)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-gate.sem
			t.dropGate(identity, gate)
		})
	}, nil
}

func (t *AttemptTracker) dropGate(identity string, gate *identityGate) {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()

	gate.refs--
	if gate.refs == 0 {
		delete(t.gates, identity)
	}
}

// pendingGates reports how many identities currently have a gate allocated
func (t *AttemptTracker) pendingGates() int {
	t.gateMu.Lock()
	defer t.gateMu.Unlock()
	return len(t.gates)
}

// CheckAllowed reports whether identity may attempt a login now.
// When it may not, retryAfter is the time left on the lockout.
func (t *AttemptTracker) CheckAllowed(identity string) (bool, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[identity]
	if !ok {
		return true, 0
	}

	now := t.clock.Now()
	if rec.LockedAt(now) {
		return false, rec.LockedUntil.Sub(now)
	}
	return true, 0
}

// RecordFailure counts a failed attempt and locks the identity when the
// threshold is reached. A lapsed lock is discarded first so the count starts over.
func (t *AttemptTracker) RecordFailure(ctx context.Context, identity, sourceIP string) {
	t.mu.Lock()

	now := t.clock.Now()
	rec, ok := t.records[identity]
	if !ok {
		rec = &models.AttemptRecord{}
		t.records[identity] = rec
	}

	lapsed := rec.LockLapsedAt(now)
	if lapsed {
		rec.FailureCount = 0
		rec.LockedUntil = nil
	}

	wasLocked := rec.LockedAt(now)
	rec.FailureCount++
	rec.LastAttemptAt = now
	count := rec.FailureCount

	var event models.SecurityEvent
	if !wasLocked && count >= t.config.MaxLoginAttempts {
		until := now.Add(t.config.LockoutDuration)
		rec.LockedUntil = &until
		event = models.NewSecurityEvent(models.EventLockoutTriggered, identity, sourceIP, now).
			WithMetadata("failure_count", count).
			WithMetadata("locked_until", until.Format(time.RFC3339))
	} else {
		event = models.NewSecurityEvent(models.EventLoginFailure, identity, sourceIP, now).
			WithMetadata("failure_count", count)
	}

	t.mu.Unlock()

	if lapsed && t.logger != nil {
		t.logger.Debug("lockout lapsed, failure count restarted", slog.String("identity", identity))
	}
	t.emit(ctx, event)
}

// RecordSuccess clears the identity's record, emitting lockout_cleared
// when a lockout had been set.
func (t *AttemptTracker) RecordSuccess(ctx context.Context, identity, sourceIP string) {
	t.mu.Lock()

	now := t.clock.Now()
	rec, ok := t.records[identity]
	hadLock := ok && rec.LockedUntil != nil
	delete(t.records, identity)

	t.mu.Unlock()

	if hadLock {
		t.emit(ctx, models.NewSecurityEvent(models.EventLockoutCleared, identity, sourceIP, now))
	}
}

// FailureCount returns the consecutive failures currently counted for identity
func (t *AttemptTracker) FailureCount(identity string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[identity]; ok {
		return rec.FailureCount
	}
	return 0
}

// Snapshot summarises tracker state
func (t *AttemptTracker) Snapshot() AttemptStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	stats := AttemptStats{TrackedIdentities: len(t.records)}
	for _, rec := range t.records {
		stats.TotalFailures += rec.FailureCount
		if rec.LockedAt(now) {
			stats.LockedIdentities++
		}
	}
	return stats
}

// LockedCount returns the number of identities currently locked out
func (t *AttemptTracker) LockedCount() int {
	return t.Snapshot().LockedIdentities
}

// Sweep evicts records with no activity for idle that are not under an active lock.
// Returns the number of records removed.
func (t *AttemptTracker) Sweep(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	removed := 0
	for identity, rec := range t.records {
		if rec.LockedAt(now) {
			continue
		}
		if now.Sub(rec.LastAttemptAt) >= idle {
			delete(t.records, identity)
			removed++
		}
	}
	return removed
}

func (t *AttemptTracker) emit(ctx context.Context, event models.SecurityEvent) {
	if t.sink == nil {
		return
	}
	t.sink.Record(ctx, event)
}
