package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/consoleguard/internal/metrics"
	"github.com/BradenHooton/consoleguard/pkg/clock"
)

// SessionSweeper removes expired sessions and reports how many it removed
type SessionSweeper interface {
	Sweep() int
}

// AttemptSweeper evicts attempt records idle for longer than idle
type AttemptSweeper interface {
	Sweep(idle time.Duration) int
}

// EventPruner deletes persisted security events older than cutoff
type EventPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupConfig controls what a cleanup pass removes. A zero Retention
// disables audit pruning.
type CleanupConfig struct {
	Interval       time.Duration
	AttemptIdleTTL time.Duration
	Retention      time.Duration
}

// CleanupManager periodically drops expired sessions, idle attempt records
// and persisted security events past retention
type CleanupManager struct {
	sessions SessionSweeper
	attempts AttemptSweeper
	events   EventPruner
	config   CleanupConfig
	clock    clock.Clock
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. events may be nil when no audit store is configured.
func NewCleanupManager(
	sessions SessionSweeper,
	attempts AttemptSweeper,
	events EventPruner,
	config CleanupConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *CleanupManager {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &CleanupManager{
		sessions: sessions,
		attempts: attempts,
		events:   events,
		config:   config,
		clock:    clk,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a pass immediately and then on every tick until stopped
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.config.Interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// CleanupResult reports what a single pass removed
type CleanupResult struct {
	Sessions int
	Attempts int
	Events   int64
}

// RunOnce performs a single cleanup pass and reports what it removed
func (cm *CleanupManager) RunOnce(ctx context.Context) CleanupResult {
	var result CleanupResult

	if cm.sessions != nil {
		result.Sessions = cm.sessions.Sweep()
		metrics.CleanupRemoved.WithLabelValues("sessions").Add(float64(result.Sessions))
	}

	if cm.attempts != nil && cm.config.AttemptIdleTTL > 0 {
		result.Attempts = cm.attempts.Sweep(cm.config.AttemptIdleTTL)
		metrics.CleanupRemoved.WithLabelValues("attempts").Add(float64(result.Attempts))
	}

	if cm.events != nil && cm.config.Retention > 0 {
		pruneCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		n, err := cm.events.Prune(pruneCtx, cm.clock.Now().Add(-cm.config.Retention))
		cancel()
		if err != nil {
			cm.logger.Error("failed to prune security events", slog.Any("error", err))
		} else {
			result.Events = n
			metrics.CleanupRemoved.WithLabelValues("events").Add(float64(n))
		}
	}

	if result.Sessions > 0 || result.Attempts > 0 || result.Events > 0 {
		cm.logger.Info("cleanup completed",
			slog.Int("expired_sessions", result.Sessions),
			slog.Int("idle_attempt_records", result.Attempts),
			slog.Int64("pruned_events", result.Events),
		)
	}

	return result
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
