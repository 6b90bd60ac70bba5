package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/consoleguard/internal/models"
	"github.com/BradenHooton/consoleguard/internal/services"
	"github.com/BradenHooton/consoleguard/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var trackerEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestTracker(cfg services.AttemptConfig) (*services.AttemptTracker, *clock.Fake, *services.RecordingSink) {
	clk := clock.NewFake(trackerEpoch)
	sink := &services.RecordingSink{}
	return services.NewAttemptTracker(cfg, clk, sink, newTestLogger()), clk, sink
}

func TestAttemptTracker_UnknownIdentityAllowed(t *testing.T) {
	tracker, _, sink := newTestTracker(services.DefaultAttemptConfig())

	allowed, retryAfter := tracker.CheckAllowed("nobody")

	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
	assert.Empty(t, sink.Events())
}

func TestAttemptTracker_AliceLockout(t *testing.T) {
	ctx := context.Background()
	tracker, clk, sink := newTestTracker(services.DefaultAttemptConfig())

	for i := 0; i < 4; i++ {
		tracker.RecordFailure(ctx, "alice", "10.0.0.1")
	}
	allowed, _ := tracker.CheckAllowed("alice")
	assert.True(t, allowed, "four failures must not lock")
	assert.Equal(t, 4, tracker.FailureCount("alice"))

	tracker.RecordFailure(ctx, "alice", "10.0.0.1")
	allowed, retryAfter := tracker.CheckAllowed("alice")
	assert.False(t, allowed, "fifth failure must lock")
	assert.Equal(t, 30*time.Minute, retryAfter)

	kinds := sink.Kinds()
	require.Len(t, kinds, 5)
	assert.Equal(t, models.EventLoginFailure, kinds[3])
	assert.Equal(t, models.EventLockoutTriggered, kinds[4])

	clk.Advance(6 * time.Minute)
	allowed, retryAfter = tracker.CheckAllowed("alice")
	assert.False(t, allowed, "still locked six minutes later")
	assert.Equal(t, 24*time.Minute, retryAfter)

	clk.Advance(24 * time.Minute)
	allowed, retryAfter = tracker.CheckAllowed("alice")
	assert.True(t, allowed, "lock lapses exactly at LockedUntil")
	assert.Zero(t, retryAfter)

	tracker.RecordSuccess(ctx, "alice", "10.0.0.1")
	assert.Zero(t, tracker.FailureCount("alice"))
	assert.Equal(t, models.EventLockoutCleared, sink.Last().Kind)
}

func TestAttemptTracker_ShortLockoutLapses(t *testing.T) {
	ctx := context.Background()
	tracker, clk, _ := newTestTracker(services.AttemptConfig{MaxLoginAttempts: 5, LockoutDuration: 5 * time.Minute})

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(ctx, "alice", "10.0.0.1")
	}
	allowed, retryAfter := tracker.CheckAllowed("alice")
	require.False(t, allowed)
	assert.Equal(t, 5*time.Minute, retryAfter)

	clk.Advance(6 * time.Minute)
	allowed, _ = tracker.CheckAllowed("alice")
	assert.True(t, allowed)
}

func TestAttemptTracker_FailureWhileLockedDoesNotExtend(t *testing.T) {
	ctx := context.Background()
	tracker, clk, sink := newTestTracker(services.DefaultAttemptConfig())

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(ctx, "carol", "10.0.0.2")
	}
	clk.Advance(10 * time.Minute)
	tracker.RecordFailure(ctx, "carol", "10.0.0.2")

	_, retryAfter := tracker.CheckAllowed("carol")
	assert.Equal(t, 20*time.Minute, retryAfter)
	assert.Equal(t, 6, tracker.FailureCount("carol"))
	assert.Equal(t, models.EventLoginFailure, sink.Last().Kind)
}

func TestAttemptTracker_FailureAfterLapseStartsFresh(t *testing.T) {
	ctx := context.Background()
	tracker, clk, sink := newTestTracker(services.DefaultAttemptConfig())

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(ctx, "dave", "10.0.0.3")
	}
	clk.Advance(31 * time.Minute)

	tracker.RecordFailure(ctx, "dave", "10.0.0.3")

	assert.Equal(t, 1, tracker.FailureCount("dave"))
	allowed, _ := tracker.CheckAllowed("dave")
	assert.True(t, allowed)
	assert.Equal(t, models.EventLoginFailure, sink.Last().Kind)
}

func TestAttemptTracker_SuccessWithoutLockEmitsNothing(t *testing.T) {
	ctx := context.Background()
	tracker, _, sink := newTestTracker(services.DefaultAttemptConfig())

	tracker.RecordFailure(ctx, "erin", "10.0.0.4")
	tracker.RecordSuccess(ctx, "erin", "10.0.0.4")

	assert.Zero(t, tracker.FailureCount("erin"))
	assert.Equal(t, []models.EventKind{models.EventLoginFailure}, sink.Kinds())
}

func TestAttemptTracker_IdentitiesAreIndependent(t *testing.T) {
	ctx := context.Background()
	tracker, _, _ := newTestTracker(services.DefaultAttemptConfig())

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(ctx, "alice", "10.0.0.1")
	}

	allowed, _ := tracker.CheckAllowed("Alice")
	assert.True(t, allowed, "identities are not case-normalized")
}

func TestAttemptTracker_SnapshotAndSweep(t *testing.T) {
	ctx := context.Background()
	tracker, clk, _ := newTestTracker(services.DefaultAttemptConfig())

	for i := 0; i < 5; i++ {
		tracker.RecordFailure(ctx, "locked", "10.0.0.1")
	}
	tracker.RecordFailure(ctx, "idle", "10.0.0.2")

	stats := tracker.Snapshot()
	assert.Equal(t, 2, stats.TrackedIdentities)
	assert.Equal(t, 6, stats.TotalFailures)
	assert.Equal(t, 1, stats.LockedIdentities)

	clk.Advance(20 * time.Minute)
	removed := tracker.Sweep(15 * time.Minute)
	assert.Equal(t, 1, removed, "active lock must survive the sweep")
	assert.Equal(t, 1, tracker.Snapshot().TrackedIdentities)

	clk.Advance(15 * time.Minute)
	assert.Equal(t, 1, tracker.Sweep(15*time.Minute))
	assert.Zero(t, tracker.Snapshot().TrackedIdentities)
}

func TestAttemptTracker_ConcurrentFailuresCountExactly(t *testing.T) {
	ctx := context.Background()
	tracker, _, sink := newTestTracker(services.AttemptConfig{MaxLoginAttempts: 1000, LockoutDuration: time.Minute})

	const workers = 50
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tracker.RecordFailure(ctx, "shared", "10.0.0.1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, tracker.FailureCount("shared"))
	assert.Len(t, sink.Events(), workers*perWorker)

	var triggered int
	for _, k := range sink.Kinds() {
		if k == models.EventLockoutTriggered {
			triggered++
		}
	}
	assert.Zero(t, triggered)
}

func TestAttemptTracker_ConcurrentLockTriggersOnce(t *testing.T) {
	ctx := context.Background()
	tracker, _, sink := newTestTracker(services.DefaultAttemptConfig())

	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.RecordFailure(ctx, "burst", "10.0.0.1")
		}()
	}
	wg.Wait()

	var triggered int
	for _, k := range sink.Kinds() {
		if k == models.EventLockoutTriggered {
			triggered++
		}
	}
	assert.Equal(t, 1, triggered)
}

func TestAttemptTracker_DefaultsAppliedForZeroConfig(t *testing.T) {
	tracker := services.NewAttemptTracker(services.AttemptConfig{}, nil, nil, newTestLogger())

	assert.Equal(t, services.DefaultAttemptConfig(), tracker.Config())
}

// Locked iff at least threshold failures were recorded inside the lockout window.
func TestAttemptTracker_ThresholdProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		threshold := rapid.IntRange(1, 10).Draw(rt, "threshold")
		failures := rapid.IntRange(0, 20).Draw(rt, "failures")

		tracker, clk, _ := newTestTracker(services.AttemptConfig{MaxLoginAttempts: threshold, LockoutDuration: time.Hour})
		for i := 0; i < failures; i++ {
			tracker.RecordFailure(context.Background(), "prop", "10.0.0.1")
			clk.Advance(time.Second)
		}

		allowed, retryAfter := tracker.CheckAllowed("prop")
		if failures >= threshold {
			if allowed {
				rt.Fatalf("expected lock after %d failures with threshold %d", failures, threshold)
			}
			if retryAfter <= 0 || retryAfter > time.Hour {
				rt.Fatalf("retryAfter out of range: %s", retryAfter)
			}
		} else if !allowed {
			rt.Fatalf("unexpected lock after %d failures with threshold %d", failures, threshold)
		}

		tracker.RecordSuccess(context.Background(), "prop", "10.0.0.1")
		if allowed, _ := tracker.CheckAllowed("prop"); !allowed {
			rt.Fatalf("success must clear the lock")
		}
	})
}
