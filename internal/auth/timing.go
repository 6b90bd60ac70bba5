package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// FailureDelay pads failed logins to a minimum duration plus jitter so that
// unknown users and wrong passwords are indistinguishable by timing.
type FailureDelay struct {
	Base   time.Duration
	Jitter time.Duration

	sleep func(ctx context.Context, d time.Duration)
}

// NewFailureDelay creates a FailureDelay
func NewFailureDelay(base, jitter time.Duration) *FailureDelay {
	return &FailureDelay{
		Base:   base,
		Jitter: jitter,
		sleep:  sleepContext,
	}
}

// cryptoRandDuration returns a secure random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(randomBytes) % uint64(max))
}

// Target returns the padded duration for one failure
func (d *FailureDelay) Target() time.Duration {
	return d.Base + cryptoRandDuration(d.Jitter)
}

// PadFrom sleeps until at least Target has elapsed since start.
// It returns early if ctx is cancelled.
func (d *FailureDelay) PadFrom(ctx context.Context, start time.Time) {
	if d == nil || (d.Base <= 0 && d.Jitter <= 0) {
		return
	}

	remaining := d.Target() - time.Since(start)
	if remaining <= 0 {
		return
	}
	d.sleep(ctx, remaining)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
