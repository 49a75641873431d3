// Package time contains clock and sleep helpers shared by the resilience
// layer, the session manager and the batch orchestrator
package time

import (
	"context"
	"time"
)

// Clock is the seam every timer-driven component reads time through
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case
	Sleep(ctx context.Context, d time.Duration) error
}

// System is the wall clock
var System Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error { return SleepCtx(ctx, d) }

// OrSystem returns c, or the wall clock when c is nil
func OrSystem(c Clock) Clock {
	if c == nil {
		return System
	}
	return c
}

// SleepCtx waits for d unless ctx is cancelled first. d <= 0 returns immediately
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Since is Clock aware time.Since
func Since(c Clock, t time.Time) time.Duration { return OrSystem(c).Now().Sub(t) }
