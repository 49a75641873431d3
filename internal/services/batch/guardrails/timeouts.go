// Package guardrails holds cross cutting safety helpers for batch runs
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for batch work.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Order caps one order through the pipeline, approval wait excluded
	Order time.Duration

	// Approval caps one order in the approval pass, decision wait included
	Approval time.Duration

	// Save caps a snapshot or ledger write
	Save time.Duration
}

// ForOrder returns a sub context bounded by Order and any remaining parent budget
func ForOrder(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Order)
}

// ForApproval returns a sub context bounded by Approval and any remaining parent budget
func ForApproval(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Approval)
}

// ForSave returns a context for persistence that survives parent cancellation.
// Snapshots are written after a cancel, so only Save bounds it
func ForSave(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(context.WithoutCancel(parent), t.Save)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// withChildTimeout chooses the tighter of d and any parent remainder. Never extends the parent deadline.
// When d is zero it returns a cancelable child inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
