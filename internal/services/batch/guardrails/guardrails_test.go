package guardrails

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocalLease_ExclusiveUntilReleased(t *testing.T) {
	t.Parallel()

	lease := LocalLease()
	ctx := context.Background()

	release, err := lease(ctx, "batch")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := lease(ctx, "batch"); !errors.Is(err, ErrLeaseHeld) {
		t.Fatalf("second claim err = %v, want ErrLeaseHeld", err)
	}
	if r2, err := lease(ctx, "other"); err != nil {
		t.Fatalf("other name: %v", err)
	} else {
		r2()
	}

	release()
	release() // second call is a no-op

	again, err := lease(ctx, "batch")
	if err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	again()
}

func TestWithChildTimeout(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		parent    time.Duration
		child     time.Duration
		wantDL    bool
		wantUnder time.Duration
	}{
		{"zero child no parent", 0, 0, false, 0},
		{"child only", 0, time.Minute, true, time.Minute},
		{"parent tighter", time.Second, time.Hour, true, time.Second},
		{"child tighter", time.Hour, time.Second, true, time.Second},
		{"zero child inherits parent", time.Minute, 0, true, time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parent := context.Background()
			if tc.parent > 0 {
				var cancel context.CancelFunc
				parent, cancel = context.WithTimeout(parent, tc.parent)
				defer cancel()
			}
			ctx, cancel := withChildTimeout(parent, tc.child)
			defer cancel()

			dl, ok := ctx.Deadline()
			if ok != tc.wantDL {
				t.Fatalf("deadline set = %v, want %v", ok, tc.wantDL)
			}
			if ok && time.Until(dl) > tc.wantUnder {
				t.Fatalf("deadline %v exceeds %v", time.Until(dl), tc.wantUnder)
			}
		})
	}
}

func TestForSave_SurvivesParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	ctx, done := ForSave(parent, Timeouts{Save: time.Minute})
	defer done()
	if ctx.Err() != nil {
		t.Fatalf("save ctx err = %v", ctx.Err())
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("save ctx should carry the Save budget")
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	if got := Remaining(context.Background()); got != 0 {
		t.Fatalf("no deadline = %v", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	if got := Remaining(ctx); got <= 0 || got > time.Hour {
		t.Fatalf("remaining = %v", got)
	}
}
