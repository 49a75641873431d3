package resilience

import (
	"context"
	"testing"
	"time"

	perr "detention/internal/platform/errors"
	kit "detention/internal/platform/testkit"
)

var (
	errNet      = perr.New(perr.ErrorCodeNetwork, "connection reset")
	errConflict = perr.New(perr.ErrorCodeConflict, "version mismatch")
)

func failWith(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func newTestBreaker() (*Breaker, *kit.ManualClock) {
	clk := kit.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	b := NewBreaker("orders", BreakerOptions{FailureThreshold: 3, SuccessThreshold: 2, ResetTimeout: 30 * time.Second}, clk)
	return b, clk
}

func TestBreakerOpensAfterThresholdAndRejectsWithoutCalling(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = b.Execute(ctx, failWith(errNet))
		if b.State() != StateClosed {
			t.Fatalf("breaker opened early after %d failures", i+1)
		}
	}
	_ = b.Execute(ctx, failWith(errNet))
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if called {
		t.Fatalf("open breaker invoked the call")
	}
	if !perr.IsCode(err, perr.ErrorCodeCircuitOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
}

func TestBreakerSingleTrialThenCloses(t *testing.T) {
	b, clk := newTestBreaker()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, failWith(errNet))
	}

	clk.Advance(29 * time.Second)
	if err := b.Execute(ctx, failWith(nil)); !perr.IsCode(err, perr.ErrorCodeCircuitOpen) {
		t.Fatalf("call before reset timeout should be rejected, got %v", err)
	}

	clk.Advance(time.Second)
	var concurrent error
	err := b.Execute(ctx, func(context.Context) error {
		if b.State() != StateHalfOpen {
			t.Fatalf("trial call should run half-open, state = %s", b.State())
		}
		concurrent = b.Execute(ctx, failWith(nil))
		return nil
	})
	if err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if !perr.IsCode(concurrent, perr.ErrorCodeCircuitOpen) {
		t.Fatalf("second call during trial call = %v, want circuit open", concurrent)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("one success should stay half-open, state = %s", b.State())
	}

	if err := b.Execute(ctx, failWith(nil)); err != nil {
		t.Fatalf("second trial call: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed", b.State())
	}
	if s := b.Snapshot(); s.Failures != 0 || s.Successes != 0 {
		t.Fatalf("counters not reset: %+v", s)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clk := newTestBreaker()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, failWith(errNet))
	}
	clk.Advance(30 * time.Second)
	_ = b.Execute(ctx, failWith(errNet))
	if b.State() != StateOpen {
		t.Fatalf("half-open failure should reopen, state = %s", b.State())
	}
	want := clk.Now().Add(30 * time.Second)
	if got := b.Snapshot().NextRetryEligible; !got.Equal(want) {
		t.Fatalf("nextRetryEligible = %s, want %s", got, want)
	}
}

func TestBreakerClosedSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()
	_ = b.Execute(ctx, failWith(errNet))
	_ = b.Execute(ctx, failWith(errNet))
	_ = b.Execute(ctx, failWith(nil))
	_ = b.Execute(ctx, failWith(errNet))
	_ = b.Execute(ctx, failWith(errNet))
	if b.State() != StateClosed {
		t.Fatalf("success should have reset the failure run")
	}
}

func TestBreakerIgnoresBusinessErrors(t *testing.T) {
	b, _ := newTestBreaker()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_ = b.Execute(ctx, failWith(errConflict))
	}
	if b.State() != StateClosed {
		t.Fatalf("business errors tripped the breaker")
	}
}

func TestIsFailure(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errNet, true},
		{perr.New(perr.ErrorCodeTimeout, "x"), true},
		{perr.New(perr.ErrorCodeTooManyRequests, "x"), true},
		{perr.New(perr.ErrorCodeUnavailable, "x"), true},
		{perr.New(perr.ErrorCodeUnauthorized, "x"), false},
		{perr.New(perr.ErrorCodeJSON, "x"), false},
		{errConflict, false},
		{context.DeadlineExceeded, true},
	}
	for _, c := range cases {
		if got := IsFailure(c.err); got != c.want {
			t.Fatalf("IsFailure(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(BreakerOptions{FailureThreshold: 1}, nil)
	a := r.Get("orders")
	if r.Get("orders") != a {
		t.Fatalf("registry should return the same breaker")
	}
	_ = r.Get("contracts")
	_ = a.Execute(context.Background(), failWith(errNet))
	snaps := r.Snapshot()
	if len(snaps) != 2 || snaps[0].Name != "contracts" || snaps[1].State != "open" {
		t.Fatalf("snapshot = %+v", snaps)
	}
	r.Reset()
	if a.State() != StateClosed {
		t.Fatalf("Reset should close breakers")
	}
}
