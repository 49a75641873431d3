package resilience

import (
	"context"
	"testing"
	"time"

	perr "detention/internal/platform/errors"
	kit "detention/internal/platform/testkit"
)

type waitHint struct {
	error
	d time.Duration
}

func (w waitHint) RetryAfter() time.Duration { return w.d }
func (w waitHint) Unwrap() error             { return w.error }

func newTestPolicy(clk *kit.ManualClock) *RetryPolicy {
	p := NewRetryPolicy(RetryOptions{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, RateLimitFactor: 3}, clk)
	// no jitter: always the upper half boundary minus nothing
	p.jit = func(n int64) int64 { return n }
	return p
}

func TestRetryRetriesTransientUntilSuccess(t *testing.T) {
	clk := kit.NewManualClock(time.Unix(0, 0))
	p := newTestPolicy(clk)

	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return perr.New(perr.ErrorCodeTimeout, "slow")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
	sl := clk.Sleeps()
	if len(sl) != 2 || sl[0] != 100*time.Millisecond || sl[1] != 200*time.Millisecond {
		t.Fatalf("sleeps = %v", sl)
	}
}

func TestRetryStopsAtCeiling(t *testing.T) {
	clk := kit.NewManualClock(time.Unix(0, 0))
	p := newTestPolicy(clk)
	calls := 0
	err := p.Do(context.Background(), nil, func(context.Context) error {
		calls++
		return perr.New(perr.ErrorCodeNetwork, "down")
	})
	if !perr.IsCode(err, perr.ErrorCodeNetwork) || calls != 4 {
		t.Fatalf("err = %v calls = %d, want 4 attempts", err, calls)
	}
}

func TestRetryDoesNotRetryNonTransient(t *testing.T) {
	for _, code := range []perr.ErrorCode{perr.ErrorCodeUnauthorized, perr.ErrorCodeConflict, perr.ErrorCodeValidation, perr.ErrorCodeJSON} {
		clk := kit.NewManualClock(time.Unix(0, 0))
		p := newTestPolicy(clk)
		calls := 0
		_ = p.Do(context.Background(), nil, func(context.Context) error {
			calls++
			return perr.New(code, "no")
		})
		if calls != 1 {
			t.Fatalf("%v retried %d times", code, calls-1)
		}
	}
}

func TestRetryRateLimitFactorAndCap(t *testing.T) {
	p := newTestPolicy(kit.NewManualClock(time.Unix(0, 0)))
	rl := perr.New(perr.ErrorCodeTooManyRequests, "slow down")
	if got := p.Backoff(0, rl); got != 300*time.Millisecond {
		t.Fatalf("rate limited backoff = %s", got)
	}
	if got := p.Backoff(10, perr.New(perr.ErrorCodeNetwork, "x")); got != time.Second {
		t.Fatalf("capped backoff = %s", got)
	}
	if got := p.Backoff(0, waitHint{rl, 5 * time.Second}); got != 5*time.Second {
		t.Fatalf("Retry-After hint ignored: %s", got)
	}
}

func TestRetryConsultsBreakerEveryAttempt(t *testing.T) {
	clk := kit.NewManualClock(time.Unix(0, 0))
	p := newTestPolicy(clk)
	b := NewBreaker("timing", BreakerOptions{FailureThreshold: 2, ResetTimeout: time.Minute}, clk)

	calls := 0
	err := p.Do(context.Background(), b, func(context.Context) error {
		calls++
		return perr.New(perr.ErrorCodeNetwork, "down")
	})
	if calls != 2 {
		t.Fatalf("calls = %d, breaker should stop the third attempt", calls)
	}
	if !perr.IsCode(err, perr.ErrorCodeCircuitOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPolicy(kit.NewManualClock(time.Unix(0, 0)))
	if err := p.Do(ctx, nil, failWith(nil)); err == nil {
		t.Fatalf("cancelled ctx should short circuit")
	}
}
