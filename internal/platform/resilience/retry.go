package resilience

import (
	"context"
	stderrs "errors"
	"math/rand/v2"
	"time"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
)

const (
	defaultMaxRetries      = 3
	defaultBaseDelay       = 500 * time.Millisecond
	defaultMaxDelay        = 10 * time.Second
	defaultRateLimitFactor = 3.0
)

// RetryOptions configures a RetryPolicy
type RetryOptions struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	RateLimitFactor float64
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	if o.RateLimitFactor < 1 {
		o.RateLimitFactor = defaultRateLimitFactor
	}
	return o
}

// RetryAfterer is implemented by errors carrying an upstream wait hint (Retry-After)
type RetryAfterer interface {
	RetryAfter() time.Duration
}

// RetryPolicy retries transient failures with capped exponential backoff and jitter
type RetryPolicy struct {
	opts  RetryOptions
	clock ptime.Clock
	jit   func(n int64) int64
}

// NewRetryPolicy builds a policy. MaxRetries < 0 disables retries
func NewRetryPolicy(o RetryOptions, clock ptime.Clock) *RetryPolicy {
	return &RetryPolicy{opts: o.withDefaults(), clock: ptime.OrSystem(clock), jit: rand.Int64N}
}

// Options returns the effective options
func (p *RetryPolicy) Options() RetryOptions { return p.opts }

// Do runs fn through b, retrying network, timeout and rate-limit failures.
// Every attempt goes through the breaker so open circuits stop the loop early
func (p *RetryPolicy) Do(ctx context.Context, b *Breaker, fn func(context.Context) error) error {
	log := logger.C(ctx)
	service := "direct"
	if b != nil {
		service = b.Name()
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		if b != nil {
			err = b.Execute(ctx, fn)
		} else {
			err = fn(ctx)
		}
		if err == nil {
			return nil
		}
		if !perr.Retryable(err) || attempt >= p.opts.MaxRetries {
			return err
		}

		wait := p.Backoff(attempt, err)
		metrics.Retries.WithLabelValues(service, perr.CodeOf(err).String()).Inc()
		log.Warn().
			Err(err).
			Str("service", service).
			Int("attempt", attempt+1).
			Dur("retry_in", wait).
			Msg("upstream call failed, retrying")

		if err := p.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Backoff returns the wait before the retry that follows attempt (0 based)
func (p *RetryPolicy) Backoff(attempt int, cause error) time.Duration {
	d := p.opts.BaseDelay << uint(attempt)
	if d <= 0 || d > p.opts.MaxDelay {
		d = p.opts.MaxDelay
	}
	// jitter keeps parallel workers from retrying in lockstep
	if half := int64(d / 2); half > 0 {
		d = time.Duration(half + p.jit(half))
	}
	if perr.IsCode(cause, perr.ErrorCodeTooManyRequests) {
		d = time.Duration(float64(d) * p.opts.RateLimitFactor)
	}
	var ra RetryAfterer
	if stderrs.As(cause, &ra) && ra.RetryAfter() > d {
		d = ra.RetryAfter()
	}
	return d
}
