// Package resilience holds the circuit breaker and retry policy that guard
// every upstream call
package resilience

import (
	"context"
	stderrs "errors"
	"sort"
	"sync"
	"time"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
)

// State is the breaker position
type State int

const (
	// StateClosed passes every call through
	StateClosed State = iota
	// StateHalfOpen lets one trial call at a time through
	StateHalfOpen
	// StateOpen rejects calls until the reset timeout elapses
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultResetTimeout     = 30 * time.Second
)

// BreakerOptions configures a Breaker
type BreakerOptions struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

func (o BreakerOptions) withDefaults() BreakerOptions {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = defaultFailureThreshold
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = defaultSuccessThreshold
	}
	if o.ResetTimeout <= 0 {
		o.ResetTimeout = defaultResetTimeout
	}
	return o
}

// BreakerSnapshot is a point-in-time copy of breaker state
type BreakerSnapshot struct {
	Name              string    `json:"name"`
	State             string    `json:"state"`
	Failures          int       `json:"failures"`
	Successes         int       `json:"successes"`
	NextRetryEligible time.Time `json:"next_retry_eligible,omitzero"`
}

// Breaker is a consecutive-failure circuit breaker for one upstream service
type Breaker struct {
	name  string
	opts  BreakerOptions
	clock ptime.Clock
	log   logger.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	nextRetry time.Time
	inTrial   bool
}

// NewBreaker builds a closed breaker. clock may be nil for the wall clock
func NewBreaker(name string, o BreakerOptions, clock ptime.Clock) *Breaker {
	b := &Breaker{
		name:  name,
		opts:  o.withDefaults(),
		clock: ptime.OrSystem(clock),
		log:   logger.Named("breaker").With().Str("service", name).Logger(),
	}
	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b
}

// Name returns the guarded service name
func (b *Breaker) Name() string { return b.name }

// State returns the current state without side effects
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the counters for diagnostics
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:              b.name,
		State:             b.state.String(),
		Failures:          b.failures,
		Successes:         b.successes,
		NextRetryEligible: b.nextRetry,
	}
}

// Reset forces the breaker closed with zeroed counters
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures, b.successes, b.inTrial = 0, 0, false
	b.nextRetry = time.Time{}
}

// Execute runs fn if the breaker admits it and records the outcome
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}
	callErr := fn(ctx)
	b.record(trial, callErr)
	return callErr
}

// admit decides whether a call may proceed; trial is true for the half-open trial call
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if b.clock.Now().Before(b.nextRetry) {
			return false, b.openErr()
		}
		b.transition(StateHalfOpen)
		b.successes = 0
		b.inTrial = true
		return true, nil
	default:
		if b.inTrial {
			return false, b.openErr()
		}
		b.inTrial = true
		return true, nil
	}
}

func (b *Breaker) record(trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.inTrial = false
	}
	if stderrs.Is(err, context.Canceled) {
		// the caller walked away; the call says nothing about upstream health
		return
	}
	failed := IsFailure(err)

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		if !trial {
			return
		}
		if failed {
			b.trip()
			return
		}
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.transition(StateClosed)
			b.failures, b.successes = 0, 0
			b.nextRetry = time.Time{}
		}
	case StateOpen:
		// a call admitted before the trip finished late; counters already reset
	}
}

// trip opens the breaker; caller holds mu
func (b *Breaker) trip() {
	b.transition(StateOpen)
	b.nextRetry = b.clock.Now().Add(b.opts.ResetTimeout)
	b.failures, b.successes = 0, 0
}

// transition records the state change; caller holds mu
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))
	b.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker transition")
}

func (b *Breaker) openErr() error {
	return perr.Newf(perr.ErrorCodeCircuitOpen, "%s circuit open until %s", b.name, b.nextRetry.Format(time.RFC3339))
}

// IsFailure reports whether err counts against upstream health.
// Transport failures and 5xx do; business, auth and parse outcomes mean upstream answered
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch perr.CodeOf(err) {
	case perr.ErrorCodeNetwork, perr.ErrorCodeTimeout, perr.ErrorCodeTooManyRequests, perr.ErrorCodeUnavailable:
		return true
	case perr.ErrorCodeUnknown:
		return stderrs.Is(err, context.DeadlineExceeded)
	}
	return false
}

// Registry hands out one breaker per upstream service
type Registry struct {
	opts  BreakerOptions
	clock ptime.Clock

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry builds an empty registry; every breaker shares opts and clock
func NewRegistry(o BreakerOptions, clock ptime.Clock) *Registry {
	return &Registry{opts: o, clock: clock, breakers: map[string]*Breaker{}}
}

// Get returns the breaker for service, creating it on first use
func (r *Registry) Get(service string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[service]; ok {
		return b
	}
	b := NewBreaker(service, r.opts, r.clock)
	r.breakers[service] = b
	return b
}

// Snapshot returns every breaker's state
func (r *Registry) Snapshot() []BreakerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BreakerSnapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset closes every breaker
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}
