// Package domain holds the session token types and ports
package domain

import (
	"context"
	"time"
)

// Token is an acquired session token
type Token struct {
	Value      string
	AcquiredAt time.Time
	Source     string
}

// Status is the token lifetime view for the API and the batch orchestrator
type Status struct {
	Valid      bool          `json:"valid"`
	Source     string        `json:"source,omitempty"`
	AcquiredAt time.Time     `json:"acquired_at,omitzero"`
	ExpiresAt  time.Time     `json:"expires_at,omitzero"`
	Remaining  time.Duration `json:"remaining_ns"`
	Warning    bool          `json:"warning"`
}

// Source acquires a fresh token. Sources are tried in order until one succeeds
type Source interface {
	Name() string
	Acquire(ctx context.Context) (string, error)
}

// ManagerPort is what the pipeline, the orchestrator and the API use
type ManagerPort interface {
	Ensure(ctx context.Context) (Token, error)
	EnsureFresh(ctx context.Context, minRemaining time.Duration) (Token, error)
	Token(ctx context.Context) (string, error)
	Invalidate(token string)
	Remaining() time.Duration
	Status() Status
}
