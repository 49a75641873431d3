// Package domain holds the approval hand-off types
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"detention/internal/core/detention"
)

// Decision is the collaborator's answer to an approval request
type Decision string

const (
	DecisionApprove   Decision = "approve"
	DecisionDecline   Decision = "decline"
	DecisionSkip      Decision = "skip"
	DecisionTimeout   Decision = "timeout"
	DecisionCancelled Decision = "cancelled"
)

// Valid reports whether d may be submitted by a collaborator
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionDecline, DecisionSkip:
		return true
	}
	return false
}

// StopCharge is one stop awaiting approval
type StopCharge struct {
	Role              detention.StopRole `json:"role"`
	Amount            decimal.Decimal    `json:"amount"`
	ChargeableMinutes int                `json:"chargeable_minutes"`
	Breakdown         string             `json:"breakdown"`
}

// Request is one pending approval
type Request struct {
	ID           string          `json:"id"`
	RunID        string          `json:"run_id,omitempty"`
	OrderID      string          `json:"order_id"`
	Shipper      string          `json:"shipper"`
	Stops        []StopCharge    `json:"stops"`
	Total        decimal.Decimal `json:"total"`
	AuthRequired bool            `json:"auth_required"`
	CreatedAt    time.Time       `json:"created_at"`
	Deadline     time.Time       `json:"deadline"`
}

// Outcome resolves a request
type Outcome struct {
	Decision   Decision  `json:"decision" validate:"required,oneof=approve decline skip"`
	AuthNumber string    `json:"auth_number,omitempty" validate:"omitempty,max=64"`
	Note       string    `json:"note,omitempty" validate:"omitempty,max=500"`
	DecidedBy  string    `json:"decided_by,omitempty" validate:"omitempty,max=64"`
	DecidedAt  time.Time `json:"decided_at,omitzero"`
}

// HubPort is used by pipelines to wait and by the API to answer
type HubPort interface {
	Request(ctx context.Context, req Request) (Outcome, error)
	Decide(id string, out Outcome) error
	Pending() []Request
}
