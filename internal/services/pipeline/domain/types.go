// Package domain holds the per-order pipeline types and ports
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"detention/internal/adapters/tms"
	"detention/internal/core/detention"
	perr "detention/internal/platform/errors"
	approvaldom "detention/internal/services/approval/domain"
	contractsdom "detention/internal/services/contracts/domain"
)

// Backend is the subset of the TMS client a pipeline uses
type Backend interface {
	GetOrder(ctx context.Context, id string) (tms.Order, error)
	GetExecution(ctx context.Context, orderID string) (tms.Execution, error)
	GetTiming(ctx context.Context, tourID string) (tms.TimingDoc, error)
	UpdateOrder(ctx context.Context, o tms.Order) (string, error)
	AddLineItem(ctx context.Context, orderID, version, code string, amount decimal.Decimal, desc string) (string, error)
	AddComment(ctx context.Context, orderID, text string) error
}

// ContractGate resolves a shipper to its contract
type ContractGate interface {
	ValidateShipper(ctx context.Context, shipper string) (contractsdom.Lookup, error)
}

// Approvals is the approval hand-off
type Approvals interface {
	Request(ctx context.Context, req approvaldom.Request) (approvaldom.Outcome, error)
}

// UndoSink receives every undo record, e.g. a ledger
type UndoSink interface {
	AppendUndo(ctx context.Context, rec UndoRecord) error
}

// Outcome is the terminal state of one order in a report row
type Outcome string

const (
	OutcomeCharged          Outcome = "charged"
	OutcomeReleased         Outcome = "released"
	OutcomeHeld             Outcome = "held"
	OutcomeNoAction         Outcome = "no_action"
	OutcomeAnalysisOnly     Outcome = "analysis_only"
	OutcomeDryRun           Outcome = "dry_run"
	OutcomeNeedsApproval    Outcome = "needs_approval"
	OutcomeApprovalDeclined Outcome = "approval_declined"
	OutcomeApprovalSkipped  Outcome = "approval_skipped"
	OutcomeApprovalTimeout  Outcome = "approval_timeout"
	OutcomeGated            Outcome = "gated"
	OutcomeFailed           Outcome = "failed"
)

// Failed reports a failed row
func (o Outcome) Failed() bool { return o == OutcomeFailed }

// OrderData is the aggregate a single pipeline run owns
type OrderData struct {
	Order     tms.Order
	Execution *tms.Execution
	Timing    map[detention.StopRole]*detention.StopTimes
	Lookup    contractsdom.Lookup
	Results   []detention.AnalysisResult
	// TimingError is set when timing could not be loaded; stops degrade to missing
	TimingError error
}

// NeedsApproval reports whether any stop awaits approval
func (d *OrderData) NeedsApproval() bool {
	for _, r := range d.Results {
		if r.Action == detention.ActionPendingApproval {
			return true
		}
	}
	return false
}

// ReportRow is the terminal record for one order in a run
type ReportRow struct {
	RunID       string                     `json:"run_id,omitempty"`
	OrderID     string                     `json:"order_id"`
	Shipper     string                     `json:"shipper,omitempty"`
	Outcome     Outcome                    `json:"outcome"`
	Total       decimal.Decimal            `json:"total"`
	Stops       []detention.AnalysisResult `json:"stops,omitempty"`
	Decision    approvaldom.Decision       `json:"decision,omitempty"`
	AuthNumber  string                     `json:"auth_number,omitempty"`
	Error       *perr.Wire                 `json:"error,omitempty"`
	Attempts    int                        `json:"attempts"`
	DryRun      bool                       `json:"dry_run,omitempty"`
	ProcessedAt time.Time                  `json:"processed_at"`
}

// AwaitingTiming counts the stops left for a later run because timing is incomplete
func (r ReportRow) AwaitingTiming() int {
	n := 0
	for _, s := range r.Stops {
		if s.AwaitingTiming() {
			n++
		}
	}
	return n
}

// UndoRecord captures enough to reverse one mutation by hand
type UndoRecord struct {
	ID            string             `json:"id"`
	RunID         string             `json:"run_id,omitempty"`
	OrderID       string             `json:"order_id"`
	Role          detention.StopRole `json:"role"`
	Action        detention.Action   `json:"action"`
	LineID        string             `json:"line_id,omitempty"`
	Code          string             `json:"code"`
	PrevAmount    decimal.Decimal    `json:"prev_amount"`
	NewAmount     decimal.Decimal    `json:"new_amount"`
	VersionBefore string             `json:"version_before"`
	VersionAfter  string             `json:"version_after"`
	At            time.Time          `json:"at"`
}

// ProcessOptions tunes one Process call
type ProcessOptions struct {
	RunID string
	// DeferApproval stops before the approval hand-off and returns a needs_approval row
	DeferApproval bool
	// DryRun analyses without mutating
	DryRun bool
}

// PipelinePort is what the orchestrator and the API use
type PipelinePort interface {
	Analyze(ctx context.Context, orderID string) (*OrderData, error)
	Process(ctx context.Context, orderID string, opts ProcessOptions) ReportRow
}
