// Package detention implements the per-stop detention charge rules.
// Everything here is pure: no I/O, no clocks, no shared state
package detention

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StopRole is the physical stop position in the two-stop freight model
type StopRole string

const (
	// RolePickup is the origin stop
	RolePickup StopRole = "pickup"
	// RoleDelivery is the destination stop
	RoleDelivery StopRole = "delivery"
)

// Roles lists stops in physical order
var Roles = []StopRole{RolePickup, RoleDelivery}

// LoadType is how the trailer is handled at a stop
type LoadType string

const (
	// LoadLive means the driver waits while the trailer is loaded or unloaded
	LoadLive LoadType = "live"
	// LoadDropHook means the driver drops a trailer and hooks another
	LoadDropHook LoadType = "drop_hook"
)

// RateUnit is the billing unit for Contract.Rate
type RateUnit string

const (
	// PerHour bills rate per 60 chargeable minutes
	PerHour RateUnit = "hour"
	// PerMinute bills rate per chargeable minute
	PerMinute RateUnit = "minute"
)

// Rounding is the billing increment rounding mode
type Rounding string

const (
	// RoundNone leaves chargeable minutes untouched
	RoundNone Rounding = ""
	// RoundUp rounds to the next increment
	RoundUp Rounding = "up"
	// RoundDown truncates to the previous increment
	RoundDown Rounding = "down"
	// RoundNearest rounds to the closest increment, exact halves go up
	RoundNearest Rounding = "nearest"
)

// RuleKey addresses one cell of the eligibility table
type RuleKey struct {
	Role StopRole
	Load LoadType
}

// FreeTimeRule is one eligibility cell
type FreeTimeRule struct {
	Eligible    bool `json:"eligible"`
	FreeMinutes int  `json:"free_minutes"`
}

// Contract is a validated per-shipper billing agreement (SOW).
// Only the contracts store constructs these
type Contract struct {
	Shipper          string          `json:"shipper"`
	Rate             decimal.Decimal `json:"rate"`
	Unit             RateUnit        `json:"unit"`
	MaxCharge        decimal.Decimal `json:"max_charge"`
	BillingIncrement int             `json:"billing_increment,omitempty"`
	Rounding         Rounding        `json:"rounding,omitempty"`
	MinimumMinutes   int             `json:"minimum_minutes,omitempty"`

	// LateThresholdMinutes overrides the engine default when set
	LateThresholdMinutes *int `json:"late_threshold_minutes,omitempty"`

	Rules map[RuleKey]FreeTimeRule `json:"-"`

	RequiresApproval   bool `json:"requires_approval"`
	AutoChargeAllowed  bool `json:"auto_charge_allowed"`
	AuthNumberRequired bool `json:"auth_number_required"`
}

// Rule returns the eligibility cell, zero value (not eligible) when absent
func (c Contract) Rule(role StopRole, load LoadType) FreeTimeRule {
	return c.Rules[RuleKey{Role: role, Load: load}]
}

// OrderStatus is the backend order status string
type OrderStatus string

// Cancelled covers cancelled and rejected orders
func (s OrderStatus) Cancelled() bool {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "cancelled", "canceled", "rejected":
		return true
	}
	return false
}

// Invoiced covers invoiced and paid orders
func (s OrderStatus) Invoiced() bool {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "invoiced", "paid", "billed":
		return true
	}
	return false
}

// Stamp is one timestamp with provenance. Source is empty for the authoritative
// run and "run:<id>" when borrowed from a sibling run
type Stamp struct {
	At     time.Time `json:"at,omitzero"`
	Source string    `json:"source,omitempty"`
}

// Present reports whether the stamp carries a time
func (s Stamp) Present() bool { return !s.At.IsZero() }

// Borrowed reports whether the value came from a sibling run
func (s Stamp) Borrowed() bool { return s.Present() && s.Source != "" }

// StopTimes are the planned and actual stamps for one stop
type StopTimes struct {
	PlannedArrival   Stamp `json:"planned_arrival"`
	PlannedDeparture Stamp `json:"planned_departure"`
	ActualArrival    Stamp `json:"actual_arrival"`
	ActualDeparture  Stamp `json:"actual_departure"`
}

// Provenance lists the sources of any borrowed stamps
func (t StopTimes) Provenance() []string {
	var out []string
	for _, s := range []Stamp{t.PlannedArrival, t.PlannedDeparture, t.ActualArrival, t.ActualDeparture} {
		if s.Borrowed() {
			out = append(out, s.Source)
		}
	}
	return out
}

// Hold is the existing detention line for a stop role, possibly zero amount
type Hold struct {
	Present bool            `json:"present"`
	Amount  decimal.Decimal `json:"amount"`
	LineID  string          `json:"line_id,omitempty"`
}

// Zero reports a placeholder hold with no amount
func (h Hold) Zero() bool { return h.Present && h.Amount.IsZero() }

// StopInput is everything the engine needs for one stop
type StopInput struct {
	Role   StopRole
	Load   LoadType
	Status OrderStatus
	Hold   Hold
	// Timing is nil when no timing record matched this stop
	Timing *StopTimes
}

// ResultType is the analysis outcome for a stop
type ResultType string

const (
	ResultCancelled        ResultType = "cancelled"
	ResultInvoiced         ResultType = "invoiced"
	ResultMissingArrival   ResultType = "missing_arrival"
	ResultMissingDeparture ResultType = "missing_departure"
	ResultNotEligible      ResultType = "not_eligible"
	ResultDriverLate       ResultType = "driver_late"
	ResultWithinFreeTime   ResultType = "within_free_time"
	ResultBelowMinimum     ResultType = "below_minimum"
	ResultChargeable       ResultType = "chargeable"
	ResultChargeableAtCap  ResultType = "chargeable_at_cap"
	ResultChargeExists     ResultType = "charge_exists"
	ResultSOWNotConfigured ResultType = "sow_not_configured"
	ResultSOWDisabled      ResultType = "sow_disabled"
	ResultSOWIncomplete    ResultType = "sow_incomplete"
	ResultUnknown          ResultType = "unknown"
)

// Charged reports whether the result carries a positive charge
func (r ResultType) Charged() bool { return r == ResultChargeable || r == ResultChargeableAtCap }

// Action is what the pipeline should do about a stop
type Action string

const (
	ActionUpdateCharge    Action = "update_existing_charge"
	ActionCreateCharge    Action = "create_new_charge"
	ActionReleaseHold     Action = "release_hold"
	ActionCreateZeroHold  Action = "create_zero_hold"
	ActionAnalysisOnly    Action = "analysis_only"
	ActionNone            Action = "no_action"
	ActionPendingApproval Action = "pending_approval"
	ActionError           Action = "error"
)

// Mutates reports whether the action changes the order
func (a Action) Mutates() bool {
	switch a {
	case ActionUpdateCharge, ActionCreateCharge, ActionReleaseHold, ActionCreateZeroHold:
		return true
	}
	return false
}

// AnalysisResult is the decision for one stop. Fields above the execution block are
// fixed once Evaluate returns; the pipeline only fills the execution fields
type AnalysisResult struct {
	Role      StopRole        `json:"role"`
	Load      LoadType        `json:"load"`
	Result    ResultType      `json:"result"`
	Action    Action          `json:"action"`
	Amount    decimal.Decimal `json:"amount"`
	Breakdown string          `json:"breakdown"`

	DelayMinutes      int             `json:"delay_minutes"`
	FreeMinutes       int             `json:"free_minutes"`
	ChargeableMinutes int             `json:"chargeable_minutes"`
	ComputedAmount    decimal.Decimal `json:"computed_amount"`
	HitMax            bool            `json:"hit_max"`
	Hold              Hold            `json:"hold"`
	Provenance        []string        `json:"provenance,omitempty"`

	Processed       bool            `json:"processed"`
	ProcessedAction Action          `json:"processed_action,omitempty"`
	ProcessedAmount decimal.Decimal `json:"processed_amount"`
	ProcessError    string          `json:"process_error,omitempty"`
}
