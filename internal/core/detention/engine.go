package detention

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Options tunes rule evaluation
type Options struct {
	// LateThresholdMinutes is how far past planned arrival a driver may arrive
	// before the stop is treated as driver-late. Contracts may override it
	LateThresholdMinutes int
}

// Engine evaluates stops. The zero value is ready to use
type Engine struct {
	opts Options
}

// NewEngine builds an Engine
func NewEngine(o Options) Engine {
	if o.LateThresholdMinutes < 0 {
		o.LateThresholdMinutes = 0
	}
	return Engine{opts: o}
}

// Evaluate returns the decision for one stop under c. First applicable rule wins
func (e Engine) Evaluate(in StopInput, c Contract) AnalysisResult {
	res := AnalysisResult{
		Role:   in.Role,
		Load:   in.Load,
		Hold:   in.Hold,
		Action: ActionNone,
	}
	if in.Timing != nil {
		res.Provenance = in.Timing.Provenance()
	}

	switch {
	case in.Status.Cancelled():
		return res.with(ResultCancelled, ActionNone, "order is cancelled or rejected")
	case in.Status.Invoiced():
		return res.with(ResultInvoiced, ActionNone, "order is already invoiced")
	case in.Hold.Present && !in.Hold.Amount.IsZero():
		res.Amount = in.Hold.Amount
		return res.with(ResultChargeExists, ActionNone, fmt.Sprintf("%s detention already charged at $%s", in.Role, in.Hold.Amount.StringFixed(2)))
	case in.Timing == nil:
		return res.awaiting(ResultMissingArrival, "no timing record matched this stop")
	case !in.Timing.ActualArrival.Present():
		return res.awaiting(ResultMissingArrival, "actual arrival not recorded")
	case !in.Timing.ActualDeparture.Present():
		return res.awaiting(ResultMissingDeparture, "actual departure not recorded")
	}

	rule := c.Rule(in.Role, in.Load)
	res.FreeMinutes = rule.FreeMinutes
	if !rule.Eligible {
		return res.with(ResultNotEligible, releaseOrNone(in.Hold), fmt.Sprintf("%s %s is not eligible under the contract", in.Role, in.Load))
	}

	t := in.Timing
	if t.PlannedArrival.Present() {
		late := MinutesBetween(t.PlannedArrival.At, t.ActualArrival.At)
		if late > e.lateThreshold(c) {
			return res.with(ResultDriverLate, releaseOrNone(in.Hold), fmt.Sprintf("driver arrived %dm after appointment", late))
		}
	}

	ref := t.PlannedDeparture
	if !ref.Present() {
		ref = t.PlannedArrival
	}
	if !ref.Present() {
		return res.with(ResultUnknown, ActionNone, "no planned time to measure delay from")
	}

	delay := max(0, MinutesBetween(ref.At, t.ActualDeparture.At))
	chargeable := max(0, delay-rule.FreeMinutes)
	res.DelayMinutes = delay
	res.ChargeableMinutes = chargeable

	if chargeable <= 0 {
		return res.with(ResultWithinFreeTime, releaseOrNone(in.Hold), fmt.Sprintf("delay %dm within %dm free time", delay, rule.FreeMinutes))
	}
	if c.MinimumMinutes > 0 && chargeable < c.MinimumMinutes {
		return res.with(ResultBelowMinimum, releaseOrNone(in.Hold), fmt.Sprintf("%dm chargeable is below the %dm minimum", chargeable, c.MinimumMinutes))
	}

	billed := RoundMinutes(chargeable, c.BillingIncrement, c.Rounding)
	if billed <= 0 {
		res.ChargeableMinutes = 0
		return res.with(ResultBelowMinimum, releaseOrNone(in.Hold), fmt.Sprintf("%dm chargeable rounds down to zero", chargeable))
	}
	res.ChargeableMinutes = billed

	final, computed, hitMax := ChargeFor(billed, c)
	res.Amount, res.ComputedAmount, res.HitMax = final, computed, hitMax

	result := ResultChargeable
	if hitMax {
		result = ResultChargeableAtCap
	}
	return res.with(result, selectAction(c, in.Hold), breakdown(delay, rule.FreeMinutes, chargeable, billed, c, final, hitMax))
}

// Evaluate runs the zero-value engine
func Evaluate(in StopInput, c Contract) AnalysisResult { return Engine{}.Evaluate(in, c) }

// GateResult is the result recorded for every stop when the contract gate refuses an order
func GateResult(role StopRole, result ResultType, reason string) AnalysisResult {
	return AnalysisResult{Role: role, Result: result, Action: ActionNone, Breakdown: reason}
}

// ErrorResult marks a stop the pipeline could not evaluate
func ErrorResult(role StopRole, err error) AnalysisResult {
	return AnalysisResult{Role: role, Result: ResultUnknown, Action: ActionError, Breakdown: err.Error()}
}

func (e Engine) lateThreshold(c Contract) int {
	if c.LateThresholdMinutes != nil {
		return *c.LateThresholdMinutes
	}
	return e.opts.LateThresholdMinutes
}

func (r AnalysisResult) with(t ResultType, a Action, why string) AnalysisResult {
	r.Result, r.Action, r.Breakdown = t, a, why
	return r
}

// AwaitingPrefix starts the breakdown of a stop left alone until timing lands.
// Such stops take no action now and are evaluated again on a later run
const AwaitingPrefix = "awaiting timing: "

func (r AnalysisResult) awaiting(t ResultType, why string) AnalysisResult {
	return r.with(t, ActionNone, AwaitingPrefix+why)
}

// AwaitingTiming reports whether r is waiting on timing rather than settled
func (r AnalysisResult) AwaitingTiming() bool {
	return r.Action == ActionNone && strings.HasPrefix(r.Breakdown, AwaitingPrefix)
}

// releaseOrNone releases a placeholder hold when one exists
func releaseOrNone(h Hold) Action {
	if h.Present {
		return ActionReleaseHold
	}
	return ActionNone
}

func selectAction(c Contract, h Hold) Action {
	switch {
	case c.RequiresApproval:
		return ActionPendingApproval
	case c.AutoChargeAllowed:
		if h.Present {
			return ActionUpdateCharge
		}
		return ActionCreateCharge
	case h.Present:
		return ActionAnalysisOnly
	default:
		return ActionCreateZeroHold
	}
}

func breakdown(delay, free, chargeable, billed int, c Contract, amount decimal.Decimal, hitMax bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "delay %dm - free %dm = %dm", delay, free, chargeable)
	if billed != chargeable {
		fmt.Fprintf(&b, ", billed %dm (%s %dm)", billed, c.Rounding, c.BillingIncrement)
	}
	fmt.Fprintf(&b, " at $%s/%s = $%s", c.Rate.StringFixed(2), c.Unit, amount.StringFixed(2))
	if hitMax {
		fmt.Fprintf(&b, " (capped at $%s)", c.MaxCharge.StringFixed(2))
	}
	return b.String()
}

// ApprovedAction is the mutation for a pending-approval stop once approved
func ApprovedAction(h Hold) Action {
	if h.Present {
		return ActionUpdateCharge
	}
	return ActionCreateCharge
}
