// Package service implements the per-order detention pipeline
package service

import (
	"cmp"
	"context"
	stderrs "errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"detention/internal/adapters/tms"
	"detention/internal/core/detention"
	"detention/internal/core/orderid"
	"detention/internal/core/timing"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
	approvaldom "detention/internal/services/approval/domain"
	"detention/internal/services/pipeline/domain"
)

// Config holds pipeline settings
type Config struct {
	// PickupCode and DeliveryCode are the line item codes of detention charges
	PickupCode   string
	DeliveryCode string
	Engine       detention.Options
	// Comments enables the best-effort charge comment
	Comments bool
	// DryRun forces every Process call to analyse only
	DryRun bool
}

// Pipeline runs one order at a time through gate, analysis, approval and execution.
// It is safe for concurrent use; each call owns its OrderData
type Pipeline struct {
	cfg     Config
	backend domain.Backend
	gate    domain.ContractGate
	hub     domain.Approvals
	engine  detention.Engine
	undo    *UndoStack
	clock   ptime.Clock
}

// New builds a pipeline; undo may be nil
func New(cfg Config, backend domain.Backend, gate domain.ContractGate, hub domain.Approvals, undo *UndoStack, clock ptime.Clock) *Pipeline {
	if cfg.PickupCode == "" {
		cfg.PickupCode = "DETPU"
	}
	if cfg.DeliveryCode == "" {
		cfg.DeliveryCode = "DETDL"
	}
	if undo == nil {
		undo = NewUndoStack(DefaultUndoCapacity, nil)
	}
	return &Pipeline{
		cfg:     cfg,
		backend: backend,
		gate:    gate,
		hub:     hub,
		engine:  detention.NewEngine(cfg.Engine),
		undo:    undo,
		clock:   ptime.OrSystem(clock),
	}
}

var _ domain.PipelinePort = (*Pipeline)(nil)

// Undo exposes the undo history
func (p *Pipeline) Undo() *UndoStack { return p.undo }

// DryRun reports whether mutations are globally disabled
func (p *Pipeline) DryRun() bool { return p.cfg.DryRun }

// Analyze loads an order and evaluates every stop without mutating anything
func (p *Pipeline) Analyze(ctx context.Context, orderID string) (*domain.OrderData, error) {
	if !orderid.Valid(orderID) {
		return nil, perr.WithField(perr.InvalidArgf("invalid order id %q", orderID), "order_id")
	}
	order, err := p.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return p.analyzeOrder(ctx, order)
}

func (p *Pipeline) analyzeOrder(ctx context.Context, order tms.Order) (*domain.OrderData, error) {
	data := &domain.OrderData{Order: order}

	lookup, err := p.gate.ValidateShipper(ctx, order.Shipper)
	if err != nil {
		return nil, err
	}
	data.Lookup = lookup

	stops := roleStops(order)
	if !lookup.OK() {
		reason := fmt.Sprintf("contract for %q is %s", order.Shipper, strings.ReplaceAll(string(lookup.Status), "_", " "))
		for _, role := range detention.Roles {
			if _, ok := stops[role]; ok {
				data.Results = append(data.Results, detention.GateResult(role, lookup.Status.ResultType(), reason))
			}
		}
		return data, nil
	}

	if err := p.loadTiming(ctx, data, stops); err != nil {
		return nil, err
	}

	for _, role := range detention.Roles {
		st, ok := stops[role]
		if !ok {
			continue
		}
		in := detention.StopInput{
			Role:   role,
			Load:   st.Load(),
			Status: detention.OrderStatus(order.Status),
			Hold:   p.holdFor(order.Lines, role),
			Timing: data.Timing[role],
		}
		data.Results = append(data.Results, p.engine.Evaluate(in, *lookup.Contract))
	}
	return data, nil
}

// loadTiming degrades to no timing on any upstream failure except cancellation
func (p *Pipeline) loadTiming(ctx context.Context, data *domain.OrderData, stops map[detention.StopRole]tms.Stop) error {
	degrade := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data.TimingError = err
		logger.C(ctx).Warn().Err(err).Msg("timing unavailable, stops stay pending")
		return nil
	}

	exec, err := p.backend.GetExecution(ctx, data.Order.ID)
	if err != nil {
		return degrade(err)
	}
	data.Execution = &exec
	if exec.TourID == "" {
		return degrade(perr.NotFoundf("order %s has no tour", data.Order.ID))
	}
	doc, err := p.backend.GetTiming(ctx, exec.TourID)
	if err != nil {
		return degrade(err)
	}

	refs := make([]timing.StopRef, 0, len(stops))
	for _, role := range detention.Roles {
		if st, ok := stops[role]; ok {
			refs = append(refs, timing.StopRef{ID: st.ID, Role: role})
		}
	}
	data.Timing = timing.Match(refs, doc.MatchRuns())
	return nil
}

// Process runs the whole pipeline for one order and always returns a report row
func (p *Pipeline) Process(ctx context.Context, orderID string, opts domain.ProcessOptions) domain.ReportRow {
	ctx = logger.WithOrder(ctx, orderID)
	row := p.process(ctx, orderID, opts)
	row.ProcessedAt = p.clock.Now()
	metrics.Orders.WithLabelValues(string(row.Outcome)).Inc()

	ev := logger.C(ctx).Info()
	if row.Outcome.Failed() {
		ev = logger.C(ctx).Warn().Interface("error", row.Error)
	}
	if n := row.AwaitingTiming(); n > 0 {
		ev = ev.Int("awaiting_timing", n)
	}
	ev.Str("outcome", string(row.Outcome)).Str("total", row.Total.StringFixed(2)).Int("attempts", row.Attempts).Msg("order processed")
	return row
}

func (p *Pipeline) process(ctx context.Context, orderID string, opts domain.ProcessOptions) domain.ReportRow {
	row := domain.ReportRow{RunID: opts.RunID, OrderID: orderID, DryRun: opts.DryRun || p.cfg.DryRun}

	var approval *approvaldom.Outcome
	for attempt := 1; attempt <= 2; attempt++ {
		row.Attempts = attempt

		data, err := p.Analyze(ctx, orderID)
		if err != nil {
			return fail(row, err)
		}
		row.Shipper = data.Order.Shipper
		row.Stops = data.Results
		row.Total = chargedTotal(data.Results)

		if !data.Lookup.OK() {
			row.Outcome = domain.OutcomeGated
			return row
		}

		if row.DryRun {
			row.Outcome = domain.OutcomeDryRun
			return row
		}

		if data.NeedsApproval() {
			if opts.DeferApproval && approval == nil {
				row.Outcome = domain.OutcomeNeedsApproval
				return row
			}
			if approval == nil {
				out, err := p.requestApproval(ctx, data, opts.RunID)
				if err != nil {
					return fail(row, err)
				}
				approval = &out
				row.Decision = out.Decision
				row.AuthNumber = out.AuthNumber
			}
			if o, stop := applyDecision(data, *approval); stop {
				row.Stops = data.Results
				row.Outcome = o
				return row
			}
			if data.Lookup.Contract.AuthNumberRequired && approval.AuthNumber == "" {
				return fail(row, perr.WithField(perr.Validationf("authorization number required to approve %s", orderID), "auth_number"))
			}
		}

		err = p.execute(ctx, data, opts.RunID, row.AuthNumber)
		row.Stops = data.Results
		if err == nil {
			row.Outcome = outcomeOf(data.Results)
			return row
		}
		if perr.IsCode(err, perr.ErrorCodeConflict) && attempt == 1 {
			logger.C(ctx).Warn().Err(err).Msg("version conflict, re-evaluating order")
			continue
		}
		return fail(row, err)
	}
	return row
}

// RequestApproval runs the hand-off for an order previously deferred with
// DeferApproval, then executes it
func (p *Pipeline) RequestApproval(ctx context.Context, orderID string, opts domain.ProcessOptions) domain.ReportRow {
	opts.DeferApproval = false
	return p.Process(ctx, orderID, opts)
}

func (p *Pipeline) requestApproval(ctx context.Context, data *domain.OrderData, runID string) (approvaldom.Outcome, error) {
	if p.hub == nil {
		return approvaldom.Outcome{}, perr.InvalidStatef("approval required but no approval hub is configured")
	}
	req := approvaldom.Request{
		RunID:        runID,
		OrderID:      data.Order.ID,
		Shipper:      data.Order.Shipper,
		AuthRequired: data.Lookup.Contract.AuthNumberRequired,
	}
	for _, r := range data.Results {
		if r.Action != detention.ActionPendingApproval {
			continue
		}
		req.Stops = append(req.Stops, approvaldom.StopCharge{
			Role:              r.Role,
			Amount:            r.Amount,
			ChargeableMinutes: r.ChargeableMinutes,
			Breakdown:         r.Breakdown,
		})
		req.Total = req.Total.Add(r.Amount)
	}
	return p.hub.Request(ctx, req)
}

// applyDecision rewrites pending stops. Any answer but approve leaves the whole
// order untouched and reports the decision
func applyDecision(data *domain.OrderData, out approvaldom.Outcome) (domain.Outcome, bool) {
	var o domain.Outcome
	switch out.Decision {
	case approvaldom.DecisionApprove:
		for i, r := range data.Results {
			if r.Action == detention.ActionPendingApproval {
				data.Results[i].Action = detention.ApprovedAction(r.Hold)
			}
		}
		return "", false
	case approvaldom.DecisionDecline:
		o = domain.OutcomeApprovalDeclined
	case approvaldom.DecisionSkip:
		o = domain.OutcomeApprovalSkipped
	default:
		o = domain.OutcomeApprovalTimeout
	}
	for i, r := range data.Results {
		if r.Action.Mutates() || r.Action == detention.ActionPendingApproval {
			data.Results[i].Action = detention.ActionNone
			data.Results[i].Breakdown = r.Breakdown + "; approval " + string(out.Decision)
		}
	}
	return o, true
}

// execute applies mutations: releases first, then charges and holds. The order
// is re-fetched after each mutation so the next one carries a fresh version
func (p *Pipeline) execute(ctx context.Context, data *domain.OrderData, runID, authNumber string) error {
	idx := make([]int, 0, len(data.Results))
	for i, r := range data.Results {
		if r.Action.Mutates() {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(mutationRank(data.Results[a].Action), mutationRank(data.Results[b].Action))
	})

	order := data.Order
	for _, i := range idx {
		res := &data.Results[i]
		before := order.Version
		version, err := p.mutate(ctx, order, *res)
		if err != nil {
			res.ProcessError = err.Error()
			return err
		}
		res.Processed = true
		res.ProcessedAction = res.Action
		res.ProcessedAmount = res.Amount
		if res.Action == detention.ActionReleaseHold || res.Action == detention.ActionCreateZeroHold {
			res.ProcessedAmount = decimal.Zero
		}

		p.undo.Push(ctx, domain.UndoRecord{
			ID:            uuid.NewString(),
			RunID:         runID,
			OrderID:       order.ID,
			Role:          res.Role,
			Action:        res.Action,
			LineID:        res.Hold.LineID,
			Code:          p.codeFor(res.Role),
			PrevAmount:    res.Hold.Amount,
			NewAmount:     res.ProcessedAmount,
			VersionBefore: before,
			VersionAfter:  version,
			At:            p.clock.Now(),
		})

		if res.ProcessedAmount.IsPositive() && p.cfg.Comments {
			p.comment(ctx, order.ID, *res, data.Lookup.Contract, authNumber)
		}

		fresh, err := p.backend.GetOrder(ctx, order.ID)
		if err != nil {
			return perr.WithOp(err, "refetch_order")
		}
		order = fresh
	}
	data.Order = order
	return nil
}

func mutationRank(a detention.Action) int {
	if a == detention.ActionReleaseHold {
		return 0
	}
	return 1
}

// mutate applies one stop action and returns the version the backend reported
func (p *Pipeline) mutate(ctx context.Context, order tms.Order, res detention.AnalysisResult) (string, error) {
	code := p.codeFor(res.Role)
	desc := fmt.Sprintf("Detention %s", res.Role)
	switch res.Action {
	case detention.ActionReleaseHold:
		o := order
		o.Lines = slices.DeleteFunc(slices.Clone(order.Lines), func(l tms.Line) bool { return l.ID == res.Hold.LineID })
		if len(o.Lines) == len(order.Lines) {
			return "", perr.Conflictf("hold line %s no longer on order %s", res.Hold.LineID, order.ID)
		}
		return p.backend.UpdateOrder(ctx, o)
	case detention.ActionUpdateCharge:
		o := order
		o.Lines = slices.Clone(order.Lines)
		found := false
		for i := range o.Lines {
			if o.Lines[i].ID == res.Hold.LineID {
				o.Lines[i].Amount = res.Amount
				o.Lines[i].Description = desc
				found = true
			}
		}
		if !found {
			return "", perr.Conflictf("hold line %s no longer on order %s", res.Hold.LineID, order.ID)
		}
		return p.backend.UpdateOrder(ctx, o)
	case detention.ActionCreateCharge:
		return p.backend.AddLineItem(ctx, order.ID, order.Version, code, res.Amount, desc)
	case detention.ActionCreateZeroHold:
		return p.backend.AddLineItem(ctx, order.ID, order.Version, code, decimal.Zero, desc+" hold")
	}
	return order.Version, nil
}

func (p *Pipeline) comment(ctx context.Context, orderID string, res detention.AnalysisResult, c *detention.Contract, authNumber string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Detention %s: %d billable minutes", res.Role, res.ChargeableMinutes)
	if c != nil {
		fmt.Fprintf(&b, " at $%s/%s", c.Rate.StringFixed(2), c.Unit)
	}
	fmt.Fprintf(&b, " = $%s", res.ProcessedAmount.StringFixed(2))
	if res.HitMax {
		b.WriteString(" (max charge)")
	}
	if authNumber != "" {
		fmt.Fprintf(&b, ", auth %s", authNumber)
	}
	if err := p.backend.AddComment(ctx, orderID, b.String()); err != nil {
		logger.C(ctx).Warn().Err(err).Msg("charge comment failed")
	}
}

func (p *Pipeline) codeFor(role detention.StopRole) string {
	if role == detention.RolePickup {
		return p.cfg.PickupCode
	}
	return p.cfg.DeliveryCode
}

// holdFor finds the detention line for role, preferring a non-zero amount
func (p *Pipeline) holdFor(lines []tms.Line, role detention.StopRole) detention.Hold {
	code := p.codeFor(role)
	var h detention.Hold
	for _, l := range lines {
		if !strings.EqualFold(strings.TrimSpace(l.Code), code) {
			continue
		}
		if !h.Present || (h.Amount.IsZero() && !l.Amount.IsZero()) {
			h = detention.Hold{Present: true, Amount: l.Amount, LineID: l.ID}
		}
	}
	return h
}

// roleStops maps the order onto the two-stop model: the first pickup and the last delivery
func roleStops(o tms.Order) map[detention.StopRole]tms.Stop {
	stops := slices.Clone(o.Stops)
	slices.SortStableFunc(stops, func(a, b tms.Stop) int { return cmp.Compare(a.Sequence, b.Sequence) })
	out := map[detention.StopRole]tms.Stop{}
	for _, s := range stops {
		switch s.Role() {
		case detention.RolePickup:
			if _, ok := out[detention.RolePickup]; !ok {
				out[detention.RolePickup] = s
			}
		case detention.RoleDelivery:
			out[detention.RoleDelivery] = s
		}
	}
	return out
}

func chargedTotal(rs []detention.AnalysisResult) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rs {
		if r.Result.Charged() {
			total = total.Add(r.Amount)
		}
	}
	return total
}

func outcomeOf(rs []detention.AnalysisResult) domain.Outcome {
	var charged, released, held, analysis bool
	for _, r := range rs {
		switch {
		case r.Processed && (r.ProcessedAction == detention.ActionCreateCharge || r.ProcessedAction == detention.ActionUpdateCharge):
			charged = true
		case r.Processed && r.ProcessedAction == detention.ActionReleaseHold:
			released = true
		case r.Processed && r.ProcessedAction == detention.ActionCreateZeroHold:
			held = true
		case r.Action == detention.ActionAnalysisOnly:
			analysis = true
		}
	}
	switch {
	case charged:
		return domain.OutcomeCharged
	case released:
		return domain.OutcomeReleased
	case held:
		return domain.OutcomeHeld
	case analysis:
		return domain.OutcomeAnalysisOnly
	}
	return domain.OutcomeNoAction
}

func fail(row domain.ReportRow, err error) domain.ReportRow {
	w := perr.WireFrom(err)
	if stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		w.Kind = "cancelled"
	}
	row.Outcome = domain.OutcomeFailed
	row.Error = &w
	return row
}
