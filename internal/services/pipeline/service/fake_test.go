package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"detention/internal/adapters/tms"
	"detention/internal/core/detention"
	perr "detention/internal/platform/errors"
	approvaldom "detention/internal/services/approval/domain"
	contractsdom "detention/internal/services/contracts/domain"
	"detention/internal/services/pipeline/domain"
)

var t0 = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func at(min int) *time.Time {
	t := t0.Add(time.Duration(min) * time.Minute)
	return &t
}

// fakeBackend is an in-memory TMS with optimistic versioning
type fakeBackend struct {
	mu        sync.Mutex
	orders    map[string]tms.Order
	exec      map[string]tms.Execution
	timing    map[string]tms.TimingDoc
	timingErr error
	conflicts int
	nextLine  int
	calls     []string
	comments  []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		orders: map[string]tms.Order{},
		exec:   map[string]tms.Execution{},
		timing: map[string]tms.TimingDoc{},
	}
}

func cloneOrder(o tms.Order) tms.Order {
	o.Stops = slices.Clone(o.Stops)
	o.Lines = slices.Clone(o.Lines)
	return o
}

// addOrder registers an order with a two-stop tour. deliveryDelay is minutes
// past the planned departure; a negative value leaves departure unrecorded
func (b *fakeBackend) addOrder(id, shipper, deliveryLoad string, deliveryDelay int, lines ...tms.Line) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders[id] = tms.Order{
		ID: id, Version: "v1", Status: "delivered", Shipper: shipper,
		Stops: []tms.Stop{
			{ID: id + "-S2", Sequence: 2, Type: "delivery", LoadType: deliveryLoad},
			{ID: id + "-S1", Sequence: 1, Type: "pickup", LoadType: "live"},
		},
		Lines: lines,
	}
	tour := "T-" + id
	b.exec[id] = tms.Execution{OrderID: id, TourID: tour}
	delivery := tms.TimingStop{StopID: id + "-S2", PlannedArrival: at(300), PlannedDeparture: at(360), ActualArrival: at(300)}
	if deliveryDelay >= 0 {
		delivery.ActualDeparture = at(360 + deliveryDelay)
	}
	b.timing[tour] = tms.TimingDoc{TourID: tour, Runs: []tms.TimingRun{{
		RunID: "R1",
		Stops: []tms.TimingStop{
			{StopID: id + "-S1", PlannedArrival: at(0), PlannedDeparture: at(60), ActualArrival: at(0), ActualDeparture: at(60)},
			delivery,
		},
	}}}
}

func (b *fakeBackend) record(s string) {
	b.calls = append(b.calls, s)
}

func (b *fakeBackend) GetOrder(_ context.Context, id string) (tms.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return tms.Order{}, perr.NotFoundf("order %s", id)
	}
	return cloneOrder(o), nil
}

func (b *fakeBackend) GetExecution(_ context.Context, id string) (tms.Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.exec[id]
	if !ok {
		return tms.Execution{}, perr.NotFoundf("execution %s", id)
	}
	return e, nil
}

func (b *fakeBackend) GetTiming(_ context.Context, tour string) (tms.TimingDoc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timingErr != nil {
		return tms.TimingDoc{}, b.timingErr
	}
	return b.timing[tour], nil
}

func (b *fakeBackend) checkVersion(id, version string) (tms.Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return o, perr.NotFoundf("order %s", id)
	}
	if b.conflicts > 0 {
		b.conflicts--
		o.Version += "x"
		b.orders[id] = o
		return o, perr.Conflictf("stale version")
	}
	if o.Version != version {
		return o, perr.Conflictf("stale version %s, current %s", version, o.Version)
	}
	return o, nil
}

func bump(v string) string { return v + "+" }

func (b *fakeBackend) UpdateOrder(_ context.Context, o tms.Order) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("update:" + o.ID)
	cur, err := b.checkVersion(o.ID, o.Version)
	if err != nil {
		return "", err
	}
	o = cloneOrder(o)
	o.Version = bump(cur.Version)
	b.orders[o.ID] = o
	return o.Version, nil
}

func (b *fakeBackend) AddLineItem(_ context.Context, id, version, code string, amount decimal.Decimal, desc string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(fmt.Sprintf("add:%s:%s:%s", id, code, amount.StringFixed(2)))
	cur, err := b.checkVersion(id, version)
	if err != nil {
		return "", err
	}
	b.nextLine++
	cur = cloneOrder(cur)
	cur.Lines = append(cur.Lines, tms.Line{ID: fmt.Sprintf("L%d", b.nextLine), Code: code, Amount: amount, Description: desc})
	cur.Version = bump(cur.Version)
	b.orders[id] = cur
	return cur.Version, nil
}

func (b *fakeBackend) AddComment(_ context.Context, id, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.comments = append(b.comments, text)
	return nil
}

func (b *fakeBackend) mutations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

func (b *fakeBackend) lines(id string) []tms.Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.orders[id].Lines)
}

// fakeGate serves fixed lookups keyed by lower-cased shipper
type fakeGate map[string]contractsdom.Lookup

func (g fakeGate) ValidateShipper(_ context.Context, shipper string) (contractsdom.Lookup, error) {
	if l, ok := g[strings.ToLower(shipper)]; ok {
		return l, nil
	}
	return contractsdom.Lookup{Status: contractsdom.StatusNotConfigured}, nil
}

func standardContract() *detention.Contract {
	return &detention.Contract{
		Shipper:           "acme",
		Rate:              decimal.NewFromInt(75),
		Unit:              detention.PerHour,
		MaxCharge:         decimal.NewFromInt(500),
		AutoChargeAllowed: true,
		Rules: map[detention.RuleKey]detention.FreeTimeRule{
			{Role: detention.RolePickup, Load: detention.LoadLive}:       {Eligible: true, FreeMinutes: 60},
			{Role: detention.RoleDelivery, Load: detention.LoadLive}:     {Eligible: true, FreeMinutes: 60},
			{Role: detention.RoleDelivery, Load: detention.LoadDropHook}: {Eligible: false},
		},
	}
}

func gateWith(c *detention.Contract) fakeGate {
	return fakeGate{"acme": {Status: contractsdom.StatusOK, Contract: c}}
}

// fakeHub answers every request with a fixed outcome
type fakeHub struct {
	mu   sync.Mutex
	out  approvaldom.Outcome
	err  error
	reqs []approvaldom.Request
}

func (h *fakeHub) Request(_ context.Context, req approvaldom.Request) (approvaldom.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	return h.out, h.err
}

type sinkFunc func(domain.UndoRecord)

func (f sinkFunc) AppendUndo(_ context.Context, rec domain.UndoRecord) error {
	f(rec)
	return nil
}
