// Package service implements the approval hub
package service

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
	"detention/internal/services/approval/domain"
)

// Config holds hub settings
type Config struct {
	// Timeout is the hard limit a request waits for a decision
	Timeout time.Duration
	// Policy answers every request immediately when set (approve, decline or skip)
	Policy domain.Decision
	// AuthNumber is attached to policy approvals
	AuthNumber string
}

type pending struct {
	req domain.Request
	ch  chan domain.Outcome
}

// Hub pairs approval requests with decisions
type Hub struct {
	cfg   Config
	clock ptime.Clock
	log   logger.Logger

	mu      sync.Mutex
	pending map[string]*pending
	notify  []chan struct{}
}

// New builds a hub
func New(cfg Config, clock ptime.Clock) *Hub {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		clock:   ptime.OrSystem(clock),
		log:     *logger.Named("approval"),
		pending: map[string]*pending{},
	}
}

var _ domain.HubPort = (*Hub)(nil)

// Request publishes req and blocks until a decision, the timeout or ctx.
// A timeout is an outcome, not an error; cancellation returns ctx.Err()
func (h *Hub) Request(ctx context.Context, req domain.Request) (domain.Outcome, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = h.clock.Now()
	req.Deadline = req.CreatedAt.Add(h.cfg.Timeout)

	if h.cfg.Policy.Valid() {
		out := domain.Outcome{Decision: h.cfg.Policy, Note: "policy", DecidedAt: req.CreatedAt}
		if out.Decision == domain.DecisionApprove {
			out.AuthNumber = h.cfg.AuthNumber
		}
		h.record(ctx, req, out)
		return out, nil
	}

	p := &pending{req: req, ch: make(chan domain.Outcome, 1)}
	h.mu.Lock()
	h.pending[req.ID] = p
	h.mu.Unlock()
	h.changed()
	defer func() {
		h.mu.Lock()
		delete(h.pending, req.ID)
		h.mu.Unlock()
		h.changed()
	}()

	// the deadline runs on the hub clock so tests can move it
	expired := make(chan struct{})
	wctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		if h.clock.Sleep(wctx, h.cfg.Timeout) == nil {
			close(expired)
		}
	}()

	select {
	case out := <-p.ch:
		h.record(ctx, req, out)
		return out, nil
	case <-expired:
		out := domain.Outcome{Decision: domain.DecisionTimeout, DecidedAt: h.clock.Now()}
		h.record(ctx, req, out)
		return out, nil
	case <-ctx.Done():
		out := domain.Outcome{Decision: domain.DecisionCancelled, DecidedAt: h.clock.Now()}
		h.record(ctx, req, out)
		return out, ctx.Err()
	}
}

// Decide resolves a pending request. Each request takes exactly one decision
func (h *Hub) Decide(id string, out domain.Outcome) error {
	if !out.Decision.Valid() {
		return perr.Newf(perr.ErrorCodeInvalidArgument, "unknown decision %q", out.Decision)
	}
	out.AuthNumber = strings.TrimSpace(out.AuthNumber)
	if out.DecidedAt.IsZero() {
		out.DecidedAt = h.clock.Now()
	}

	h.mu.Lock()
	p, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.mu.Unlock()
	if !ok {
		return perr.NotFoundf("approval %s is not pending", id)
	}
	p.ch <- out
	h.changed()
	return nil
}

// Pending lists open requests, oldest first
func (h *Hub) Pending() []domain.Request {
	h.mu.Lock()
	out := make([]domain.Request, 0, len(h.pending))
	for _, p := range h.pending {
		out = append(out, p.req)
	}
	h.mu.Unlock()
	slices.SortFunc(out, func(a, b domain.Request) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Subscribe returns a channel signalled whenever the pending set changes,
// and a func to stop the subscription
func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.notify = append(h.notify, ch)
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		h.notify = slices.DeleteFunc(h.notify, func(c chan struct{}) bool { return c == ch })
		h.mu.Unlock()
	}
}

func (h *Hub) changed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) record(ctx context.Context, req domain.Request, out domain.Outcome) {
	metrics.Approvals.WithLabelValues(string(out.Decision)).Inc()
	logger.C(ctx).Info().
		Str("approval_id", req.ID).
		Str("order", req.OrderID).
		Str("decision", string(out.Decision)).
		Bool("auth_number", out.AuthNumber != "").
		Str("decided_by", out.DecidedBy).
		Msg("approval resolved")
}
