// Package service runs batches of orders through the pipeline in chunks and groups
package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"detention/internal/core/orderid"
	"detention/internal/core/version"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
	"detention/internal/services/batch/domain"
	"detention/internal/services/batch/guardrails"
	pipedom "detention/internal/services/pipeline/domain"
)

// Config holds pacing and persistence settings for runs
type Config struct {
	// ChunkSize orders per chunk; chunks run strictly one after another. <=0 -> 50
	ChunkSize int
	// GroupSize orders processed in parallel inside a chunk. <=0 -> 5
	GroupSize int

	// Cooldown between chunks, GroupDelay between groups of a chunk
	Cooldown   time.Duration
	GroupDelay time.Duration

	// SaveEvery throttles snapshot writes after chunks. Pause and cancel always save
	SaveEvery time.Duration
	// MaxAge discards older snapshots on resume. <=0 -> 24h
	MaxAge time.Duration

	// TokenMinRemaining is the lifetime a token must have before each chunk
	TokenMinRemaining time.Duration
	// TokenRetryDelay separates the two token attempts at start. <=0 -> 1s
	TokenRetryDelay time.Duration

	Timeouts guardrails.Timeouts

	// DryRun applies to every run regardless of StartOptions
	DryRun bool

	// LeaseName is the key claimed for the run lifetime. "" -> "batch"
	LeaseName string
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 50
	}
	if c.GroupSize <= 0 {
		c.GroupSize = 5
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.TokenRetryDelay <= 0 {
		c.TokenRetryDelay = time.Second
	}
	if c.LeaseName == "" {
		c.LeaseName = "batch"
	}
	return c
}

// Orchestrator owns at most one active run
type Orchestrator struct {
	cfg    Config
	proc   domain.Processor
	tokens domain.Tokens
	store  domain.SnapshotStore
	ledger domain.Ledger
	lease  guardrails.Lease
	clock  ptime.Clock
	log    logger.Logger

	mu   sync.Mutex
	r    *run
	subs []chan domain.Progress
}

type run struct {
	id     string
	orders []string
	work   []string
	dryRun bool
	state  domain.State
	err    error

	chunk     int
	chunks    int
	processed map[string]struct{}
	failed    []string
	pending   []string
	rows      []pipedom.ReportRow

	startedAt   time.Time
	sessionAt   time.Time
	sessionDone int
	finishedAt  time.Time
	lastSave    time.Time

	// resume is non-nil while paused; closing it continues the run
	resume  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	release func()
}

// New builds an orchestrator. ledger and lease may be nil
func New(cfg Config, proc domain.Processor, tokens domain.Tokens, store domain.SnapshotStore, ledger domain.Ledger, lease guardrails.Lease, clock ptime.Clock) *Orchestrator {
	if proc == nil || tokens == nil || store == nil {
		panic("batch.Orchestrator requires a processor, a token manager and a snapshot store")
	}
	return &Orchestrator{
		cfg:    cfg.withDefaults(),
		proc:   proc,
		tokens: tokens,
		store:  store,
		ledger: ledger,
		lease:  lease,
		clock:  ptime.OrSystem(clock),
		log:    *logger.Named("batch"),
	}
}

// Start validates ids, checks the session token and runs the batch in the background.
// The run outlives ctx; use Cancel to stop it
func (o *Orchestrator) Start(ctx context.Context, ids []string, opts domain.StartOptions) (string, error) {
	orders, valid := orderid.Clean(ids)
	if valid == 0 {
		return "", perr.WithField(perr.InvalidArgf("no valid order ids among %d inputs", len(ids)), "order_ids")
	}
	// invalid ids keep their place; the pipeline gives each a failed row

	now := o.clock.Now()
	r := &run{
		id:        uuid.NewString(),
		orders:    orders,
		work:      orders,
		dryRun:    opts.DryRun || o.cfg.DryRun,
		processed: make(map[string]struct{}, len(orders)),
		startedAt: now,
	}
	return o.launch(ctx, r)
}

// Resume continues a paused run, or restarts the persisted run when none is active
func (o *Orchestrator) Resume(ctx context.Context) (string, error) {
	o.mu.Lock()
	if r := o.r; r != nil && r.state.Active() {
		if r.state != domain.StatePaused {
			o.mu.Unlock()
			return "", perr.InvalidStatef("run %s is already running", r.id)
		}
		close(r.resume)
		r.resume = nil
		r.state = domain.StateRunning
		p := o.progressLocked()
		o.mu.Unlock()
		o.publish(p)
		logger.C(ctx).Info().Str("run_id", r.id).Msg("batch: resumed")
		return r.id, nil
	}
	o.mu.Unlock()

	snap, err := o.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if snap == nil {
		return "", perr.NotFoundf("no saved run to resume")
	}
	if reason := o.stale(*snap); reason != "" {
		if err := o.store.Clear(ctx); err != nil {
			o.log.Warn().Err(err).Msg("batch: clearing stale snapshot failed")
		}
		return "", perr.InvalidStatef("saved run %s discarded: %s", snap.RunID, reason)
	}

	work := snap.Remaining()
	if len(work) == 0 {
		_ = o.store.Clear(ctx)
		return "", perr.NotFoundf("saved run %s has no remaining orders", snap.RunID)
	}

	processed := make(map[string]struct{}, len(snap.Processed))
	for _, id := range snap.Processed {
		processed[id] = struct{}{}
	}
	r := &run{
		id:        snap.RunID,
		orders:    snap.Orders,
		work:      work,
		dryRun:    snap.DryRun || o.cfg.DryRun,
		processed: processed,
		failed:    slices.Clone(snap.Failed),
		rows:      slices.Clone(snap.Rows),
		startedAt: snap.StartedAt,
	}
	return o.launch(ctx, r)
}

// stale returns why a snapshot cannot be resumed, or ""
func (o *Orchestrator) stale(s domain.Snapshot) string {
	if s.Schema != version.SnapshotSchema {
		return "schema version mismatch"
	}
	if o.clock.Now().Sub(s.SavedAt) > o.cfg.MaxAge {
		return "older than " + o.cfg.MaxAge.String()
	}
	return ""
}

// launch claims the lease, checks the token and starts the run loop
func (o *Orchestrator) launch(ctx context.Context, r *run) (string, error) {
	o.mu.Lock()
	if cur := o.r; cur != nil && cur.state.Active() {
		o.mu.Unlock()
		return "", perr.InvalidStatef("run %s is already %s", cur.id, cur.state)
	}
	// reserve the slot so concurrent starts fail fast
	r.state = domain.StateRunning
	r.done = make(chan struct{})
	prev := o.r
	o.r = r
	o.mu.Unlock()

	abort := func(err error) (string, error) {
		o.mu.Lock()
		if errors.Is(err, guardrails.ErrLeaseHeld) {
			o.r = prev
		} else {
			r.state = domain.StateFailed
			r.err = err
			r.finishedAt = o.clock.Now()
		}
		close(r.done)
		p := o.progressLocked()
		o.mu.Unlock()
		o.publish(p)
		return "", err
	}

	if o.lease != nil {
		release, err := o.lease(ctx, o.cfg.LeaseName)
		if err != nil {
			if errors.Is(err, guardrails.ErrLeaseHeld) {
				return abort(perr.Wrap(err, perr.ErrorCodeInvalidState, "another process owns the batch"))
			}
			return abort(err)
		}
		r.release = release
	}

	if err := o.ensureToken(ctx); err != nil {
		if r.release != nil {
			r.release()
		}
		return abort(err)
	}

	runCtx, cancel := context.WithCancel(logger.WithRun(context.WithoutCancel(ctx), r.id))
	o.mu.Lock()
	r.cancel = cancel
	r.sessionAt = o.clock.Now()
	r.chunks = chunkCount(len(r.work), o.cfg.ChunkSize)
	p := o.progressLocked()
	o.mu.Unlock()
	o.publish(p)
	metrics.BatchRemaining.Set(float64(p.Remaining))

	logger.C(runCtx).Info().Int("orders", len(r.orders)).Int("work", len(r.work)).Bool("dry_run", r.dryRun).Msg("batch: started")
	go o.loop(runCtx, r)
	return r.id, nil
}

// ensureToken is the only batch-fatal check: two consecutive failures abort the start
func (o *Orchestrator) ensureToken(ctx context.Context) error {
	var err error
	for attempt := range 2 {
		if attempt > 0 {
			if se := o.clock.Sleep(ctx, o.cfg.TokenRetryDelay); se != nil {
				return se
			}
		}
		if _, err = o.tokens.Ensure(ctx); err == nil {
			return nil
		}
		logger.C(ctx).Warn().Err(err).Int("attempt", attempt+1).Msg("batch: session token unavailable")
	}
	return perr.Wrap(err, perr.ErrorCodeUnauthorized, "session token unavailable at batch start")
}

func (o *Orchestrator) loop(ctx context.Context, r *run) {
	defer r.cancel()

	chunks := split(r.work, o.cfg.ChunkSize)
	for i, c := range chunks {
		if !o.checkpoint(ctx, r) {
			break
		}
		if i > 0 {
			if err := o.clock.Sleep(ctx, o.cfg.Cooldown); err != nil {
				break
			}
		}
		if _, err := o.tokens.EnsureFresh(ctx, o.cfg.TokenMinRemaining); err != nil && ctx.Err() == nil {
			// orders will report the auth failure themselves
			logger.C(ctx).Warn().Err(err).Int("chunk", i+1).Msg("batch: token refresh before chunk failed")
		}

		for g, group := range split(c, o.cfg.GroupSize) {
			if !o.checkpoint(ctx, r) {
				break
			}
			if g > 0 {
				if err := o.clock.Sleep(ctx, o.cfg.GroupDelay); err != nil {
					break
				}
			}
			o.record(ctx, r, o.runGroup(ctx, r, group))
		}
		if ctx.Err() != nil {
			break
		}

		o.mu.Lock()
		r.chunk = i + 1
		p := o.progressLocked()
		o.mu.Unlock()
		o.publish(p)
		logger.C(ctx).Info().Int("chunk", i+1).Int("chunks", len(chunks)).
			Int("processed", p.Processed).Int("failed", p.Failed).Int("pending_approvals", p.PendingApprovals).
			Msg("batch: chunk done")
		o.maybeSave(ctx, r)
	}

	if ctx.Err() == nil {
		o.approvalPass(ctx, r)
	}
	o.finish(ctx, r)
}

// runGroup processes one group in parallel and returns once every order has a row
func (o *Orchestrator) runGroup(ctx context.Context, r *run, ids []string) []pipedom.ReportRow {
	rows := make([]pipedom.ReportRow, len(ids))
	var g errgroup.Group
	g.SetLimit(o.cfg.GroupSize)
	for i, id := range ids {
		g.Go(func() error {
			octx, cancel := guardrails.ForOrder(ctx, o.cfg.Timeouts)
			defer cancel()
			rows[i] = o.proc.Process(octx, id, pipedom.ProcessOptions{RunID: r.id, DeferApproval: true, DryRun: r.dryRun})
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

// approvalPass asks for decisions one order at a time. Cancellation skips the rest
func (o *Orchestrator) approvalPass(ctx context.Context, r *run) {
	o.mu.Lock()
	ids := slices.Clone(r.pending)
	o.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	logger.C(ctx).Info().Int("orders", len(ids)).Msg("batch: approval pass")

	for _, id := range ids {
		if !o.checkpoint(ctx, r) {
			return
		}
		actx, cancel := guardrails.ForApproval(ctx, o.cfg.Timeouts)
		row := o.proc.RequestApproval(actx, id, pipedom.ProcessOptions{RunID: r.id, DryRun: r.dryRun})
		cancel()
		o.record(ctx, r, []pipedom.ReportRow{row})
	}
}

// record folds group rows into the run. Rows failed by a cancel in flight are not terminal
func (o *Orchestrator) record(ctx context.Context, r *run, rows []pipedom.ReportRow) {
	cancelled := ctx.Err() != nil
	final := make([]pipedom.ReportRow, 0, len(rows))

	o.mu.Lock()
	for _, row := range rows {
		if cancelled && row.Outcome.Failed() {
			continue
		}
		if row.Outcome == pipedom.OutcomeNeedsApproval {
			if !slices.Contains(r.pending, row.OrderID) {
				r.pending = append(r.pending, row.OrderID)
			}
			continue
		}
		if _, dup := r.processed[row.OrderID]; dup {
			continue
		}
		r.processed[row.OrderID] = struct{}{}
		r.pending = slices.DeleteFunc(r.pending, func(id string) bool { return id == row.OrderID })
		if row.Outcome.Failed() {
			r.failed = append(r.failed, row.OrderID)
		}
		r.rows = append(r.rows, row)
		r.sessionDone++
		final = append(final, row)
	}
	p := o.progressLocked()
	o.mu.Unlock()

	o.publish(p)
	metrics.BatchRemaining.Set(float64(p.Remaining))

	if o.ledger != nil && len(final) > 0 {
		sctx, cancel := guardrails.ForSave(ctx, o.cfg.Timeouts)
		defer cancel()
		if err := o.ledger.AppendRows(sctx, final); err != nil {
			logger.C(ctx).Warn().Err(err).Int("rows", len(final)).Msg("batch: ledger append failed")
		}
	}
}

// checkpoint blocks while paused. It returns false once the run is cancelled
func (o *Orchestrator) checkpoint(ctx context.Context, r *run) bool {
	o.mu.Lock()
	wait := r.resume
	o.mu.Unlock()
	if wait != nil {
		o.save(ctx, r)
		logger.C(ctx).Info().Msg("batch: paused")
		select {
		case <-wait:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	o.mu.Lock()
	r.finishedAt = o.clock.Now()
	if ctx.Err() != nil {
		r.state = domain.StateCancelled
	} else {
		r.state = domain.StateCompleted
	}
	state := r.state
	o.mu.Unlock()

	if state == domain.StateCompleted {
		sctx, cancel := guardrails.ForSave(ctx, o.cfg.Timeouts)
		if err := o.store.Clear(sctx); err != nil {
			logger.C(ctx).Warn().Err(err).Msg("batch: clearing snapshot failed")
		}
		cancel()
	} else {
		o.save(ctx, r)
	}

	o.mu.Lock()
	p := o.progressLocked()
	done := r.done
	o.mu.Unlock()
	o.publish(p)
	metrics.BatchRemaining.Set(float64(p.Remaining))

	logger.C(ctx).Info().Str("state", string(state)).Int("processed", p.Processed).
		Int("failed", p.Failed).Dur("elapsed", p.Elapsed).Msg("batch: finished")
	if r.release != nil {
		r.release()
	}
	close(done)
}

// maybeSave writes a snapshot when SaveEvery has passed since the last one
func (o *Orchestrator) maybeSave(ctx context.Context, r *run) {
	o.mu.Lock()
	due := o.clock.Now().Sub(r.lastSave) >= o.cfg.SaveEvery
	o.mu.Unlock()
	if due {
		o.save(ctx, r)
	}
}

// save is only called from the run loop, which keeps a single writer
func (o *Orchestrator) save(ctx context.Context, r *run) {
	o.mu.Lock()
	now := o.clock.Now()
	snap := snapshotOf(r, now)
	r.lastSave = now
	o.mu.Unlock()

	sctx, cancel := guardrails.ForSave(ctx, o.cfg.Timeouts)
	defer cancel()
	if err := o.store.Save(sctx, snap); err != nil {
		logger.C(ctx).Warn().Err(err).Msg("batch: snapshot save failed")
	}
}

func snapshotOf(r *run, now time.Time) domain.Snapshot {
	processed := make([]string, 0, len(r.processed))
	for _, id := range r.orders {
		if _, ok := r.processed[id]; ok {
			processed = append(processed, id)
		}
	}
	return domain.Snapshot{
		Schema:     version.SnapshotSchema,
		RunID:      r.id,
		Orders:     slices.Clone(r.orders),
		ChunkIndex: r.chunk,
		Processed:  processed,
		Failed:     slices.Clone(r.failed),
		Pending:    slices.Clone(r.pending),
		Rows:       slices.Clone(r.rows),
		DryRun:     r.dryRun,
		StartedAt:  r.startedAt,
		SavedAt:    now,
	}
}

// Pause stops the run at the next group boundary
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	r := o.r
	if r == nil || r.state != domain.StateRunning {
		o.mu.Unlock()
		return perr.InvalidStatef("no running batch to pause")
	}
	r.state = domain.StatePaused
	r.resume = make(chan struct{})
	p := o.progressLocked()
	o.mu.Unlock()
	o.publish(p)
	return nil
}

// Cancel stops the run. Orders in flight are abandoned, completed mutations stay.
// The state turns cancelled once the loop has saved its snapshot
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	r := o.r
	if r == nil || !r.state.Active() || r.cancel == nil {
		o.mu.Unlock()
		return perr.InvalidStatef("no active batch to cancel")
	}
	cancel := r.cancel
	o.mu.Unlock()
	cancel()
	return nil
}

// Progress returns the current run view
func (o *Orchestrator) Progress() domain.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progressLocked()
}

// Report returns terminal rows of the current or last run
func (o *Orchestrator) Report() []pipedom.ReportRow {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.r == nil {
		return nil
	}
	return slices.Clone(o.r.rows)
}

// Wait blocks until the current run finishes or ctx is done
func (o *Orchestrator) Wait(ctx context.Context) (domain.Progress, error) {
	o.mu.Lock()
	r := o.r
	o.mu.Unlock()
	if r == nil {
		return domain.Progress{State: domain.StateIdle}, nil
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return o.Progress(), ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progressLocked(), r.err
}

// Subscribe returns a channel holding the latest progress. Slow readers only miss intermediate values
func (o *Orchestrator) Subscribe() (<-chan domain.Progress, func()) {
	ch := make(chan domain.Progress, 1)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	ch <- o.progressLocked()
	o.mu.Unlock()
	return ch, func() {
		o.mu.Lock()
		o.subs = slices.DeleteFunc(o.subs, func(c chan domain.Progress) bool { return c == ch })
		o.mu.Unlock()
	}
}

func (o *Orchestrator) publish(p domain.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p:
		default:
		}
	}
}

func (o *Orchestrator) progressLocked() domain.Progress {
	r := o.r
	if r == nil {
		return domain.Progress{State: domain.StateIdle}
	}
	p := domain.Progress{
		RunID:            r.id,
		State:            r.state,
		Total:            len(r.orders),
		Processed:        len(r.processed),
		Failed:           len(r.failed),
		PendingApprovals: len(r.pending),
		Chunk:            r.chunk,
		Chunks:           r.chunks,
		DryRun:           r.dryRun,
		StartedAt:        r.startedAt,
	}
	p.Succeeded = p.Processed - p.Failed
	p.Remaining = max(p.Total-p.Processed, 0)
	if !r.sessionAt.IsZero() {
		end := o.clock.Now()
		if !r.finishedAt.IsZero() {
			end = r.finishedAt
		}
		p.Elapsed = end.Sub(r.sessionAt)
	}
	if r.sessionDone > 0 {
		p.AvgPerOrder = p.Elapsed / time.Duration(r.sessionDone)
		if r.state.Active() {
			p.ETA = p.AvgPerOrder * time.Duration(p.Remaining)
		}
	}
	if r.err != nil {
		p.Error = r.err.Error()
	}
	return p
}

func chunkCount(n, size int) int {
	if n == 0 {
		return 0
	}
	return (n + size - 1) / size
}

func split(ids []string, size int) [][]string {
	out := make([][]string, 0, chunkCount(len(ids), size))
	for i := 0; i < len(ids); i += size {
		out = append(out, ids[i:min(i+size, len(ids))])
	}
	return out
}
