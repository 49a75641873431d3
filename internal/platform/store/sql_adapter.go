package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/metrics"
	"detention/internal/platform/store/pg"
)

// pgxQuerier is the surface shared by the pool and an open transaction
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txAttempts bounds how often Tx replays fn after serialization or deadlock failures
const txAttempts = 3

// pgAdapter is the postgres RowQuerier and TxRunner
type pgAdapter struct {
	tracedQuerier
	p *pg.PG
}

func newPGAdapter(p *pg.PG) *pgAdapter {
	return &pgAdapter{p: p, tracedQuerier: tracedQuerier{q: p.Pool, p: p}}
}

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil || a.p == nil || a.p.Pool == nil {
		return errors.New("pg: nil adapter")
	}
	return a.p.Pool.Ping(ctx)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

// Tx runs fn in a transaction. fn may run again when postgres reports contention
func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = a.txOnce(ctx, fn)
		if err == nil || !perr.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (a *pgAdapter) txOnce(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tracedQuerier{q: tx, p: a.p}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// tracedQuerier reports every statement to the pg tracer
type tracedQuerier struct {
	q pgxQuerier
	p *pg.PG
}

func (t tracedQuerier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := t.q.Exec(ctx, sql, args...)
	t.done(ctx, sql, args, start, err)
	return ct, err
}

func (t tracedQuerier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := t.q.Query(ctx, sql, args...)
	t.done(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows{r: rs}, nil
}

// QueryRow reports once Scan returns so the scan error is part of the event
func (t tracedQuerier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := t.q.QueryRow(ctx, sql, args...)
	return row{r: r, after: func(err error) { t.done(ctx, sql, args, start, err) }}
}

func (t tracedQuerier) done(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if t.p == nil || t.p.Tracer == nil {
		return
	}
	elapsed := time.Since(start)
	t.p.Tracer.OnQuery(ctx, pg.QueryEvent{SQL: sql, Args: args, Elapsed: elapsed, Err: err, Slow: t.p.IsSlow(elapsed)})
}

// metricsTracer feeds the store latency histogram
func metricsTracer() pg.QueryTracer {
	return pg.TracerFunc(func(_ context.Context, ev pg.QueryEvent) {
		outcome := "ok"
		if ev.Err != nil && !errors.Is(ev.Err, pgx.ErrNoRows) {
			outcome = "error"
		}
		metrics.StoreQueries.WithLabelValues("pg", outcome).Observe(ev.Elapsed.Seconds())
	})
}

type row struct {
	r     pgx.Row
	after func(error)
}

func (x row) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type rows struct{ r pgx.Rows }

func (x rows) Next() bool            { return x.r.Next() }
func (x rows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x rows) Err() error            { return x.r.Err() }
func (x rows) Close()                { x.r.Close() }
func (x rows) Columns() []string {
	f := x.r.FieldDescriptions()
	out := make([]string, len(f))
	for i := range f {
		out[i] = f[i].Name
	}
	return out
}
