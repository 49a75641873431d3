package store

import (
	"context"
	"errors"
	"time"

	"detention/internal/platform/metrics"
	"detention/internal/platform/store/ch"
)

// chAdapter is the Clickhouse seam over *ch.CH; writes feed the store latency histogram
type chAdapter struct {
	inner *ch.CH
}

var _ Clickhouse = (*chAdapter)(nil)

func newCHAdapter(c *ch.CH) Clickhouse { return &chAdapter{inner: c} }

func observeCH(start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.StoreQueries.WithLabelValues("ch", outcome).Observe(time.Since(start).Seconds())
}

func (a *chAdapter) Exec(ctx context.Context, sql string, args ...any) error {
	start := time.Now()
	err := a.inner.Exec(ctx, sql, args...)
	observeCH(start, err)
	return err
}

// Insert takes rows as [][]any in table column order
func (a *chAdapter) Insert(ctx context.Context, table string, data any) error {
	rows, ok := data.([][]any)
	if !ok {
		return errors.New("store: unsupported CH insert shape (want [][]any)")
	}
	if len(rows) == 0 {
		return nil
	}
	start := time.Now()
	err := a.inner.Insert(ctx, table, rows)
	observeCH(start, err)
	return err
}

func (a *chAdapter) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	r, err := a.inner.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return chRows{r}, nil
}

func (a *chAdapter) Close() error { return a.inner.Close() }

// Ping uses the native protocol ping
func (a *chAdapter) Ping(ctx context.Context) error {
	if a == nil || a.inner == nil {
		return errors.New("store: nil clickhouse adapter")
	}
	return a.inner.Ping(ctx)
}

// chRows drops the Close error to fit store.Rows
type chRows struct{ ch.Rows }

func (r chRows) Close() { _ = r.Rows.Close() }
