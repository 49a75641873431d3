package pg

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"detention/internal/platform/logger"
)

// QueryEvent describes one finished statement
type QueryEvent struct {
	SQL     string
	Args    []any
	Elapsed time.Duration
	Err     error
	Slow    bool
}

// QueryTracer observes finished statements
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// TracerFunc adapts a function to QueryTracer
type TracerFunc func(ctx context.Context, ev QueryEvent)

// OnQuery calls f
func (f TracerFunc) OnQuery(ctx context.Context, ev QueryEvent) { f(ctx, ev) }

// Multi fans an event out to every non nil tracer. Nil when none are left
func Multi(ts ...QueryTracer) QueryTracer {
	var out multi
	for _, t := range ts {
		if t != nil {
			out = append(out, t)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

type multi []QueryTracer

func (m multi) OnQuery(ctx context.Context, ev QueryEvent) {
	for _, t := range m {
		t.OnQuery(ctx, ev)
	}
}

// LogTracer logs statements regardless of the process level:
// failures at error, slow ones at warn, the rest at info
func LogTracer(root logger.Logger) QueryTracer {
	ll := root.Level(zerolog.DebugLevel).With().Str("component", "pg").Logger()
	return TracerFunc(func(_ context.Context, ev QueryEvent) {
		evt := ll.Info()
		switch {
		case ev.Err != nil:
			evt = ll.Error().Err(ev.Err)
		case ev.Slow:
			evt = ll.Warn()
		}
		evt.Dur("elapsed", ev.Elapsed).
			Bool("slow", ev.Slow).
			Str("sql", compact(ev.SQL)).
			Int("args", len(ev.Args)).
			Msg("pg query")
	})
}

// compact folds whitespace runs so multi line statements log on one line
func compact(s string) string { return strings.Join(strings.Fields(s), " ") }
