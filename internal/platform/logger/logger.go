// Package logger owns the process zerolog logger and the context fields
// (request, run and order ids) that follow work through the pipeline
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger is the project-wide logging type
type Logger = zerolog.Logger

// Options configures the root logger
type Options struct {
	Level        string // trace..panic, default info
	Format       string // console or json
	Service      string
	Writer       io.Writer
	WithCaller   bool
	SampleEvery  int
	StaticFields map[string]string
}

// FromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_SERVICE, LOG_CALLER and LOG_SAMPLE_EVERY.
// It reads the environment directly since the config package logs through here
func FromEnv() Options {
	caller, _ := strconv.ParseBool(env("LOG_CALLER", "false"))
	every, _ := strconv.Atoi(env("LOG_SAMPLE_EVERY", "0"))
	return Options{
		Level:       env("LOG_LEVEL", "info"),
		Format:      strings.ToLower(env("LOG_FORMAT", "console")),
		Service:     env("LOG_SERVICE", ""),
		WithCaller:  caller,
		SampleEvery: every,
	}
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

var (
	once sync.Once
	root atomic.Pointer[Logger]
)

// Get returns the root logger, building it from the environment on first use
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(FromEnv())
	return root.Load()
}

// Init builds the root logger. Only the first call has an effect
func Init(opt Options) {
	once.Do(func() {
		zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
		zerolog.TimeFieldFormat = time.RFC3339Nano
		l := build(opt)
		root.Store(&l)
	})
}

func build(opt Options) Logger {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zc := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if bi, ok := debug.ReadBuildInfo(); ok {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			zc = zc.Str("version", v)
		}
	}
	if opt.Service != "" {
		zc = zc.Str("service", opt.Service)
	}
	for k, v := range opt.StaticFields {
		zc = zc.Str(k, v)
	}
	if opt.WithCaller {
		zc = zc.Caller()
	}

	l := zc.Logger()
	if opt.SampleEvery > 1 {
		l = l.Sample(&zerolog.BasicSampler{N: uint32(opt.SampleEvery)})
	}
	return l
}

// parseLevel accepts zerolog level names plus "warning"; anything else is info
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

type ctxKey struct{ field string }

var (
	keyRequestID = ctxKey{"request_id"}
	keyRunID     = ctxKey{"run_id"}
	keyOrderID   = ctxKey{"order_id"}
)

func with(ctx context.Context, k ctxKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

// WithRequest annotates ctx with the inbound request id
func WithRequest(ctx context.Context, reqID string) context.Context {
	return with(ctx, keyRequestID, reqID)
}

// WithRun annotates ctx with a batch run id
func WithRun(ctx context.Context, runID string) context.Context { return with(ctx, keyRunID, runID) }

// WithOrder annotates ctx with the order being processed
func WithOrder(ctx context.Context, orderID string) context.Context {
	return with(ctx, keyOrderID, orderID)
}

// C returns a child of the root logger carrying the ids found on ctx
func C(ctx context.Context) *Logger {
	return fromCtx(*Get(), ctx)
}

func fromCtx(base Logger, ctx context.Context) *Logger {
	zc := base.With()
	for _, k := range []ctxKey{keyRequestID, keyRunID, keyOrderID} {
		if s, ok := ctx.Value(k).(string); ok {
			zc = zc.Str(k.field, s)
		}
	}
	l := zc.Logger()
	return &l
}

// Named returns a child of the root logger tagged with a component
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	l := Get().With().Str("component", component).Logger()
	return &l
}
