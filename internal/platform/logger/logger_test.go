package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "trace", want: zerolog.TraceLevel},
		{in: "DEBUG", want: zerolog.DebugLevel},
		{in: " warning ", want: zerolog.WarnLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "nonsense", want: zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestBuild_JSONWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := build(Options{
		Level:        "info",
		Format:       "json",
		Service:      "detention-batch",
		Writer:       &buf,
		StaticFields: map[string]string{"env": "test"},
	})

	l.Debug().Msg("hidden")
	ctx := WithOrder(WithRun(WithRequest(context.Background(), "req-1"), "run-9"), "ORD-42")
	fromCtx(l, ctx).Info().Msg("order done")

	got := lines(t, &buf)
	if len(got) != 1 {
		t.Fatalf("want only the info line, got %d", len(got))
	}
	want := map[string]string{
		"service": "detention-batch", "env": "test", "message": "order done",
		"request_id": "req-1", "run_id": "run-9", "order_id": "ORD-42",
	}
	for k, v := range want {
		if got[0][k] != v {
			t.Fatalf("%s = %v, want %q (line %v)", k, got[0][k], v, got[0])
		}
	}
}

func TestBuild_Sampling(t *testing.T) {
	var buf bytes.Buffer
	l := build(Options{Format: "json", Writer: &buf, SampleEvery: 3})
	for i := 0; i < 6; i++ {
		l.Info().Int("i", i).Msg("tick")
	}
	if n := len(lines(t, &buf)); n != 2 {
		t.Fatalf("sampled lines = %d, want 2", n)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_SERVICE", "detention-api")
	t.Setenv("LOG_CALLER", "true")
	t.Setenv("LOG_SAMPLE_EVERY", "5")

	opt := FromEnv()
	if opt.Level != "warn" || opt.Format != "json" || opt.Service != "detention-api" {
		t.Fatalf("opt = %+v", opt)
	}
	if !opt.WithCaller || opt.SampleEvery != 5 {
		t.Fatalf("caller/sample = %+v", opt)
	}

	t.Setenv("LOG_SAMPLE_EVERY", "many")
	if FromEnv().SampleEvery != 0 {
		t.Fatalf("bad sample value should fall back to 0")
	}
}

func TestContextHelpers(t *testing.T) {
	base := context.Background()
	if WithRequest(base, "") != base || WithRun(base, "") != base || WithOrder(base, "") != base {
		t.Fatalf("empty ids should not derive a new context")
	}
	if Named("") != Get() {
		t.Fatalf("empty component should return the root logger")
	}
	if C(base) == nil || Named("batch") == nil {
		t.Fatalf("child loggers should not be nil")
	}
}
