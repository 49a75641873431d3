package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	phttp "detention/internal/platform/net/http"
)

func get(t *testing.T, d Deps, path string, out any) int {
	t.Helper()
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), d)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, path, nil))
	var env struct{ Data json.RawMessage }
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return rec.Code
}

func TestReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks []Check
		code   int
		status string
	}{
		{name: "all ok", checks: []Check{{Name: "pg", Ping: ok}, {Name: "ch", Ping: ok}}, code: stdhttp.StatusOK, status: "ok"},
		{name: "skipped", checks: []Check{{Name: "pg", Ping: ok}, {Name: "redis"}}, code: stdhttp.StatusOK, status: "degraded"},
		{name: "failed", checks: []Check{{Name: "pg", Ping: bad}, {Name: "redis"}}, code: stdhttp.StatusServiceUnavailable, status: "fail"},
		{name: "none", code: stdhttp.StatusOK, status: "ok"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Readiness
			code := get(t, Deps{Checks: tc.checks}, "/ready", &got)
			if code != tc.code || got.Status != tc.status {
				t.Fatalf("ready = %d %+v", code, got)
			}
			if len(got.Checks) != len(tc.checks) {
				t.Fatalf("checks = %+v", got.Checks)
			}
		})
	}
}

func TestReady_KeepsCheckOrderAndError(t *testing.T) {
	d := Deps{Checks: []Check{
		{Name: "pg", Ping: func(context.Context) error { return errors.New("refused") }},
		{Name: "ch"},
	}}
	var got Readiness
	get(t, d, "/ready", &got)
	if got.Checks[0].Name != "pg" || got.Checks[0].Error != "refused" || got.Checks[1].Status != "skipped" {
		t.Fatalf("checks = %+v", got.Checks)
	}
}

func TestHealth_Uptime(t *testing.T) {
	start := time.Date(2025, 9, 3, 13, 0, 0, 0, time.UTC)
	d := Deps{
		ServiceName: "detention-api",
		StartedAt:   start,
		Now:         func() time.Time { return start.Add(5 * time.Minute) },
	}
	var got Health
	if code := get(t, d, "/health", &got); code != stdhttp.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if !got.OK || got.Service != "detention-api" || got.Uptime != 300 || got.Started != "2025-09-03T13:00:00Z" {
		t.Fatalf("health = %+v", got)
	}
}
