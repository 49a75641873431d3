package tms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/resilience"
	kit "detention/internal/platform/testkit"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	invalidated []string
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) Invalidate(tok string) {
	f.mu.Lock()
	f.invalidated = append(f.invalidated, tok)
	f.mu.Unlock()
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *fakeTokens, *kit.ManualClock) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	clk := kit.NewManualClock(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	o := Options{
		BaseURL: srv.URL,
		Breaker: resilience.BreakerOptions{FailureThreshold: 10, ResetTimeout: time.Minute},
		Retry:   resilience.RetryOptions{MaxRetries: 2, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond},
	}
	c := NewClient(o, nil, clk)
	tok := &fakeTokens{token: "tok-1"}
	c.SetTokenSource(tok)
	return c, tok, clk
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetOrderSendsTokenAndDecodes(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(defaultTokenHeader) != "tok-1" {
			t.Errorf("token header = %q", r.Header.Get(defaultTokenHeader))
		}
		if r.URL.Path != "/api/orders/ORD1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, 200, Order{ID: "ORD1", Version: "v7", Status: "delivered", Shipper: "Acme",
			Stops: []Stop{{ID: "S1", Type: "pickup", LoadType: "live"}, {ID: "S2", Type: "delivery", LoadType: "drop & hook"}},
			Lines: []Line{{ID: "L1", Code: "DETDL", Amount: decimal.Zero}}})
	}))
	o, err := c.GetOrder(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if o.Version != "v7" || len(o.Stops) != 2 || o.Stops[1].Load() != "drop_hook" || o.Stops[0].Role() != "pickup" {
		t.Fatalf("order = %+v", o)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   perr.ErrorCode
	}{
		{"conflict", 409, `{"error":"conflict"}`, perr.ErrorCodeConflict},
		{"version keyword", 400, `{"error":"Version token is stale"}`, perr.ErrorCodeConflict},
		{"not found", 404, ``, perr.ErrorCodeNotFound},
		{"auth", 401, ``, perr.ErrorCodeUnauthorized},
		{"forbidden", 403, ``, perr.ErrorCodeUnauthorized},
		{"validation", 422, `{"error":"amount"}`, perr.ErrorCodeValidation},
		{"parse", 200, `{not json`, perr.ErrorCodeJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := c.GetOrder(context.Background(), "ORD1")
			if !perr.IsCode(err, tc.want) {
				t.Fatalf("err = %v (%v), want %v", err, perr.CodeOf(err), tc.want)
			}
			if calls.Load() != 1 {
				t.Fatalf("%s was retried (%d calls)", tc.name, calls.Load())
			}
		})
	}
}

func TestAuthFailureInvalidatesToken(t *testing.T) {
	c, tok, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(401)
	}))
	_, _ = c.GetExecution(context.Background(), "ORD1")
	if len(tok.invalidated) != 1 || tok.invalidated[0] != "tok-1" {
		t.Fatalf("invalidated = %v", tok.invalidated)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c, _, clk := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(503)
		case 2:
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(429)
		default:
			writeJSON(w, 200, Execution{OrderID: "ORD1", TourID: "T9"})
		}
	}))
	ex, err := c.GetExecution(context.Background(), "ORD1")
	if err != nil || ex.TourID != "T9" {
		t.Fatalf("GetExecution = %+v, %v", ex, err)
	}
	sl := clk.Sleeps()
	if len(sl) != 2 {
		t.Fatalf("sleeps = %v", sl)
	}
	if sl[1] != 2*time.Second {
		t.Fatalf("Retry-After should set the rate limit wait, got %s", sl[1])
	}
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(502)
	}))
	_, err := c.GetTiming(context.Background(), "T1")
	if !perr.IsCode(err, perr.ErrorCodeNetwork) || calls.Load() != 3 {
		t.Fatalf("err = %v calls = %d", err, calls.Load())
	}
	if s := c.Breakers().Get(ServiceTiming).Snapshot(); s.Failures != 3 {
		t.Fatalf("breaker should count every attempt, got %+v", s)
	}
}

func TestMutationsAndSessionPage(t *testing.T) {
	var gotLine lineRequest
	var gotComment commentRequest
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/orders/ORD1", func(w http.ResponseWriter, r *http.Request) {
		var o Order
		_ = json.NewDecoder(r.Body).Decode(&o)
		if o.Version != "v1" {
			t.Errorf("update should carry version, got %q", o.Version)
		}
		writeJSON(w, 200, versionResponse{Version: "v2"})
	})
	mux.HandleFunc("POST /api/orders/ORD1/lines", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotLine)
		writeJSON(w, 201, versionResponse{Version: "v3"})
	})
	mux.HandleFunc("POST /api/orders/ORD1/comments", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotComment)
		w.WriteHeader(204)
	})
	mux.HandleFunc("GET /session", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(defaultTokenHeader) != "" {
			t.Errorf("session page must not send a token")
		}
		_, _ = w.Write([]byte(`<html><head><meta name="session-token" content="abc123"></head></html>`))
	})
	c, _, _ := newTestClient(t, mux)
	ctx := context.Background()

	v, err := c.UpdateOrder(ctx, Order{ID: "ORD1", Version: "v1"})
	if err != nil || v != "v2" {
		t.Fatalf("UpdateOrder = %q, %v", v, err)
	}
	v, err = c.AddLineItem(ctx, "ORD1", "v2", "DETDL", decimal.RequireFromString("81.25"), "detention")
	if err != nil || v != "v3" {
		t.Fatalf("AddLineItem = %q, %v", v, err)
	}
	if gotLine.Code != "DETDL" || !gotLine.Amount.Equal(decimal.RequireFromString("81.25")) || gotLine.Version != "v2" {
		t.Fatalf("line body = %+v", gotLine)
	}
	if err := c.AddComment(ctx, "ORD1", "note"); err != nil || gotComment.Text != "note" {
		t.Fatalf("AddComment = %v, %+v", err, gotComment)
	}
	page, err := c.FetchSessionPage(ctx)
	if err != nil {
		t.Fatalf("FetchSessionPage: %v", err)
	}
	if tok, err := ExtractToken(page); err != nil || tok != "abc123" {
		t.Fatalf("ExtractToken = %q, %v", tok, err)
	}
}

func TestListContracts(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"shipper":"Acme","rate":"75"},{"shipper":"Beta","rate":60}]`))
	}))
	recs, err := c.ListContracts(context.Background())
	if err != nil || len(recs) != 2 || recs[0]["shipper"] != "Acme" {
		t.Fatalf("ListContracts = %v, %v", recs, err)
	}
}

func TestCancelledContextIsNotRetried(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, Order{})
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.GetOrder(ctx, "ORD1"); err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Fatalf("err = %v", err)
	}
}

func TestUpdateOrderKeepsUnknownFields(t *testing.T) {
	const doc = `{"id":"ORD1","version":"v7","status":"delivered","shipper":"Acme","bill_to":"ACCT-9",
		"stops":[{"id":"S1","type":"pickup","address":"1 Main St"}],
		"lines":[{"id":"L1","code":"LH","amount":1200,"quantity":1},{"id":"L2","code":"DETPU","amount":0,"quantity":1}]}`
	var sent map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders/ORD1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(doc))
	})
	mux.HandleFunc("PUT /api/orders/ORD1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		writeJSON(w, 200, versionResponse{Version: "v8"})
	})
	c, _, _ := newTestClient(t, mux)
	ctx := context.Background()

	o, err := c.GetOrder(ctx, "ORD1")
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	o.Lines = o.Lines[:1]
	if _, err := c.UpdateOrder(ctx, o); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	if sent["bill_to"] != "ACCT-9" || sent["version"] != "v7" {
		t.Fatalf("order fields lost: %v", sent)
	}
	stop := sent["stops"].([]any)[0].(map[string]any)
	if stop["address"] != "1 Main St" {
		t.Fatalf("stop fields lost: %v", stop)
	}
	for _, k := range []string{"sequence", "load_type"} {
		if _, ok := stop[k]; ok {
			t.Fatalf("unsent %s was added: %v", k, stop)
		}
	}
	lines := sent["lines"].([]any)
	if len(lines) != 1 {
		t.Fatalf("lines = %v", lines)
	}
	line := lines[0].(map[string]any)
	if line["quantity"] != float64(1) || line["amount"] != float64(1200) {
		t.Fatalf("line fields lost or rewritten: %v", line)
	}
}

func TestModelEncodingWritesChangedFields(t *testing.T) {
	var l Line
	if err := json.Unmarshal([]byte(`{"id":"L1","code":"DETDL","amount":0,"quantity":1}`), &l); err != nil {
		t.Fatalf("decode: %v", err)
	}
	l.Amount = decimal.RequireFromString("81.25")
	l.Description = "Detention delivery"
	b, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got map[string]any
	_ = json.Unmarshal(b, &got)
	if got["amount"] != "81.25" || got["description"] != "Detention delivery" || got["quantity"] != float64(1) {
		t.Fatalf("encoded = %s", b)
	}

	fresh, _ := json.Marshal(Stop{ID: "S1", Type: "pickup"})
	if !strings.Contains(string(fresh), `"sequence":0`) {
		t.Fatalf("a built value should encode every typed field: %s", fresh)
	}
}
