// Package tms is the client for the order-management backend. Every call goes
// through a classifying transport, a per-service circuit breaker and a retry policy
package tms

import (
	"bytes"
	"context"
	"encoding/json"
	stderrs "errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	ptime "detention/internal/platform/time"
)

const maxBody = 4 << 20

// TokenSource supplies the session token and learns when upstream rejects it
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(token string)
}

// Request is one upstream call
type Request struct {
	Service string
	Method  string
	Path    string
	Body    any
	// NoAuth skips the session header; used to fetch the session page itself
	NoAuth bool
}

// Response is a classified successful response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into out
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return perr.Wrap(err, perr.ErrorCodeJSON, "decode upstream response")
	}
	return nil
}

// rateLimitedError carries the upstream wait hint for the retry policy
type rateLimitedError struct {
	err  error
	wait time.Duration
}

func (e *rateLimitedError) Error() string             { return e.err.Error() }
func (e *rateLimitedError) Unwrap() error             { return e.err }
func (e *rateLimitedError) RetryAfter() time.Duration { return e.wait }

// Transport performs single, unretried calls and classifies the outcome
type Transport struct {
	http      *http.Client
	baseURL   string
	userAgent string
	header    string
	tokens    TokenSource
	limiter   *rate.Limiter
	clock     ptime.Clock
	log       logger.Logger
}

// NewTransport builds a Transport. tokens may be nil for unauthenticated use
func NewTransport(o Options, tokens TokenSource, clock ptime.Clock) *Transport {
	o = o.withDefaults()
	var lim *rate.Limiter
	if o.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(o.RPS), max(1, o.Burst))
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: o.Timeout}
	}
	return &Transport{
		http:      hc,
		baseURL:   strings.TrimRight(o.BaseURL, "/"),
		userAgent: o.UserAgent,
		header:    o.TokenHeader,
		tokens:    tokens,
		limiter:   lim,
		clock:     ptime.OrSystem(clock),
		log:       *logger.Named("tms"),
	}
}

// Call performs req once. The returned error is always a coded *perr.Error
func (t *Transport) Call(ctx context.Context, req Request) (*Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, classifyTransportErr(ctx, err, req)
		}
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "encode %s %s", req.Method, req.Path)
		}
		body = bytes.NewReader(b)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "build %s %s", req.Method, req.Path)
	}
	hreq.Header.Set("User-Agent", t.userAgent)
	hreq.Header.Set("Accept", "application/json")
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}

	var token string
	if !req.NoAuth && t.tokens != nil {
		token, err = t.tokens.Token(ctx)
		if err != nil {
			return nil, perr.Wrap(err, perr.ErrorCodeUnauthorized, "session token unavailable")
		}
		if token != "" {
			hreq.Header.Set(t.header, token)
		}
	}

	start := t.clock.Now()
	resp, err := t.http.Do(hreq)
	lat := t.clock.Now().Sub(start)
	metrics.UpstreamLatency.WithLabelValues(req.Service).Observe(lat.Seconds())
	if err != nil {
		cerr := classifyTransportErr(ctx, err, req)
		t.observe(req, 0, lat, cerr)
		return nil, cerr
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.log.Error().Err(cerr).Str("path", req.Path).Msg("tms close body failed")
		}
	}()

	b, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if rerr != nil {
		cerr := classifyTransportErr(ctx, rerr, req)
		t.observe(req, resp.StatusCode, lat, cerr)
		return nil, cerr
	}

	out := &Response{Status: resp.StatusCode, Header: resp.Header, Body: b}
	cerr := t.classify(req, out, token)
	t.observe(req, resp.StatusCode, lat, cerr)
	if cerr != nil {
		return nil, cerr
	}
	return out, nil
}

// classify maps a completed response onto the error taxonomy
func (t *Transport) classify(req Request, r *Response, token string) error {
	s := r.Status
	switch {
	case s >= 200 && s < 300:
		return nil
	case s == http.StatusUnauthorized || s == http.StatusForbidden:
		if t.tokens != nil && token != "" {
			t.tokens.Invalidate(token)
		}
		return perr.Newf(perr.ErrorCodeUnauthorized, "%s %s: session rejected (%d)", req.Method, req.Path, s)
	case s == http.StatusTooManyRequests:
		return &rateLimitedError{
			err:  perr.Newf(perr.ErrorCodeTooManyRequests, "%s %s: rate limited", req.Method, req.Path),
			wait: computeWait(r.Header, t.clock.Now()),
		}
	case s == http.StatusConflict || (s >= 400 && s < 500 && mentionsVersion(r.Body)):
		return perr.Newf(perr.ErrorCodeConflict, "%s %s: version conflict: %s", req.Method, req.Path, snippet(r.Body))
	case s == http.StatusNotFound:
		return perr.Newf(perr.ErrorCodeNotFound, "%s %s: not found", req.Method, req.Path)
	case s >= 500:
		return perr.Newf(perr.ErrorCodeNetwork, "%s %s: upstream status %d", req.Method, req.Path, s)
	default:
		return perr.Newf(perr.ErrorCodeValidation, "%s %s: rejected (%d): %s", req.Method, req.Path, s, snippet(r.Body))
	}
}

func (t *Transport) observe(req Request, status int, lat time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = perr.CodeOf(err).String()
	}
	metrics.UpstreamCalls.WithLabelValues(req.Service, outcome).Inc()
	t.log.Debug().
		Str("service", req.Service).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", status).
		Dur("latency", lat).
		Str("outcome", outcome).
		Msg("tms http response")
}

// classifyTransportErr separates timeouts from other connection failures.
// Caller cancellation is passed through untouched so nothing retries it
func classifyTransportErr(ctx context.Context, err error, req Request) error {
	if stderrs.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}
	var ne net.Error
	if stderrs.Is(err, context.DeadlineExceeded) || (stderrs.As(err, &ne) && ne.Timeout()) {
		return perr.Wrapf(err, perr.ErrorCodeTimeout, "%s %s timed out", req.Method, req.Path)
	}
	return perr.Wrapf(err, perr.ErrorCodeNetwork, "%s %s failed", req.Method, req.Path)
}

func mentionsVersion(b []byte) bool {
	s := strings.ToLower(string(b))
	return strings.Contains(s, "version") || strings.Contains(s, "concurrency") || strings.Contains(s, "stale")
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

// computeWait reads Retry-After as seconds or an HTTP date
func computeWait(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
		return time.Duration(sec) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
