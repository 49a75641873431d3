package tms

import (
	"context"
	"sync"

	"detention/internal/platform/resilience"
	ptime "detention/internal/platform/time"
)

// Upstream service names; each gets its own breaker
const (
	ServiceOrders    = "orders"
	ServiceExecution = "execution"
	ServiceTiming    = "timing"
	ServiceContracts = "contracts"
	ServiceSession   = "session"
)

// Client is the resilient TMS client shared by every pipeline
type Client struct {
	opts     Options
	tr       *Transport
	breakers *resilience.Registry
	retry    *resilience.RetryPolicy

	mu     sync.RWMutex
	tokens TokenSource
}

// NewClient builds a client. Attach a token source with SetTokenSource before
// calling authenticated endpoints
func NewClient(o Options, breakers *resilience.Registry, clock ptime.Clock) *Client {
	o = o.withDefaults()
	if breakers == nil {
		breakers = resilience.NewRegistry(o.Breaker, clock)
	}
	c := &Client{
		opts:     o,
		breakers: breakers,
		retry:    resilience.NewRetryPolicy(o.Retry, clock),
	}
	c.tr = NewTransport(o, tokenProxy{c}, clock)
	return c
}

// SetTokenSource wires the session manager in after construction; the manager
// itself uses this client to fetch the session page
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

// Breakers exposes the breaker registry for diagnostics
func (c *Client) Breakers() *resilience.Registry { return c.breakers }

// Do runs req through the service breaker and retry policy, decoding into out
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	return c.retry.Do(ctx, c.breakers.Get(req.Service), func(ctx context.Context) error {
		resp, err := c.tr.Call(ctx, req)
		if err != nil {
			return err
		}
		return resp.Decode(out)
	})
}

// raw is Do without decoding, for markup endpoints
func (c *Client) raw(ctx context.Context, req Request) (*Response, error) {
	var out *Response
	err := c.retry.Do(ctx, c.breakers.Get(req.Service), func(ctx context.Context) error {
		resp, err := c.tr.Call(ctx, req)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (c *Client) tokenSource() TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// tokenProxy lets the transport see a source attached after construction
type tokenProxy struct{ c *Client }

func (p tokenProxy) Token(ctx context.Context) (string, error) {
	ts := p.c.tokenSource()
	if ts == nil {
		return "", nil
	}
	return ts.Token(ctx)
}

func (p tokenProxy) Invalidate(token string) {
	if ts := p.c.tokenSource(); ts != nil {
		ts.Invalidate(token)
	}
}
