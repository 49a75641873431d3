package tms

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	perr "detention/internal/platform/errors"
)

// GetOrder fetches the full order including stops, lines and version
func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var out Order
	err := c.Do(ctx, Request{Service: ServiceOrders, Method: http.MethodGet, Path: "/api/orders/" + url.PathEscape(id)}, &out)
	if err != nil {
		return Order{}, perr.WithOp(err, "get_order")
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// GetExecution fetches the tour linkage for an order
func (c *Client) GetExecution(ctx context.Context, orderID string) (Execution, error) {
	var out Execution
	err := c.Do(ctx, Request{Service: ServiceExecution, Method: http.MethodGet, Path: "/api/orders/" + url.PathEscape(orderID) + "/execution"}, &out)
	if err != nil {
		return Execution{}, perr.WithOp(err, "get_execution")
	}
	return out, nil
}

// GetTiming fetches every run's timing records for a tour
func (c *Client) GetTiming(ctx context.Context, tourID string) (TimingDoc, error) {
	var out TimingDoc
	err := c.Do(ctx, Request{Service: ServiceTiming, Method: http.MethodGet, Path: "/api/tours/" + url.PathEscape(tourID) + "/timing"}, &out)
	if err != nil {
		return TimingDoc{}, perr.WithOp(err, "get_timing")
	}
	return out, nil
}

// UpdateOrder sends the full order back with its unmodified version token.
// Returns the new version
func (c *Client) UpdateOrder(ctx context.Context, o Order) (string, error) {
	var out versionResponse
	err := c.Do(ctx, Request{Service: ServiceOrders, Method: http.MethodPut, Path: "/api/orders/" + url.PathEscape(o.ID), Body: o}, &out)
	if err != nil {
		return "", perr.WithOp(err, "update_order")
	}
	return out.Version, nil
}

// AddLineItem adds a priced line. Returns the new version
func (c *Client) AddLineItem(ctx context.Context, orderID, version, code string, amount decimal.Decimal, desc string) (string, error) {
	var out versionResponse
	body := lineRequest{Version: version, Code: code, Amount: amount, Description: desc}
	err := c.Do(ctx, Request{Service: ServiceOrders, Method: http.MethodPost, Path: "/api/orders/" + url.PathEscape(orderID) + "/lines", Body: body}, &out)
	if err != nil {
		return "", perr.WithOp(err, "add_line")
	}
	return out.Version, nil
}

// AddComment posts a free-text comment. Callers treat failure as non-fatal
func (c *Client) AddComment(ctx context.Context, orderID, text string) error {
	err := c.Do(ctx, Request{Service: ServiceOrders, Method: http.MethodPost, Path: "/api/orders/" + url.PathEscape(orderID) + "/comments", Body: commentRequest{Text: text}}, nil)
	return perr.WithOp(err, "add_comment")
}

// ListContracts fetches every shipper contract record as loosely typed maps;
// the contracts store owns validation
func (c *Client) ListContracts(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	err := c.Do(ctx, Request{Service: ServiceContracts, Method: http.MethodGet, Path: "/api/contracts/detention"}, &out)
	if err != nil {
		return nil, perr.WithOp(err, "list_contracts")
	}
	return out, nil
}

// FetchSessionPage loads the markup that embeds the session token. No token is sent
func (c *Client) FetchSessionPage(ctx context.Context) (string, error) {
	resp, err := c.raw(ctx, Request{Service: ServiceSession, Method: http.MethodGet, Path: c.opts.SessionPath, NoAuth: true})
	if err != nil {
		return "", perr.WithOp(err, "session_page")
	}
	return string(resp.Body), nil
}
