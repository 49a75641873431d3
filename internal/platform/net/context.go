// Package net carries request scoped identity and the error body shared by transports
package net

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{ name string }

var keyOperator = ctxKey{"operator"}

// WithRequestID stores id where chi's request id middleware would
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, chimw.RequestIDKey, id)
}

// RequestID returns the request id on ctx, or ""
func RequestID(ctx context.Context) string { return chimw.GetReqID(ctx) }

// WithOperator annotates ctx with the authenticated operator name
func WithOperator(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, keyOperator, name)
}

// Operator returns the authenticated operator on ctx, or ""
func Operator(ctx context.Context) string {
	s, _ := ctx.Value(keyOperator).(string)
	return s
}
