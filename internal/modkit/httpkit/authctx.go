package httpkit

import (
	"net/http"

	pnet "detention/internal/platform/net"
)

// OperatorOr returns the authenticated operator, or def on open routes
func OperatorOr(r *http.Request, def string) string {
	if name := pnet.Operator(r.Context()); name != "" {
		return name
	}
	return def
}
