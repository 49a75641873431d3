package middleware

import (
	"net/http"

	pnet "detention/internal/platform/net"
)

// AuthPort resolves the operator behind a request
type AuthPort interface {
	Authenticate(r *http.Request) (operator string, err error)
}

// WriteFunc writes a JSON body with the given status
type WriteFunc func(w http.ResponseWriter, status int, body any)

// Auth rejects requests the port cannot authenticate and puts the operator on the context.
// A nil port lets everything through
func Auth(p AuthPort, write WriteFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if p == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, err := p.Authenticate(r)
			if err != nil {
				status, body := pnet.FailureOf(err, pnet.RequestID(r.Context()))
				w.Header().Set("WWW-Authenticate", `Bearer realm="detention"`)
				write(w, status, body)
				return
			}
			next.ServeHTTP(w, r.WithContext(pnet.WithOperator(r.Context(), op)))
		})
	}
}
