package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	pnet "detention/internal/platform/net"
)

// RecoverJSON turns a panic into a JSON 500 and logs the stack.
// http.ErrAbortHandler is re-raised so the server can drop the connection
func RecoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.C(r.Context()).Error().
				Interface("panic", v).
				Bytes("stack", debug.Stack()).
				Str("path", r.URL.Path).
				Msg("panic recovered")

			status, body := pnet.FailureOf(perr.PanicErrf("internal error"), pnet.RequestID(r.Context()))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(body)
		}()
		next.ServeHTTP(w, r)
	})
}
