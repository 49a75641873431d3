package httpkit

import (
	"crypto/subtle"
	"net/http"
	"strings"

	perrs "detention/internal/platform/errors"
	"detention/internal/platform/net/middleware"
)

// Protected groups routes under bearer auth. A nil port leaves the group open
func Protected(r Router, p middleware.AuthPort, fn func(Router)) {
	r.Group(func(gr Router) {
		gr.Use(Auth(p))
		fn(gr)
	})
}

// operatorTokens authenticates a bearer token against configured operators
type operatorTokens map[string]string

// OperatorTokens builds an auth port from operator name to token pairs.
// Returns nil when no tokens are configured
func OperatorTokens(tokens map[string]string) middleware.AuthPort {
	ot := operatorTokens{}
	for name, tok := range tokens {
		if name != "" && tok != "" {
			ot[name] = tok
		}
	}
	if len(ot) == 0 {
		return nil
	}
	return ot
}

// Authenticate compares the bearer token against every operator in constant time
func (ot operatorTokens) Authenticate(r *http.Request) (string, error) {
	raw, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return "", perrs.Unauthorizedf("missing bearer token")
	}
	found := ""
	for name, tok := range ot {
		if subtle.ConstantTimeCompare([]byte(raw), []byte(tok)) == 1 {
			found = name
		}
	}
	if found == "" {
		return "", perrs.Unauthorizedf("unknown operator token")
	}
	return found, nil
}

// bearer extracts the token from an Authorization header, scheme case-insensitive
func bearer(h string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
