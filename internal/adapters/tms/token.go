package tms

import (
	"regexp"
	"strings"

	perr "detention/internal/platform/errors"
)

// patterns the session page is known to embed the token with, most specific first
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<meta\s+name=["'](?:session-token|csrf-token)["']\s+content=["']([^"']+)["']`),
	regexp.MustCompile(`<meta\s+content=["']([^"']+)["']\s+name=["'](?:session-token|csrf-token)["']`),
	regexp.MustCompile(`["']?sessionToken["']?\s*[:=]\s*["']([^"']+)["']`),
	regexp.MustCompile(`<input[^>]+name=["']__session["'][^>]+value=["']([^"']+)["']`),
}

// ExtractToken pulls the session token out of page markup
func ExtractToken(markup string) (string, error) {
	for _, re := range tokenPatterns {
		if m := re.FindStringSubmatch(markup); len(m) == 2 {
			if tok := strings.TrimSpace(m[1]); tok != "" {
				return tok, nil
			}
		}
	}
	return "", perr.Newf(perr.ErrorCodeJSON, "session token not found in page markup")
}
