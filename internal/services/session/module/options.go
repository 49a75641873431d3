package module

import (
	"time"

	"detention/internal/platform/config"
)

// Options holds configuration for the session token manager
type Options struct {
	MaxAge     time.Duration
	WarnBelow  time.Duration
	CheckEvery time.Duration
	// Token is a host supplied token tried before any network fetch
	Token string
	// TokenFile is a file the host session keeps the current token in
	TokenFile string
	// PageFallback enables fetching and parsing the session page
	PageFallback bool
}

// FromConfig reads options with the DETENTION_SESSION_ prefix
func FromConfig(cfg config.Conf) Options {
	s := cfg.Prefix("DETENTION_SESSION_")
	return Options{
		MaxAge:       s.MayDuration("MAX_AGE", 30*time.Minute),
		WarnBelow:    s.MayDuration("WARN_BELOW", 5*time.Minute),
		CheckEvery:   s.MayDuration("CHECK_EVERY", time.Minute),
		Token:        s.MayString("TOKEN", ""),
		TokenFile:    s.MayString("TOKEN_FILE", ""),
		PageFallback: s.MayBool("PAGE_FALLBACK", true),
	}
}
