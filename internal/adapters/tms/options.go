package tms

import (
	"net/http"
	"time"

	"detention/internal/platform/config"
	"detention/internal/platform/resilience"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultUA          = "detention-engine"
	defaultTokenHeader = "X-Session-Token"
	defaultSessionPath = "/session"
)

// Options configures the TMS client
type Options struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	TokenHeader string
	SessionPath string

	// RPS paces outbound requests across all workers; 0 disables pacing
	RPS   float64
	Burst int

	Breaker resilience.BreakerOptions
	Retry   resilience.RetryOptions

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.TokenHeader == "" {
		o.TokenHeader = defaultTokenHeader
	}
	if o.SessionPath == "" {
		o.SessionPath = defaultSessionPath
	}
	return o
}

// FromConfig reads DETENTION_TMS_* settings
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("DETENTION_TMS_")
	return Options{
		BaseURL:     c.MustURL("BASE_URL").String(),
		UserAgent:   c.MayString("USER_AGENT", defaultUA),
		Timeout:     c.MayDuration("TIMEOUT", defaultTimeout),
		TokenHeader: c.MayString("TOKEN_HEADER", defaultTokenHeader),
		SessionPath: c.MayString("SESSION_PATH", defaultSessionPath),
		RPS:         c.MayFloat64("RPS", 8),
		Burst:       c.MayInt("BURST", 4),
		Breaker: resilience.BreakerOptions{
			FailureThreshold: c.MayInt("BREAKER_FAILURES", 5),
			SuccessThreshold: c.MayInt("BREAKER_SUCCESSES", 2),
			ResetTimeout:     c.MayDuration("BREAKER_RESET", 30*time.Second),
		},
		Retry: resilience.RetryOptions{
			MaxRetries:      c.MayInt("RETRY_MAX", 3),
			BaseDelay:       c.MayDuration("RETRY_BASE", 500*time.Millisecond),
			MaxDelay:        c.MayDuration("RETRY_MAX_DELAY", 10*time.Second),
			RateLimitFactor: c.MayFloat64("RETRY_RATE_LIMIT_FACTOR", 3),
		},
	}
}
