package module

import (
	"strings"
	"time"

	"detention/internal/platform/config"
)

// Options holds configuration for the contract store
type Options struct {
	// Source is tms, file or both (file first, so local records win)
	Source string
	File   string
	TTL    time.Duration
}

// FromConfig reads options with the DETENTION_CONTRACTS_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("DETENTION_CONTRACTS_")
	return Options{
		Source: strings.ToLower(c.MayEnum("SOURCE", "tms", "tms", "file", "both")),
		File:   c.MayString("FILE", "contracts.yaml"),
		TTL:    c.MayDuration("TTL", 15*time.Minute),
	}
}
