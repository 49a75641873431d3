package module

import (
	"os"
	"strings"
	"time"

	"detention/internal/platform/config"
)

// Options holds configuration for batch runs
type Options struct {
	ChunkSize  int
	GroupSize  int
	Cooldown   time.Duration
	GroupDelay time.Duration

	SaveEvery time.Duration
	MaxAge    time.Duration

	// Store is memory, pg or redis
	Store    string
	RedisKey string

	OrderTimeout    time.Duration
	ApprovalTimeout time.Duration
	SaveTimeout     time.Duration

	TokenMinRemaining time.Duration

	// Leases claims a pg row for the run so two processes never share a snapshot
	Leases     bool
	LeaseOwner string

	// Ledger appends report rows and undo records to clickhouse when available
	Ledger bool

	DryRun bool
}

// FromConfig reads options with the DETENTION_BATCH_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("DETENTION_BATCH_")
	host, _ := os.Hostname()
	return Options{
		ChunkSize:         c.MayInt("CHUNK_SIZE", 50),
		GroupSize:         c.MayInt("GROUP_SIZE", 5),
		Cooldown:          c.MayDuration("COOLDOWN", 2*time.Second),
		GroupDelay:        c.MayDuration("GROUP_DELAY", 250*time.Millisecond),
		SaveEvery:         c.MayDuration("SAVE_EVERY", 5*time.Second),
		MaxAge:            c.MayDuration("MAX_AGE", 24*time.Hour),
		Store:             strings.ToLower(c.MayEnum("STORE", "memory", "memory", "pg", "redis")),
		RedisKey:          c.MayString("REDIS_KEY", "detention:batch:snapshot"),
		OrderTimeout:      c.MayDuration("ORDER_TIMEOUT", 2*time.Minute),
		ApprovalTimeout:   c.MayDuration("APPROVAL_TIMEOUT", 0),
		SaveTimeout:       c.MayDuration("SAVE_TIMEOUT", 10*time.Second),
		TokenMinRemaining: c.MayDuration("TOKEN_MIN_REMAINING", 2*time.Minute),
		Leases:            c.MayBool("LEASES", false),
		LeaseOwner:        c.MayString("LEASE_OWNER", host),
		Ledger:            c.MayBool("LEDGER", true),
		DryRun:            c.MayBool("DRY_RUN", false),
	}
}
