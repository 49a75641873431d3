// Package pg opens the pgx pool behind the store's postgres seam
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config configures the pool
type Config struct {
	URL      string
	MaxConns int32
	// SlowMs marks statements at or above it as slow; negative disables
	SlowMs  int
	AppName string
}

// PG is the pool plus the tracer every statement reports to
type PG struct {
	Pool   *pgxpool.Pool
	Tracer QueryTracer
	// Slow is the slow statement threshold, negative when disabled
	Slow time.Duration
}

var newPool = pgxpool.NewWithConfig

// Open parses cfg, applies mutate and builds the pool. It does not ping
func Open(ctx context.Context, cfg Config, tracer QueryTracer, mutate func(*pgxpool.Config)) (*PG, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("pg: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.AppName != "" {
		pcfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	if mutate != nil {
		mutate(pcfg)
	}
	pool, err := newPool(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: new pool: %w", err)
	}

	slow := time.Duration(cfg.SlowMs) * time.Millisecond
	if cfg.SlowMs < 0 {
		slow = -1
	}
	return &PG{Pool: pool, Tracer: tracer, Slow: slow}, nil
}

// Close closes the pool. Safe on nil
func (p *PG) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// IsSlow reports whether d crosses the slow threshold
func (p *PG) IsSlow(d time.Duration) bool {
	return p.Slow >= 0 && d >= p.Slow
}
