package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	chx "detention/internal/platform/store/ch"
	ptime "detention/internal/platform/time"
	"detention/internal/platform/store/pg"
)

// openPG opens pg and wraps it with our sql adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var logTracer pg.QueryTracer
	if cfg.PG.LogSQL {
		logTracer = pg.LogTracer(s.Log)
	}

	p, err := pg.Open(ctx, pg.Config{
		URL:      cfg.PG.URL,
		MaxConns: cfg.PG.MaxConns,
		SlowMs:   cfg.PG.SlowQueryMs,
		AppName:  cfg.AppName,
	}, pg.Multi(metricsTracer(), logTracer), nil)
	if err != nil {
		return nil, err
	}

	retries, timeout := cfg.PG.ConnectRetries, cfg.PG.PingTimeout

	// ping the pool directly so boot pings stay out of the query trace
	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= retries; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = p.Pool.Ping(pctx)
		cancel()
		if lastErr == nil {
			return newPGAdapter(p), nil
		}
		s.Log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", backoff).Msg("postgres not ready")
		if attempt == retries {
			break
		}
		if err := ptime.SleepCtx(ctx, backoff); err != nil {
			p.Close()
			return nil, err
		}
		backoff = min(backoff*2, 32*time.Second)
	}

	p.Close()
	return nil, fmt.Errorf("postgres ping failed after %d attempts: %w", retries, lastErr)
}

func openCH(ctx context.Context, cfg Config, _ *Store) (Clickhouse, error) {
	c, err := chx.Open(ctx, chx.Config{URL: cfg.CH.URL, Role: cfg.AppName})
	if err != nil {
		return nil, err
	}
	return newCHAdapter(c), nil
}

// redisOptions builds client options from the url or the plain address
func redisOptions(cfg RedisConfig) (*redis.Options, error) {
	if cfg.URL != "" {
		o, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		return o, nil
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: neither url nor addr set")
	}
	return &redis.Options{Addr: cfg.Addr, DB: cfg.DB}, nil
}

// openRedis connects and pings once; a dead redis fails startup
func openRedis(ctx context.Context, cfg Config, s *Store) (*redis.Client, error) {
	o, err := redisOptions(cfg.RDS)
	if err != nil {
		return nil, err
	}
	if cfg.AppName != "" {
		o.ClientName = cfg.AppName
	}
	c := redis.NewClient(o)

	pctx, cancel := context.WithTimeout(ctx, cfg.RDS.PingTimeout)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	s.Log.Debug().Str("addr", o.Addr).Int("db", o.DB).Msg("redis connected")
	return c, nil
}
