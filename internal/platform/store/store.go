// Package store opens the optional backends behind the run ledger:
// postgres for snapshots and leases, clickhouse for report rows and redis for
// the rate limit window. Any of them may be absent
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"detention/internal/platform/logger"
)

// Store holds whichever backends were enabled. The zero value has none
type Store struct {
	Log   logger.Logger
	PG    TxRunner
	CH    Clickhouse
	Redis *redis.Client
}

// Open connects every backend enabled in cfg, in pg, clickhouse, redis order.
// A failure closes whatever already opened
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	s.Log = s.Log.With().Str("component", "store").Logger()
	cfg = cfg.withDefaults()

	steps := []struct {
		on   bool
		open func() error
	}{
		{cfg.PG.Enabled, func() (err error) { s.PG, err = openPG(ctx, cfg, s); return }},
		{cfg.CH.Enabled, func() (err error) { s.CH, err = openCH(ctx, cfg, s); return }},
		{cfg.RDS.Enabled, func() (err error) { s.Redis, err = openRedis(ctx, cfg, s); return }},
	}
	for _, st := range steps {
		if !st.on {
			continue
		}
		if err := st.open(); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
	}
	return s, nil
}

// pingers lists the enabled backends by name
func (s *Store) pingers() []namedPinger {
	var out []namedPinger
	if p, ok := s.PG.(Pinger); ok {
		out = append(out, namedPinger{"pg", p})
	}
	if p, ok := s.CH.(Pinger); ok {
		out = append(out, namedPinger{"ch", p})
	}
	if s.Redis != nil {
		out = append(out, namedPinger{"redis", redisPinger{s.Redis}})
	}
	return out
}

type namedPinger struct {
	name string
	p    Pinger
}

type redisPinger struct{ c *redis.Client }

func (r redisPinger) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

// Guard pings every enabled backend and joins the failures
func (s *Store) Guard(ctx context.Context) error {
	if s == nil {
		return errors.New("nil store")
	}
	var errs []error
	for _, np := range s.pingers() {
		if err := np.p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", np.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases backends in reverse open order
func (s *Store) Close(context.Context) error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.CH != nil {
		errs = append(errs, s.CH.Close())
	}
	if c, ok := s.PG.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
