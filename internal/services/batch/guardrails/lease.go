package guardrails

import (
	"context"
	"errors"
	"sync"
	"time"

	"detention/internal/modkit/repokit"
	"detention/internal/platform/logger"
)

// ErrLeaseHeld signals another process owns the run already
var ErrLeaseHeld = errors.New("batch: run lease already held")

// Lease claims name for the lifetime of a run. release is safe to call more than once
type Lease func(ctx context.Context, name string) (release func(), err error)

// LeaseDDL creates the lease table used by MakePGLease
const LeaseDDL = `
	create table if not exists detention_run_lease (
		name       text primary key,
		owner      text not null,
		expires_at timestamptz not null
	)
`

// MakePGLease returns a lease backed by the detention_run_lease table.
// A row whose expires_at has passed is taken over; an owner may re-claim its own row.
// It assumes the table exists (see LeaseDDL)
func MakePGLease(db repokit.TxRunner, owner string, ttl time.Duration) Lease {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(ctx context.Context, name string) (func(), error) {
		var claimed bool
		err := db.Tx(ctx, func(q repokit.Queryer) error {
			rows, err := q.Query(ctx, `
				insert into detention_run_lease (name, owner, expires_at)
				values ($1, $2, now() + make_interval(secs => $3))
				on conflict (name) do update
				set owner = excluded.owner, expires_at = excluded.expires_at
				where detention_run_lease.expires_at < now()
				   or detention_run_lease.owner = excluded.owner
				returning true
			`, name, owner, ttl.Seconds())
			if err != nil {
				return err
			}
			defer rows.Close()
			if rows.Next() {
				claimed = true
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrLeaseHeld
		}

		var once sync.Once
		release := func() {
			once.Do(func() {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if _, err := db.Exec(rctx, `delete from detention_run_lease where name = $1 and owner = $2`, name, owner); err != nil {
					logger.C(ctx).Warn().Err(err).Str("lease", name).Msg("batch: lease release failed")
				}
			})
		}
		return release, nil
	}
}

// LocalLease is an in-process lease for single instance deployments and tests
func LocalLease() Lease {
	var mu sync.Mutex
	held := map[string]bool{}
	return func(_ context.Context, name string) (func(), error) {
		mu.Lock()
		defer mu.Unlock()
		if held[name] {
			return nil, ErrLeaseHeld
		}
		held[name] = true
		var once sync.Once
		return func() {
			once.Do(func() {
				mu.Lock()
				delete(held, name)
				mu.Unlock()
			})
		}, nil
	}
}
