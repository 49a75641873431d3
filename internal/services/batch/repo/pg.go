package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"detention/internal/modkit/repokit"
	perr "detention/internal/platform/errors"
	"detention/internal/services/batch/domain"
)

// SnapshotDDL creates the single-row snapshot table
const SnapshotDDL = `
	create table if not exists detention_batch_snapshot (
		slot     text primary key,
		run_id   text not null,
		schema   int not null,
		body     jsonb not null,
		saved_at timestamptz not null default now()
	)
`

const slot = "current"

type (
	// PG is a Postgres binder for the snapshot queries
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// SnapshotQueries is the bound query set
type SnapshotQueries interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, s domain.Snapshot) error
	Clear(ctx context.Context) error
}

// NewPG returns a Postgres binder for SnapshotQueries
func NewPG() repokit.Binder[SnapshotQueries] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) SnapshotQueries { return &queries{q: q} }

func (r *queries) Load(ctx context.Context) (*domain.Snapshot, error) {
	var body []byte
	err := r.q.QueryRow(ctx, `select body from detention_batch_snapshot where slot = $1`, slot).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.FromPostgres(err, "load snapshot")
	}
	return decode(body)
}

func (r *queries) Save(ctx context.Context, s domain.Snapshot) error {
	body, err := encode(s)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		insert into detention_batch_snapshot (slot, run_id, schema, body, saved_at)
		values ($1, $2, $3, $4::jsonb, $5)
		on conflict (slot) do update
		set run_id = excluded.run_id, schema = excluded.schema, body = excluded.body, saved_at = excluded.saved_at
	`, slot, s.RunID, s.Schema, string(body), s.SavedAt.UTC())
	return perr.FromPostgres(err, "save snapshot")
}

func (r *queries) Clear(ctx context.Context) error {
	_, err := r.q.Exec(ctx, `delete from detention_batch_snapshot where slot = $1`, slot)
	return perr.FromPostgres(err, "clear snapshot")
}

// PGStore is the domain.SnapshotStore over a TxRunner
type PGStore struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[SnapshotQueries]
}

// NewPGStore builds a Postgres snapshot store
func NewPGStore(db repokit.TxRunner) *PGStore {
	if db == nil {
		panic("batch.PGStore requires a non nil TxRunner")
	}
	return &PGStore{DB: db, Binder: NewPG()}
}

// EnsureSchema creates the snapshot table when missing
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, SnapshotDDL)
	return perr.FromPostgres(err, "create snapshot table")
}

// Load implements domain.SnapshotStore
func (s *PGStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	return s.Binder.Bind(s.DB).Load(ctx)
}

// Save implements domain.SnapshotStore
func (s *PGStore) Save(ctx context.Context, snap domain.Snapshot) error {
	return s.DB.Tx(ctx, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).Save(ctx, snap)
	})
}

// Clear implements domain.SnapshotStore
func (s *PGStore) Clear(ctx context.Context) error {
	return s.Binder.Bind(s.DB).Clear(ctx)
}
