// Package module wires the batch orchestrator, its snapshot store and the ledger
package module

import (
	"context"

	"detention/internal/modkit"
	perr "detention/internal/platform/errors"
	ptime "detention/internal/platform/time"
	"detention/internal/services/batch/domain"
	"detention/internal/services/batch/guardrails"
	"detention/internal/services/batch/repo"
	"detention/internal/services/batch/service"
)

// Ports defines the batch module ports
type Ports struct {
	Orchestrator domain.OrchestratorPort
}

// Module implements the batch module
type Module struct {
	o     *service.Orchestrator
	ports Ports
}

// NewLedger returns the clickhouse ledger, or nil when clickhouse is not configured or disabled.
// It is built before the pipeline so undo records share it
func NewLedger(ctx context.Context, deps modkit.Deps) (*repo.Ledger, error) {
	if deps.CH == nil || !FromConfig(deps.Cfg).Ledger {
		return nil, nil
	}
	l := repo.NewLedger(deps.CH)
	if err := l.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// New builds the orchestrator. ledger may be nil
func New(ctx context.Context, deps modkit.Deps, proc domain.Processor, tokens domain.Tokens, ledger *repo.Ledger, clock ptime.Clock) (*Module, error) {
	opts := FromConfig(deps.Cfg)

	store, err := snapshotStore(ctx, deps, opts)
	if err != nil {
		return nil, err
	}

	var lease guardrails.Lease
	if opts.Leases {
		if deps.PG == nil {
			return nil, perr.InvalidStatef("batch leases need postgres")
		}
		if _, err := deps.PG.Exec(ctx, guardrails.LeaseDDL); err != nil {
			return nil, perr.FromPostgres(err, "create lease table")
		}
		lease = guardrails.MakePGLease(deps.PG, opts.LeaseOwner, opts.MaxAge)
	} else {
		lease = guardrails.LocalLease()
	}

	var l domain.Ledger
	if ledger != nil {
		l = ledger
	}

	o := service.New(service.Config{
		ChunkSize:         opts.ChunkSize,
		GroupSize:         opts.GroupSize,
		Cooldown:          opts.Cooldown,
		GroupDelay:        opts.GroupDelay,
		SaveEvery:         opts.SaveEvery,
		MaxAge:            opts.MaxAge,
		TokenMinRemaining: opts.TokenMinRemaining,
		Timeouts: guardrails.Timeouts{
			Order:    opts.OrderTimeout,
			Approval: opts.ApprovalTimeout,
			Save:     opts.SaveTimeout,
		},
		DryRun: opts.DryRun,
	}, proc, tokens, store, l, lease, clock)

	return &Module{o: o, ports: Ports{Orchestrator: o}}, nil
}

func snapshotStore(ctx context.Context, deps modkit.Deps, opts Options) (domain.SnapshotStore, error) {
	switch opts.Store {
	case "pg":
		if deps.PG == nil {
			return nil, perr.InvalidStatef("batch store pg needs postgres")
		}
		s := repo.NewPGStore(deps.PG)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		if deps.RDS == nil {
			return nil, perr.InvalidStatef("batch store redis needs redis")
		}
		return repo.NewRedis(deps.RDS, opts.RedisKey, opts.MaxAge), nil
	default:
		return repo.NewMemory(), nil
	}
}

// Orchestrator returns the concrete orchestrator
func (m *Module) Orchestrator() *service.Orchestrator { return m.o }

// Name returns the module name
func (m *Module) Name() string { return "batch" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
