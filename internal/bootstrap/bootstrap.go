// Package bootstrap composes the store, the TMS client and the service modules
// shared by the API server and the batch CLI
package bootstrap

import (
	"context"
	"strings"

	"detention/internal/adapters/tms"
	"detention/internal/modkit"
	"detention/internal/modkit/module"
	"detention/internal/platform/config"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/logger"
	"detention/internal/platform/metrics"
	"detention/internal/platform/store"
	ptime "detention/internal/platform/time"

	"detention/internal/services/api"
	approvalmod "detention/internal/services/approval/module"
	approvalsvc "detention/internal/services/approval/service"
	batchmod "detention/internal/services/batch/module"
	batchsvc "detention/internal/services/batch/service"
	contractsdom "detention/internal/services/contracts/domain"
	contractsmod "detention/internal/services/contracts/module"
	pipedom "detention/internal/services/pipeline/domain"
	pipemod "detention/internal/services/pipeline/module"
	pipesvc "detention/internal/services/pipeline/service"
	sessionmod "detention/internal/services/session/module"
	sessionsvc "detention/internal/services/session/service"
)

// StoreConfig reads backend settings from DETENTION_PG_*, DETENTION_CH_* and DETENTION_REDIS_*.
// A backend is enabled when its DBURL (or ADDR for redis) is set
func StoreConfig(root config.Conf, app string) store.Config {
	pg := root.Prefix("DETENTION_PG_")
	ch := root.Prefix("DETENTION_CH_")
	rds := root.Prefix("DETENTION_REDIS_")

	pgURL := pg.MayString("DBURL", "")
	chURL := ch.MayString("DBURL", "")
	rdsURL := rds.MayString("URL", "")
	rdsAddr := rds.MayString("ADDR", "")

	return store.Config{
		AppName: app,
		PG: store.PGConfig{
			Enabled:     pgURL != "",
			URL:         pgURL,
			MaxConns:    int32(pg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pg.MayInt("SLOW_MS", 500),
			LogSQL:      pg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chURL != "",
			URL:     chURL,
		},
		RDS: store.RedisConfig{
			Enabled: rdsURL != "" || rdsAddr != "",
			URL:     rdsURL,
			Addr:    rdsAddr,
			DB:      rds.MayInt("DB", 0),
		},
	}
}

// OpenStore opens every configured backend. Nothing configured yields an empty store
func OpenStore(ctx context.Context, root config.Conf, app string) (*store.Store, error) {
	st, err := store.Open(ctx, StoreConfig(root, app), store.WithLogger(*logger.Get()))
	if err != nil {
		return nil, perr.WithOp(err, "bootstrap.store")
	}
	if err := st.Guard(ctx); err != nil {
		_ = st.Close(ctx)
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "store guard")
	}
	return st, nil
}

// Engine is the composed service graph
type Engine struct {
	Deps      modkit.Deps
	Client    *tms.Client
	Session   *sessionsvc.Manager
	Contracts contractsdom.StorePort
	Hub       *approvalsvc.Hub
	Pipeline  *pipesvc.Pipeline
	Batch     *batchsvc.Orchestrator
}

// Options tweaks the composition
type Options struct {
	// Approval overrides DETENTION_APPROVAL_* when non-nil
	Approval *approvalmod.Options
	Clock    ptime.Clock
}

// Build wires the modules in dependency order. st may carry nil backends
func Build(ctx context.Context, root config.Conf, st *store.Store, opt Options) (*Engine, error) {
	clock := ptime.OrSystem(opt.Clock)
	metrics.Register()

	deps := modkit.Deps{Cfg: root, Log: *logger.Get()}
	if st != nil {
		deps.PG, deps.CH, deps.RDS = st.PG, st.CH, st.Redis
	}

	client := tms.NewClient(tms.FromConfig(root), nil, clock)

	sess := sessionmod.New(deps, client, clock)
	contracts := contractsmod.New(deps, client, clock)
	approval := approvalmod.New(deps, clock, opt.Approval)

	ledger, err := batchmod.NewLedger(ctx, deps)
	if err != nil {
		return nil, perr.WithOp(err, "bootstrap.ledger")
	}
	var sink pipedom.UndoSink
	if ledger != nil {
		sink = ledger
	}

	pipeline := pipemod.New(deps, client, contracts.Store(), approval.Hub(), sink, clock)

	batch, err := batchmod.New(ctx, deps, pipeline.Pipeline(), sess.Manager(), ledger, clock)
	if err != nil {
		return nil, perr.WithOp(err, "bootstrap.batch")
	}

	for _, m := range []interface {
		Name() string
		Ports() any
	}{sess, contracts, approval, pipeline, batch} {
		module.Register(m.Name(), m.Ports())
	}

	return &Engine{
		Deps:      deps,
		Client:    client,
		Session:   sess.Manager(),
		Contracts: contracts.Store(),
		Hub:       approval.Hub(),
		Pipeline:  pipeline.Pipeline(),
		Batch:     batch.Orchestrator(),
	}, nil
}

// API returns the ports the HTTP layer drives
func (e *Engine) API() api.Engine {
	return api.Engine{
		Batch:     e.Batch,
		Approvals: e.Hub,
		Pipeline:  e.Pipeline,
		Undo:      e.Pipeline.Undo(),
		Contracts: e.Contracts,
		Session:   e.Session,
	}
}

// Operators parses OPERATORS as name:token pairs, e.g. "dispatch:abc,night:def".
// Malformed pairs are skipped
func Operators(c config.Conf) map[string]string {
	out := map[string]string{}
	for _, pair := range c.MayCSV("OPERATORS", nil) {
		name, tok, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || name == "" || tok == "" {
			logger.Get().Warn().Str("pair", name).Msg("skipping malformed operator entry")
			continue
		}
		out[name] = tok
	}
	return out
}
