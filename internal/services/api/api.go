// Package api provides the HTTP API for the application
package api

import (
	"net/http"

	"detention/internal/platform/config"
	"detention/internal/platform/metrics"
	phttp "detention/internal/platform/net/http"
	"detention/internal/platform/net/middleware"
	"detention/internal/platform/store"

	"detention/internal/modkit"
	"detention/internal/modkit/httpkit"
	"detention/internal/modkit/module"
	"detention/internal/modkit/swaggerkit"

	approvalsmod "detention/internal/services/api/approvals/module"
	batchhttp "detention/internal/services/api/batch/http"
	batchapimod "detention/internal/services/api/batch/module"
	contractsmod "detention/internal/services/api/contracts/module"
	metamod "detention/internal/services/api/meta/module"
	ordershttp "detention/internal/services/api/orders/http"
	ordersmod "detention/internal/services/api/orders/module"

	approvaldom "detention/internal/services/approval/domain"
	batchdom "detention/internal/services/batch/domain"
	contractsdom "detention/internal/services/contracts/domain"
	pipedom "detention/internal/services/pipeline/domain"
	sessiondom "detention/internal/services/session/domain"
)

// Hub is the approval hub as the API sees it
type Hub interface {
	approvaldom.HubPort
	Subscribe() (<-chan struct{}, func())
}

// Engine bundles the service ports the API drives
type Engine struct {
	Batch     batchdom.OrchestratorPort
	Approvals Hub
	Pipeline  pipedom.PipelinePort
	Undo      ordershttp.UndoLister
	Contracts contractsdom.StorePort
	Session   sessiondom.ManagerPort
}

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Engine         Engine
	ServiceName    string
	StreamOrigins  []string
	// Operators maps operator names to bearer tokens; empty leaves the API open
	Operators      map[string]string
	EnableSwagger  bool
	DocsTitle      string
	EnableProfiler bool
}

// StreamPath is where the progress websocket is served
const StreamPath = "/api/v1/batch/stream"

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) {
	deps := modkit.Deps{Cfg: opt.Config}
	if opt.Store != nil {
		deps.PG, deps.CH, deps.RDS = opt.Store.PG, opt.Store.CH, opt.Store.Redis
	}
	e := opt.Engine

	meta := metamod.New(deps, modkit.WithPorts(metamod.Ports{ServiceName: opt.ServiceName, Session: e.Session}))
	guarded := []module.Module{
		batchapimod.New(deps, modkit.WithPorts(batchapimod.Ports{Orchestrator: e.Batch})),
		approvalsmod.New(deps, modkit.WithPorts(approvalsmod.Ports{Hub: e.Approvals})),
		ordersmod.New(deps, modkit.WithPorts(ordersmod.Ports{Pipeline: e.Pipeline, Undo: e.Undo})),
		contractsmod.New(deps, modkit.WithPorts(contractsmod.Ports{Store: e.Contracts})),
	}

	auth := httpkit.OperatorTokens(opt.Operators)

	// long lived: outside the versioned stack and its request timeout
	r.Group(func(g phttp.Router) {
		g.Use(middleware.RequestID(), middleware.RealIP(), middleware.RecoverJSON, httpkit.Auth(auth))
		g.Get(StreamPath, batchhttp.Stream(e.Batch, e.Approvals, batchhttp.StreamOptions{AllowedOrigins: opt.StreamOrigins}))
	})

	r.Handle("/metrics", metrics.Handler())
	swaggerkit.Mount(r, opt.EnableSwagger, opt.DocsTitle)
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	httpkit.MountAPIV1(r, httpkit.CommonStack(), func(api httpkit.Router) {
		module.Register(meta.Name(), meta.Ports())
		meta.MountRoutes(api)

		httpkit.Protected(api, auth, func(pr httpkit.Router) {
			for _, m := range guarded {
				// register each module's ports under its own name (for cross-module lookups)
				module.Register(m.Name(), m.Ports())
				m.MountRoutes(pr)
			}
		})
	})
}

// Handler builds a standalone handler with the API mounted, for tests and embedding
func Handler(opt Options) http.Handler {
	srv := phttp.NewServer(opt.Config)
	Mount(srv.Router(), opt)
	return srv.Router().Mux()
}
