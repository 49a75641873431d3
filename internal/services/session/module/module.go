// Package module wires the session token manager
package module

import (
	"detention/internal/adapters/tms"
	"detention/internal/modkit"
	ptime "detention/internal/platform/time"
	"detention/internal/services/session/domain"
	"detention/internal/services/session/service"
)

// Ports defines the session module ports
type Ports struct {
	Manager domain.ManagerPort
}

// Module implements the session module
type Module struct {
	deps  modkit.Deps
	mgr   *service.Manager
	ports Ports
}

// New builds the manager and attaches it to the TMS client as its token source.
// The host source is tried first, then the session page
func New(deps modkit.Deps, client *tms.Client, clock ptime.Clock) *Module {
	opts := FromConfig(deps.Cfg)

	sources := []domain.Source{service.HostSource{Value: opts.Token, Path: opts.TokenFile}}
	if opts.PageFallback && client != nil {
		sources = append(sources, service.PageSource{Fetcher: client, Extract: tms.ExtractToken})
	}

	mgr := service.New(service.Config{
		MaxAge:     opts.MaxAge,
		WarnBelow:  opts.WarnBelow,
		CheckEvery: opts.CheckEvery,
	}, clock, sources...)
	if client != nil {
		client.SetTokenSource(mgr)
	}

	return &Module{deps: deps, mgr: mgr, ports: Ports{Manager: mgr}}
}

// Manager returns the concrete manager for lifecycle control (refresher, reset)
func (m *Module) Manager() *service.Manager { return m.mgr }

// Name returns the module name
func (m *Module) Name() string { return "session" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
