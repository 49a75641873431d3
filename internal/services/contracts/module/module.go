// Package module wires the contract store
package module

import (
	"detention/internal/modkit"
	ptime "detention/internal/platform/time"
	"detention/internal/services/contracts/domain"
	"detention/internal/services/contracts/repo"
	"detention/internal/services/contracts/service"
)

// Ports defines the contracts module ports
type Ports struct {
	Store domain.StorePort
}

// Module implements the contracts module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New builds the store from the configured sources
func New(deps modkit.Deps, lister repo.Lister, clock ptime.Clock) *Module {
	opts := FromConfig(deps.Cfg)

	var sources []domain.Source
	if opts.Source == "file" || opts.Source == "both" {
		sources = append(sources, repo.NewFile(opts.File))
	}
	if (opts.Source == "tms" || opts.Source == "both") && lister != nil {
		sources = append(sources, repo.NewTMS(lister))
	}

	store := service.New(service.Config{TTL: opts.TTL}, clock, sources...)
	return &Module{deps: deps, ports: Ports{Store: store}}
}

// Name returns the module name
func (m *Module) Name() string { return "contracts" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Store returns the contract store
func (m *Module) Store() domain.StorePort { return m.ports.Store }
