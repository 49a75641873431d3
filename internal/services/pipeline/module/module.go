// Package module wires the order pipeline
package module

import (
	"detention/internal/core/detention"
	"detention/internal/modkit"
	ptime "detention/internal/platform/time"
	"detention/internal/services/pipeline/domain"
	"detention/internal/services/pipeline/service"
)

// Ports defines the pipeline module ports
type Ports struct {
	Pipeline domain.PipelinePort
}

// Module implements the pipeline module
type Module struct {
	p     *service.Pipeline
	ports Ports
}

// New builds the pipeline. sink may be nil
func New(deps modkit.Deps, backend domain.Backend, gate domain.ContractGate, hub domain.Approvals, sink domain.UndoSink, clock ptime.Clock) *Module {
	opts := FromConfig(deps.Cfg)
	undo := service.NewUndoStack(opts.UndoCapacity, sink)
	p := service.New(service.Config{
		PickupCode:   opts.PickupCode,
		DeliveryCode: opts.DeliveryCode,
		Engine:       detention.Options{LateThresholdMinutes: opts.LateThresholdMinutes},
		Comments:     opts.Comments,
		DryRun:       opts.DryRun,
	}, backend, gate, hub, undo, clock)
	return &Module{p: p, ports: Ports{Pipeline: p}}
}

// Pipeline returns the concrete pipeline
func (m *Module) Pipeline() *service.Pipeline { return m.p }

// Name returns the module name
func (m *Module) Name() string { return "pipeline" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }
