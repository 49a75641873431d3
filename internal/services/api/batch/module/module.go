// Package module wires batch control into the API using modkit
package module

import (
	modkit "detention/internal/modkit"
	"detention/internal/modkit/httpkit"
	batchhttp "detention/internal/services/api/batch/http"
	"detention/internal/services/batch/domain"
)

// Ports declares the injected orchestrator this module drives
type Ports struct {
	Orchestrator domain.OrchestratorPort
}

// Module implements the batch API module
type Module struct{ modkit.Base }

// New constructs the batch API module. The orchestrator is injected with modkit.WithPorts
func New(_ modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("batch-api"),
		modkit.WithPrefix("/batch"),
	}, opts...)...)

	p, _ := b.Ports.(Ports)
	if p.Orchestrator == nil {
		panic("batch API module requires the Orchestrator port (from services/batch)")
	}
	return &Module{Base: modkit.NewBase(b, p, func(r httpkit.Router) {
		batchhttp.Register(r, p.Orchestrator)
	})}
}
