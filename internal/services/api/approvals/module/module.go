// Package module wires approval decisions into the API using modkit
package module

import (
	modkit "detention/internal/modkit"
	"detention/internal/modkit/httpkit"
	approvalhttp "detention/internal/services/api/approvals/http"
	"detention/internal/services/approval/domain"
)

// Ports declares the injected hub
type Ports struct {
	Hub domain.HubPort
}

// Module implements the approvals API module
type Module struct{ modkit.Base }

// New constructs the approvals API module
func New(_ modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("approvals-api"),
		modkit.WithPrefix("/approvals"),
	}, opts...)...)

	p, _ := b.Ports.(Ports)
	if p.Hub == nil {
		panic("approvals API module requires the Hub port (from services/approval)")
	}
	return &Module{Base: modkit.NewBase(b, p, func(r httpkit.Router) {
		approvalhttp.Register(r, p.Hub)
	})}
}
