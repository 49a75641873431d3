// Package module wires contract diagnostics into the API using modkit
package module

import (
	modkit "detention/internal/modkit"
	"detention/internal/modkit/httpkit"
	contractshttp "detention/internal/services/api/contracts/http"
	"detention/internal/services/contracts/domain"
)

// Ports declares the injected contract store
type Ports struct {
	Store domain.StorePort
}

// Module implements the contracts API module
type Module struct{ modkit.Base }

// New constructs the contracts API module
func New(_ modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("contracts-api"),
		modkit.WithPrefix("/contracts"),
	}, opts...)...)

	p, _ := b.Ports.(Ports)
	if p.Store == nil {
		panic("contracts API module requires the Store port (from services/contracts)")
	}
	return &Module{Base: modkit.NewBase(b, p, func(r httpkit.Router) {
		contractshttp.Register(r, p.Store)
	})}
}
