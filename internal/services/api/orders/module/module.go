// Package module wires single-order endpoints into the API using modkit
package module

import (
	modkit "detention/internal/modkit"
	"detention/internal/modkit/httpkit"
	ordershttp "detention/internal/services/api/orders/http"
	"detention/internal/services/pipeline/domain"
)

// Ports declares the injected pipeline and undo history
type Ports struct {
	Pipeline domain.PipelinePort
	Undo     ordershttp.UndoLister
}

// Module implements the orders API module
type Module struct{ modkit.Base }

// New constructs the orders API module
func New(_ modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("orders-api"),
		modkit.WithPrefix("/orders"),
	}, opts...)...)

	p, _ := b.Ports.(Ports)
	if p.Pipeline == nil {
		panic("orders API module requires the Pipeline port (from services/pipeline)")
	}
	return &Module{Base: modkit.NewBase(b, p, func(r httpkit.Router) {
		ordershttp.Register(r, p.Pipeline, p.Undo)
	})}
}
