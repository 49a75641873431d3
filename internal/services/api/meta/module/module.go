// Package module wires meta endpoints into the API
package module

import (
	"context"
	"time"

	modkit "detention/internal/modkit"
	"detention/internal/modkit/httpkit"
	"detention/internal/platform/store"
	metahttp "detention/internal/services/api/meta/http"
)

// Ports declares optional injected collaborators
type Ports struct {
	ServiceName string
	Session     metahttp.SessionStatus
}

// Module implements the meta module
type Module struct{ modkit.Base }

// New builds the meta module. Readiness pings whichever backends deps carries
func New(deps modkit.Deps, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	p, _ := b.Ports.(Ports)
	if p.ServiceName == "" {
		p.ServiceName = "detention-api"
	}

	d := metahttp.Deps{
		ServiceName: p.ServiceName,
		StartedAt:   time.Now(),
		Session:     p.Session,
		Checks: []metahttp.Check{
			{Name: "pg", Ping: pingOf(deps.PG)},
			{Name: "ch", Ping: pingOf(deps.CH)},
			{Name: "redis"},
		},
	}
	if deps.RDS != nil {
		d.Checks[2].Ping = func(ctx context.Context) error { return deps.RDS.Ping(ctx).Err() }
	}
	// no ports: meta internals stay out of the registry
	return &Module{Base: modkit.NewBase(b, nil, func(r httpkit.Router) {
		metahttp.Register(r, d)
	})}
}

func pingOf(dep any) func(context.Context) error {
	if p, ok := dep.(store.Pinger); ok {
		return p.Ping
	}
	return nil
}
