package modkit

import (
	"detention/internal/modkit/httpkit"
	str "detention/internal/platform/strings"
)

// Base implements Module for route-only API modules. Embed it in the module type
type Base struct {
	b     Built
	ports any
	reg   func(httpkit.Router)
}

// NewBase combines built options, the exported ports and the route registration
func NewBase(b Built, ports any, reg func(httpkit.Router)) Base {
	return Base{b: b, ports: ports, reg: reg}
}

// MountRoutes mounts the module under its prefix behind its middlewares
func (m Base) MountRoutes(r httpkit.Router) {
	r.Route(m.Prefix(), func(rr httpkit.Router) {
		if len(m.b.Mw) > 0 {
			rr.Use(m.b.Mw...)
		}
		if m.reg != nil {
			m.reg(rr)
		}
	})
}

// Name returns the module name; it panics when unset
func (m Base) Name() string { return str.MustString(m.b.Name, "module name") }

// Prefix returns the normalized route prefix; it panics when unset
func (m Base) Prefix() string { return str.MustPrefix(m.b.Prefix) }

// Ports returns the exported ports
func (m Base) Ports() any { return m.ports }
