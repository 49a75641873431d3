// Package module holds the module contract and the process port registry.
// It sits below modkit so a module package can export its own ports type without an import cycle
package module

import phttp "detention/internal/platform/net/http"

// Module mounts routes and exposes a port set for cross wiring
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}
