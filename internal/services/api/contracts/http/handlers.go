// Package http provides http transport for contract diagnostics
package http

import (
	stdhttp "net/http"
	"strings"

	"detention/internal/modkit/httpkit"
	perr "detention/internal/platform/errors"
	"detention/internal/services/contracts/domain"
)

// Register mounts contract endpoints on the given router
func Register(r httpkit.Router, s domain.StorePort) {
	h := &handlers{s: s}

	httpkit.Get(r, "/summary", h.summary)
	httpkit.Get(r, "/lookup", h.lookup)
	httpkit.Post(r, "/reset", h.reset)
}

type handlers struct{ s domain.StorePort }

// swagger:route GET /contracts/summary Contracts contractsSummary
// @Summary Contract counts and per-shipper diagnostics
// @Tags Contracts
// @Produce json
// @Success 200 {object} domain.Summary "ok"
// @Failure 424 {object} httpkit.Envelope "contract source unavailable"
// @Router /contracts/summary [get]
func (h *handlers) summary(r *stdhttp.Request) (any, error) {
	return h.s.Summary(r.Context())
}

// swagger:route GET /contracts/lookup Contracts contractsLookup
// @Summary Gate answer for one shipper
// @Tags Contracts
// @Produce json
// @Param shipper query string true "Shipper name"
// @Success 200 {object} domain.Lookup "ok"
// @Router /contracts/lookup [get]
func (h *handlers) lookup(r *stdhttp.Request) (any, error) {
	shipper := strings.TrimSpace(r.URL.Query().Get("shipper"))
	if shipper == "" {
		return nil, perr.WithField(perr.InvalidArgf("shipper is required"), "shipper")
	}
	return h.s.ValidateShipper(r.Context(), shipper)
}

// swagger:route POST /contracts/reset Contracts contractsReset
// @Summary Drop the cached contracts so the next lookup refetches
// @Tags Contracts
// @Success 204 "reset"
// @Router /contracts/reset [post]
func (h *handlers) reset(_ *stdhttp.Request) (any, error) {
	h.s.Reset()
	return httpkit.NoContent(), nil
}
