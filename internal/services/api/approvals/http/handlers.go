// Package http provides http transport for approval decisions
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"detention/internal/modkit/httpkit"
	"detention/internal/platform/net/http/bind"
	"detention/internal/services/approval/domain"
)

// DecisionResponse echoes an accepted decision
type DecisionResponse struct {
	ID       string          `json:"id"`
	Decision domain.Decision `json:"decision"`
}

// Register mounts approval endpoints on the given router
func Register(r httpkit.Router, hub domain.HubPort) {
	h := &handlers{hub: hub}

	httpkit.Get(r, "/", h.pending)
	httpkit.Post(r, "/{id}/decide", h.decide)
}

type handlers struct{ hub domain.HubPort }

// swagger:route GET /approvals Approvals approvalsPending
// @Summary Pending approval requests, oldest first
// @Tags Approvals
// @Produce json
// @Success 200 {array} domain.Request "ok"
// @Router /approvals [get]
func (h *handlers) pending(_ *stdhttp.Request) (any, error) {
	return h.hub.Pending(), nil
}

// swagger:route POST /approvals/{id}/decide Approvals approvalsDecide
// @Summary Answer a pending approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval id"
// @Param payload body domain.Outcome true "Decision"
// @Success 200 {object} DecisionResponse "accepted"
// @Failure 404 {object} httpkit.Envelope "not pending"
// @Router /approvals/{id}/decide [post]
func (h *handlers) decide(r *stdhttp.Request) (any, error) {
	in, err := bind.ParseJSON[domain.Outcome](r)
	if err != nil {
		return nil, err
	}
	in.DecidedBy = httpkit.OperatorOr(r, in.DecidedBy)
	id := chi.URLParam(r, "id")
	if err := h.hub.Decide(id, in); err != nil {
		return nil, err
	}
	return DecisionResponse{ID: id, Decision: in.Decision}, nil
}
