// Package http provides http transport for single-order analysis and processing
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"detention/internal/core/detention"
	"detention/internal/modkit/httpkit"
	"detention/internal/platform/net/http/bind"
	contractsdom "detention/internal/services/contracts/domain"
	"detention/internal/services/pipeline/domain"
)

// UndoLister exposes the undo history, newest first
type UndoLister interface {
	List() []domain.UndoRecord
}

// AnalysisResponse is the read-only view of one order's detention analysis
type AnalysisResponse struct {
	OrderID       string                     `json:"order_id"`
	Version       string                     `json:"version"`
	Shipper       string                     `json:"shipper"`
	Contract      contractsdom.Lookup        `json:"contract"`
	Results       []detention.AnalysisResult `json:"results"`
	NeedsApproval bool                       `json:"needs_approval"`
	TimingError   string                     `json:"timing_error,omitempty"`
}

func toAnalysis(d *domain.OrderData) AnalysisResponse {
	out := AnalysisResponse{
		OrderID:       d.Order.ID,
		Version:       d.Order.Version,
		Shipper:       d.Order.Shipper,
		Contract:      d.Lookup,
		Results:       d.Results,
		NeedsApproval: d.NeedsApproval(),
	}
	if d.TimingError != nil {
		out.TimingError = d.TimingError.Error()
	}
	return out
}

// ProcessInput tunes a single-order run
type ProcessInput struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// Register mounts order endpoints on the given router
func Register(r httpkit.Router, p domain.PipelinePort, undo UndoLister) {
	h := &handlers{p: p, undo: undo}

	httpkit.Get(r, "/undo", h.undoHistory)
	httpkit.Get(r, "/{id}/analysis", h.analyze)
	httpkit.Post(r, "/{id}/process", h.process)
}

type handlers struct {
	p    domain.PipelinePort
	undo UndoLister
}

// swagger:route GET /orders/{id}/analysis Orders ordersAnalyze
// @Summary Analyse one order without mutating it
// @Tags Orders
// @Produce json
// @Param id path string true "Order id"
// @Success 200 {object} AnalysisResponse "ok"
// @Failure 404 {object} httpkit.Envelope "order not found"
// @Router /orders/{id}/analysis [get]
func (h *handlers) analyze(r *stdhttp.Request) (any, error) {
	d, err := h.p.Analyze(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return toAnalysis(d), nil
}

// swagger:route POST /orders/{id}/process Orders ordersProcess
// @Summary Run one order through the pipeline, approval included
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order id"
// @Param payload body ProcessInput false "Options"
// @Success 200 {object} domain.ReportRow "ok"
// @Router /orders/{id}/process [post]
func (h *handlers) process(r *stdhttp.Request) (any, error) {
	in, err := bind.ParseJSON[ProcessInput](r, bind.JSONOptions{MaxBytes: 1 << 10, DisallowUnknown: true, AllowEmptyBody: true})
	if err != nil {
		return nil, err
	}
	return h.p.Process(r.Context(), chi.URLParam(r, "id"), domain.ProcessOptions{DryRun: in.DryRun}), nil
}

// swagger:route GET /orders/undo Orders ordersUndo
// @Summary Undo history for mutations made by this process, newest first
// @Tags Orders
// @Produce json
// @Success 200 {array} domain.UndoRecord "ok"
// @Router /orders/undo [get]
func (h *handlers) undoHistory(_ *stdhttp.Request) (any, error) {
	if h.undo == nil {
		return []domain.UndoRecord{}, nil
	}
	return h.undo.List(), nil
}
