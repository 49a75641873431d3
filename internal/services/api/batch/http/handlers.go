// Package http provides http transport for batch control
package http

import (
	stdhttp "net/http"
	"strconv"

	"detention/internal/modkit/httpkit"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/net/http/bind"
	"detention/internal/services/batch/domain"
)

// StartInput starts a run over the given order ids
type StartInput struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,max=10000"`
	DryRun   bool     `json:"dry_run,omitempty"`
}

// RunResponse names the run an action applies to
type RunResponse struct {
	RunID string `json:"run_id" example:"5b0c1d7e-9c8f-4c55-8f0e-1d2a3b4c5d6e"`
}

// Register mounts batch endpoints on the given router
func Register(r httpkit.Router, o domain.OrchestratorPort) {
	h := &handlers{o: o}

	httpkit.Post(r, "/start", h.start)
	httpkit.Post(r, "/resume", h.resume)
	httpkit.Post(r, "/pause", h.pause)
	httpkit.Post(r, "/cancel", h.cancel)
	httpkit.Get(r, "/progress", h.progress)
	httpkit.Get(r, "/report", h.report)
}

type handlers struct{ o domain.OrchestratorPort }

// swagger:route POST /batch/start Batch batchStart
// @Summary Start a batch run
// @Tags Batch
// @Accept json
// @Produce json
// @Param payload body StartInput true "Orders"
// @Success 201 {object} RunResponse "started"
// @Failure 409 {object} httpkit.Envelope "a run is already active"
// @Router /batch/start [post]
func (h *handlers) start(r *stdhttp.Request) (any, error) {
	in, err := bind.ParseJSON[StartInput](r)
	if err != nil {
		return nil, err
	}
	id, err := h.o.Start(r.Context(), in.OrderIDs, domain.StartOptions{DryRun: in.DryRun})
	if err != nil {
		return nil, err
	}
	return httpkit.Created(RunResponse{RunID: id}), nil
}

// swagger:route POST /batch/resume Batch batchResume
// @Summary Resume a paused run or the saved snapshot
// @Tags Batch
// @Produce json
// @Success 200 {object} RunResponse "resumed"
// @Failure 404 {object} httpkit.Envelope "nothing to resume"
// @Router /batch/resume [post]
func (h *handlers) resume(r *stdhttp.Request) (any, error) {
	id, err := h.o.Resume(r.Context())
	if err != nil {
		return nil, err
	}
	return RunResponse{RunID: id}, nil
}

// swagger:route POST /batch/pause Batch batchPause
// @Summary Pause the active run between groups
// @Tags Batch
// @Produce json
// @Success 200 {object} domain.Progress "paused"
// @Router /batch/pause [post]
func (h *handlers) pause(_ *stdhttp.Request) (any, error) {
	if err := h.o.Pause(); err != nil {
		return nil, err
	}
	return h.o.Progress(), nil
}

// swagger:route POST /batch/cancel Batch batchCancel
// @Summary Cancel the active run
// @Tags Batch
// @Produce json
// @Success 200 {object} domain.Progress "cancelling"
// @Router /batch/cancel [post]
func (h *handlers) cancel(_ *stdhttp.Request) (any, error) {
	if err := h.o.Cancel(); err != nil {
		return nil, err
	}
	return h.o.Progress(), nil
}

// swagger:route GET /batch/progress Batch batchProgress
// @Summary Current run progress
// @Tags Batch
// @Produce json
// @Success 200 {object} domain.Progress "ok"
// @Router /batch/progress [get]
func (h *handlers) progress(_ *stdhttp.Request) (any, error) {
	return h.o.Progress(), nil
}

// swagger:route GET /batch/report Batch batchReport
// @Summary Report rows of the current or last run
// @Tags Batch
// @Produce json
// @Param page query int false "1-based page"
// @Param page_size query int false "rows per page, default 100"
// @Success 200 {array} pipedom.ReportRow "ok"
// @Router /batch/report [get]
func (h *handlers) report(r *stdhttp.Request) (any, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return nil, err
	}
	size, err := queryInt(r, "page_size", 100)
	if err != nil {
		return nil, err
	}
	rows := h.o.Report()
	from := min((page-1)*size, len(rows))
	to := min(from+size, len(rows))
	return httpkit.List(rows[from:to], len(rows), page, size, ""), nil
}

func queryInt(r *stdhttp.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, perr.WithField(perr.InvalidArgf("%s must be a positive integer", key), key)
	}
	return n, nil
}
