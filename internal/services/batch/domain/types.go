// Package domain holds the batch run types and ports
package domain

import (
	"context"
	"time"

	sessiondom "detention/internal/services/session/domain"
	pipedom "detention/internal/services/pipeline/domain"
)

// State is the run lifecycle
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Active reports whether a run owns the orchestrator
func (s State) Active() bool { return s == StateRunning || s == StatePaused }

// Snapshot is the persisted progress of one run. One record per deployment
type Snapshot struct {
	Schema     int                 `json:"schema"`
	RunID      string              `json:"run_id"`
	Orders     []string            `json:"orders"`
	ChunkIndex int                 `json:"chunk_index"`
	Processed  []string            `json:"processed"`
	Failed     []string            `json:"failed"`
	Pending    []string            `json:"pending,omitempty"`
	Rows       []pipedom.ReportRow `json:"rows"`
	DryRun     bool                `json:"dry_run,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	SavedAt    time.Time           `json:"saved_at"`
}

// Remaining is the resume work list: orders minus every id with a terminal row, in order
func (s Snapshot) Remaining() []string {
	done := make(map[string]struct{}, len(s.Processed))
	for _, id := range s.Processed {
		done[id] = struct{}{}
	}
	out := make([]string, 0, max(len(s.Orders)-len(done), 0))
	for _, id := range s.Orders {
		if _, ok := done[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// Progress is the collaborator view of a run
type Progress struct {
	RunID            string        `json:"run_id,omitempty"`
	State            State         `json:"state"`
	Total            int           `json:"total"`
	Processed        int           `json:"processed"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Remaining        int           `json:"remaining"`
	PendingApprovals int           `json:"pending_approvals"`
	Chunk            int           `json:"chunk"`
	Chunks           int           `json:"chunks"`
	DryRun           bool          `json:"dry_run,omitempty"`
	StartedAt        time.Time     `json:"started_at,omitzero"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	AvgPerOrder      time.Duration `json:"avg_per_order_ns"`
	ETA              time.Duration `json:"eta_ns"`
	Error            string        `json:"error,omitempty"`
}

// StartOptions tunes one run
type StartOptions struct {
	DryRun bool
}

// SnapshotStore persists the single progress record. Load returns nil, nil when empty
type SnapshotStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	Clear(ctx context.Context) error
}

// Ledger receives terminal report rows, e.g. for analytics
type Ledger interface {
	AppendRows(ctx context.Context, rows []pipedom.ReportRow) error
}

// Processor is the per-order pipeline as the orchestrator sees it
type Processor interface {
	Process(ctx context.Context, orderID string, opts pipedom.ProcessOptions) pipedom.ReportRow
	RequestApproval(ctx context.Context, orderID string, opts pipedom.ProcessOptions) pipedom.ReportRow
}

// Tokens is the session lifetime check
type Tokens interface {
	Ensure(ctx context.Context) (sessiondom.Token, error)
	EnsureFresh(ctx context.Context, minRemaining time.Duration) (sessiondom.Token, error)
}

// OrchestratorPort is what the API and the CLI drive
type OrchestratorPort interface {
	Start(ctx context.Context, ids []string, opts StartOptions) (string, error)
	Resume(ctx context.Context) (string, error)
	Pause() error
	Cancel() error
	Progress() Progress
	Report() []pipedom.ReportRow
	Subscribe() (<-chan Progress, func())
	Wait(ctx context.Context) (Progress, error)
}
