package repo

import (
	"context"
	"encoding/json"

	perr "detention/internal/platform/errors"
	"detention/internal/platform/store"
	pipedom "detention/internal/services/pipeline/domain"
)

const (
	rowsTable = "detention_report_rows"
	undoTable = "detention_undo"
)

// LedgerDDL creates the ledger tables in ClickHouse
var LedgerDDL = []string{
	`CREATE TABLE IF NOT EXISTS detention_report_rows (
		run_id       String,
		order_id     String,
		shipper      String,
		outcome      LowCardinality(String),
		total        Decimal(12, 2),
		decision     LowCardinality(String),
		auth_number  String,
		error_kind   LowCardinality(String),
		error_msg    String,
		attempts     UInt8,
		dry_run      Bool,
		stops        String,
		processed_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree ORDER BY (processed_at, order_id)`,
	`CREATE TABLE IF NOT EXISTS detention_undo (
		id             String,
		run_id         String,
		order_id       String,
		role           LowCardinality(String),
		action         LowCardinality(String),
		line_id        String,
		code           String,
		prev_amount    Decimal(12, 2),
		new_amount     Decimal(12, 2),
		version_before String,
		version_after  String,
		at             DateTime64(3, 'UTC')
	) ENGINE = MergeTree ORDER BY (at, order_id)`,
}

// Ledger appends report rows and undo records to ClickHouse
type Ledger struct {
	ch store.Clickhouse
}

// NewLedger wraps a clickhouse seam
func NewLedger(ch store.Clickhouse) *Ledger { return &Ledger{ch: ch} }

// EnsureSchema creates the ledger tables when missing
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	for _, ddl := range LedgerDDL {
		if err := l.ch.Exec(ctx, ddl); err != nil {
			return perr.Wrap(err, perr.ErrorCodeDB, "ledger: create tables")
		}
	}
	return nil
}

// AppendRows implements the batch ledger port
func (l *Ledger) AppendRows(ctx context.Context, rows []pipedom.ReportRow) error {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowValues(r))
	}
	if err := l.ch.Insert(ctx, rowsTable, out); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "ledger: append rows")
	}
	return nil
}

// AppendUndo implements the pipeline undo sink
func (l *Ledger) AppendUndo(ctx context.Context, rec pipedom.UndoRecord) error {
	if err := l.ch.Insert(ctx, undoTable, [][]any{undoValues(rec)}); err != nil {
		return perr.Wrap(err, perr.ErrorCodeDB, "ledger: append undo")
	}
	return nil
}

// rowValues flattens a row in detention_report_rows column order
func rowValues(r pipedom.ReportRow) []any {
	var kind, msg string
	if r.Error != nil {
		kind, msg = r.Error.Kind, r.Error.Message
	}
	stops, _ := json.Marshal(r.Stops)
	return []any{
		r.RunID, r.OrderID, r.Shipper, string(r.Outcome), r.Total,
		string(r.Decision), r.AuthNumber, kind, msg,
		uint8(min(max(r.Attempts, 0), 255)), r.DryRun, string(stops), r.ProcessedAt.UTC(),
	}
}

// undoValues flattens a record in detention_undo column order
func undoValues(u pipedom.UndoRecord) []any {
	return []any{
		u.ID, u.RunID, u.OrderID, string(u.Role), string(u.Action), u.LineID, u.Code,
		u.PrevAmount, u.NewAmount, u.VersionBefore, u.VersionAfter, u.At.UTC(),
	}
}
