package repo

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"detention/internal/core/detention"
	perr "detention/internal/platform/errors"
	"detention/internal/platform/store"
	"detention/internal/services/batch/domain"
	pipedom "detention/internal/services/pipeline/domain"
)

func sampleSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Schema:     3,
		RunID:      "run-7",
		Orders:     []string{"ORDA", "ORDB"},
		ChunkIndex: 1,
		Processed:  []string{"ORDA"},
		Rows: []pipedom.ReportRow{{
			OrderID: "ORDA", Outcome: pipedom.OutcomeCharged, Total: decimal.RequireFromString("81.25"),
		}},
		StartedAt: time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC),
		SavedAt:   time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC),
	}
}

func TestMemory_RoundTripAndClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	if s, err := m.Load(ctx); s != nil || err != nil {
		t.Fatalf("empty store Load = %v %v", s, err)
	}

	in := sampleSnapshot()
	if err := m.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// later edits to the caller's value must not leak into the store
	in.Processed[0] = "MUTATED"

	out, err := m.Load(ctx)
	if err != nil || out == nil {
		t.Fatalf("Load = %v %v", out, err)
	}
	if out.RunID != "run-7" || out.Processed[0] != "ORDA" || !out.Rows[0].Total.Equal(decimal.RequireFromString("81.25")) {
		t.Fatalf("Load = %+v", out)
	}
	if !out.SavedAt.Equal(in.SavedAt) {
		t.Fatalf("SavedAt = %v", out.SavedAt)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s, _ := m.Load(ctx); s != nil {
		t.Fatalf("Load after Clear = %+v", s)
	}
}

func TestDecode_Garbage(t *testing.T) {
	t.Parallel()

	if _, err := decode([]byte("{nope")); !perr.IsCode(err, perr.ErrorCodeJSON) {
		t.Fatalf("want parse error, got %v", err)
	}
}

type fakeCH struct {
	mu      sync.Mutex
	execs   []string
	inserts map[string][][]any
	failOn  string
}

func (f *fakeCH) Exec(_ context.Context, sql string, _ ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	return nil
}

func (f *fakeCH) Insert(_ context.Context, table string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if table == f.failOn {
		return perr.Newf(perr.ErrorCodeNetwork, "boom")
	}
	if f.inserts == nil {
		f.inserts = map[string][][]any{}
	}
	f.inserts[table] = append(f.inserts[table], data.([][]any)...)
	return nil
}

func (f *fakeCH) Query(context.Context, string, ...any) (store.Rows, error) { return nil, nil }
func (f *fakeCH) Close() error                                            { return nil }

func TestLedger_EnsureSchema(t *testing.T) {
	t.Parallel()

	ch := &fakeCH{}
	if err := NewLedger(ch).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(ch.execs) != 2 || !strings.Contains(ch.execs[0], rowsTable) || !strings.Contains(ch.execs[1], undoTable) {
		t.Fatalf("execs = %v", ch.execs)
	}
}

func TestLedger_AppendRows(t *testing.T) {
	t.Parallel()

	ch := &fakeCH{}
	l := NewLedger(ch)
	w := perr.WireFrom(perr.Conflictf("version moved"))
	rows := []pipedom.ReportRow{
		{RunID: "r", OrderID: "ORDA", Outcome: pipedom.OutcomeCharged, Total: decimal.RequireFromString("81.25"), Attempts: 1},
		{RunID: "r", OrderID: "ORDB", Outcome: pipedom.OutcomeFailed, Error: &w, Attempts: 2},
	}
	if err := l.AppendRows(context.Background(), rows); err != nil {
		t.Fatalf("AppendRows: %v", err)
	}
	got := ch.inserts[rowsTable]
	if len(got) != 2 {
		t.Fatalf("inserted %d rows", len(got))
	}
	if got[0][1] != "ORDA" || got[0][3] != "charged" || got[1][7] != "conflict" || got[1][9] != uint8(2) {
		t.Fatalf("row values = %v / %v", got[0], got[1])
	}
	if err := l.AppendRows(context.Background(), nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
}

func TestLedger_AppendUndo(t *testing.T) {
	t.Parallel()

	ch := &fakeCH{}
	l := NewLedger(ch)
	rec := pipedom.UndoRecord{
		ID: "u1", OrderID: "ORDA", Role: detention.RoleDelivery, Action: detention.ActionCreateCharge,
		Code: "DETDL", NewAmount: decimal.RequireFromString("81.25"), VersionBefore: "3", VersionAfter: "4",
	}
	if err := l.AppendUndo(context.Background(), rec); err != nil {
		t.Fatalf("AppendUndo: %v", err)
	}
	got := ch.inserts[undoTable]
	if len(got) != 1 || got[0][0] != "u1" || got[0][6] != "DETDL" {
		t.Fatalf("undo values = %v", got)
	}

	ch.failOn = undoTable
	if err := l.AppendUndo(context.Background(), rec); !perr.IsCode(err, perr.ErrorCodeDB) {
		t.Fatalf("want db error, got %v", err)
	}
}
