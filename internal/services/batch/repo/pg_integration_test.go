//go:build integration_pg
// +build integration_pg

package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"detention/internal/platform/store"
	"detention/internal/services/batch/guardrails"
)

func startPostgres(t *testing.T) (dsn string, stop func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)

	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_DB":       "postgres",
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections"),
		).WithDeadline(2 * time.Minute),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		cancel()
		t.Fatalf("start postgres: %v", err)
	}
	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = c.Terminate(context.Background())
		cancel()
		t.Fatalf("mapped port: %v", err)
	}
	dsn = fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres?sslmode=disable", host, mapped.Port())
	return dsn, func() {
		_ = c.Terminate(context.Background())
		cancel()
	}
}

func openPG(t *testing.T, dsn string) *store.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	s, err := store.Open(ctx, store.Config{
		AppName: "detention-batch-integration",
		PG:      store.PGConfig{Enabled: true, URL: dsn, MaxConns: 4},
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestPGStore_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()
	s := openPG(t, dsn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ps := NewPGStore(s.PG)
	if err := ps.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := ps.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema twice: %v", err)
	}

	if got, err := ps.Load(ctx); got != nil || err != nil {
		t.Fatalf("empty Load = %v %v", got, err)
	}

	snap := sampleSnapshot()
	if err := ps.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	snap.ChunkIndex = 2
	snap.Processed = append(snap.Processed, "ORDB")
	if err := ps.Save(ctx, snap); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}

	got, err := ps.Load(ctx)
	if err != nil || got == nil {
		t.Fatalf("Load = %v %v", got, err)
	}
	if got.ChunkIndex != 2 || len(got.Processed) != 2 || got.RunID != "run-7" {
		t.Fatalf("Load = %+v", got)
	}

	if err := ps.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := ps.Load(ctx); got != nil {
		t.Fatalf("Load after Clear = %+v", got)
	}
}

func TestPGLease_Integration(t *testing.T) {
	dsn, stop := startPostgres(t)
	defer stop()
	s := openPG(t, dsn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := s.PG.Exec(ctx, guardrails.LeaseDDL); err != nil {
		t.Fatalf("lease ddl: %v", err)
	}

	a := guardrails.MakePGLease(s.PG, "host-a", time.Hour)
	b := guardrails.MakePGLease(s.PG, "host-b", time.Hour)

	release, err := a(ctx, "batch")
	if err != nil {
		t.Fatalf("host-a claim: %v", err)
	}
	if _, err := b(ctx, "batch"); !errors.Is(err, guardrails.ErrLeaseHeld) {
		t.Fatalf("host-b claim err = %v, want ErrLeaseHeld", err)
	}
	// same owner may re-claim after a crash
	if _, err := a(ctx, "batch"); err != nil {
		t.Fatalf("host-a re-claim: %v", err)
	}

	release()
	rb, err := b(ctx, "batch")
	if err != nil {
		t.Fatalf("host-b after release: %v", err)
	}
	rb()

	// an expired row is taken over
	short := guardrails.MakePGLease(s.PG, "host-c", time.Millisecond)
	if _, err := short(ctx, "expiring"); err != nil {
		t.Fatalf("host-c claim: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	rd, err := b(ctx, "expiring")
	if err != nil {
		t.Fatalf("takeover of expired lease: %v", err)
	}
	rd()
}
