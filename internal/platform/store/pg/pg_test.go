package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"detention/internal/platform/testkit"
)

const dsn = "postgres://u:p@h:5432/detention?sslmode=disable"

func TestOpen_Errors(t *testing.T) {
	testkit.Serial(t)

	if _, err := Open(context.Background(), Config{URL: "://bad"}, nil, nil); err == nil {
		t.Fatalf("expected parse error")
	}

	testkit.Swap(t, &newPool, func(context.Context, *pgxpool.Config) (*pgxpool.Pool, error) {
		return nil, errors.New("boom")
	})
	if _, err := Open(context.Background(), Config{URL: dsn}, nil, nil); err == nil {
		t.Fatalf("expected pool error")
	}
}

func TestOpen_AppliesConfig(t *testing.T) {
	testkit.Serial(t)

	var seen *pgxpool.Config
	testkit.Swap(t, &newPool, func(_ context.Context, c *pgxpool.Config) (*pgxpool.Pool, error) {
		seen = c
		return &pgxpool.Pool{}, nil
	})

	p, err := Open(context.Background(), Config{URL: dsn, MaxConns: 7, SlowMs: 250, AppName: "detention-batch"}, nil,
		func(c *pgxpool.Config) { c.MaxConnIdleTime = time.Minute })
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if seen.MaxConns != 7 || seen.MaxConnIdleTime != time.Minute {
		t.Fatalf("pool config not applied: %d %v", seen.MaxConns, seen.MaxConnIdleTime)
	}
	if got := seen.ConnConfig.RuntimeParams["application_name"]; got != "detention-batch" {
		t.Fatalf("application_name = %q", got)
	}
	if p.Slow != 250*time.Millisecond || !p.IsSlow(time.Second) || p.IsSlow(time.Millisecond) {
		t.Fatalf("slow threshold %v", p.Slow)
	}
}

func TestIsSlow_Disabled(t *testing.T) {
	p := &PG{Slow: -1}
	if p.IsSlow(time.Hour) {
		t.Fatalf("disabled threshold should never mark slow")
	}
}

func TestClose_NilSafe(t *testing.T) {
	var p *PG
	p.Close()
	(&PG{}).Close()
}
