package store

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// pingTx is a TxRunner whose Ping result is configurable
type pingTx struct {
	TxRunner
	err error
}

func (p pingTx) Ping(context.Context) error { return p.err }

func TestOpen_Backends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := []struct {
		name    string
		cfg     Config
		wantCH  bool
		wantErr bool
	}{
		{name: "nothing enabled", cfg: Config{}},
		{name: "clickhouse is lazy", cfg: Config{CH: CHConfig{Enabled: true, URL: "clickhouse://localhost:9000/default"}}, wantCH: true},
		{name: "bad pg url", cfg: Config{PG: PGConfig{Enabled: true, URL: "://bad"}}, wantErr: true},
		{
			name: "pg fails before clickhouse opens",
			cfg: Config{
				PG: PGConfig{Enabled: true, URL: "://bad"},
				CH: CHConfig{Enabled: true, URL: "clickhouse://localhost:9000/default"},
			},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Open(ctx, tc.cfg)
			if tc.wantErr {
				if err == nil || s != nil {
					t.Fatalf("want error and nil store, got %v %#v", err, s)
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if (s.CH != nil) != tc.wantCH || s.PG != nil || s.Redis != nil {
				t.Fatalf("seams pg=%T ch=%T redis=%v", s.PG, s.CH, s.Redis)
			}
			if err := s.Close(ctx); err != nil {
				t.Fatalf("close: %v", err)
			}
		})
	}
}

func TestWithLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s, err := Open(context.Background(), Config{}, WithLogger(zerolog.New(&buf)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Log.Info().Msg("snapshot saved")
	if !strings.Contains(buf.String(), "snapshot saved") {
		t.Fatalf("store logger not used: %q", buf.String())
	}
}

func TestGuard(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var nilStore *Store
	if err := nilStore.Guard(ctx); err == nil {
		t.Fatalf("nil store should fail guard")
	}
	if err := (&Store{}).Guard(ctx); err != nil {
		t.Fatalf("empty store: %v", err)
	}
	if err := (&Store{PG: pingTx{}}).Guard(ctx); err != nil {
		t.Fatalf("healthy pg: %v", err)
	}

	err := (&Store{PG: pingTx{err: errors.New("refused")}}).Guard(ctx)
	if err == nil || !strings.Contains(err.Error(), "pg: refused") {
		t.Fatalf("want wrapped pg error, got %v", err)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()
	c := Config{}.withDefaults()
	if c.PG.ConnectRetries != 6 || c.PG.PingTimeout != 5*time.Second || c.RDS.PingTimeout != 3*time.Second {
		t.Fatalf("defaults = %+v", c)
	}
	c = Config{PG: PGConfig{ConnectRetries: 2}}.withDefaults()
	if c.PG.ConnectRetries != 2 {
		t.Fatalf("explicit retries overwritten: %d", c.PG.ConnectRetries)
	}
}
