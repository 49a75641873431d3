package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	kit "detention/internal/platform/testkit"
)

func TestOverlayFromYAML(t *testing.T) {
	kit.Serial(t)
	t.Cleanup(ResetOverlay)

	doc := []byte(`
detention:
  batch:
    chunk_size: 25
    cooldown: 3s
    dry-run: true
  tms:
    base_url: https://tms.example.test
  rules:
    pricing_codes: [DETPU, DETDL]
`)
	if err := LoadYAML(doc); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	c := New().Prefix("DETENTION_BATCH_")
	if got := c.MayInt("CHUNK_SIZE", 50); got != 25 {
		t.Fatalf("overlay int = %d", got)
	}
	if got := c.MayDuration("COOLDOWN", time.Second); got != 3*time.Second {
		t.Fatalf("overlay duration = %s", got)
	}
	if !c.MayBool("DRY_RUN", false) {
		t.Fatalf("dash keys should normalise to underscores")
	}
	codes := New().Prefix("DETENTION_RULES_").MayCSV("PRICING_CODES", nil)
	if len(codes) != 2 || codes[1] != "DETDL" {
		t.Fatalf("list overlay = %#v", codes)
	}

	t.Setenv("DETENTION_BATCH_CHUNK_SIZE", "10")
	if got := c.MayInt("CHUNK_SIZE", 50); got != 10 {
		t.Fatalf("env should win over file, got %d", got)
	}

	keys := OverlayKeys()
	if len(keys) != 5 || keys[0] != "DETENTION_BATCH_CHUNK_SIZE" {
		t.Fatalf("keys = %#v", keys)
	}
}

func TestLoadFromEnv(t *testing.T) {
	kit.Serial(t)
	t.Cleanup(ResetOverlay)

	t.Setenv("CONFIG_FILE", "")
	if err := LoadFromEnv(); err != nil {
		t.Fatalf("no file should be fine: %v", err)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "detention.yaml")
	if err := os.WriteFile(p, []byte("detention:\n  api:\n    addr: \":4100\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", p)
	if err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if got := New().Prefix("DETENTION_API_").MustString("ADDR"); got != ":4100" {
		t.Fatalf("addr = %q", got)
	}

	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))
	if err := LoadFromEnv(); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if err := LoadYAML([]byte("a: [unterminated")); err == nil {
		t.Fatalf("expected parse error")
	}
}
