package config

import (
	"testing"
	"time"

	kit "detention/internal/platform/testkit"
)

func TestPrefix(t *testing.T) {
	c := New().Prefix("DETENTION_").Prefix("BATCH_")
	if got := c.key("CHUNK_SIZE"); got != "DETENTION_BATCH_CHUNK_SIZE" {
		t.Fatalf("key = %q", got)
	}
}

func TestMust(t *testing.T) {
	c := New().Prefix("CFGT_")
	t.Setenv("CFGT_NAME", "  detention ")
	t.Setenv("CFGT_URL", "https://tms.example.test/api")
	t.Setenv("CFGT_REL", "/api")

	if got := c.MustString("NAME"); got != "detention" {
		t.Fatalf("MustString = %q", got)
	}
	if u := c.MustURL("URL"); u.Host != "tms.example.test" {
		t.Fatalf("MustURL host = %q", u.Host)
	}
	kit.MustPanic(t, func() { _ = c.MustString("MISSING") })
	kit.MustPanic(t, func() { _ = c.MustURL("REL") })
	kit.MustPanic(t, func() { _ = c.MustURL("MISSING") })
}

func TestMay(t *testing.T) {
	c := New().Prefix("CFGT_")
	t.Setenv("CFGT_WORKERS", " 8 ")
	t.Setenv("CFGT_BAD_INT", "eight")
	t.Setenv("CFGT_RPS", "2.5")
	t.Setenv("CFGT_ON", "true")
	t.Setenv("CFGT_BAD_BOOL", "maybe")
	t.Setenv("CFGT_COOLDOWN", "250ms")
	t.Setenv("CFGT_BAD_DUR", "soon")

	if got := c.MayString("MISSING", "def"); got != "def" {
		t.Fatalf("MayString default = %q", got)
	}
	if got := c.MayInt("WORKERS", 1); got != 8 {
		t.Fatalf("MayInt = %d", got)
	}
	if got := c.MayInt("BAD_INT", 3); got != 3 {
		t.Fatalf("invalid int should fall back, got %d", got)
	}
	if got := c.MayFloat64("RPS", 8); got != 2.5 {
		t.Fatalf("MayFloat64 = %v", got)
	}
	if !c.MayBool("ON", false) || !c.MayBool("BAD_BOOL", true) || c.MayBool("MISSING", false) {
		t.Fatalf("MayBool mismatch")
	}
	if got := c.MayDuration("COOLDOWN", time.Second); got != 250*time.Millisecond {
		t.Fatalf("MayDuration = %s", got)
	}
	if got := c.MayDuration("BAD_DUR", time.Second); got != time.Second {
		t.Fatalf("invalid duration should fall back, got %s", got)
	}
}

func TestMayCSV(t *testing.T) {
	c := New().Prefix("CFGT_")
	t.Setenv("CFGT_IDS", " ORD-1, ,ORD-2,")
	t.Setenv("CFGT_BLANK", " , ,")

	got := c.MayCSV("IDS", nil)
	if len(got) != 2 || got[0] != "ORD-1" || got[1] != "ORD-2" {
		t.Fatalf("MayCSV = %#v", got)
	}
	if got := c.MayCSV("BLANK", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("blank list should fall back, got %#v", got)
	}
	if got := c.MayCSV("MISSING", nil); got != nil {
		t.Fatalf("missing should give def, got %#v", got)
	}
}

func TestMayEnum(t *testing.T) {
	c := New().Prefix("CFGT_")
	t.Setenv("CFGT_POLICY", "Approve")
	t.Setenv("CFGT_BAD", "sometimes")

	if got := c.MayEnum("POLICY", "wait", "wait", "approve"); got != "approve" {
		t.Fatalf("MayEnum = %q", got)
	}
	if got := c.MayEnum("MISSING", "wait", "wait", "approve"); got != "wait" {
		t.Fatalf("MayEnum default = %q", got)
	}
	kit.MustPanic(t, func() { _ = c.MayEnum("BAD", "wait", "wait", "approve") })
}
