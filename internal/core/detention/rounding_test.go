package detention

import (
	"testing"
	"time"
)

func TestRoundMinutes(t *testing.T) {
	cases := []struct {
		m, inc int
		mode   Rounding
		want   int
	}{
		{65, 15, RoundUp, 75},
		{65, 15, RoundDown, 60},
		{65, 15, RoundNearest, 60},
		{68, 15, RoundNearest, 75},
		{75, 30, RoundNearest, 90}, // exact half goes up
		{74, 30, RoundNearest, 60},
		{60, 15, RoundUp, 60},
		{65, 0, RoundUp, 65},
		{65, 15, RoundNone, 65},
		{0, 15, RoundUp, 0},
	}
	for _, c := range cases {
		if got := RoundMinutes(c.m, c.inc, c.mode); got != c.want {
			t.Fatalf("RoundMinutes(%d, %d, %q) = %d, want %d", c.m, c.inc, c.mode, got, c.want)
		}
	}
}

func TestRoundingIdempotent(t *testing.T) {
	for _, mode := range []Rounding{RoundUp, RoundDown, RoundNearest} {
		for _, inc := range []int{1, 5, 6, 15, 30, 60} {
			for m := 0; m <= 300; m++ {
				once := RoundMinutes(m, inc, mode)
				if twice := RoundMinutes(once, inc, mode); twice != once {
					t.Fatalf("%s/%d: %d -> %d -> %d", mode, inc, m, once, twice)
				}
			}
		}
	}
}

func TestMinutesBetween(t *testing.T) {
	a := base.Add(30 * time.Second)
	b := base.Add(90 * time.Second)
	if got := MinutesBetween(a, b); got != 1 {
		t.Fatalf("MinutesBetween = %d, want 1", got)
	}
	if got := MinutesBetween(b, a); got != -1 {
		t.Fatalf("reverse = %d, want -1", got)
	}
}
