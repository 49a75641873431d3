package testkit

import (
	"testing"
	"time"
)

// Eventually polls cond every tick until it returns true or wait elapses
func Eventually(t *testing.T, wait, tick time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(wait)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", wait, msg)
		}
		time.Sleep(tick)
	}
}
