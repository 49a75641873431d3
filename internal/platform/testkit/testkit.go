// Package testkit holds helpers shared by package tests: panics, seams, polling and a manual clock
package testkit

import "testing"

// MustPanic fails the test unless fn panics
func MustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic, got none")
		}
	}()
	fn()
}
