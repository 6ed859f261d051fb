// Package testutil carries small helpers shared by package tests.
package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger prefixed with the running test's name, so
// interleaved output from concurrent tests stays attributable.
func TestLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags)
}
