// Package drivertest provides a conformance test suite for msgstore drivers.
package drivertest

import (
	"context"
	"testing"

	"github.com/Chronic700/Agent-Connect/internal/msgstore/driver"
)

// Harness provides the test infrastructure for a msgstore driver implementation.
type Harness interface {
	MakeDriver(ctx context.Context) (driver.MessageStore, error)
	Close()
}

// HarnessMaker creates a new Harness for each test.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests executes the full conformance test suite for a
// msgstore driver:
//   - Queue: insert, retrieve, and queued-scan ordering
//   - Transitions: the conditional status transitions and their bookkeeping
//   - Concurrency: the losing-writer discipline under racing workers
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Helper()

	t.Run("Queue", func(t *testing.T) {
		testQueue(t, newHarness)
	})
	t.Run("Transitions", func(t *testing.T) {
		testTransitions(t, newHarness)
	})
	t.Run("Concurrency", func(t *testing.T) {
		testConcurrency(t, newHarness)
	})
}
