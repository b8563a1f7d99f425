// Package worker runs the relay's long-lived processes (API server,
// delivery loop, presence subscriber) under one supervisor.
package worker

import "context"

// Worker is a long-running background process. Run blocks until the context
// is canceled or a fatal error occurs; nil and context.Canceled both mean a
// graceful stop.
type Worker interface {
	// Name identifies the worker in logs and health output.
	Name() string

	Run(ctx context.Context) error
}
