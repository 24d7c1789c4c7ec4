/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker at a fixed interval until the context is done.
// It drives the background samplers and reporters (admission gauges, load generator stats).
// An error of a single run is logged and does not stop the loop.
type PeriodicWorker struct {
	worker       Worker
	logger       log.FieldLogger
	interval     time.Duration
	initialDelay time.Duration
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// InitialDelay is the delay before the first run. The first run happens immediately by default.
	InitialDelay time.Duration
}

// NewPeriodicWorker creates a new instance of PeriodicWorker that runs the worker immediately and then every interval.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, interval, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a new instance of PeriodicWorker
// with an ability to specify different optional parameters.
func NewPeriodicWorkerWithOpts(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, logger: logger, interval: interval, initialDelay: opts.InitialDelay}
}

// Run runs the loop. It returns nil when ctx is done.
// A panic in the worker is logged with the stack and re-raised.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	if pw.interval <= 0 {
		return fmt.Errorf("periodic worker interval should be positive, got %s", pw.interval)
	}

	defer func() {
		if p := recover(); p != nil {
			pw.logger.Error(fmt.Sprintf("panic in periodic worker: %+v", p), log.Bytes("stack", debug.Stack()))
			panic(p)
		}
	}()

	pw.logger.Info("periodic worker started",
		log.Duration("interval", pw.interval), log.Duration("initial_delay", pw.initialDelay))
	defer pw.logger.Info("periodic worker stopped")

	timer := time.NewTimer(pw.initialDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if err := pw.worker.Run(ctx); err != nil && ctx.Err() == nil {
			pw.logger.Error("periodic worker run failed", log.Error(err))
		}
		timer.Reset(pw.interval)
	}
}
