/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/log/logtest"
)

func runPeriodicWorker(t *testing.T, pw *PeriodicWorker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- pw.Run(ctx) }()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(d + 2*time.Second):
		t.Fatal("periodic worker is not stopped by context")
	}
}

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("runs immediately and then every interval", func(t *testing.T) {
		var runs atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(context.Context) error {
			runs.Inc()
			return nil
		}), 100*time.Millisecond, log.NewDisabledLogger())

		runPeriodicWorker(t, pw, 450*time.Millisecond)
		require.InDelta(t, 5, runs.Load(), 1)
	})

	t.Run("initial delay", func(t *testing.T) {
		var runs atomic.Int32
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(context.Context) error {
			runs.Inc()
			return nil
		}), 100*time.Millisecond, log.NewDisabledLogger(), PeriodicWorkerOpts{InitialDelay: 250 * time.Millisecond})

		runPeriodicWorker(t, pw, 200*time.Millisecond)
		require.Zero(t, runs.Load())

		runPeriodicWorker(t, pw, 480*time.Millisecond)
		require.InDelta(t, 3, runs.Load(), 1)
	})

	t.Run("error does not stop the loop", func(t *testing.T) {
		logger := logtest.NewRecorder()
		var runs atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(context.Context) error {
			if runs.Inc() == 1 {
				return errors.New("sampling failed")
			}
			return nil
		}), 50*time.Millisecond, logger)

		runPeriodicWorker(t, pw, 300*time.Millisecond)
		require.Greater(t, runs.Load(), int32(2))
		failures := logger.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
			return entry.Text == "periodic worker run failed"
		})
		require.Len(t, failures, 1)
		_, found := logger.FindEntry("periodic worker stopped")
		require.True(t, found)
	})

	t.Run("panic is logged and re-raised", func(t *testing.T) {
		logger := logtest.NewRecorder()
		pw := NewPeriodicWorker(WorkerFunc(func(context.Context) error {
			panic("broken sampler")
		}), time.Second, logger)

		require.PanicsWithValue(t, "broken sampler", func() { _ = pw.Run(context.Background()) })
		_, found := logger.FindEntry("panic in periodic worker: broken sampler")
		require.True(t, found)
	})

	t.Run("non-positive interval", func(t *testing.T) {
		pw := NewPeriodicWorker(WorkerFunc(func(context.Context) error { return nil }), 0, log.NewDisabledLogger())
		require.EqualError(t, pw.Run(context.Background()), "periodic worker interval should be positive, got 0s")
	})
}
