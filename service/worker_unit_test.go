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
)

type countingRegisterer struct {
	registered   atomic.Int32
	unregistered atomic.Int32
}

func (r *countingRegisterer) MustRegisterMetrics() { r.registered.Inc() }

func (r *countingRegisterer) UnregisterMetrics() { r.unregistered.Inc() }

func TestWorkerUnit_Stop(t *testing.T) {
	t.Run("not gracefully, returns without waiting for worker", func(t *testing.T) {
		var returned atomic.Bool
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(time.Millisecond * 300)
			returned.Store(true)
			return nil
		}))
		go unit.Start(make(chan error, 1))
		time.Sleep(time.Millisecond * 50)

		require.NoError(t, unit.Stop(false))
		require.False(t, returned.Load())
	})

	t.Run("gracefully, waits for worker", func(t *testing.T) {
		var drained atomic.Int32
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(time.Millisecond * 200) // In-flight calls are drained here.
			drained.Store(42)
			return nil
		}))
		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)
		time.Sleep(time.Millisecond * 50)

		require.NoError(t, unit.Stop(true))
		require.Equal(t, int32(42), drained.Load())
		require.Empty(t, fatalErr)
	})

	t.Run("gracefully, timeout exceeded", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-release // Ignores cancellation.
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: time.Millisecond * 200})
		go unit.Start(make(chan error, 1))
		time.Sleep(time.Millisecond * 50)

		startedAt := time.Now()
		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
		require.GreaterOrEqual(t, time.Since(startedAt), time.Millisecond*200)
	})

	t.Run("gracefully, timeout not exceeded", func(t *testing.T) {
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: time.Second * 3})
		go unit.Start(make(chan error, 1))
		time.Sleep(time.Millisecond * 50)

		require.NoError(t, unit.Stop(true))
	})
}

func TestWorkerUnit_Start_RunError(t *testing.T) {
	runErr := errors.New("dial target: connection refused")
	unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
		return runErr
	}))
	fatalErr := make(chan error, 1)
	unit.Start(fatalErr)

	require.ErrorIs(t, <-fatalErr, runErr)
	select {
	case <-unit.Finished():
		require.FailNow(t, "failed unit must not be reported as finished")
	default:
	}
	require.NoError(t, unit.Stop(true))
}

func TestWorkerUnit_Metrics(t *testing.T) {
	registerer := &countingRegisterer{}
	unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error { return nil }),
		WorkerUnitOpts{MetricsRegisterer: registerer})
	unit.MustRegisterMetrics()
	unit.UnregisterMetrics()
	require.Equal(t, int32(1), registerer.registered.Load())
	require.Equal(t, int32(1), registerer.unregistered.Load())

	// Without registerer both calls are no-ops.
	unit = NewWorkerUnit(WorkerFunc(func(ctx context.Context) error { return nil }))
	require.NotPanics(t, unit.MustRegisterMetrics)
	require.NotPanics(t, unit.UnregisterMetrics)
}
