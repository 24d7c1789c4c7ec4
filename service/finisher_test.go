/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/grpc-backpressure-lab/log/logtest"
)

func TestWorkerUnit_Finished(t *testing.T) {
	t.Run("worker returns on its own", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			return nil
		}))
		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)

		select {
		case <-unit.Finished():
		case <-time.After(time.Second * 3):
			require.FailNow(t, "unit is not finished")
		}
		require.NoError(t, unit.Stop(true))
		require.Empty(t, fatalErr)
	})

	t.Run("worker is stopped", func(t *testing.T) {
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
		fatalErr := make(chan error, 1)
		go unit.Start(fatalErr)
		require.NoError(t, unit.Stop(true))

		select {
		case <-unit.Finished():
			require.FailNow(t, "stopped unit must not be reported as finished")
		default:
		}
	})
}

func TestCompositeUnit_Finished(t *testing.T) {
	var runningCounter int32
	require.Nil(t, NewCompositeUnit(newMockUnit("srv", &runningCounter, false)).Finished())

	first, second := make(chan struct{}), make(chan struct{})
	newFiniteUnit := func(release <-chan struct{}) *WorkerUnit {
		return NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			<-release
			return nil
		}))
	}
	// Units that are not Finishers (e.g. a metrics server) don't hold the composition.
	cu := NewCompositeUnit(newFiniteUnit(first), newFiniteUnit(second), newMockUnit("metrics", &runningCounter, false))
	fatalErr := make(chan error, 1)
	go cu.Start(fatalErr)

	finished := cu.Finished()
	require.NotNil(t, finished)
	require.Equal(t, finished, cu.Finished())

	close(first)
	select {
	case <-finished:
		require.FailNow(t, "composite unit finished before all its finite units")
	case <-time.After(time.Millisecond * 100):
	}

	close(second)
	select {
	case <-finished:
	case <-time.After(time.Second * 3):
		require.FailNow(t, "composite unit is not finished")
	}
	require.NoError(t, cu.Stop(true))
	require.Empty(t, fatalErr)
}

func TestService_StopsWhenUnitFinished(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
		time.Sleep(time.Millisecond * 50)
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		done <- New(logRecorder, unit).Start()
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second * 3):
		require.FailNow(t, "service is not stopped")
	}
	_, found := logRecorder.FindEntry("service unit finished its work, service will be stopped")
	require.True(t, found)
}
