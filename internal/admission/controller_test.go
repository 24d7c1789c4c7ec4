/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/grpc-backpressure-lab/log/logtest"
	"github.com/acronis/grpc-backpressure-lab/testutil"
)

// blockingTasks returns a factory of tasks that block until release is closed.
func blockingTasks(release <-chan struct{}, finished *atomic.Int32) func() Task {
	return func() Task {
		return TaskFunc(func() {
			<-release
			finished.Inc()
		})
	}
}

func startController(t *testing.T, workers, queueCapacity int, opts Opts) *Controller {
	t.Helper()
	c, err := NewController(workers, queueCapacity, opts)
	require.NoError(t, err)
	c.Start(nil)
	return c
}

func waitActiveWorkers(t *testing.T, c *Controller, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.ActiveWorkers() == want
	}, time.Second*3, time.Millisecond*5)
}

func TestNewController(t *testing.T) {
	_, err := NewController(0, 10, Opts{})
	require.EqualError(t, err, "workers count should be positive, got 0")

	_, err = NewController(1, -1, Opts{})
	require.EqualError(t, err, "queue capacity should not be negative, got -1")

	c, err := NewController(8, 50, Opts{})
	require.NoError(t, err)
	require.Equal(t, 8, c.Workers())
	require.Equal(t, 50, c.QueueCapacity())
}

func TestController_RejectsOnlyWhenSaturated(t *testing.T) {
	const workers, queueCapacity = 3, 5

	release := make(chan struct{})
	var finished atomic.Int32
	newTask := blockingTasks(release, &finished)

	c := startController(t, workers, queueCapacity, Opts{})

	for i := 0; i < workers; i++ {
		require.Equal(t, Accepted, c.Submit(newTask()))
	}
	waitActiveWorkers(t, c, workers)
	require.Equal(t, 0, c.QueueDepth())

	for i := 0; i < queueCapacity; i++ {
		require.Equal(t, Accepted, c.Submit(newTask()), "queue has free space")
		require.Equal(t, i+1, c.QueueDepth())
	}

	for i := 0; i < 10; i++ {
		require.Equal(t, Rejected, c.Submit(newTask()), "all workers are busy and queue is full")
	}
	require.Equal(t, queueCapacity, c.QueueDepth())
	require.Equal(t, workers, c.ActiveWorkers())
	require.Equal(t, uint64(10), c.RejectedCount())

	close(release)
	require.NoError(t, c.Stop(true))
	require.Equal(t, int32(workers+queueCapacity), finished.Load())
	require.Equal(t, uint64(workers+queueCapacity), c.CompletedCount())
	require.Equal(t, 0, c.InUse())
}

func TestController_ZeroQueueCapacity(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Int32
	newTask := blockingTasks(release, &finished)

	c := startController(t, 1, 0, Opts{})

	require.Eventually(t, func() bool {
		return c.Submit(newTask()) == Accepted
	}, time.Second*3, time.Millisecond*5, "idle worker takes the task")
	waitActiveWorkers(t, c, 1)
	require.Equal(t, Rejected, c.Submit(newTask()))

	close(release)
	require.NoError(t, c.Stop(true))
	require.Equal(t, int32(1), finished.Load())
}

func TestController_QueueDepthNeverExceedsCapacity(t *testing.T) {
	const workers, queueCapacity, submitters = 4, 16, 32

	c := startController(t, workers, queueCapacity, Opts{})

	var accepted, rejected, executed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(submitters)
	for i := 0; i < submitters; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d := c.Submit(TaskFunc(func() {
					time.Sleep(time.Microsecond * 100)
					executed.Inc()
				}))
				if d == Accepted {
					accepted.Inc()
				} else {
					rejected.Inc()
				}
				assert.LessOrEqual(t, c.QueueDepth(), queueCapacity)
				assert.LessOrEqual(t, c.ActiveWorkers(), workers)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.Stop(true))

	require.Equal(t, int32(submitters*100), accepted.Load()+rejected.Load())
	require.Equal(t, accepted.Load(), executed.Load(), "every accepted task is executed")
	require.Equal(t, uint64(rejected.Load()), c.RejectedCount())
}

func TestController_RecoversTaskPanic(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	c := startController(t, 1, 1, Opts{Logger: logRecorder})

	done := make(chan struct{})
	require.Equal(t, Accepted, c.Submit(TaskFunc(func() { panic("boom") })))
	require.Equal(t, Accepted, c.Submit(TaskFunc(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(time.Second * 3):
		require.FailNow(t, "worker did not survive the panic")
	}
	require.NoError(t, c.Stop(true))

	_, found := logRecorder.FindEntry("admission task panic: boom")
	require.True(t, found)
	require.Equal(t, uint64(2), c.CompletedCount())
}

func TestController_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	var finished atomic.Int32

	c := startController(t, 1, 0, Opts{StopTimeout: time.Millisecond * 50})
	require.Eventually(t, func() bool {
		return c.Submit(blockingTasks(release, &finished)()) == Accepted
	}, time.Second*3, time.Millisecond*5)
	waitActiveWorkers(t, c, 1)

	require.ErrorIs(t, c.Stop(true), ErrStopTimeoutExceeded)
}

func TestController_Metrics(t *testing.T) {
	promMetrics := NewPrometheusMetrics("", nil)
	release := make(chan struct{})
	var finished atomic.Int32
	newTask := blockingTasks(release, &finished)

	c := startController(t, 2, 1, Opts{MetricsCollector: promMetrics})
	testutil.RequireMetricValue(t, promMetrics.PoolSize, 2)
	testutil.RequireMetricValue(t, promMetrics.QueueCapacity, 1)

	require.Equal(t, Accepted, c.Submit(newTask()))
	require.Equal(t, Accepted, c.Submit(newTask()))
	waitActiveWorkers(t, c, 2)
	require.Equal(t, Accepted, c.Submit(newTask()))
	require.Equal(t, Rejected, c.Submit(newTask()))

	c.ObserveMetrics()
	testutil.RequireMetricValue(t, promMetrics.QueueDepth, 1)
	testutil.RequireMetricValue(t, promMetrics.ActiveWorkers, 2)
	testutil.RequireMetricValue(t, promMetrics.Rejected, 1)

	close(release)
	require.NoError(t, c.Stop(true))
	c.ObserveMetrics()
	testutil.RequireMetricValue(t, promMetrics.Completed, 3)
	testutil.RequireMetricValue(t, promMetrics.ActiveWorkers, 0)
	testutil.RequireMetricValue(t, promMetrics.QueueDepth, 0)
}

func TestDecision_String(t *testing.T) {
	require.Equal(t, "accepted", Accepted.String())
	require.Equal(t, "rejected", Rejected.String())
	require.Equal(t, "Decision(7)", Decision(7).String())
}
