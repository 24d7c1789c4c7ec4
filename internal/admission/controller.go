/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package admission

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// ErrStopTimeoutExceeded is returned by Controller.Stop when queued tasks are not drained in time.
var ErrStopTimeoutExceeded = errors.New("admission controller stop timeout exceeded")

// Decision is the result of the task submission.
type Decision int

// Submission decisions.
const (
	Accepted Decision = iota
	Rejected
)

// String returns a string representation of the decision.
func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// Task is a unit of work executed by the Controller's workers.
type Task interface {
	Run()
}

// TaskFunc is an adapter to allow the use of ordinary functions as Task.
type TaskFunc func()

// Run calls f().
func (f TaskFunc) Run() {
	f()
}

// Opts contains optional parameters for constructing Controller.
type Opts struct {
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
	StopTimeout      time.Duration
}

// Controller runs submitted tasks on a fixed number of workers.
// Accepted tasks wait in a queue of fixed capacity until a worker is free.
// It implements service.Unit interface.
type Controller struct {
	queue         chan Task
	workers       int
	activeWorkers atomic.Int32
	rejected      atomic.Uint64
	completed     atomic.Uint64

	logger      log.FieldLogger
	metrics     MetricsCollector
	stopTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopping  chan struct{}
	wg        sync.WaitGroup
}

// NewController creates a new Controller with the given number of workers and queue capacity.
// Zero queue capacity means tasks are handed off to idle workers only.
func NewController(workers, queueCapacity int, opts Opts) (*Controller, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("workers count should be positive, got %d", workers)
	}
	if queueCapacity < 0 {
		return nil, fmt.Errorf("queue capacity should not be negative, got %d", queueCapacity)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	c := &Controller{
		queue:       make(chan Task, queueCapacity),
		workers:     workers,
		logger:      opts.Logger,
		metrics:     opts.MetricsCollector,
		stopTimeout: opts.StopTimeout,
		stopping:    make(chan struct{}),
	}
	c.metrics.SetPoolSize(workers, queueCapacity)
	return c, nil
}

// Start launches workers. It returns immediately, so the Controller may be used as a service.Unit.
func (c *Controller) Start(_ chan<- error) {
	c.startOnce.Do(func() {
		c.logger.Info("starting admission controller...",
			log.Int("workers", c.workers), log.Int("queue_capacity", cap(c.queue)))
		c.wg.Add(c.workers)
		for i := 0; i < c.workers; i++ {
			go c.runWorker()
		}
	})
}

// Submit tries to admit the task. It never blocks.
// Accepted task is guaranteed to be run by one of the workers unless the Controller is stopped forcefully.
func (c *Controller) Submit(task Task) Decision {
	select {
	case c.queue <- task:
		c.metrics.ObserveState(len(c.queue), int(c.activeWorkers.Load()))
		return Accepted
	default:
		c.rejected.Inc()
		c.metrics.IncRejected()
		return Rejected
	}
}

// Stop stops workers. If gracefully is true, already accepted tasks are drained first
// (during StopTimeout if it is set).
// Tasks must not be submitted after Stop is called.
func (c *Controller) Stop(gracefully bool) error {
	c.stopOnce.Do(func() {
		close(c.stopping)
	})
	if !gracefully {
		return nil
	}
	c.logger.Info("stopping admission controller gracefully...", log.Int("queue_depth", c.QueueDepth()))

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	if c.stopTimeout == 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(c.stopTimeout):
		return ErrStopTimeoutExceeded
	}
}

// QueueDepth returns the number of accepted tasks waiting for a worker.
func (c *Controller) QueueDepth() int {
	return len(c.queue)
}

// ActiveWorkers returns the number of workers running a task at the moment.
func (c *Controller) ActiveWorkers() int {
	return int(c.activeWorkers.Load())
}

// InUse returns the number of accepted tasks that are not finished yet.
func (c *Controller) InUse() int {
	return c.QueueDepth() + c.ActiveWorkers()
}

// Workers returns the size of the workers pool.
func (c *Controller) Workers() int {
	return c.workers
}

// QueueCapacity returns the capacity of the queue.
func (c *Controller) QueueCapacity() int {
	return cap(c.queue)
}

// RejectedCount returns the total number of rejected submissions.
func (c *Controller) RejectedCount() uint64 {
	return c.rejected.Load()
}

// CompletedCount returns the total number of finished tasks.
func (c *Controller) CompletedCount() uint64 {
	return c.completed.Load()
}

// ObserveMetrics reports the current state to the metrics collector.
func (c *Controller) ObserveMetrics() {
	c.metrics.ObserveState(c.QueueDepth(), c.ActiveWorkers())
}

func (c *Controller) runWorker() {
	defer c.wg.Done()
	for {
		select {
		case task := <-c.queue:
			c.runTask(task)
		case <-c.stopping:
			// Drain whatever was accepted before stopping.
			for {
				select {
				case task := <-c.queue:
					c.runTask(task)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) runTask(task Task) {
	c.activeWorkers.Inc()
	c.metrics.ObserveState(len(c.queue), int(c.activeWorkers.Load()))
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			c.logger.Error(fmt.Sprintf("admission task panic: %+v", p), log.Bytes("stack", stack))
		}
		c.activeWorkers.Dec()
		c.completed.Inc()
		c.metrics.IncCompleted()
		c.metrics.ObserveState(len(c.queue), int(c.activeWorkers.Load()))
	}()
	task.Run()
}
