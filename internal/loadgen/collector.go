/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc/status"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// ResponseCollectorOpts represents options for ResponseCollector.
type ResponseCollectorOpts struct {
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
	Latencies        *LatencyRecorder
}

// ResponseCollector accounts terminal call outcomes on a fixed pool of workers.
// For every collected call it increments the completed counter (and the errors one on failure),
// records the latency and returns the permit to the InflightGate.
type ResponseCollector struct {
	workers   int
	counters  *Counters
	gate      *InflightGate
	latencies *LatencyRecorder
	metrics   MetricsCollector
	errLogger log.FieldLogger

	mu      sync.RWMutex
	started bool
	stopped bool
	queue   chan *PendingCall
	wg      sync.WaitGroup
}

// NewResponseCollector creates a new ResponseCollector.
// The queue is sized by the gate capacity, so Collect never blocks:
// every queued call still holds its permit.
func NewResponseCollector(
	workers int, counters *Counters, gate *InflightGate, opts ResponseCollectorOpts,
) (*ResponseCollector, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("number of callback workers should be positive, got %d", workers)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	if opts.Latencies == nil {
		opts.Latencies = NewLatencyRecorder()
	}
	return &ResponseCollector{
		workers:   workers,
		counters:  counters,
		gate:      gate,
		latencies: opts.Latencies,
		metrics:   opts.MetricsCollector,
		errLogger: log.NewSampledLogger(opts.Logger, time.Second),
		queue:     make(chan *PendingCall, gate.Capacity()),
	}, nil
}

// Start starts the workers.
func (c *ResponseCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.wg.Add(c.workers)
	for i := 0; i < c.workers; i++ {
		go func() {
			defer c.wg.Done()
			for pc := range c.queue {
				c.process(pc)
			}
		}()
	}
}

// Collect hands the completed call over to the workers.
// After Stop, calls are accounted inline on the caller's goroutine.
func (c *ResponseCollector) Collect(pc *PendingCall) {
	c.mu.RLock()
	if c.started && !c.stopped {
		c.queue <- pc
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()
	c.process(pc)
}

// Stop stops accepting calls and waits until the workers account all queued ones.
func (c *ResponseCollector) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.queue)
	c.mu.Unlock()
	c.wg.Wait()
}

// Latencies returns the recorder the collector writes to.
func (c *ResponseCollector) Latencies() *LatencyRecorder {
	return c.latencies
}

func (c *ResponseCollector) process(pc *PendingCall) {
	res := pc.Result()
	c.counters.Completed.Inc()
	if res.Err != nil {
		c.counters.Errors.Inc()
		c.errLogger.Debug("call failed", log.Uint64("seq", res.Seq), log.Int("conn", res.Conn), log.Error(res.Err))
	}
	c.latencies.Record(res.Latency)
	c.metrics.ObserveCall(status.Code(res.Err), res.Latency)
	c.gate.Release()
	c.metrics.SetInflight(c.gate.InUse())
}
