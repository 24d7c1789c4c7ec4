/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"sync"
	"time"

	"github.com/slok/goresilience/concurrencylimit/limit"
	"go.uber.org/atomic"
)

// InflightProvider returns the number of calls in progress at the moment.
type InflightProvider func() int

// ResilienceLimiter adapts limit algorithms of github.com/slok/goresilience to the Limiter interface.
// The algorithms are not safe for concurrent use, so a sample is fed to them only if no other one is
// being measured at the moment. A contended sample is skipped instead of waiting: reporting never blocks the call.
type ResilienceLimiter struct {
	name     string
	mu       sync.Mutex
	algo     limit.Limiter
	inflight InflightProvider
	current  atomic.Float64
	skipped  atomic.Uint64
	metrics  MetricsCollector
	now      func() time.Time
}

var _ Limiter = (*ResilienceLimiter)(nil)

// Opts contains optional parameters for constructing ResilienceLimiter.
type Opts struct {
	InflightProvider InflightProvider
	MetricsCollector MetricsCollector
}

// AIMDConfig is a configuration of the additive-increase/multiplicative-decrease limit algorithm.
type AIMDConfig struct {
	MinimumLimit int
	RTTTimeout   time.Duration
	BackoffRatio float64
}

// NewAIMD creates a limiter that grows the limit by one on every successful sample
// and shrinks it by BackoffRatio on failures or samples slower than RTTTimeout.
func NewAIMD(cfg AIMDConfig, opts Opts) *ResilienceLimiter {
	return newResilienceLimiter(AlgorithmAIMD, limit.NewAIMD(limit.AIMDConfig{
		MinimumLimit: cfg.MinimumLimit,
		RTTTimeout:   cfg.RTTTimeout,
		BackoffRatio: cfg.BackoffRatio,
	}), opts)
}

// NewStatic creates a limiter with the fixed limit. Samples are still observed by metrics.
func NewStatic(staticLimit int, opts Opts) *ResilienceLimiter {
	return newResilienceLimiter(AlgorithmStatic, limit.NewStatic(staticLimit), opts)
}

func newResilienceLimiter(name string, algo limit.Limiter, opts Opts) *ResilienceLimiter {
	if opts.InflightProvider == nil {
		opts.InflightProvider = func() int { return 0 }
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	l := &ResilienceLimiter{
		name:     name,
		algo:     algo,
		inflight: opts.InflightProvider,
		metrics:  opts.MetricsCollector,
		now:      time.Now,
	}
	l.current.Store(float64(algo.GetLimit()))
	l.metrics.SetLimit(name, l.current.Load())
	return l
}

// Name returns the name of the underlying algorithm.
func (l *ResilienceLimiter) Name() string {
	return l.name
}

// Report feeds the latency sample to the underlying algorithm. It never waits for concurrent reports.
func (l *ResilienceLimiter) Report(serviceID string, latency time.Duration, outcome Outcome) {
	l.metrics.ObserveSample(serviceID, latency, outcome)

	if !l.mu.TryLock() {
		l.skipped.Inc()
		return
	}
	newLimit := l.algo.MeasureSample(l.now().Add(-latency), l.inflight(), convertOutcome(outcome))
	l.mu.Unlock()

	l.current.Store(float64(newLimit))
	l.metrics.SetLimit(l.name, float64(newLimit))
}

// SkippedSamples returns the number of samples not fed to the algorithm because of a concurrent report.
func (l *ResilienceLimiter) SkippedSamples() uint64 {
	return l.skipped.Load()
}

// CurrentLimit returns the current estimate.
func (l *ResilienceLimiter) CurrentLimit() float64 {
	return l.current.Load()
}

func convertOutcome(outcome Outcome) limit.Result {
	switch outcome {
	case OutcomeSuccess:
		return limit.ResultSuccess
	case OutcomeFailure:
		return limit.ResultFailure
	}
	return limit.ResultIgnore
}
