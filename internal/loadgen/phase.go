/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/grpc-backpressure-lab/log"
)

const loopPhaseSuffix = "(loop)"

// Phase is a period of constant-rate load.
type Phase struct {
	Name     string        `mapstructure:"name" yaml:"name" json:"name"`
	Rate     int           `mapstructure:"rate" yaml:"rate" json:"rate"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration" json:"duration"`
	// Deadline is the per-call deadline. Zero means the default one.
	Deadline time.Duration `mapstructure:"deadline" yaml:"deadline" json:"deadline"`
}

// Runnable reports whether the phase issues any load. Phases with non-positive rate or duration are skipped.
func (p Phase) Runnable() bool {
	return p.Rate > 0 && p.Duration > 0
}

// validate doesn't check rate and duration: non-positive ones make the phase skipped.
func (p Phase) validate() error {
	if p.Name == "" {
		return fmt.Errorf("name should not be empty")
	}
	if p.Deadline < 0 {
		return fmt.Errorf("deadline should be >= 0, got %s", p.Deadline)
	}
	return nil
}

// PhaseResult summarizes a finished phase.
type PhaseResult struct {
	Phase         Phase
	Skipped       bool
	Ticks         uint64
	Dispatched    uint64
	RejectedByCap uint64
	Latency       LatencySummary
}

// PhaseRunnerOpts represents options for PhaseRunner.
type PhaseRunnerOpts struct {
	Logger           log.FieldLogger
	MetricsCollector MetricsCollector
	Latencies        *LatencyRecorder
	// Drain is how long to wait after a phase for outstanding calls before the next one starts.
	Drain time.Duration
	// DefaultDeadline is used for phases without their own deadline.
	DefaultDeadline time.Duration
}

// PhaseRunner runs phases: every tick takes a permit from the gate and dispatches a call, or is counted as rejected.
type PhaseRunner struct {
	dispatcher *Dispatcher
	gate       *InflightGate
	counters   *Counters
	latencies  *LatencyRecorder
	metrics    MetricsCollector
	logger     log.FieldLogger
	drain      time.Duration
	deadline   time.Duration
	dropLogger log.FieldLogger
}

// NewPhaseRunner creates a new PhaseRunner.
func NewPhaseRunner(dispatcher *Dispatcher, gate *InflightGate, counters *Counters, opts PhaseRunnerOpts) *PhaseRunner {
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.MetricsCollector == nil {
		opts.MetricsCollector = disabledMetrics{}
	}
	return &PhaseRunner{
		dispatcher: dispatcher,
		gate:       gate,
		counters:   counters,
		latencies:  opts.Latencies,
		metrics:    opts.MetricsCollector,
		logger:     opts.Logger,
		drain:      opts.Drain,
		deadline:   opts.DefaultDeadline,
		dropLogger: log.NewSampledLogger(opts.Logger, time.Second),
	}
}

// tick is called by the scheduler and must not block.
func (r *PhaseRunner) tick(ctx context.Context, deadline time.Duration) bool {
	r.counters.Ticks.Inc()
	if !r.gate.TryAcquire() {
		rejected := r.counters.RejectedByCap.Inc()
		r.metrics.ObserveTick(TickOutcomeRejectedByCap)
		r.dropLogger.Debug("tick dropped, inflight cap reached",
			log.Int("max_inflight", r.gate.Capacity()), log.Uint64("rejected_by_cap", rejected))
		return false
	}
	seq := r.counters.Sent.Inc()
	r.metrics.ObserveTick(TickOutcomeDispatched)
	r.metrics.SetInflight(r.gate.InUse())
	r.dispatcher.Dispatch(ctx, seq, deadline)
	return true
}

// Run runs a single phase: fires ticks at the phase rate until the phase duration elapses, then waits for the drain period.
// Stopping the phase does not cancel calls in flight, their deadlines terminate them.
func (r *PhaseRunner) Run(ctx context.Context, phase Phase) (PhaseResult, error) {
	result := PhaseResult{Phase: phase}
	if !phase.Runnable() {
		r.logger.Info(fmt.Sprintf("== phase skipped: %s ==", phase.Name),
			log.String("phase", phase.Name), log.Int("rps", phase.Rate), log.Duration("duration", phase.Duration))
		result.Skipped = true
		return result, nil
	}
	deadline := phase.Deadline
	if deadline <= 0 {
		deadline = r.deadline
	}

	r.logger.Info(fmt.Sprintf("== phase=%s rps=%d seconds=%d deadlineMs=%d maxInflight=%d channels=%d ==",
		phase.Name, phase.Rate, int64(phase.Duration/time.Second), deadline.Milliseconds(),
		r.gate.Capacity(), r.dispatcher.Connections()),
		log.String("phase", phase.Name), log.Int("rps", phase.Rate), log.Duration("duration", phase.Duration),
		log.DurationMs("deadline_ms", deadline))

	if r.latencies != nil {
		r.latencies.Reset()
	}

	var dispatched, rejected uint64
	schedule := StartSchedule(float64(phase.Rate), phase.Duration, func() {
		if r.tick(ctx, deadline) {
			dispatched++
		} else {
			rejected++
		}
	})

	select {
	case <-ctx.Done():
		schedule.Stop()
		return r.finishPhase(result, schedule, dispatched, rejected), ctx.Err()
	case <-schedule.Finished():
	}
	schedule.Stop()

	if r.drain > 0 {
		drainTimer := time.NewTimer(r.drain)
		defer drainTimer.Stop()
		select {
		case <-ctx.Done():
			return r.finishPhase(result, schedule, dispatched, rejected), ctx.Err()
		case <-drainTimer.C:
		}
	}

	result = r.finishPhase(result, schedule, dispatched, rejected)
	r.logger.Info(fmt.Sprintf("== phase done: %s ==", phase.Name),
		log.String("phase", phase.Name),
		log.Uint64("ticks", result.Ticks),
		log.Uint64("dispatched", result.Dispatched),
		log.Uint64("rejected_by_cap", result.RejectedByCap),
		log.Object("latency", result.Latency),
	)
	return result, nil
}

// finishPhase must be called after the schedule is stopped, so the tick counters are not written anymore.
func (r *PhaseRunner) finishPhase(result PhaseResult, schedule *Schedule, dispatched, rejected uint64) PhaseResult {
	result.Ticks = schedule.Ticks()
	result.Dispatched = dispatched
	result.RejectedByCap = rejected
	if r.latencies != nil {
		result.Latency = r.latencies.Summary()
	}
	return result
}

// RunScript runs the phases one after another.
// If loop is true, the first phase is then repeated until ctx is done.
// Cancellation of ctx is not reported as an error.
func (r *PhaseRunner) RunScript(ctx context.Context, phases []Phase, loop bool) error {
	for _, phase := range phases {
		if _, err := r.Run(ctx, phase); err != nil {
			return ignoreCanceled(ctx, err)
		}
	}
	if !loop || len(phases) == 0 {
		return nil
	}

	loopPhase := phases[0]
	loopPhase.Name += loopPhaseSuffix
	if !loopPhase.Runnable() {
		r.logger.Warn("loop phase issues no load, not looping", log.String("phase", loopPhase.Name))
		return nil
	}
	for ctx.Err() == nil {
		if _, err := r.Run(ctx, loopPhase); err != nil {
			return ignoreCanceled(ctx, err)
		}
	}
	return nil
}

func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return nil
	}
	return err
}
