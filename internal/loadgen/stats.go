/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// StatsReporter logs a snapshot of the counters every time it runs.
// It only reads the counters and is meant to be wrapped into service.PeriodicWorker.
type StatsReporter struct {
	counters  *Counters
	gate      *InflightGate
	latencies *LatencyRecorder
	logger    log.FieldLogger
}

// NewStatsReporter creates a new StatsReporter.
func NewStatsReporter(counters *Counters, gate *InflightGate, latencies *LatencyRecorder, logger log.FieldLogger) *StatsReporter {
	return &StatsReporter{counters: counters, gate: gate, latencies: latencies, logger: logger}
}

// Snapshot returns the current counters with the latency percentiles of the running phase.
func (sr *StatsReporter) Snapshot() StatsSnapshot {
	snap := sr.counters.Snapshot(sr.gate)
	if sr.latencies != nil {
		snap.Latency = sr.latencies.Summary()
	}
	return snap
}

// Run logs the snapshot. It implements service.Worker.
func (sr *StatsReporter) Run(_ context.Context) error {
	snap := sr.Snapshot()
	sr.logger.Info(snap.String(),
		log.Uint64("sent", snap.Sent),
		log.Uint64("completed", snap.Completed),
		log.Uint64("errors", snap.Errors),
		log.Int("inflight", snap.Inflight),
		log.Uint64("rejected_by_cap", snap.RejectedByCap),
		log.Object("latency", snap.Latency),
	)
	return nil
}
