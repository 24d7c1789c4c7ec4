/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/ssgreg/logf"
)

const (
	minTrackableLatencyUs = 1
	maxTrackableLatencyUs = 60_000_000
	latencySigFigs        = 3
)

// LatencySummary holds latency percentiles of finished calls.
type LatencySummary struct {
	Count int64
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// EncodeLogfObject implements logf.ObjectEncoder.
func (s LatencySummary) EncodeLogfObject(e logf.FieldEncoder) error {
	e.EncodeFieldInt64("count", s.Count)
	e.EncodeFieldFloat64("p50_ms", durationToMs(s.P50))
	e.EncodeFieldFloat64("p90_ms", durationToMs(s.P90))
	e.EncodeFieldFloat64("p99_ms", durationToMs(s.P99))
	e.EncodeFieldFloat64("max_ms", durationToMs(s.Max))
	return nil
}

func durationToMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// LatencyRecorder records latencies into an HDR histogram with microsecond precision.
type LatencyRecorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewLatencyRecorder creates a new LatencyRecorder tracking latencies from 1µs to 60s.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{hist: hdrhistogram.New(minTrackableLatencyUs, maxTrackableLatencyUs, latencySigFigs)}
}

// Record records a single latency. Values out of the trackable range are clamped.
func (r *LatencyRecorder) Record(d time.Duration) {
	us := d.Microseconds()
	if us < minTrackableLatencyUs {
		us = minTrackableLatencyUs
	} else if us > maxTrackableLatencyUs {
		us = maxTrackableLatencyUs
	}
	r.mu.Lock()
	_ = r.hist.RecordValue(us)
	r.mu.Unlock()
}

// Summary returns the current percentiles.
func (r *LatencyRecorder) Summary() LatencySummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return LatencySummary{
		Count: r.hist.TotalCount(),
		P50:   time.Duration(r.hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(r.hist.ValueAtQuantile(90)) * time.Microsecond,
		P99:   time.Duration(r.hist.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(r.hist.Max()) * time.Microsecond,
	}
}

// Reset clears all recorded values.
func (r *LatencyRecorder) Reset() {
	r.mu.Lock()
	r.hist.Reset()
	r.mu.Unlock()
}
