/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package hello

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/atomic"
)

// WorkMode defines how the per-call work is simulated.
type WorkMode string

// Work modes.
const (
	WorkModeSleep WorkMode = "sleep"
	WorkModeCPU   WorkMode = "cpu"
)

// ParseWorkMode parses the work mode case-insensitively.
func ParseWorkMode(s string) (WorkMode, error) {
	switch WorkMode(strings.ToLower(s)) {
	case WorkModeSleep:
		return WorkModeSleep, nil
	case WorkModeCPU:
		return WorkModeCPU, nil
	}
	return "", fmt.Errorf("unknown work mode %q", s)
}

// WorkSimulator simulates the work done while serving a call.
type WorkSimulator interface {
	SimulateWork(ctx context.Context)
}

// NewWorkSimulator creates a WorkSimulator for the given mode. Zero duration means no work at all.
func NewWorkSimulator(mode WorkMode, duration time.Duration) WorkSimulator {
	if duration <= 0 {
		return NoWork{}
	}
	if mode == WorkModeCPU {
		return &CPUWork{Duration: duration}
	}
	return &SleepWork{Duration: duration}
}

// NoWork returns immediately.
type NoWork struct{}

// SimulateWork does nothing.
func (NoWork) SimulateWork(context.Context) {}

// SleepWork blocks the calling goroutine for the Duration or until the context is done.
type SleepWork struct {
	Duration time.Duration
}

// SimulateWork sleeps.
func (w *SleepWork) SimulateWork(ctx context.Context) {
	timer := time.NewTimer(w.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// busyLoopSink is written only on a branch that is never taken,
// so the compiler has to keep the loop computing x.
var busyLoopSink atomic.Uint64

// CPUWork keeps the CPU busy for the Duration. The context is not checked, the work is bounded by Duration only.
type CPUWork struct {
	Duration time.Duration
}

// SimulateWork spins.
func (w *CPUWork) SimulateWork(context.Context) {
	deadline := time.Now().Add(w.Duration)
	var x uint64 = 1
	for time.Now().Before(deadline) {
		for i := 0; i < 1000; i++ {
			x ^= x << 13
			x ^= x >> 7
			x ^= x << 17
		}
	}
	if x == 0 { // xorshift never yields zero from a non-zero seed
		busyLoopSink.Store(x)
	}
}
