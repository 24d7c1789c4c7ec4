/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"fmt"

	"go.uber.org/atomic"
)

// Counters are the run-wide counters of the load generator.
// Sent is incremented for every tick that got a permit, so completed+outstanding == sent.
type Counters struct {
	Ticks         atomic.Uint64
	Sent          atomic.Uint64
	Completed     atomic.Uint64
	Errors        atomic.Uint64
	RejectedByCap atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Sent          uint64
	Completed     uint64
	Errors        uint64
	Inflight      int
	RejectedByCap uint64
	Latency       LatencySummary
}

// String returns the classic stats line.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("sent=%d completed=%d errors=%d inflight=%d rejectedByCap=%d",
		s.Sent, s.Completed, s.Errors, s.Inflight, s.RejectedByCap)
}

// Snapshot reads the counters. Completed is read before Sent,
// so the snapshot never shows more completed calls than sent ones.
func (c *Counters) Snapshot(gate *InflightGate) StatsSnapshot {
	completed := c.Completed.Load()
	return StatsSnapshot{
		Sent:          c.Sent.Load(),
		Completed:     completed,
		Errors:        c.Errors.Load(),
		Inflight:      gate.InUse(),
		RejectedByCap: c.RejectedByCap.Load(),
	}
}
