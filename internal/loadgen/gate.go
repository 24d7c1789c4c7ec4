/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"fmt"

	"go.uber.org/atomic"
)

// InflightGate bounds the number of calls in flight. It never blocks.
type InflightGate struct {
	capacity  int64
	available atomic.Int64
}

// NewInflightGate creates a new InflightGate with the given number of permits.
func NewInflightGate(capacity int) (*InflightGate, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("inflight gate capacity should be positive, got %d", capacity)
	}
	g := &InflightGate{capacity: int64(capacity)}
	g.available.Store(int64(capacity))
	return g, nil
}

// TryAcquire takes a permit if any is available and reports whether it succeeded.
func (g *InflightGate) TryAcquire() bool {
	for {
		avail := g.available.Load()
		if avail == 0 {
			return false
		}
		if g.available.CompareAndSwap(avail, avail-1) {
			return true
		}
	}
}

// Release returns the permit. It must be called exactly once per successful TryAcquire.
func (g *InflightGate) Release() {
	for {
		avail := g.available.Load()
		if avail == g.capacity {
			panic("loadgen: inflight gate permit released more times than acquired")
		}
		if g.available.CompareAndSwap(avail, avail+1) {
			return
		}
	}
}

// Available returns the number of free permits.
func (g *InflightGate) Available() int {
	return int(g.available.Load())
}

// InUse returns the number of taken permits, i.e. calls in flight.
func (g *InflightGate) InUse() int {
	return int(g.capacity - g.available.Load())
}

// Capacity returns the total number of permits.
func (g *InflightGate) Capacity() int {
	return int(g.capacity)
}
