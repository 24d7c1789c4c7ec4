/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CallResult is the terminal outcome of an issued call.
type CallResult struct {
	Seq     uint64
	Conn    int
	Reply   *wrapperspb.StringValue
	Err     error
	Latency time.Duration
}

// PendingCall is a future of an issued call. It is completed exactly once.
type PendingCall struct {
	Seq  uint64
	Conn int

	once   sync.Once
	done   chan struct{}
	result CallResult
}

func newPendingCall(seq uint64, conn int) *PendingCall {
	return &PendingCall{Seq: seq, Conn: conn, done: make(chan struct{})}
}

// complete stores the result and reports whether it was the first completion.
func (pc *PendingCall) complete(res CallResult) bool {
	completed := false
	pc.once.Do(func() {
		pc.result = res
		close(pc.done)
		completed = true
	})
	return completed
}

// Done returns a channel that is closed when the call reaches its terminal outcome.
func (pc *PendingCall) Done() <-chan struct{} {
	return pc.done
}

// Result returns the outcome. It must be called only after Done is closed.
func (pc *PendingCall) Result() CallResult {
	<-pc.done
	return pc.result
}

// Wait blocks until the call is completed or ctx is done.
func (pc *PendingCall) Wait(ctx context.Context) (CallResult, error) {
	select {
	case <-pc.done:
		return pc.result, nil
	case <-ctx.Done():
		return CallResult{}, ctx.Err()
	}
}
