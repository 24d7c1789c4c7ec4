/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/acronis/grpc-backpressure-lab/grpcserver/interceptor"
	"github.com/acronis/grpc-backpressure-lab/internal/hello"
	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
)

// DefaultName is the name sent in every call that is not marked to fail.
const DefaultName = "world"

// ResultHandler is notified about every terminal call outcome exactly once.
type ResultHandler interface {
	Collect(pc *PendingCall)
}

// DispatcherOpts represents options for Dispatcher.
type DispatcherOpts struct {
	// FailEvery makes every N-th call (by sequence number) carry the fault marker. 0 disables it.
	FailEvery uint64
	// DisableRequestID disables sending the x-request-id metadata.
	DisableRequestID bool
}

// Dispatcher issues HelloService calls asynchronously over a fixed set of connections.
type Dispatcher struct {
	clients []hellopb.HelloServiceClient
	handler ResultHandler
	opts    DispatcherOpts
}

// NewDispatcher creates a new Dispatcher. Results of all calls are passed to the handler.
func NewDispatcher(conns []grpc.ClientConnInterface, handler ResultHandler, opts DispatcherOpts) (*Dispatcher, error) {
	if len(conns) == 0 {
		return nil, fmt.Errorf("at least one connection is required")
	}
	clients := make([]hellopb.HelloServiceClient, 0, len(conns))
	for _, conn := range conns {
		clients = append(clients, hellopb.NewHelloServiceClient(conn))
	}
	return &Dispatcher{clients: clients, handler: handler, opts: opts}, nil
}

// Connections returns the number of connections calls are spread over.
func (d *Dispatcher) Connections() int {
	return len(d.clients)
}

// NameFor returns the name the call with the given sequence number carries.
func (d *Dispatcher) NameFor(seq uint64) string {
	if d.opts.FailEvery > 0 && seq%d.opts.FailEvery == 0 {
		return hello.FailMarker
	}
	return DefaultName
}

// ConnFor returns the index of the connection the call with the given sequence number is sent over.
func (d *Dispatcher) ConnFor(seq uint64) int {
	return int(seq % uint64(len(d.clients)))
}

// Dispatch sends the call with the given sequence number and returns immediately.
// The deadline is applied per call; ctx is used only for values, cancelling it
// does not abort calls that are already in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, seq uint64, deadline time.Duration) *PendingCall {
	connIdx := d.ConnFor(seq)
	pc := newPendingCall(seq, connIdx)
	req := wrapperspb.String(d.NameFor(seq))

	callCtx := context.WithoutCancel(ctx)
	if !d.opts.DisableRequestID {
		callCtx = metadata.AppendToOutgoingContext(callCtx, interceptor.HeaderRequestIDKey, xid.New().String())
	}

	go func() {
		var cancel context.CancelFunc
		if deadline > 0 {
			callCtx, cancel = context.WithTimeout(callCtx, deadline)
			defer cancel()
		}
		startTime := time.Now()
		reply, err := d.clients[connIdx].SayHello(callCtx, req)
		if pc.complete(CallResult{Seq: seq, Conn: connIdx, Reply: reply, Err: err, Latency: time.Since(startTime)}) {
			d.handler.Collect(pc)
		}
	}()

	return pc
}
