/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/acronis/grpc-backpressure-lab/grpcserver/interceptor"
	"github.com/acronis/grpc-backpressure-lab/internal/hello"
	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
)

// fakeConn serves HelloService calls in-process. If block is set, calls wait for it to be closed or for their deadline.
type fakeConn struct {
	svc   *hello.Service
	block chan struct{}

	mu     sync.Mutex
	names  []string
	reqIDs []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{svc: hello.NewService(nil)}
}

func newFakeConns(n int) ([]*fakeConn, []grpc.ClientConnInterface) {
	fakes := make([]*fakeConn, n)
	conns := make([]grpc.ClientConnInterface, n)
	for i := range fakes {
		fakes[i] = newFakeConn()
		conns[i] = fakes[i]
	}
	return fakes, conns
}

func (c *fakeConn) Invoke(ctx context.Context, method string, args, reply interface{}, _ ...grpc.CallOption) error {
	if method != hellopb.SayHelloFullMethodName {
		return status.Error(codes.Unimplemented, fmt.Sprintf("unknown method %s", method))
	}
	req := args.(*wrapperspb.StringValue)

	c.mu.Lock()
	c.names = append(c.names, req.GetValue())
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		c.reqIDs = append(c.reqIDs, md.Get(interceptor.HeaderRequestIDKey)...)
	}
	c.mu.Unlock()

	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
	}

	resp, err := c.svc.SayHello(ctx, req)
	if err != nil {
		return err
	}
	reply.(*wrapperspb.StringValue).Value = resp.GetValue()
	return nil
}

func (c *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, status.Error(codes.Unimplemented, "streams are not supported")
}

func (c *fakeConn) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

func (c *fakeConn) sentNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func (c *fakeConn) sentRequestIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.reqIDs...)
}

// collectFunc adapts a function to ResultHandler.
type collectFunc func(pc *PendingCall)

func (f collectFunc) Collect(pc *PendingCall) {
	f(pc)
}
