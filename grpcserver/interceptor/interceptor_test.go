/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
)

type sayHelloHandler func(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error)

type testService struct {
	hellopb.UnimplementedHelloServiceServer
	mu      sync.Mutex
	lastCtx context.Context
	handler sayHelloHandler
}

func (s *testService) SayHello(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	s.mu.Lock()
	s.lastCtx = ctx
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		return handler(ctx, req)
	}
	return wrapperspb.String("Hello, " + req.GetValue()), nil
}

func (s *testService) SwitchHandler(handler sayHelloHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *testService) LastContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCtx
}

func (s *testService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCtx = nil
	s.handler = nil
}

func startTestService(
	serverOpts []grpc.ServerOption,
	dialOpts []grpc.DialOption,
) (svc *testService, client hellopb.HelloServiceClient, closeFn func() error, err error) {
	svc = &testService{}
	var clientConn *grpc.ClientConn
	if _, clientConn, closeFn, err = newTestServerAndClient(serverOpts, dialOpts, func(s *grpc.Server) {
		hellopb.RegisterHelloServiceServer(s, svc)
	}); err != nil {
		return nil, nil, nil, err
	}
	return svc, hellopb.NewHelloServiceClient(clientConn), closeFn, nil
}

func newTestServerAndClient(
	serverOpts []grpc.ServerOption, dialOpts []grpc.DialOption, registerFn func(s *grpc.Server),
) (server *grpc.Server, clientConn *grpc.ClientConn, closeFn func() error, err error) {
	srv := grpc.NewServer(serverOpts...)
	registerFn(srv)
	ln, lnErr := net.Listen("tcp", "localhost:0")
	if lnErr != nil {
		return nil, nil, nil, fmt.Errorf("listen: %w", lnErr)
	}
	serveResult := make(chan error)
	go func() {
		serveResult <- srv.Serve(ln)
	}()
	defer func() {
		if err != nil {
			srv.Stop()
			if srvErr := <-serveResult; srvErr != nil {
				err = fmt.Errorf("serve: %w; %w", srvErr, err)
			}
		}
	}()

	clientConn, dialErr := grpc.NewClient(ln.Addr().String(),
		append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))...,
	)
	if dialErr != nil {
		return nil, nil, nil, fmt.Errorf("dial: %w", dialErr)
	}
	return srv, clientConn, func() error {
		mErr := clientConn.Close()
		srv.GracefulStop()
		return errors.Join(mErr, <-serveResult)
	}, nil
}
