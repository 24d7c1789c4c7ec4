/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package hello implements hello.HelloService.
package hello

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
)

// FailMarker is the name that makes the service fail with InvalidArgument deterministically.
const FailMarker = "fail"

// ErrForcedFailure is returned for FailMarker requests.
var ErrForcedFailure = status.Error(codes.InvalidArgument, "forced failure")

// Service implements hellopb.HelloServiceServer.
type Service struct {
	hellopb.UnimplementedHelloServiceServer
	work WorkSimulator
}

var _ hellopb.HelloServiceServer = (*Service)(nil)

// NewService creates a new Service that simulates the given work for every served call.
func NewService(work WorkSimulator) *Service {
	if work == nil {
		work = NoWork{}
	}
	return &Service{work: work}
}

// SayHello greets the caller.
func (s *Service) SayHello(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	name := req.GetValue()
	if name == FailMarker {
		return nil, ErrForcedFailure
	}
	s.work.SimulateWork(ctx)
	return wrapperspb.String("Hello, " + name), nil
}
