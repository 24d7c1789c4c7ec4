/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package hellopb contains gRPC bindings of the hello.HelloService described in hello.proto.
// Messages are the well-known google.protobuf.StringValue, so only the service glue lives here.
package hellopb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Names of the service and its methods as they go over the wire.
const (
	ServiceName            = "hello.HelloService"
	SayHelloMethodName     = "SayHello"
	SayHelloFullMethodName = "/" + ServiceName + "/" + SayHelloMethodName
)

// HelloServiceClient is the client API for HelloService.
type HelloServiceClient interface {
	SayHello(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type helloServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewHelloServiceClient creates a new HelloServiceClient over the given connection.
func NewHelloServiceClient(cc grpc.ClientConnInterface) HelloServiceClient {
	return &helloServiceClient{cc}
}

func (c *helloServiceClient) SayHello(
	ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption,
) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, SayHelloFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// HelloServiceServer is the server API for HelloService.
type HelloServiceServer interface {
	SayHello(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// UnimplementedHelloServiceServer may be embedded to have forward compatible implementations.
type UnimplementedHelloServiceServer struct{}

// SayHello returns Unimplemented status.
func (UnimplementedHelloServiceServer) SayHello(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", SayHelloMethodName)
}

// RegisterHelloServiceServer registers the HelloService implementation in the gRPC server.
func RegisterHelloServiceServer(s grpc.ServiceRegistrar, srv HelloServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func sayHelloHandler(
	srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(HelloServiceServer).SayHello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SayHelloFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(HelloServiceServer).SayHello(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for HelloService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HelloServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: SayHelloMethodName,
			Handler:    sayHelloHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hello.proto",
}
