/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"fmt"
	"runtime"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/acronis/grpc-backpressure-lab/log"
)

const (
	// RecoveryDefaultStackSize defines the default size of stack part which will be logged.
	RecoveryDefaultStackSize = 8192
)

// InternalError is returned instead of the response when the handler panics.
// The panic value is only logged and never sent to the client.
var InternalError = status.Error(codes.Internal, "Internal error")

// recoveryOptions represents options for RecoveryUnaryInterceptor.
type recoveryOptions struct {
	StackSize int
}

// RecoveryOption is a function type for configuring recoveryOptions.
type RecoveryOption func(*recoveryOptions)

// WithRecoveryStackSize sets the stack size for logging stack traces.
func WithRecoveryStackSize(size int) RecoveryOption {
	return func(opts *recoveryOptions) {
		opts.StackSize = size
	}
}

// RecoveryUnaryInterceptor is a gRPC unary interceptor that recovers from panics and returns Internal error.
// It should be placed after LoggingUnaryInterceptor in the chain, so the panic is logged with the call's logger.
func RecoveryUnaryInterceptor(options ...RecoveryOption) grpc.UnaryServerInterceptor {
	opts := recoveryOptions{
		StackSize: RecoveryDefaultStackSize,
	}
	for _, option := range options {
		option(&opts)
	}
	return func(
		ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if p := recover(); p != nil {
				logPanic(ctx, info.FullMethod, p, opts.StackSize)
				err = InternalError
			}
		}()
		return handler(ctx, req)
	}
}

// logPanic logs the recovered value with the part of the current goroutine's stack.
// Nothing is logged if the logger is not in the context.
func logPanic(ctx context.Context, method string, p interface{}, stackSize int) {
	logger := GetLoggerFromContext(ctx)
	if logger == nil {
		return
	}
	fields := []log.Field{log.String("grpc_method", method)}
	if stackSize > 0 {
		stack := make([]byte, stackSize)
		fields = append(fields, log.Bytes("stack", stack[:runtime.Stack(stack, false)]))
	}
	logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)
}
