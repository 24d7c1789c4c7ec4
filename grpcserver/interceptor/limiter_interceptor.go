/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/acronis/grpc-backpressure-lab/internal/limiter"
)

// LimiterSamplingOption represents a configuration option for the limiter sampling interceptor.
type LimiterSamplingOption func(*limiterSamplingOptions)

type limiterSamplingOptions struct {
	excludedMethods []string
}

// WithLimiterSamplingExcludedMethods specifies gRPC methods (e.g. health checks) that are not fed to the limiter.
func WithLimiterSamplingExcludedMethods(methods ...string) LimiterSamplingOption {
	return func(opts *limiterSamplingOptions) {
		opts.excludedMethods = append(opts.excludedMethods, methods...)
	}
}

// LimiterSamplingUnaryInterceptor is a gRPC unary interceptor that reports latency and outcome
// of every completed call to the limiter. The limiter is only fed here, it never affects the call.
func LimiterSamplingUnaryInterceptor(l limiter.Limiter, options ...LimiterSamplingOption) grpc.UnaryServerInterceptor {
	opts := &limiterSamplingOptions{}
	for _, option := range options {
		option(opts)
	}
	return func(
		ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		if isMethodExcluded(info.FullMethod, opts.excludedMethods) {
			return handler(ctx, req)
		}
		startTime := GetCallStartTimeFromContext(ctx)
		if startTime.IsZero() {
			startTime = time.Now()
		}
		service, _ := splitFullMethodName(info.FullMethod)
		defer func() {
			if p := recover(); p != nil {
				l.Report(service, time.Since(startTime), limiter.OutcomeFromCode(codes.Internal))
				panic(p)
			}
			l.Report(service, time.Since(startTime), limiter.OutcomeFromCode(getCodeFromError(err)))
		}()
		return handler(ctx, req)
	}
}
