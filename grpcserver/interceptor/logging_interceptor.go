/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/acronis/grpc-backpressure-lab/log"
)

const headerUserAgentKey = "user-agent"

const defaultSlowCallThreshold = 1 * time.Second

// CustomLoggerProvider returns a custom logger or nil based on the gRPC context and method info.
type CustomLoggerProvider func(ctx context.Context, info *grpc.UnaryServerInfo) log.FieldLogger

// LoggingOption represents a configuration option for the logging interceptor.
type LoggingOption func(*loggingOptions)

type loggingOptions struct {
	callStart            bool
	callHeaders          map[string]string
	excludedMethods      []string
	addCallInfoToLogger  bool
	slowCallThreshold    time.Duration
	customLoggerProvider CustomLoggerProvider
}

// WithLoggingCallStart enables logging of call start events.
func WithLoggingCallStart(logCallStart bool) LoggingOption {
	return func(opts *loggingOptions) {
		opts.callStart = logCallStart
	}
}

// WithLoggingCallHeaders specifies custom headers to log from gRPC metadata.
func WithLoggingCallHeaders(headers map[string]string) LoggingOption {
	return func(opts *loggingOptions) {
		opts.callHeaders = headers
	}
}

// WithLoggingExcludedMethods specifies gRPC methods to exclude from logging.
// Calls of the excluded methods are still logged if they finish with a non-OK code.
func WithLoggingExcludedMethods(methods ...string) LoggingOption {
	return func(opts *loggingOptions) {
		opts.excludedMethods = methods
	}
}

// WithLoggingAddCallInfoToLogger adds call information to the logger context.
func WithLoggingAddCallInfoToLogger(addCallInfo bool) LoggingOption {
	return func(opts *loggingOptions) {
		opts.addCallInfoToLogger = addCallInfo
	}
}

// WithLoggingSlowCallThreshold sets the threshold for slow call detection.
func WithLoggingSlowCallThreshold(threshold time.Duration) LoggingOption {
	return func(opts *loggingOptions) {
		opts.slowCallThreshold = threshold
	}
}

// WithLoggingCustomLoggerProvider sets a custom logger provider function.
func WithLoggingCustomLoggerProvider(provider CustomLoggerProvider) LoggingOption {
	return func(opts *loggingOptions) {
		opts.customLoggerProvider = provider
	}
}

// LoggingUnaryInterceptor is a gRPC unary interceptor that logs the start and end of each RPC call.
// The call's logger and LoggingParams are put into the context for the next handlers.
func LoggingUnaryInterceptor(logger log.FieldLogger, options ...LoggingOption) grpc.UnaryServerInterceptor {
	opts := &loggingOptions{slowCallThreshold: defaultSlowCallThreshold}
	for _, option := range options {
		option(opts)
	}
	return func(
		ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (interface{}, error) {
		startTime := GetCallStartTimeFromContext(ctx)
		if startTime.IsZero() {
			startTime = time.Now()
			ctx = NewContextWithCallStartTime(ctx, startTime)
		}

		callLogger, nextLogger := makeCallLoggers(ctx, logger, info, opts)
		excluded := isMethodExcluded(info.FullMethod, opts.excludedMethods)
		if opts.callStart && !excluded {
			callLogger.Info("gRPC call started")
		}

		lp := &LoggingParams{}
		resp, err := handler(NewContextWithLoggingParams(NewContextWithLogger(ctx, nextLogger), lp), req)

		if code := status.Code(err); !excluded || code != codes.OK {
			duration := time.Since(startTime)
			callLogger.Info(fmt.Sprintf("gRPC call finished in %.3fs", duration.Seconds()),
				callFinishedFields(code, err, duration, lp, opts.slowCallThreshold)...)
		}
		return resp, err
	}
}

// makeCallLoggers returns the logger for the start/finish entries and the one passed down the chain.
// The latter has only request IDs unless call info is requested for it too.
func makeCallLoggers(
	ctx context.Context, logger log.FieldLogger, info *grpc.UnaryServerInfo, opts *loggingOptions,
) (callLogger, nextLogger log.FieldLogger) {
	if opts.customLoggerProvider != nil {
		if l := opts.customLoggerProvider(ctx, info); l != nil {
			logger = l
		}
	}
	nextLogger = logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	callLogger = nextLogger.With(callInfoFields(ctx, info.FullMethod, opts.callHeaders)...)
	if opts.addCallInfoToLogger {
		nextLogger = callLogger
	}
	return callLogger, nextLogger
}

func callFinishedFields(
	code codes.Code, err error, duration time.Duration, lp *LoggingParams, slowCallThreshold time.Duration,
) []log.Field {
	fields := []log.Field{log.String("grpc_code", code.String()), log.DurationMs("duration_ms", duration)}
	if err != nil {
		fields = append(fields, log.String("grpc_error", err.Error()))
	}
	fields = append(fields, lp.getFields()...)
	if duration >= slowCallThreshold {
		fields = append(fields, log.Bool("slow_request", true), log.Object("time_slots", lp.getTimeSlots()))
	}
	return fields
}

func callInfoFields(ctx context.Context, fullMethod string, headers map[string]string) []log.Field {
	service, method := splitFullMethodName(fullMethod)
	md, _ := metadata.FromIncomingContext(ctx)
	fields := []log.Field{
		log.String("grpc_service", service),
		log.String("grpc_method", method),
		log.String("user_agent", firstMetadataValue(md, headerUserAgentKey)),
	}
	fields = append(fields, peerFields(ctx)...)
	for headerName, logKey := range headers {
		if v := firstMetadataValue(md, headerName); v != "" {
			fields = append(fields, log.String(logKey, v))
		}
	}
	return fields
}

// peerFields always has remote_addr. The IP and port are added only if the address is host:port.
func peerFields(ctx context.Context) []log.Field {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return []log.Field{log.String("remote_addr", "")}
	}
	addr := p.Addr.String()
	fields := []log.Field{log.String("remote_addr", addr)}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return fields
	}
	fields = append(fields, log.String("remote_addr_ip", host))
	if port, pErr := strconv.ParseUint(portStr, 10, 16); pErr == nil && port != 0 {
		fields = append(fields, log.Uint64("remote_addr_port", port))
	}
	return fields
}

func firstMetadataValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
