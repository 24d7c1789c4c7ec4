/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/acronis/grpc-backpressure-lab/internal/admission"
	"github.com/acronis/grpc-backpressure-lab/log"
)

// AdmissionQueueTimeSlot is the name of the time slot where the time spent in the admission queue is accumulated.
const AdmissionQueueTimeSlot = "admission_queue"

// ErrServerSaturated is returned when the call is rejected by the admission controller.
var ErrServerSaturated = status.Error(codes.ResourceExhausted, "server saturated (queue full)")

// Admitter decides whether the task may be executed.
type Admitter interface {
	Submit(task admission.Task) admission.Decision
}

// AdmissionOption represents a configuration option for the admission interceptor.
type AdmissionOption func(*admissionOptions)

type admissionOptions struct {
	excludedMethods []string
	rejectLogPeriod time.Duration
}

// WithAdmissionExcludedMethods specifies gRPC methods that bypass admission control (e.g. health checks).
func WithAdmissionExcludedMethods(methods ...string) AdmissionOption {
	return func(opts *admissionOptions) {
		opts.excludedMethods = append(opts.excludedMethods, methods...)
	}
}

// WithAdmissionRejectLogPeriod sets the minimal period between debug log entries about rejected calls.
func WithAdmissionRejectLogPeriod(period time.Duration) AdmissionOption {
	return func(opts *admissionOptions) {
		opts.rejectLogPeriod = period
	}
}

type admissionResult struct {
	resp interface{}
	err  error
}

// AdmissionUnaryInterceptor is a gRPC unary interceptor that runs the handler as a task of the admission controller.
// If the controller rejects the task, the call fails immediately with ResourceExhausted.
// Accepted calls wait for the handler result or for their context to be done.
// A worker that picks up the task of the already canceled call doesn't run the handler.
func AdmissionUnaryInterceptor(admitter Admitter, options ...AdmissionOption) grpc.UnaryServerInterceptor {
	opts := &admissionOptions{rejectLogPeriod: time.Second}
	for _, option := range options {
		option(opts)
	}
	rejectLogSampler := &rate.Sometimes{Interval: opts.rejectLogPeriod}

	return func(
		ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (interface{}, error) {
		if isMethodExcluded(info.FullMethod, opts.excludedMethods) {
			return handler(ctx, req)
		}

		submittedAt := time.Now()
		done := make(chan admissionResult, 1)
		task := admission.TaskFunc(func() {
			timeSlotFromContext(ctx, AdmissionQueueTimeSlot, time.Since(submittedAt))
			if ctxErr := ctx.Err(); ctxErr != nil {
				done <- admissionResult{err: status.FromContextError(ctxErr).Err()}
				return
			}
			done <- runAdmittedHandler(ctx, req, info.FullMethod, handler)
		})

		if admitter.Submit(task) == admission.Rejected {
			if lp := GetLoggingParamsFromContext(ctx); lp != nil {
				lp.ExtendFields(log.Bool("admission_rejected", true))
			}
			if logger := GetLoggerFromContext(ctx); logger != nil {
				rejectLogSampler.Do(func() {
					logger.Debug("gRPC call rejected, server is saturated", log.String("grpc_method", info.FullMethod))
				})
			}
			return nil, ErrServerSaturated
		}

		select {
		case res := <-done:
			return res.resp, res.err
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
}

// runAdmittedHandler runs the handler on the worker goroutine.
// Panics don't reach the interceptors up the chain from here, so they are converted to Internal error.
func runAdmittedHandler(
	ctx context.Context, req interface{}, method string, handler grpc.UnaryHandler,
) (res admissionResult) {
	defer func() {
		if p := recover(); p != nil {
			logPanic(ctx, method, p, RecoveryDefaultStackSize)
			res = admissionResult{err: InternalError}
		}
	}()
	res.resp, res.err = handler(ctx, req)
	return res
}
