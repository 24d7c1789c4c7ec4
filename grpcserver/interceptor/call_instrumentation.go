/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/acronis/grpc-backpressure-lab/internal/appinfo"
)

const (
	callMetricsLabelService = "service"
	callMetricsLabelMethod  = "method"
	callMetricsLabelStatus  = "status"
)

// CallInfo identifies the instrumented call.
type CallInfo struct {
	Service string
	Method  string
}

// MetricsCollector is an interface for collecting metrics for incoming gRPC calls.
type MetricsCollector interface {
	// IncRequests increments the counter of received calls.
	IncRequests(callInfo CallInfo)

	// IncInFlightCalls increments the gauge of in-flight calls.
	IncInFlightCalls(callInfo CallInfo)

	// DecInFlightCalls decrements the gauge of in-flight calls.
	DecInFlightCalls(callInfo CallInfo)

	// ObserveCallFinish observes the latency of the call by its status code and counts non-OK calls as errors.
	ObserveCallFinish(callInfo CallInfo, code codes.Code, latency time.Duration)
}

// DefaultLatencyBuckets are the default buckets (in milliseconds) of the call latency histogram.
var DefaultLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 200, 500, 1000, 2000}

// PrometheusOption is a function type for configuring the metrics collector.
type PrometheusOption func(*prometheusOptions)

type prometheusOptions struct {
	namespace      string
	latencyBuckets []float64
	constLabels    prometheus.Labels
}

// WithPrometheusNamespace sets the namespace for metrics.
func WithPrometheusNamespace(namespace string) PrometheusOption {
	return func(c *prometheusOptions) {
		c.namespace = namespace
	}
}

// WithPrometheusLatencyBuckets sets the buckets (in milliseconds) for the latency histogram.
func WithPrometheusLatencyBuckets(buckets []float64) PrometheusOption {
	return func(c *prometheusOptions) {
		c.latencyBuckets = buckets
	}
}

// WithPrometheusConstLabels sets constant labels that will be applied to all metrics.
func WithPrometheusConstLabels(labels prometheus.Labels) PrometheusOption {
	return func(c *prometheusOptions) {
		c.constLabels = labels
	}
}

// PrometheusMetrics represents collector of metrics for incoming gRPC calls.
type PrometheusMetrics struct {
	Requests *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetrics(opts ...PrometheusOption) *PrometheusMetrics {
	config := &prometheusOptions{latencyBuckets: DefaultLatencyBuckets}
	for _, opt := range opts {
		opt(config)
	}
	constLabels := appinfo.AddPrometheusVersionLabel(config.constLabels)

	return &PrometheusMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.namespace,
			Name:        "grpc_server_requests_total",
			Help:        "Total number of received gRPC calls.",
			ConstLabels: constLabels,
		}, []string{callMetricsLabelService, callMetricsLabelMethod}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.namespace,
			Name:        "grpc_server_errors_total",
			Help:        "Total number of gRPC calls finished with non-OK status.",
			ConstLabels: constLabels,
		}, []string{callMetricsLabelService, callMetricsLabelMethod, callMetricsLabelStatus}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.namespace,
			Name:        "grpc_server_latency_ms",
			Help:        "A histogram of the gRPC call latencies in milliseconds.",
			Buckets:     config.latencyBuckets,
			ConstLabels: constLabels,
		}, []string{callMetricsLabelService, callMetricsLabelMethod, callMetricsLabelStatus}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.namespace,
			Name:        "grpc_server_inflight",
			Help:        "Current number of gRPC calls being served.",
			ConstLabels: constLabels,
		}, []string{callMetricsLabelService, callMetricsLabelMethod}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Requests, pm.Errors, pm.Latency, pm.InFlight)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.InFlight)
	prometheus.Unregister(pm.Latency)
	prometheus.Unregister(pm.Errors)
	prometheus.Unregister(pm.Requests)
}

// IncRequests increments the counter of received calls.
func (pm *PrometheusMetrics) IncRequests(callInfo CallInfo) {
	pm.Requests.WithLabelValues(callInfo.Service, callInfo.Method).Inc()
}

// IncInFlightCalls increments the gauge of in-flight calls.
func (pm *PrometheusMetrics) IncInFlightCalls(callInfo CallInfo) {
	pm.InFlight.WithLabelValues(callInfo.Service, callInfo.Method).Inc()
}

// DecInFlightCalls decrements the gauge of in-flight calls.
func (pm *PrometheusMetrics) DecInFlightCalls(callInfo CallInfo) {
	pm.InFlight.WithLabelValues(callInfo.Service, callInfo.Method).Dec()
}

// ObserveCallFinish observes the latency of the call by its status code and counts non-OK calls as errors.
func (pm *PrometheusMetrics) ObserveCallFinish(callInfo CallInfo, code codes.Code, latency time.Duration) {
	pm.Latency.WithLabelValues(callInfo.Service, callInfo.Method, code.String()).
		Observe(float64(latency.Microseconds()) / 1000)
	if code != codes.OK {
		pm.Errors.WithLabelValues(callInfo.Service, callInfo.Method, code.String()).Inc()
	}
}

// CallRecord tracks the instrumentation state of the single call.
// The call may be closed by the normal completion, by an error or by the cancellation of its context,
// whichever happens first. Subsequent closes are no-ops.
type CallRecord struct {
	Info      CallInfo
	StartTime time.Time

	collector MetricsCollector
	closed    atomic.Bool
	code      atomic.Uint32
}

// NewCallRecord starts the instrumentation of the call: the requests counter and the in-flight gauge are incremented.
func NewCallRecord(collector MetricsCollector, info CallInfo, startTime time.Time) *CallRecord {
	collector.IncRequests(info)
	collector.IncInFlightCalls(info)
	return &CallRecord{Info: info, StartTime: startTime, collector: collector}
}

// Close finishes the instrumentation of the call with the given code.
// It reports whether this invocation was the one that closed the record.
func (r *CallRecord) Close(code codes.Code) bool {
	if !r.closed.CompareAndSwap(false, true) {
		return false
	}
	r.code.Store(uint32(code))
	r.collector.ObserveCallFinish(r.Info, code, time.Since(r.StartTime))
	r.collector.DecInFlightCalls(r.Info)
	return true
}

// Closed reports whether the record is already closed.
func (r *CallRecord) Closed() bool {
	return r.closed.Load()
}

// Code returns the code the record was closed with. It's meaningful only when Closed returns true.
func (r *CallRecord) Code() codes.Code {
	return codes.Code(r.code.Load())
}

// CallInstrumentationOption is a function type for configuring the call instrumentation interceptor.
type CallInstrumentationOption func(*callInstrumentationOptions)

type callInstrumentationOptions struct {
	excludedMethods []string
}

// WithCallInstrumentationExcludedMethods returns an option that excludes the specified methods from instrumentation.
func WithCallInstrumentationExcludedMethods(methods ...string) CallInstrumentationOption {
	return func(c *callInstrumentationOptions) {
		c.excludedMethods = append(c.excludedMethods, methods...)
	}
}

// CallInstrumentationUnaryInterceptor is an interceptor that collects metrics for incoming gRPC calls.
// The in-flight gauge is decremented exactly once per call, even if the call's context is canceled
// while the handler is still waiting for admission or running.
func CallInstrumentationUnaryInterceptor(
	collector MetricsCollector, options ...CallInstrumentationOption,
) grpc.UnaryServerInterceptor {
	opts := &callInstrumentationOptions{}
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
			ctx = NewContextWithCallStartTime(ctx, startTime)
		}
		service, method := splitFullMethodName(info.FullMethod)
		record := NewCallRecord(collector, CallInfo{Service: service, Method: method}, startTime)
		ctx = NewContextWithCallRecord(ctx, record)

		stopCancelWatch := context.AfterFunc(ctx, func() {
			record.Close(status.FromContextError(ctx.Err()).Code())
		})
		defer func() {
			stopCancelWatch()
			if p := recover(); p != nil {
				record.Close(codes.Internal)
				panic(p)
			}
			record.Close(getCodeFromError(err))
		}()

		return handler(ctx, req)
	}
}

func getCodeFromError(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	s, ok := status.FromError(err)
	if !ok {
		s = status.FromContextError(err)
	}
	return s.Code()
}
