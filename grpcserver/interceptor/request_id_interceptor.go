/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"context"

	"github.com/rs/xid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Metadata keys for request IDs. The load generator sends HeaderRequestIDKey with every call.
const (
	HeaderRequestIDKey         = "x-request-id"
	HeaderRequestInternalIDKey = "x-int-request-id"
)

// MaxRequestIDLength is the maximal length of the request ID accepted from the client.
// Longer IDs (and IDs with non-printable characters) are replaced by generated ones.
const MaxRequestIDLength = 128

type requestIDOptions struct {
	generateID         func() string
	generateInternalID func() string
}

// RequestIDOption is a function type for configuring RequestIDUnaryInterceptor.
type RequestIDOption func(*requestIDOptions)

// WithRequestIDGenerator sets the function for generating request IDs when the client doesn't send a valid one.
func WithRequestIDGenerator(generator func() string) RequestIDOption {
	return func(opts *requestIDOptions) {
		opts.generateID = generator
	}
}

// WithInternalRequestIDGenerator sets the function for generating internal request IDs.
func WithInternalRequestIDGenerator(generator func() string) RequestIDOption {
	return func(opts *requestIDOptions) {
		opts.generateInternalID = generator
	}
}

func newXID() string {
	return xid.New().String()
}

// RequestIDUnaryInterceptor is a gRPC unary interceptor that takes the request ID from the incoming metadata
// (or generates a new one), generates the internal request ID, puts both into the context
// and sends them back to the client in the response header.
func RequestIDUnaryInterceptor(options ...RequestIDOption) grpc.UnaryServerInterceptor {
	opts := requestIDOptions{generateID: newXID, generateInternalID: newXID}
	for _, option := range options {
		option(&opts)
	}

	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID, ok := requestIDFromMetadata(ctx)
		if !ok {
			requestID = opts.generateID()
		}
		internalRequestID := opts.generateInternalID()

		if err := grpc.SetHeader(ctx, metadata.Pairs(
			HeaderRequestIDKey, requestID,
			HeaderRequestInternalIDKey, internalRequestID,
		)); err != nil {
			return nil, err
		}
		ctx = NewContextWithInternalRequestID(NewContextWithRequestID(ctx, requestID), internalRequestID)
		return handler(ctx, req)
	}
}

func requestIDFromMetadata(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(HeaderRequestIDKey)
	if len(values) == 0 || !isValidRequestID(values[0]) {
		return "", false
	}
	return values[0], true
}

func isValidRequestID(id string) bool {
	if id == "" || len(id) > MaxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
