/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package grpcserver provides a gRPC server implementation with built-in interceptors
// for logging, metrics, recovery, and request ID handling. Admission control and
// limiter sampling may be enabled with options. The server supports keepalive configuration
// and graceful shutdown.
package grpcserver
