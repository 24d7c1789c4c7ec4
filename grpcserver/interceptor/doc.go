/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package interceptor provides gRPC unary server interceptors for request ID handling, logging,
// panic recovery, exactly-once call instrumentation, limiter sampling and admission control.
package interceptor
