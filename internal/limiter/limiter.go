/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package limiter provides adaptive concurrency limit estimators fed by latency samples of served calls.
// The estimate is advisory: it's observed and exported, admission decisions never depend on it.
package limiter

import (
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
)

// Outcome is a classification of the completed call for the limit estimator.
type Outcome int

// Call outcomes.
const (
	// OutcomeSuccess means the call was served normally.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the call signals overload (rejected, timed out or failed internally).
	OutcomeFailure
	// OutcomeIgnore means the sample tells nothing about the server capacity (e.g. canceled by the client).
	OutcomeIgnore
)

// String returns a string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeIgnore:
		return "ignore"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// OutcomeFromCode classifies the gRPC status code of the completed call.
func OutcomeFromCode(code codes.Code) Outcome {
	switch code {
	case codes.OK, codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition:
		return OutcomeSuccess
	case codes.ResourceExhausted, codes.DeadlineExceeded, codes.Unavailable, codes.Internal, codes.Unknown:
		return OutcomeFailure
	default:
		return OutcomeIgnore
	}
}

// Limiter estimates the concurrency limit of the server.
// Implementations must be safe for concurrent use and must not block.
type Limiter interface {
	// Report feeds the latency sample of the completed call.
	Report(serviceID string, latency time.Duration, outcome Outcome)

	// CurrentLimit returns the current estimate.
	CurrentLimit() float64
}

// Noop is a Limiter that ignores samples and reports zero limit.
type Noop struct{}

// Report does nothing.
func (Noop) Report(string, time.Duration, Outcome) {}

// CurrentLimit returns zero.
func (Noop) CurrentLimit() float64 {
	return 0
}
