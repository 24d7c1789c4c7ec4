/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry runs an operation until it succeeds, the policy gives up or the context is done.
// The load generator uses it to wait until the target is ready to serve.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable tells if the error is worth another attempt. A nil IsRetryable retries any error.
type IsRetryable func(error) bool

// RetryableFunc does some work that can be retried.
type RetryableFunc func(ctx context.Context) error

// Notify is called before every retry with the error of the failed attempt (1-based) and the delay before the next one.
type Notify func(err error, attempt int, delay time.Duration)

// Policy creates a fresh backoff for every DoWithRetry call.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry calls fn until it returns nil, a non-retryable error, the policy stops or ctx is done.
// The error of the last attempt is returned.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)
	attempt := 0
	op := func() error {
		attempt++
		err := fn(bctx.Context())
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var bnotify backoff.Notify
	if notify != nil {
		bnotify = func(err error, delay time.Duration) { notify(err, attempt, delay) }
	}
	return backoff.RetryNotify(op, bctx, bnotify)
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// NoRetryPolicy makes DoWithRetry call fn only once.
var NoRetryPolicy Policy = PolicyFunc(func() backoff.BackOff { return &backoff.StopBackOff{} })

func withMaxRetries(bf backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(maxRetries))
	}
	bf.Reset()
	return bf
}

// ExponentialBackoffPolicy retries with delays growing 1.5 times (with jitter) starting from the initial interval.
// Only the number of retries limits it, the elapsed time does not.
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
}

// NewExponentialBackoffPolicy creates an ExponentialBackoffPolicy. Zero maxRetries means retrying until ctx is done.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetries int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return withMaxRetries(eb, p.MaxRetries)
}

// ConstantBackoffPolicy retries with the same delay.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewConstantBackoffPolicy creates a ConstantBackoffPolicy. Zero maxRetries means retrying until ctx is done.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}
