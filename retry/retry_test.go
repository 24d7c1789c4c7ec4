/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errNotServing = errors.New("service hello.HelloService is NOT_SERVING")

type notifyCall struct {
	err     error
	attempt int
	delay   time.Duration
}

func TestDoWithRetry(t *testing.T) {
	errStartupFailed := errors.New("startup failed")
	tests := []struct {
		name         string
		policy       Policy
		isRetryable  IsRetryable
		failures     int
		failWith     error
		wantErr      error
		wantAttempts int
	}{
		{
			name:         "succeeds after retries",
			policy:       NewConstantBackoffPolicy(time.Millisecond, 5),
			failures:     2,
			failWith:     errNotServing,
			wantAttempts: 3,
		},
		{
			name:         "gives up after max retries",
			policy:       NewConstantBackoffPolicy(time.Millisecond, 2),
			failures:     10,
			failWith:     errNotServing,
			wantErr:      errNotServing,
			wantAttempts: 3,
		},
		{
			name:         "non-retryable error stops at once",
			policy:       NewConstantBackoffPolicy(time.Millisecond, 5),
			isRetryable:  func(err error) bool { return !errors.Is(err, errStartupFailed) },
			failures:     10,
			failWith:     errStartupFailed,
			wantErr:      errStartupFailed,
			wantAttempts: 1,
		},
		{
			name:         "no retry policy",
			policy:       NoRetryPolicy,
			failures:     10,
			failWith:     errNotServing,
			wantErr:      errNotServing,
			wantAttempts: 1,
		},
		{
			name:         "exponential policy",
			policy:       ExponentialBackoffPolicy{InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxRetries: 3},
			failures:     3,
			failWith:     errNotServing,
			wantAttempts: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			var notified []notifyCall
			err := DoWithRetry(context.Background(), tt.policy, tt.isRetryable,
				func(err error, attempt int, delay time.Duration) {
					notified = append(notified, notifyCall{err, attempt, delay})
				},
				func(context.Context) error {
					attempts++
					if attempts <= tt.failures {
						return tt.failWith
					}
					return nil
				})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantAttempts, attempts)
			require.Len(t, notified, tt.wantAttempts-1)
			for i, call := range notified {
				require.Equal(t, i+1, call.attempt)
				require.ErrorIs(t, call.err, tt.failWith)
			}
		})
	}
}

func TestDoWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := DoWithRetry(ctx, NewConstantBackoffPolicy(time.Millisecond, 0), nil, nil, func(context.Context) error {
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errNotServing
	})
	require.Error(t, err)
	require.Equal(t, 3, attempts)
}

func TestPolicies_NewBackOff(t *testing.T) {
	bf := NewConstantBackoffPolicy(200*time.Millisecond, 2).NewBackOff()
	require.Equal(t, 200*time.Millisecond, bf.NextBackOff())
	require.Equal(t, 200*time.Millisecond, bf.NextBackOff())
	require.Less(t, bf.NextBackOff(), time.Duration(0))

	bf = NewExponentialBackoffPolicy(200*time.Millisecond, 0).NewBackOff()
	first := bf.NextBackOff()
	require.Positive(t, first)
	require.LessOrEqual(t, first, 300*time.Millisecond)
	for i := 0; i < 50; i++ {
		require.Positive(t, bf.NextBackOff(), "exponential policy without max retries should never stop")
	}

	require.Less(t, NoRetryPolicy.NewBackOff().NextBackOff(), time.Duration(0))
}
