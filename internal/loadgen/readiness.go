/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/acronis/grpc-backpressure-lab/config"
	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
	"github.com/acronis/grpc-backpressure-lab/log"
	"github.com/acronis/grpc-backpressure-lab/retry"
)

// Readiness retry policies.
const (
	ReadinessPolicyConstant    = "constant"
	ReadinessPolicyExponential = "exponential"
)

// ReadinessConfig describes how the target is probed before the first phase.
type ReadinessConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Policy  string `mapstructure:"policy" yaml:"policy" json:"policy"`
	// Interval is the constant delay or the initial one for the exponential policy.
	Interval     config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
	MaxAttempts  int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	ProbeTimeout config.TimeDuration `mapstructure:"probeTimeout" yaml:"probeTimeout" json:"probeTimeout"`
}

// RetryPolicy returns the policy allowing MaxAttempts probes in total (zero means probing until ctx is done).
func (c ReadinessConfig) RetryPolicy() retry.Policy {
	if c.MaxAttempts == 1 {
		return retry.NoRetryPolicy
	}
	maxRetries := 0
	if c.MaxAttempts > 1 {
		maxRetries = c.MaxAttempts - 1
	}
	if c.Policy == ReadinessPolicyExponential {
		return retry.NewExponentialBackoffPolicy(c.Interval.Duration(), maxRetries)
	}
	return retry.NewConstantBackoffPolicy(c.Interval.Duration(), maxRetries)
}

// WaitReady probes every connection concurrently until the HelloService reports SERVING on all of them.
// A target without the health service is considered ready as soon as it answers.
func WaitReady(ctx context.Context, conns []grpc.ClientConnInterface, cfg ReadinessConfig, logger log.FieldLogger) error {
	if !cfg.Enabled {
		return nil
	}
	policy := cfg.RetryPolicy()
	eg, egCtx := errgroup.WithContext(ctx)
	for i, conn := range conns {
		client := healthpb.NewHealthClient(conn)
		connLogger := logger.With(log.Int("conn", i))
		eg.Go(func() error {
			// A probe failing because the wait itself is over is not retried.
			isRetryable := func(error) bool { return egCtx.Err() == nil }
			notify := func(err error, attempt int, delay time.Duration) {
				connLogger.Warn("target is not ready yet, retrying",
					log.Error(err), log.Int("attempt", attempt), log.Duration("delay", delay))
			}
			err := retry.DoWithRetry(egCtx, policy, isRetryable, notify, func(ctx context.Context) error {
				return probe(ctx, client, cfg.ProbeTimeout.Duration())
			})
			if err != nil {
				return fmt.Errorf("wait for connection %d to get ready: %w", i, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("target is ready", log.Int("connections", len(conns)))
	return nil
}

func probe(ctx context.Context, client healthpb.HealthClient, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: hellopb.ServiceName})
	if err != nil {
		if status.Code(err) == codes.Unimplemented {
			return nil
		}
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("service %s is %s", hellopb.ServiceName, resp.GetStatus())
	}
	return nil
}
