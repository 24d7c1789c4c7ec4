/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package interceptor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/grpc-backpressure-lab/internal/hellopb"
)

func TestSplitFullMethodName(t *testing.T) {
	tests := []struct {
		fullMethod  string
		wantService string
		wantMethod  string
	}{
		{hellopb.SayHelloFullMethodName, "hello.HelloService", "SayHello"},
		{"grpc.health.v1.Health/Check", "grpc.health.v1.Health", "Check"},
		{"/broken", "unknown", "unknown"},
		{"", "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.fullMethod, func(t *testing.T) {
			service, method := splitFullMethodName(tt.fullMethod)
			require.Equal(t, tt.wantService, service)
			require.Equal(t, tt.wantMethod, method)
		})
	}
}

func TestIsMethodExcluded(t *testing.T) {
	excluded := []string{"/grpc.health.v1.Health/Check"}
	require.True(t, isMethodExcluded("/grpc.health.v1.Health/Check", excluded))
	require.False(t, isMethodExcluded(hellopb.SayHelloFullMethodName, excluded))
	require.False(t, isMethodExcluded(hellopb.SayHelloFullMethodName, nil))
}
