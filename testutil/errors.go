/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type tHelper interface {
	Helper()
}

// RequireNoErrorInChannel asserts that there is no error in buffered channel.
// An empty channel is treated as no error.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	var err error
	select {
	case err = <-c:
	default:
	}
	require.NoError(t, err, msgAndArgs...)
}

// RequireStatusCode asserts that err carries the gRPC status with the given code.
// codes.OK requires err to be nil.
func RequireStatusCode(t require.TestingT, err error, wantCode codes.Code, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if wantCode == codes.OK {
		require.NoError(t, err, msgAndArgs...)
		return
	}
	require.Error(t, err, msgAndArgs...)
	st, ok := status.FromError(err)
	if !ok {
		require.FailNow(t, fmt.Sprintf("Error is not a gRPC status:\n"+
			"expected code: %s\n"+
			"actual error: %q", wantCode, err.Error()), msgAndArgs...)
		return
	}
	if st.Code() != wantCode {
		require.FailNow(t, fmt.Sprintf("Unexpected gRPC status code:\n"+
			"expected: %s\n"+
			"actual  : %s (%q)", wantCode, st.Code(), st.Message()), msgAndArgs...)
	}
}
