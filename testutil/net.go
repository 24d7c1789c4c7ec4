/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"context"
	"fmt"
	"net"
	"time"
)

const waitListeningPollInterval = 10 * time.Millisecond

// GetLocalAddrWithFreeTCPPort returns 127.0.0.1:<free-tcp-port> address.
// The port is released before returning, so it may be taken by somebody else in rare cases.
func GetLocalAddrWithFreeTCPPort() string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	defer func() {
		if closeErr := listener.Close(); closeErr != nil {
			panic(closeErr)
		}
	}()
	return listener.Addr().String()
}

// WaitListeningServer waits until the server (gRPC or HTTP) accepts TCP connections on the passing address.
func WaitListeningServer(addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var dialer net.Dialer
	for {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn.Close()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for server listening on %s: %w", addr, err)
		case <-time.After(waitListeningPollInterval):
		}
	}
}
