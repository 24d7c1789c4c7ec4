/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"strings"
	"sync"
	"testing"

	"github.com/ssgreg/logf"

	"github.com/acronis/grpc-backpressure-lab/log"
)

// testEntryWriter writes encoded entries to the test log.
// Entries that arrive after the test is cleaned up (e.g. from servers still draining) are dropped.
type testEntryWriter struct {
	mu      sync.Mutex
	tb      testing.TB
	encoder logf.Encoder
	closed  bool
}

//nolint:gocritic
func (ew *testEntryWriter) WriteEntry(e logf.Entry) {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	if ew.closed {
		return
	}
	var buf logf.Buffer
	if err := ew.encoder.Encode(&buf, e); err != nil {
		ew.tb.Logf("encode log entry: %v", err)
		return
	}
	ew.tb.Log(strings.TrimSuffix(string(buf.Data), "\n"))
}

func (ew *testEntryWriter) close() {
	ew.mu.Lock()
	ew.closed = true
	ew.mu.Unlock()
}

// NewLogger returns a logger (format: json, level: debug) that writes to the test log,
// so the output is shown only for failed tests or in verbose mode.
// It should never be used in production due to slow performance.
func NewLogger(tb testing.TB) log.FieldLogger {
	ew := &testEntryWriter{
		tb: tb,
		encoder: logf.NewJSONEncoder(logf.JSONEncoderConfig{
			EncodeTime:   logf.RFC3339NanoTimeEncoder,
			FieldKeyTime: "time",
		}),
	}
	tb.Cleanup(ew.close)
	return &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, ew)}
}
