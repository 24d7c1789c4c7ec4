/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package loadgen

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/grpc-backpressure-lab/log/logtest"
)

type phaseTestEnv struct {
	fakes     []*fakeConn
	gate      *InflightGate
	counters  *Counters
	collector *ResponseCollector
	runner    *PhaseRunner
	logs      *logtest.Recorder
	metrics   *PrometheusMetrics
}

func newPhaseTestEnv(t *testing.T, connsNum, maxInflight int, block bool) *phaseTestEnv {
	t.Helper()
	fakes, conns := newFakeConns(connsNum)
	if block {
		for _, fake := range fakes {
			fake.block = make(chan struct{})
		}
	}
	gate, err := NewInflightGate(maxInflight)
	require.NoError(t, err)
	counters := &Counters{}
	logs := logtest.NewRecorder()
	metrics := NewPrometheusMetrics("", nil)
	latencies := NewLatencyRecorder()

	collector, err := NewResponseCollector(4, counters, gate, ResponseCollectorOpts{
		Logger: logs, MetricsCollector: metrics, Latencies: latencies})
	require.NoError(t, err)
	collector.Start()
	t.Cleanup(collector.Stop)

	dispatcher, err := NewDispatcher(conns, collector, DispatcherOpts{FailEvery: 10})
	require.NoError(t, err)
	runner := NewPhaseRunner(dispatcher, gate, counters, PhaseRunnerOpts{
		Logger:           logs,
		MetricsCollector: metrics,
		Latencies:        latencies,
		Drain:            20 * time.Millisecond,
		DefaultDeadline:  300 * time.Millisecond,
	})
	return &phaseTestEnv{
		fakes: fakes, gate: gate, counters: counters, collector: collector, runner: runner, logs: logs, metrics: metrics}
}

func (e *phaseTestEnv) unblock() {
	for _, fake := range e.fakes {
		close(fake.block)
	}
}

func TestPhaseRunner_Run(t *testing.T) {
	env := newPhaseTestEnv(t, 2, 100, false)

	res, err := env.runner.Run(context.Background(), Phase{Name: "steady", Rate: 100, Duration: time.Second})
	require.NoError(t, err)
	require.False(t, res.Skipped)
	require.InDelta(t, 100, float64(res.Ticks), 1)
	require.Equal(t, res.Ticks, res.Dispatched+res.RejectedByCap)
	require.Equal(t, uint64(0), res.RejectedByCap)

	require.Eventually(t, func() bool {
		return env.counters.Completed.Load() == env.counters.Sent.Load()
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, res.Dispatched, env.counters.Sent.Load())
	require.Equal(t, res.Dispatched/10, env.counters.Errors.Load())
	require.Equal(t, 100, env.gate.Available())

	require.InDelta(t, env.fakes[0].calls(), env.fakes[1].calls(), 1)
	require.Equal(t, float64(res.Dispatched), testutil.ToFloat64(env.metrics.Ticks.WithLabelValues(TickOutcomeDispatched)))

	_, found := env.logs.FindEntry("== phase=steady rps=100 seconds=1 deadlineMs=300 maxInflight=100 channels=2 ==")
	require.True(t, found)
	doneEntry, found := env.logs.FindEntry("== phase done: steady ==")
	require.True(t, found)
	_, found = doneEntry.FindField("latency")
	require.True(t, found)
}

func TestPhaseRunner_RunRejectsByCap(t *testing.T) {
	env := newPhaseTestEnv(t, 1, 5, true)

	res, err := env.runner.Run(context.Background(),
		Phase{Name: "burst", Rate: 500, Duration: 100 * time.Millisecond, Deadline: 5 * time.Second})
	require.NoError(t, err)
	require.InDelta(t, 50, float64(res.Ticks), 1)
	require.Equal(t, uint64(5), res.Dispatched)
	require.Equal(t, res.Ticks-5, res.RejectedByCap)
	require.Equal(t, res.RejectedByCap, env.counters.RejectedByCap.Load())
	require.Equal(t, uint64(5), env.counters.Sent.Load())
	require.Equal(t, 5, env.gate.InUse())
	require.Equal(t, float64(res.RejectedByCap),
		testutil.ToFloat64(env.metrics.Ticks.WithLabelValues(TickOutcomeRejectedByCap)))

	env.unblock()
	require.Eventually(t, func() bool {
		return env.counters.Completed.Load() == 5 && env.gate.Available() == 5
	}, time.Second, 10*time.Millisecond)
}

func TestPhaseRunner_RunDeadlineExceeded(t *testing.T) {
	env := newPhaseTestEnv(t, 1, 10, true)
	defer env.unblock()

	res, err := env.runner.Run(context.Background(),
		Phase{Name: "slow", Rate: 50, Duration: 100 * time.Millisecond, Deadline: 30 * time.Millisecond})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.counters.Completed.Load() == res.Dispatched
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, res.Dispatched, env.counters.Errors.Load())
	require.Equal(t, 10, env.gate.Available())
}

func TestPhaseRunner_RunSkipped(t *testing.T) {
	env := newPhaseTestEnv(t, 1, 10, false)

	for _, phase := range []Phase{
		{Name: "burst", Rate: 0, Duration: time.Second},
		{Name: "recovery", Rate: 100, Duration: 0},
	} {
		res, err := env.runner.Run(context.Background(), phase)
		require.NoError(t, err)
		require.True(t, res.Skipped)
		require.Zero(t, res.Ticks)
	}
	require.Zero(t, env.counters.Ticks.Load())
	_, found := env.logs.FindEntry("== phase skipped: burst ==")
	require.True(t, found)
}

func TestPhaseRunner_RunCanceled(t *testing.T) {
	env := newPhaseTestEnv(t, 1, 10, false)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	startTime := time.Now()
	res, err := env.runner.Run(ctx, Phase{Name: "steady", Rate: 100, Duration: time.Hour})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(startTime), 5*time.Second)
	require.Equal(t, res.Ticks, res.Dispatched+res.RejectedByCap)
	_, found := env.logs.FindEntry("== phase done: steady ==")
	require.False(t, found)
}

func TestPhaseRunner_RunScript(t *testing.T) {
	env := newPhaseTestEnv(t, 2, 50, false)

	err := env.runner.RunScript(context.Background(), []Phase{
		{Name: "steady", Rate: 100, Duration: 100 * time.Millisecond},
		{Name: "burst", Rate: 0, Duration: 100 * time.Millisecond},
		{Name: "recovery", Rate: 100, Duration: 100 * time.Millisecond},
	}, false)
	require.NoError(t, err)

	for _, msg := range []string{
		"== phase done: steady ==", "== phase skipped: burst ==", "== phase done: recovery ==",
	} {
		_, found := env.logs.FindEntry(msg)
		require.True(t, found, msg)
	}
	require.InDelta(t, 20, float64(env.counters.Ticks.Load()), 2)
}

func TestPhaseRunner_RunScriptLoop(t *testing.T) {
	env := newPhaseTestEnv(t, 1, 50, false)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := env.runner.RunScript(ctx, []Phase{{Name: "steady", Rate: 100, Duration: 100 * time.Millisecond}}, true)
	require.NoError(t, err)

	loops := env.logs.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Text == "== phase done: steady(loop) =="
	})
	require.NotEmpty(t, loops)
}

func TestPhaseRunner_RunScriptLoopWithoutLoad(t *testing.T) {
	env := newPhaseTestEnv(t, 1, 50, false)

	done := make(chan error, 1)
	go func() {
		done <- env.runner.RunScript(context.Background(), []Phase{{Name: "steady", Rate: 0, Duration: time.Second}}, true)
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("script without load should not loop")
	}
}
