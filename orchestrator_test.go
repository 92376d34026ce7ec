package main

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckSink ignores cancellation and blocks every Emit until released.
type stuckSink struct {
	release chan struct{}
	entered atomic.Int64
}

func (s *stuckSink) Emit(ctx context.Context, msg string, fields map[string]string) error {
	s.entered.Add(1)
	<-s.release
	return nil
}

func (s *stuckSink) Close() error { return nil }

func TestOrchestrator_BoundedRun(t *testing.T) {
	sink := &memSink{}
	counter := NewRateCounter()
	out := &bytes.Buffer{}
	o := NewOrchestrator(OrchestratorConfig{
		WarmupCount: 5,
		Workers:     2,
		Target:      5,
	}, sink, counter, nil, out, NewNopLogger())
	assert.Equal(t, Idle, o.State())

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Stopped, o.State())
	assert.Equal(t, int64(5), summary.WarmUp)
	assert.Equal(t, uint64(10), summary.Emitted)
	assert.Equal(t, uint64(10), counter.Total(), "warm-up records are not counted")
	assert.True(t, summary.Exact)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, map[string]int64{"worker-0": 5, "worker-1": 5}, summary.PerWorker)

	records := sink.all()
	require.Len(t, records, 15)
	for i, rec := range records[:5] {
		assert.Equal(t, "Warm-up log message "+strconv.Itoa(i), rec.msg)
		assert.Equal(t, "warmup", rec.fields["phase"])
	}
	for _, rec := range records {
		assert.Equal(t, summary.RunID, rec.fields["run_id"])
	}

	assert.Contains(t, out.String(), "Warming up with 5 records...")
	assert.Contains(t, out.String(), "Total logs generated: 10\n")
	assert.NotContains(t, out.String(), "(at least)")
}

func TestOrchestrator_ResetKeepsTotal(t *testing.T) {
	counter := NewRateCounter()
	for i := 0; i < 7; i++ {
		counter.Add()
	}
	o := NewOrchestrator(OrchestratorConfig{Workers: 2, Target: 5}, &memSink{}, counter, nil, &bytes.Buffer{}, NewNopLogger())

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10), summary.Emitted)
	assert.Equal(t, uint64(17), summary.Total)
}

func TestOrchestrator_CancelStopsUnboundedWorkers(t *testing.T) {
	sink := NewSinkDummy(NewNopLogger())
	out := &bytes.Buffer{}
	o := NewOrchestrator(OrchestratorConfig{
		WarmupCount:     10,
		Workers:         4,
		YieldEvery:      100,
		MonitorInterval: 10 * time.Millisecond,
	}, sink, NewRateCounter(), nil, out, NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	summary, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Stopped, o.State())
	assert.True(t, summary.Exact)
	assert.Greater(t, summary.Emitted, uint64(0))
	assert.Equal(t, int64(summary.Emitted)+summary.WarmUp, sink.Records())
	assert.Greater(t, summary.Rate, 0.0)
	assert.Contains(t, out.String(), "Shutting down...")
	assert.Contains(t, out.String(), "Current rate:")
}

func TestOrchestrator_InterruptedDuringWarmUp(t *testing.T) {
	sink := &memSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := NewOrchestrator(OrchestratorConfig{WarmupCount: 100, Workers: 2}, sink, NewRateCounter(), nil, &bytes.Buffer{}, NewNopLogger())

	summary, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stopped, o.State())
	assert.Zero(t, summary.Emitted)
	assert.Zero(t, summary.WarmUp)
	assert.Empty(t, sink.all())
}

func TestOrchestrator_InterruptedDuringSettle(t *testing.T) {
	sink := &memSink{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	o := NewOrchestrator(OrchestratorConfig{WarmupCount: 3, Settle: time.Hour}, sink, NewRateCounter(), nil, &bytes.Buffer{}, NewNopLogger())

	start := time.Now()
	summary, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, int64(3), summary.WarmUp)
	assert.Len(t, sink.all(), 3)
}

func TestOrchestrator_StuckWorkersGiveLowerBound(t *testing.T) {
	sink := &stuckSink{release: make(chan struct{})}
	defer close(sink.release)
	out := &bytes.Buffer{}
	o := NewOrchestrator(OrchestratorConfig{
		Workers:         2,
		ShutdownTimeout: 20 * time.Millisecond,
	}, sink, NewRateCounter(), nil, out, NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	summary, err := o.Run(ctx)
	require.NoError(t, err)
	assert.False(t, summary.Exact)
	assert.Contains(t, out.String(), "(at least)")
	assert.Equal(t, Stopped, o.State())
}

func TestOrchestrator_RunOnlyOnce(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{Target: 1}, &memSink{}, NewRateCounter(), nil, &bytes.Buffer{}, NewNopLogger())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	assert.Error(t, err)
}

func TestOrchestrator_NoSink(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{}, nil, NewRateCounter(), nil, &bytes.Buffer{}, NewNopLogger())
	_, err := o.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Idle, o.State())
}

func TestOrchestrator_FielderError(t *testing.T) {
	o := NewOrchestrator(OrchestratorConfig{
		Workers: 2,
		NewFielder: func(worker int) (*Fielder, error) {
			return nil, errors.New("nope")
		},
	}, &memSink{}, NewRateCounter(), nil, &bytes.Buffer{}, NewNopLogger())
	_, err := o.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Stopped, o.State())
}

func TestOrchestrator_ExtraFields(t *testing.T) {
	sink := &memSink{}
	o := NewOrchestrator(OrchestratorConfig{
		Workers: 2,
		Target:  3,
		NewFielder: func(worker int) (*Fielder, error) {
			return NewFielder("seed", map[string]string{"team": "core"}, 1, worker)
		},
	}, sink, NewRateCounter(), nil, &bytes.Buffer{}, NewNopLogger())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	for _, rec := range sink.all() {
		assert.Equal(t, "core", rec.fields["team"])
		assert.True(t, strings.HasPrefix(rec.fields["worker"], "worker-"))
	}
}

func TestOrchestratorState_String(t *testing.T) {
	assert.Equal(t, "warming up", WarmingUp.String())
	assert.Equal(t, "unknown(9)", OrchestratorState(9).String())
}
