package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestBurst_AllBatchesComplete(t *testing.T) {
	sink := NewSinkDummy(NewNopLogger())
	counter := NewRateCounter()
	metrics := NewMetrics(counter)
	out := &bytes.Buffer{}
	b := NewBurstEmitter(BurstConfig{PoolSize: 4}, sink, counter, metrics, out, NewNopLogger())

	res, err := b.RunBurstTest(context.Background(), 100, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Batches)
	assert.Equal(t, int64(100), res.Records)
	assert.Equal(t, int64(100), sink.Records())
	assert.Equal(t, uint64(100), counter.Total())
	assert.Greater(t, res.Rate, 0.0)
	assert.Contains(t, scrape(t, metrics), "loggen_burst_batches_total 10\n")
	assert.Contains(t, out.String(), "Burst test completed: 100 logs in ")
}

func TestBurst_RecordsAreIdentical(t *testing.T) {
	sink := &memSink{}
	b := NewBurstEmitter(BurstConfig{PoolSize: 2, RunID: "r"}, sink, NewRateCounter(), nil, io.Discard, NewNopLogger())
	_, err := b.RunBurstTest(context.Background(), 20, 5)
	require.NoError(t, err)
	for _, rec := range sink.all() {
		assert.Equal(t, "BURST", rec.msg)
		assert.Equal(t, map[string]string{"phase": "burst", "run_id": "r"}, rec.fields)
	}
}

func TestBurst_RemainderIsDropped(t *testing.T) {
	b := NewBurstEmitter(BurstConfig{PoolSize: 3}, NewSinkDummy(NewNopLogger()), NewRateCounter(), nil, io.Discard, NewNopLogger())
	res, err := b.RunBurstTest(context.Background(), 105, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Batches)
	assert.Equal(t, int64(100), res.Records)
}

func TestBurst_InvalidBatchSize(t *testing.T) {
	b := NewBurstEmitter(BurstConfig{}, &memSink{}, NewRateCounter(), nil, io.Discard, NewNopLogger())
	_, err := b.RunBurstTest(context.Background(), 100, 0)
	assert.Error(t, err)
}

func TestBurst_FailuresAreCounted(t *testing.T) {
	counter := NewRateCounter()
	b := NewBurstEmitter(BurstConfig{PoolSize: 1}, &flakySink{failEvery: 2}, counter, nil, io.Discard, NewNopLogger())
	res, err := b.RunBurstTest(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Records)
	assert.Equal(t, int64(5), res.Failures)
}

func TestBurst_CancelStopsDispatch(t *testing.T) {
	sink := NewSinkDummy(NewNopLogger())
	b := NewBurstEmitter(BurstConfig{
		PoolSize:   2,
		PauseEvery: 1,
		Pause:      time.Hour,
	}, sink, NewRateCounter(), nil, io.Discard, NewNopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := b.RunBurstTest(ctx, 1000, 10)
	require.NoError(t, err)
	// the first batch goes out before the first pause
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, int64(10), res.Records)
	assert.Equal(t, int64(10), sink.Records())
}

func TestMetrics_Handler(t *testing.T) {
	counter := NewRateCounter()
	for i := 0; i < 3; i++ {
		counter.Add()
	}
	counter.Failed()
	m := NewMetrics(counter)
	m.SetRate(42)

	body := scrape(t, m)
	assert.Contains(t, body, "loggen_records_emitted_total 3")
	assert.Contains(t, body, "loggen_record_failures_total 1")
	assert.Contains(t, body, "loggen_records_per_second 42")

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.SetRate(1)
		nilMetrics.BatchDone()
	})
}
