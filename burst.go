package main

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const burstMessage = "BURST"

type BurstConfig struct {
	// PoolSize bounds the number of batches in flight.
	PoolSize int
	// PauseEvery and Pause throttle dispatch: after dispatch i, if
	// i%PauseEvery == 0, wait Pause before dispatching more.
	PauseEvery int
	Pause      time.Duration
	RunID      string
}

// BurstResult describes one finished burst test.
type BurstResult struct {
	Batches  int
	Records  int64
	Failures int64
	Elapsed  time.Duration
	Rate     float64
}

// BurstEmitter sends records in fixed-size batches, each batch an independent
// task on a bounded pool. Every record in a burst is the same precomputed
// message, so there's no per-record formatting cost.
type BurstEmitter struct {
	cfg     BurstConfig
	sink    Sink
	counter *RateCounter
	metrics *Metrics
	fields  map[string]string // shared by every batch, never written after construction
	out     io.Writer
	log     Logger
}

func NewBurstEmitter(cfg BurstConfig, sink Sink, counter *RateCounter, metrics *Metrics, out io.Writer, log Logger) *BurstEmitter {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	fields := map[string]string{"phase": "burst"}
	if cfg.RunID != "" {
		fields["run_id"] = cfg.RunID
	}
	return &BurstEmitter{
		cfg:     cfg,
		sink:    sink,
		counter: counter,
		metrics: metrics,
		fields:  fields,
		out:     out,
		log:     log,
	}
}

// EmitBatch sends size records back to back and returns how many the sink
// accepted.
func (b *BurstEmitter) EmitBatch(ctx context.Context, size int) int64 {
	var accepted int64
	for i := 0; i < size; i++ {
		if err := b.sink.Emit(ctx, burstMessage, b.fields); err != nil {
			b.counter.Failed()
			continue
		}
		b.counter.Add()
		accepted++
	}
	b.metrics.BatchDone()
	return accepted
}

// RunBurstTest dispatches totalRecords/batchSize batches and waits for all of
// them before computing the rate. Cancelling ctx stops further dispatch; the
// batches already dispatched still run to completion and are reported.
func (b *BurstEmitter) RunBurstTest(ctx context.Context, totalRecords, batchSize int) (BurstResult, error) {
	if batchSize <= 0 {
		return BurstResult{}, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	numBatches := totalRecords / batchSize
	if numBatches*batchSize != totalRecords {
		b.log.Warn("total %d is not a multiple of batch size %d; sending %d records\n",
			totalRecords, batchSize, numBatches*batchSize)
	}

	var (
		g          errgroup.Group
		records    atomic.Int64
		dispatched int
	)
	g.SetLimit(b.cfg.PoolSize)
	failuresBefore := b.counter.Failures()
	// dispatched batches always finish, even if ctx is cancelled under them
	batchCtx := context.WithoutCancel(ctx)

	start := time.Now()
	for i := 0; i < numBatches; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			records.Add(b.EmitBatch(batchCtx, batchSize))
			return nil
		})
		dispatched++
		if b.cfg.PauseEvery > 0 && i%b.cfg.PauseEvery == 0 {
			if err := sleepCtx(ctx, b.cfg.Pause); err != nil {
				break
			}
		}
	}
	waitErr := g.Wait()
	elapsed := time.Since(start)

	res := BurstResult{
		Batches:  dispatched,
		Records:  records.Load(),
		Failures: int64(b.counter.Failures() - failuresBefore),
		Elapsed:  elapsed,
	}
	if elapsed > 0 {
		res.Rate = float64(res.Records) * float64(time.Second) / float64(elapsed)
	}
	if dispatched < numBatches {
		b.log.Info("burst interrupted after %d of %d batches\n", dispatched, numBatches)
	}
	fmt.Fprintf(b.out, "Burst test completed: %d logs in %d ms (%.0f logs/sec)\n",
		res.Records, elapsed.Milliseconds(), res.Rate)
	return res, errors.Wrap(waitErr, "burst batch failed")
}
