package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type OrchestratorState int32

const (
	Idle OrchestratorState = iota
	WarmingUp
	Running
	ShuttingDown
	Stopped
)

func (s OrchestratorState) String() string {
	switch s {
	case Idle:
		return "idle"
	case WarmingUp:
		return "warming up"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting down"
	case Stopped:
		return "stopped"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

const defaultShutdownTimeout = 5 * time.Second

type OrchestratorConfig struct {
	WarmupCount     int
	Settle          time.Duration
	Workers         int
	Target          int64 // per worker, 0 is unbounded
	Rate            float64
	YieldEvery      int64
	MonitorInterval time.Duration
	ShutdownTimeout time.Duration
	// NewFielder builds the extra-field generator for a worker; nil means no
	// extra fields.
	NewFielder func(worker int) (*Fielder, error)
}

// Summary describes one finished streaming run.
type Summary struct {
	RunID     string
	WarmUp    int64  // warm-up records accepted; never part of Emitted or Total
	Emitted   uint64 // records accepted during the Running phase
	Total     uint64 // cumulative records accepted by this counter
	Failures  uint64
	Elapsed   time.Duration
	Rate      float64
	PerWorker map[string]int64
	// Exact is false when some worker failed to stop within the shutdown
	// timeout, in which case Emitted is only a lower bound.
	Exact bool
}

// Orchestrator drives a single test run through
// Idle -> WarmingUp -> Running -> ShuttingDown -> Stopped.
type Orchestrator struct {
	cfg     OrchestratorConfig
	sink    Sink
	counter *RateCounter
	metrics *Metrics
	out     io.Writer
	log     Logger
	state   atomic.Int32
}

func NewOrchestrator(cfg OrchestratorConfig, sink Sink, counter *RateCounter, metrics *Metrics, out io.Writer, log Logger) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 10 * time.Second
	}
	return &Orchestrator{
		cfg:     cfg,
		sink:    sink,
		counter: counter,
		metrics: metrics,
		out:     out,
		log:     log,
	}
}

func (o *Orchestrator) State() OrchestratorState {
	return OrchestratorState(o.state.Load())
}

func (o *Orchestrator) setState(s OrchestratorState) {
	o.log.Debug("orchestrator: %s -> %s\n", o.State(), s)
	o.state.Store(int32(s))
}

// sleepCtx waits for d or until ctx is done, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// warmUp pushes WarmupCount records through the sink synchronously so that
// lazy setup in the sink and transport happens before anything is measured.
func (o *Orchestrator) warmUp(ctx context.Context, runID string) (int64, error) {
	fields := make(map[string]string, 2)
	var accepted int64
	for i := 0; i < o.cfg.WarmupCount; i++ {
		if err := ctx.Err(); err != nil {
			return accepted, err
		}
		fields["phase"] = "warmup"
		fields["run_id"] = runID
		err := o.sink.Emit(ctx, "Warm-up log message "+strconv.Itoa(i), fields)
		clear(fields)
		if err != nil {
			o.log.Debug("warm-up record %d rejected: %v\n", i, err)
			continue
		}
		accepted++
	}
	return accepted, nil
}

func (o *Orchestrator) newEmitters(runID string) ([]*Emitter, error) {
	emitters := make([]*Emitter, 0, o.cfg.Workers)
	for i := 0; i < o.cfg.Workers; i++ {
		cfg := EmitterConfig{
			Target:     o.cfg.Target,
			YieldEvery: o.cfg.YieldEvery,
			Rate:       o.cfg.Rate,
			RunID:      runID,
		}
		if o.cfg.NewFielder != nil {
			f, err := o.cfg.NewFielder(i)
			if err != nil {
				return nil, errors.Wrapf(err, "building fields for worker %d", i)
			}
			cfg.Fielder = f
		}
		emitters = append(emitters, NewEmitter(i, o.sink, o.counter, o.log, cfg))
	}
	return emitters, nil
}

// Run performs one complete test run. It returns when ctx is cancelled (the
// usual case, from a signal or a runtime limit) or when every worker has
// reached its target. Cancellation is a normal stop, not an error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if o.sink == nil {
		return nil, errors.New("no sink configured")
	}
	if !o.state.CompareAndSwap(int32(Idle), int32(WarmingUp)) {
		return nil, errors.Errorf("orchestrator cannot start from state %s", o.State())
	}

	summary := &Summary{RunID: uuid.NewString()}
	emitters, err := o.newEmitters(summary.RunID)
	if err != nil {
		o.setState(Stopped)
		return nil, err
	}

	fmt.Fprintf(o.out, "Warming up with %d records...\n", o.cfg.WarmupCount)
	summary.WarmUp, err = o.warmUp(ctx, summary.RunID)
	if err == nil {
		err = sleepCtx(ctx, o.cfg.Settle)
	}
	if err != nil {
		o.log.Info("interrupted during warm-up: %v\n", err)
		summary.Exact = true
		o.setState(Stopped)
		return summary, nil
	}

	fmt.Fprintf(o.out, "Starting main test with %d workers (run %s)...\n", len(emitters), summary.RunID)
	o.counter.Reset()
	state := NewRunState(ctx)
	o.setState(Running)
	start := time.Now()

	monitor := NewProgressMonitor(o.counter, o.cfg.MonitorInterval, o.out, o.metrics, o.log)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(state)
	}()

	wg := &sync.WaitGroup{}
	for _, e := range emitters {
		wg.Add(1)
		go func(e *Emitter) {
			defer wg.Done()
			e.Run(state)
		}(e)
	}
	workersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(workersDone)
	}()

	select {
	case <-ctx.Done():
		o.log.Info("stopping workers: %v\n", context.Cause(ctx))
	case <-workersDone:
		o.log.Info("all workers reached their target\n")
	}

	o.setState(ShuttingDown)
	fmt.Fprintln(o.out, "\nShutting down...")
	state.Stop()

	// quiesce before the final read so the count is exact
	timer := time.NewTimer(o.cfg.ShutdownTimeout)
	select {
	case <-workersDone:
		summary.Exact = true
	case <-timer.C:
		o.log.Error("workers still running %s after stop; final count is a lower bound\n", o.cfg.ShutdownTimeout)
	}
	timer.Stop()
	<-monitorDone

	summary.Elapsed = time.Since(start)
	summary.Emitted = o.counter.SinceStart()
	summary.Total = o.counter.Total()
	summary.Failures = o.counter.Failures()
	if summary.Elapsed > 0 {
		summary.Rate = float64(summary.Emitted) * float64(time.Second) / float64(summary.Elapsed)
	}
	summary.PerWorker = make(map[string]int64, len(emitters))
	for _, e := range emitters {
		summary.PerWorker[e.Name()] = e.Emitted()
	}

	qualifier := ""
	if !summary.Exact {
		qualifier = " (at least)"
	}
	fmt.Fprintf(o.out, "Total logs generated: %d%s\n", summary.Emitted, qualifier)
	fmt.Fprintf(o.out, "Average rate: %.0f logs/second over %s | Failures: %d | Warm-up: %d\n",
		summary.Rate, summary.Elapsed.Round(time.Millisecond), summary.Failures, summary.WarmUp)

	o.setState(Stopped)
	return summary, nil
}
