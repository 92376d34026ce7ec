package main

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	compactPrefix   = "Perf-"
	verbosePrefix   = "Performance test - "
	verboseInterval = 10
)

// isVerbose reports whether sequence number n gets the long, unique message.
// One record in ten carries a timestamp so the pipeline can't dedupe or
// compress the stream down to nothing.
func isVerbose(n int64) bool {
	return n%verboseInterval == 0
}

// EmitterConfig holds the per-worker tunables.
type EmitterConfig struct {
	// Target is the number of records this worker sends; 0 means no limit.
	Target int64
	// YieldEvery is how many records to send between calls to runtime.Gosched; 0 never yields.
	YieldEvery int64
	// Rate caps this worker's records per second; 0 means as fast as possible.
	Rate float64
	// RunID is attached to every record as run_id when set.
	RunID string
	// Fielder adds optional extra fields; may be nil.
	Fielder *Fielder
}

// An Emitter is one worker: a tight loop that builds records and pushes them
// into the sink until the run stops or it reaches its target.
type Emitter struct {
	id      int
	name    string
	cfg     EmitterConfig
	seq     atomic.Int64
	sink    Sink
	counter *RateCounter
	limiter *rate.Limiter
	log     Logger
}

func NewEmitter(id int, sink Sink, counter *RateCounter, log Logger, cfg EmitterConfig) *Emitter {
	e := &Emitter{
		id:      id,
		name:    "worker-" + strconv.Itoa(id),
		cfg:     cfg,
		sink:    sink,
		counter: counter,
		log:     log,
	}
	if cfg.Rate > 0 {
		burst := int(cfg.Rate / 10)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return e
}

func (e *Emitter) Name() string {
	return e.name
}

// Emitted is the number of records this worker has attempted so far,
// including ones the sink rejected.
func (e *Emitter) Emitted() int64 {
	return e.seq.Load()
}

func (e *Emitter) done(state *RunState) bool {
	return !state.Running() || (e.cfg.Target > 0 && e.seq.Load() >= e.cfg.Target)
}

// message builds the record text for sequence number n.
func (e *Emitter) message(n int64) string {
	if isVerbose(n) {
		buf := make([]byte, 0, 128)
		buf = append(buf, verbosePrefix...)
		buf = append(buf, e.name...)
		buf = append(buf, " - Message "...)
		buf = strconv.AppendInt(buf, n, 10)
		buf = append(buf, ": Testing high throughput logging with variable content ["...)
		buf = strconv.AppendInt(buf, time.Now().UnixNano(), 10)
		buf = append(buf, ']')
		return string(buf)
	}
	return compactPrefix + e.name + "-" + strconv.FormatInt(n, 10)
}

// Run emits records until the run state is stopped or the target is
// reached, and returns the number of records attempted. The running flag is
// checked before every record, so a stop is seen within one iteration.
func (e *Emitter) Run(state *RunState) int64 {
	ctx := state.Context()
	fields := make(map[string]string, 8)

	for !e.done(state) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				// stopped while waiting for a token
				break
			}
		}

		n := e.seq.Add(1)
		fields["counter"] = strconv.FormatInt(n, 10)
		fields["worker"] = e.name
		if e.cfg.RunID != "" {
			fields["run_id"] = e.cfg.RunID
		}
		if e.cfg.Fielder != nil {
			e.cfg.Fielder.AddFields(fields)
		}

		err := e.sink.Emit(ctx, e.message(n), fields)
		// the map is reused for the next record; nothing may carry over
		clear(fields)

		if err != nil {
			if ctx.Err() != nil {
				// the sink gave up because the run stopped; not a failure
				break
			}
			e.counter.Failed()
			e.log.Debug("%s: record %d rejected: %v\n", e.name, n, err)
		} else {
			e.counter.Add()
		}

		if e.cfg.YieldEvery > 0 && n%e.cfg.YieldEvery == 0 {
			runtime.Gosched()
		}
	}

	emitted := e.seq.Load()
	e.log.Debug("%s exiting after %d records\n", e.name, emitted)
	return emitted
}
