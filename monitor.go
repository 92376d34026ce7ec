package main

import (
	"fmt"
	"io"
	"time"
)

// Sample is one progress report.
type Sample struct {
	At    time.Time
	Rate  float64 // records per second since the previous sample
	Total uint64
}

// ProgressMonitor periodically reads the RateCounter and reports the
// throughput since its previous reading. Its sample window is private to the
// goroutine running Run.
type ProgressMonitor struct {
	counter  *RateCounter
	interval time.Duration
	metrics  *Metrics
	log      Logger

	// now and report are swapped out in tests
	now    func() time.Time
	report func(Sample)

	lastCount uint64
	lastTime  time.Time
}

func NewProgressMonitor(counter *RateCounter, interval time.Duration, out io.Writer, metrics *Metrics, log Logger) *ProgressMonitor {
	m := &ProgressMonitor{
		counter:  counter,
		interval: interval,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
	m.report = func(s Sample) {
		fmt.Fprintf(out, "Current rate: %.0f logs/second | Total: %d logs\n", s.Rate, s.Total)
	}
	return m
}

// observe folds a reading into the window. It returns false, leaving the
// window alone, when no time has passed since the last reading.
func (m *ProgressMonitor) observe(count uint64, at time.Time) (Sample, bool) {
	elapsed := at.Sub(m.lastTime)
	if elapsed <= 0 {
		return Sample{}, false
	}
	var delta uint64
	if count > m.lastCount {
		delta = count - m.lastCount
	}
	s := Sample{
		At:    at,
		Rate:  float64(delta) * float64(time.Second) / float64(elapsed),
		Total: count,
	}
	m.lastCount = count
	m.lastTime = at
	return s, true
}

func (m *ProgressMonitor) tick() {
	s, ok := m.observe(m.counter.Total(), m.now())
	if !ok {
		m.log.Debug("monitor: no time elapsed since last sample, skipping\n")
		return
	}
	m.metrics.SetRate(s.Rate)
	m.report(s)
}

// Run reports every interval until the run state stops. Being stopped is the
// normal way out and produces no further reports.
func (m *ProgressMonitor) Run(state *RunState) {
	m.lastCount = m.counter.Total()
	m.lastTime = m.now()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-state.Done():
			return
		case <-ticker.C:
			if !state.Running() {
				return
			}
			m.tick()
		}
	}
}
