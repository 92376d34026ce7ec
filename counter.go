package main

import "sync/atomic"

// RateCounter is the shared tally of records emitted. Producers call Add or
// Failed; everyone else only reads. All operations are lock-free.
//
// Reads taken while producers are still running are lower bounds: a worker
// may land another increment right after the read.
type RateCounter struct {
	sinceStart atomic.Uint64
	total      atomic.Uint64
	failures   atomic.Uint64
}

func NewRateCounter() *RateCounter {
	return &RateCounter{}
}

// Add records one successfully emitted record.
func (c *RateCounter) Add() {
	c.sinceStart.Add(1)
	c.total.Add(1)
}

// Failed records one record that the sink rejected.
func (c *RateCounter) Failed() {
	c.failures.Add(1)
}

// Reset starts a new run. Only emittedSinceStart is cleared; the cumulative
// total never goes backwards.
func (c *RateCounter) Reset() {
	c.sinceStart.Store(0)
}

func (c *RateCounter) SinceStart() uint64 {
	return c.sinceStart.Load()
}

func (c *RateCounter) Total() uint64 {
	return c.total.Load()
}

func (c *RateCounter) Failures() uint64 {
	return c.failures.Load()
}
