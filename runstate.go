package main

import (
	"context"
	"sync"
	"sync/atomic"
)

// RunState is the shared "running" flag for one test run. It starts out
// running and flips to stopped exactly once. The orchestrator is the only
// writer; workers and the monitor poll Running or wait on Done.
type RunState struct {
	running atomic.Bool
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunState returns a running state whose Context is derived from parent.
// Cancelling parent does not stop the run by itself; the orchestrator decides
// when to call Stop.
func NewRunState(parent context.Context) *RunState {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	s := &RunState{ctx: ctx, cancel: cancel}
	s.running.Store(true)
	return s
}

func (s *RunState) Running() bool {
	return s.running.Load()
}

// Stop clears the running flag and wakes anything blocked on Done. Safe to
// call more than once.
func (s *RunState) Stop() {
	s.once.Do(func() {
		s.running.Store(false)
		s.cancel()
	})
}

// Done is closed when the run is stopped.
func (s *RunState) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Context is cancelled when the run is stopped. Blocking calls made on
// behalf of the run (sink writes, rate limiter waits) should use it.
func (s *RunState) Context() context.Context {
	return s.ctx
}
