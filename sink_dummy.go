package main

import (
	"context"
	"sync/atomic"
)

// SinkDummy throws records away and just counts them; useful for measuring
// the generator itself.
type SinkDummy struct {
	records atomic.Int64
	fields  atomic.Int64
	log     Logger
}

// make sure it implements Sink
var _ Sink = (*SinkDummy)(nil)

func NewSinkDummy(log Logger) *SinkDummy {
	return &SinkDummy{log: log}
}

func (s *SinkDummy) Emit(ctx context.Context, msg string, fields map[string]string) error {
	s.records.Add(1)
	s.fields.Add(int64(len(fields)))
	return nil
}

func (s *SinkDummy) Records() int64 {
	return s.records.Load()
}

func (s *SinkDummy) Close() error {
	s.log.Info("sink accepted %d records with %d fields\n", s.records.Load(), s.fields.Load())
	return nil
}
