package main

import (
	"context"
	"errors"
	"sync"
)

type memRecord struct {
	msg    string
	fields map[string]string
}

// memSink keeps a copy of everything it is given.
type memSink struct {
	mut     sync.Mutex
	records []memRecord
	closed  bool
	// onEmit, if set, runs after the record is stored (outside the lock)
	onEmit func(n int)
}

func (s *memSink) Emit(ctx context.Context, msg string, fields map[string]string) error {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	s.mut.Lock()
	s.records = append(s.records, memRecord{msg: msg, fields: cp})
	n := len(s.records)
	s.mut.Unlock()
	if s.onEmit != nil {
		s.onEmit(n)
	}
	return nil
}

func (s *memSink) Close() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) all() []memRecord {
	s.mut.Lock()
	defer s.mut.Unlock()
	return append([]memRecord(nil), s.records...)
}

var errRejected = errors.New("rejected")

// flakySink rejects every failEvery'th record.
type flakySink struct {
	mut       sync.Mutex
	calls     int
	failEvery int
}

func (s *flakySink) Emit(ctx context.Context, msg string, fields map[string]string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	s.calls++
	if s.failEvery > 0 && s.calls%s.failEvery == 0 {
		return errRejected
	}
	return nil
}

func (s *flakySink) Close() error { return nil }
