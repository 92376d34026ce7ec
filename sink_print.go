package main

import (
	"bufio"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// SinkPrint writes one human-readable line per record. Output is buffered;
// Close flushes it.
type SinkPrint struct {
	mut    sync.Mutex
	w      *bufio.Writer
	keys   []string
	nrecs  int64
	closed bool
	log    Logger
}

// make sure it implements Sink
var _ Sink = (*SinkPrint)(nil)

func NewSinkPrint(log Logger, out io.Writer) *SinkPrint {
	return &SinkPrint{
		w:   bufio.NewWriterSize(out, 64*1024),
		log: log,
	}
}

func (s *SinkPrint) Emit(ctx context.Context, msg string, fields map[string]string) error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.nrecs++

	// stable field order makes the output diffable
	s.keys = s.keys[:0]
	for k := range fields {
		s.keys = append(s.keys, k)
	}
	sort.Strings(s.keys)

	s.w.WriteString(stamp(time.Now()))
	s.w.WriteString(" INFO ")
	s.w.WriteString(msg)
	for _, k := range s.keys {
		s.w.WriteByte(' ')
		s.w.WriteString(k)
		s.w.WriteByte('=')
		s.w.WriteString(fields[k])
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return errors.Wrap(err, "print sink")
	}
	return nil
}

func (s *SinkPrint) Close() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Info("print sink wrote %d records\n", s.nrecs)
	return errors.Wrap(s.w.Flush(), "flushing print sink")
}
