package main

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// SinkLogrus writes records through logrus' JSON formatter. Writes are
// buffered; logrus serializes them under its own lock.
type SinkLogrus struct {
	logger *logrus.Logger
	buf    *bufio.Writer
	out    io.WriteCloser
}

// make sure it implements Sink
var _ Sink = (*SinkLogrus)(nil)

func NewSinkLogrus(out io.WriteCloser) *SinkLogrus {
	buf := bufio.NewWriterSize(out, 256*1024)
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   time.RFC3339Nano,
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "@timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return &SinkLogrus{logger: logger, buf: buf, out: out}
}

func (s *SinkLogrus) Emit(ctx context.Context, msg string, fields map[string]string) error {
	lf := make(logrus.Fields, len(fields))
	for k, v := range fields {
		lf[k] = v
	}
	s.logger.WithFields(lf).Info(msg)
	return nil
}

// Close flushes buffered output. It must only be called once no more Emit
// calls can arrive.
func (s *SinkLogrus) Close() error {
	var result error
	if err := s.buf.Flush(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.out.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}
