package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// A Sink accepts generated log records. Emit returns once the record has
// been accepted, which is not necessarily once it has been delivered.
//
// Sinks are called concurrently from every worker at very high frequency.
// The fields map belongs to the caller and is reused after Emit returns, so
// a Sink must copy or serialize whatever it needs before returning.
type Sink interface {
	Emit(ctx context.Context, msg string, fields map[string]string) error
	Close() error
}

// ErrSinkClosed is returned by sinks that are asked to emit after Close.
var ErrSinkClosed = errors.New("sink is closed")

// stamp is the timestamp format used by the line-oriented sinks.
func stamp(ts time.Time) string {
	return ts.Format("15:04:05.000")
}
