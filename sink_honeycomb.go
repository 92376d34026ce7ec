package main

import (
	"context"
	"os"
	"sync"

	"github.com/honeycombio/libhoney-go"
	"github.com/pkg/errors"
)

// SinkHoneycomb sends each record as a Honeycomb event. libhoney batches and
// sends in the background; delivery errors show up on the response channel
// and are logged there, not returned from Emit.
type SinkHoneycomb struct {
	client *libhoney.Client
	stop   chan struct{}
	once   sync.Once
	log    Logger
}

// make sure it implements Sink
var _ Sink = (*SinkHoneycomb)(nil)

func NewSinkHoneycomb(log Logger, opts *Options) (*SinkHoneycomb, error) {
	return newSinkHoneycomb(log, libhoney.ClientConfig{
		APIKey:  opts.Telemetry.APIKey,
		Dataset: opts.Telemetry.Dataset,
		APIHost: opts.apihost.String(),
	})
}

func newSinkHoneycomb(log Logger, cfg libhoney.ClientConfig) (*SinkHoneycomb, error) {
	client, err := libhoney.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating honeycomb client")
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
		log.Error("unable to determine hostname: %s, using 'unknown'\n", err)
	}
	client.AddField("host_name", host)

	s := &SinkHoneycomb{
		client: client,
		stop:   make(chan struct{}),
		log:    log,
	}
	go s.watchResponses()
	return s, nil
}

func (s *SinkHoneycomb) watchResponses() {
	responses := s.client.TxResponses()
	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			if resp.Err != nil {
				s.log.Error("error sending event -- err: %s  resp: %s\n", resp.Err, resp.Body)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *SinkHoneycomb) Emit(ctx context.Context, msg string, fields map[string]string) error {
	ev := s.client.NewEvent()
	ev.AddField("message", msg)
	for k, v := range fields {
		ev.AddField(k, v)
	}
	return ev.Send()
}

// Close flushes pending events.
func (s *SinkHoneycomb) Close() error {
	s.once.Do(func() {
		s.client.Close()
		close(s.stop)
	})
	return nil
}
