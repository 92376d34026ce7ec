package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var json = jsoniter.ConfigFastest

const redisFlushInterval = 100 * time.Millisecond

// SinkRedis serializes records to JSON and appends them to a Redis list, the
// layout Logstash's redis input (data_type => "list") consumes. Emit only
// queues the encoded record; a background flusher sends batches with one
// RPUSH each.
type SinkRedis struct {
	client    *redis.Client
	key       string
	batchSize int
	records   chan []byte
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
	sent      atomic.Int64
	failures  atomic.Int64
	log       Logger

	// mut guards closed; Emit holds it shared while sending, so Close can't
	// stop the flusher with a send still in flight
	mut    sync.RWMutex
	closed bool
}

// make sure it implements Sink
var _ Sink = (*SinkRedis)(nil)

func NewSinkRedis(log Logger, opts *Options) (*SinkRedis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Output.RedisAddr,
		Password: opts.Output.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", opts.Output.RedisAddr)
	}
	return newSinkRedis(log, client, opts.Output.RedisKey, opts.Output.RedisBatch), nil
}

func newSinkRedis(log Logger, client *redis.Client, key string, batchSize int) *SinkRedis {
	if batchSize < 1 {
		batchSize = 1
	}
	s := &SinkRedis{
		client:    client,
		key:       key,
		batchSize: batchSize,
		records:   make(chan []byte, batchSize*4),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		log:       log,
	}
	go s.run()
	return s
}

func (s *SinkRedis) Emit(ctx context.Context, msg string, fields map[string]string) error {
	doc := make(map[string]string, len(fields)+2)
	for k, v := range fields {
		doc[k] = v
	}
	doc["@timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	doc["message"] = msg
	enc, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}

	s.mut.RLock()
	defer s.mut.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.records <- enc:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SinkRedis) run() {
	defer close(s.done)
	batch := make([]interface{}, 0, s.batchSize)
	ticker := time.NewTicker(redisFlushInterval)
	defer ticker.Stop()

	add := func(rec []byte) {
		batch = append(batch, rec)
		if len(batch) >= s.batchSize {
			s.flush(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec := <-s.records:
			add(rec)
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.stop:
			// take whatever is still queued, then send the remainder
			for {
				select {
				case rec := <-s.records:
					add(rec)
				default:
					if len(batch) > 0 {
						s.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (s *SinkRedis) flush(batch []interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.RPush(ctx, s.key, batch...).Err(); err != nil {
		s.failures.Add(int64(len(batch)))
		s.log.Error("redis sink: failed to push %d records: %v\n", len(batch), err)
		return
	}
	s.sent.Add(int64(len(batch)))
}

// Close stops accepting records, flushes what is queued and closes the
// client. Records that failed to reach Redis are reported as an error.
func (s *SinkRedis) Close() error {
	var result error
	s.once.Do(func() {
		// the flusher keeps draining while in-flight sends finish
		s.mut.Lock()
		s.closed = true
		s.mut.Unlock()
		close(s.stop)
		<-s.done
		s.log.Info("redis sink pushed %d records to %s\n", s.sent.Load(), s.key)
		if n := s.failures.Load(); n > 0 {
			result = multierror.Append(result, errors.Errorf("%d records could not be pushed to redis", n))
		}
		if err := s.client.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}
