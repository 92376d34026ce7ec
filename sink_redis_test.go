package main

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkRedis_PushesJSONRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := newOptions()
	opts.Output.RedisAddr = mr.Addr()
	opts.Output.RedisKey = "logstash"
	opts.Output.RedisBatch = 3

	s, err := NewSinkRedis(NewNopLogger(), opts)
	require.NoError(t, err)

	fields := map[string]string{}
	for i := 1; i <= 10; i++ {
		fields["counter"] = strconv.Itoa(i)
		require.NoError(t, s.Emit(context.Background(), "msg "+strconv.Itoa(i), fields))
		clear(fields)
	}
	require.NoError(t, s.Close())

	items, err := mr.List("logstash")
	require.NoError(t, err)
	require.Len(t, items, 10)
	for i, item := range items {
		doc := map[string]string{}
		require.NoError(t, json.Unmarshal([]byte(item), &doc))
		assert.Equal(t, "msg "+strconv.Itoa(i+1), doc["message"])
		assert.Equal(t, strconv.Itoa(i+1), doc["counter"])
		assert.NotEmpty(t, doc["@timestamp"])
	}
}

func TestSinkRedis_EmitAfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newSinkRedis(NewNopLogger(), redis.NewClient(&redis.Options{Addr: mr.Addr()}), "k", 10)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Emit(context.Background(), "late", nil), ErrSinkClosed)
	assert.NoError(t, s.Close(), "second close is a no-op")
}

func TestSinkRedis_FailedPushesAreReported(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	s := newSinkRedis(NewNopLogger(), client, "k", 100)
	mr.Close()

	require.NoError(t, s.Emit(context.Background(), "lost", map[string]string{}))
	assert.Error(t, s.Close())
}

func TestSinkRedis_UnreachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	opts := newOptions()
	opts.Output.RedisAddr = addr
	_, err := NewSinkRedis(NewNopLogger(), opts)
	assert.Error(t, err)
}

func TestSinkRedis_CloseDuringEmitLosesNothing(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newSinkRedis(NewNopLogger(), redis.NewClient(&redis.Options{Addr: mr.Addr()}), "k", 7)

	var (
		mut      sync.Mutex
		accepted int
		wg       sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.Emit(context.Background(), "m", map[string]string{})
				if errors.Is(err, ErrSinkClosed) {
					return
				}
				if err == nil {
					mut.Lock()
					accepted++
					mut.Unlock()
				}
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())
	wg.Wait()

	items, err := mr.List("k")
	require.NoError(t, err)
	assert.Greater(t, accepted, 0)
	assert.Len(t, items, accepted, "every accepted record reaches the list")
}
