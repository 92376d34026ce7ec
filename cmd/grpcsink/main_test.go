package main

import (
	"context"
	"testing"
	"time"

	"github.com/honeycombio/loggen/internal/receiver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
)

func TestLogServer_Export(t *testing.T) {
	counter := receiver.NewLogCounter(1024, time.Hour, nil)
	s := NewLogServer(counter)

	scope := &logspb.ScopeLogs{}
	for _, b := range []string{"Perf-worker-0-1", "Perf-worker-0-2", "Perf-worker-0-1"} {
		scope.LogRecords = append(scope.LogRecords, &logspb.LogRecord{
			Body: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: b}},
		})
	}
	req := &collectorlogs.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{{ScopeLogs: []*logspb.ScopeLogs{scope}}},
	}

	resp, err := s.Export(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, resp)

	records, distinct, requests := counter.Counts()
	assert.Equal(t, int64(3), records)
	assert.Equal(t, int64(2), distinct)
	assert.Equal(t, int64(1), requests)
}
