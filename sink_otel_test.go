package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type exportedRecord struct {
	body     string
	severity otellog.Severity
	attrs    map[string]string
}

// memExporter keeps what it is handed; the SDK may reuse records after
// Export returns, so they are copied out immediately.
type memExporter struct {
	mut      sync.Mutex
	records  []exportedRecord
	shutdown bool
}

func (e *memExporter) Export(ctx context.Context, records []sdklog.Record) error {
	e.mut.Lock()
	defer e.mut.Unlock()
	for _, r := range records {
		rec := exportedRecord{
			body:     r.Body().AsString(),
			severity: r.Severity(),
			attrs:    map[string]string{},
		}
		r.WalkAttributes(func(kv otellog.KeyValue) bool {
			rec.attrs[kv.Key] = kv.Value.AsString()
			return true
		})
		e.records = append(e.records, rec)
	}
	return nil
}

func (e *memExporter) Shutdown(ctx context.Context) error {
	e.mut.Lock()
	defer e.mut.Unlock()
	e.shutdown = true
	return nil
}

func (e *memExporter) ForceFlush(ctx context.Context) error { return nil }

func TestSinkOTel(t *testing.T) {
	exp := &memExporter{}
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("loggen-test"))
	s := newSinkOTel(sdklog.NewSimpleProcessor(exp), res)

	fields := map[string]string{"counter": "1", "worker": "worker-0"}
	require.NoError(t, s.Emit(context.Background(), "hello", fields))
	clear(fields)
	require.NoError(t, s.Close())

	exp.mut.Lock()
	defer exp.mut.Unlock()
	assert.True(t, exp.shutdown)
	require.Len(t, exp.records, 1)
	rec := exp.records[0]
	assert.Equal(t, "hello", rec.body)
	assert.Equal(t, otellog.SeverityInfo, rec.severity)
	assert.Equal(t, map[string]string{"counter": "1", "worker": "worker-0"}, rec.attrs)
}

func TestOTelExporterOptions(t *testing.T) {
	opts := newOptions()
	opts.Telemetry.APIKey = "key"
	opts.Telemetry.Dataset = "ds"
	u, err := parseHost("localhost", true, "4317")
	require.NoError(t, err)
	opts.apihost = u
	opts.Telemetry.Insecure = true

	assert.Equal(t, map[string]string{"x-honeycomb-team": "key", "x-honeycomb-dataset": "ds"}, otelHeaders(opts))
	assert.Len(t, grpcExporterOptions(opts), 4)
	assert.Len(t, httpExporterOptions(opts), 4)
}

func TestNewSinkOTel_UnknownProtocol(t *testing.T) {
	opts := newOptions()
	opts.Output.Protocol = "carrier-pigeon"
	_, err := NewSinkOTel(NewNopLogger(), opts)
	assert.Error(t, err)
}
