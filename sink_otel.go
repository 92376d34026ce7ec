package main

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding/gzip"
)

// SinkOTel emits records as OTLP log records. The SDK's batch processor
// queues them and exports in the background, so Emit only pays for building
// the record.
type SinkOTel struct {
	logger   otellog.Logger
	provider *sdklog.LoggerProvider
}

// make sure it implements Sink
var _ Sink = (*SinkOTel)(nil)

func NewSinkOTel(log Logger, opts *Options) (*SinkOTel, error) {
	ctx := context.Background()
	var (
		exporter sdklog.Exporter
		err      error
	)
	switch opts.Output.Protocol {
	case "grpc":
		exporter, err = otlploggrpc.New(ctx, grpcExporterOptions(opts)...)
	case "http":
		exporter, err = otlploghttp.New(ctx, httpExporterOptions(opts)...)
	default:
		return nil, errors.Errorf("unknown protocol: %s", opts.Output.Protocol)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failure configuring otel log exporter")
	}

	var bpOpts []sdklog.BatchProcessorOption
	if opts.Output.BatchTimeout != 0 {
		bpOpts = append(bpOpts, sdklog.WithExportInterval(opts.Output.BatchTimeout))
	}
	if opts.Output.MaxQueueSize != 0 {
		bpOpts = append(bpOpts, sdklog.WithMaxQueueSize(opts.Output.MaxQueueSize))
	}
	if opts.Output.MaxExportBatchSize != 0 {
		bpOpts = append(bpOpts, sdklog.WithExportMaxBatchSize(opts.Output.MaxExportBatchSize))
	}
	if opts.Output.ExportTimeout != 0 {
		bpOpts = append(bpOpts, sdklog.WithExportTimeout(opts.Output.ExportTimeout))
	}

	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(opts.Telemetry.Dataset))
	log.Info("otel sink exporting over %s to %s\n", opts.Output.Protocol, opts.apihost.Host)
	return newSinkOTel(sdklog.NewBatchProcessor(exporter, bpOpts...), res), nil
}

func newSinkOTel(processor sdklog.Processor, res *resource.Resource) *SinkOTel {
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(res),
	)
	return &SinkOTel{
		logger:   provider.Logger(ResourceLibrary, otellog.WithInstrumentationVersion(ResourceVersion)),
		provider: provider,
	}
}

func (s *SinkOTel) Emit(ctx context.Context, msg string, fields map[string]string) error {
	var r otellog.Record
	now := time.Now()
	r.SetTimestamp(now)
	r.SetObservedTimestamp(now)
	r.SetSeverity(otellog.SeverityInfo)
	r.SetSeverityText("INFO")
	r.SetBody(otellog.StringValue(msg))
	for k, v := range fields {
		r.AddAttributes(otellog.String(k, v))
	}
	s.logger.Emit(ctx, r)
	return nil
}

// Close flushes the batch processor and shuts down the exporter.
func (s *SinkOTel) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Wrap(s.provider.Shutdown(ctx), "shutting down otel logger provider")
}

func otelHeaders(opts *Options) map[string]string {
	return map[string]string{
		"x-honeycomb-team":    opts.Telemetry.APIKey,
		"x-honeycomb-dataset": opts.Telemetry.Dataset,
	}
}

func httpExporterOptions(opts *Options) []otlploghttp.Option {
	options := []otlploghttp.Option{
		otlploghttp.WithEndpoint(opts.apihost.Host),
		otlploghttp.WithHeaders(otelHeaders(opts)),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	if opts.Telemetry.Insecure {
		options = append(options, otlploghttp.WithInsecure())
	} else {
		options = append(options, otlploghttp.WithTLSClientConfig(&tls.Config{}))
	}
	return options
}

func grpcExporterOptions(opts *Options) []otlploggrpc.Option {
	options := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(opts.apihost.Host),
		otlploggrpc.WithHeaders(otelHeaders(opts)),
		otlploggrpc.WithCompressor(gzip.Name),
	}
	if opts.Telemetry.Insecure {
		options = append(options, otlploggrpc.WithInsecure())
	} else {
		options = append(options, otlploggrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}
	return options
}
