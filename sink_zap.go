package main

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SinkZap writes records as JSON lines shaped like logstash-logback-encoder
// output (@timestamp, @version, level, message, then the context fields).
type SinkZap struct {
	logger *zap.Logger
	ws     *zapcore.BufferedWriteSyncer
	out    io.WriteCloser
}

// make sure it implements Sink
var _ Sink = (*SinkZap)(nil)

func NewSinkZap(out io.WriteCloser) *SinkZap {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "@timestamp",
		LevelKey:       "level",
		NameKey:        "logger_name",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	ws := &zapcore.BufferedWriteSyncer{
		WS:            zapcore.AddSync(out),
		Size:          256 * 1024,
		FlushInterval: time.Second,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapcore.InfoLevel)
	logger := zap.New(core).Named("loggen").With(zap.String("@version", "1"))
	return &SinkZap{logger: logger, ws: ws, out: out}
}

func (s *SinkZap) Emit(ctx context.Context, msg string, fields map[string]string) error {
	zfs := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfs = append(zfs, zap.String(k, v))
	}
	s.logger.Info(msg, zfs...)
	return nil
}

func (s *SinkZap) Close() error {
	var result error
	if err := s.ws.Stop(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.out.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}
