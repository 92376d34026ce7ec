package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the leveled, printf-style logger used throughout loggen.
// It is for loggen's own diagnostics only; generated records go to a Sink.
type Logger interface {
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	Fatal(format string, v ...interface{})
	Sync()
}

type logger struct {
	s *zap.SugaredLogger
}

// NewLogger builds a console logger on stderr at the given level
// ("debug", "info", "warn", "error"); unknown levels fall back to warn.
func NewLogger(level string) Logger {
	lvl := zapcore.WarnLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.WarnLevel
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return &logger{s: zap.New(core).Sugar()}
}

// NewNopLogger discards everything.
func NewNopLogger() Logger {
	return &logger{s: zap.NewNop().Sugar()}
}

// the format strings in this codebase historically end in a newline; zap adds its own
func trim(format string) string {
	return strings.TrimRight(format, "\n")
}

func (l *logger) Debug(format string, v ...interface{}) {
	l.s.Debugf(trim(format), v...)
}

func (l *logger) Info(format string, v ...interface{}) {
	l.s.Infof(trim(format), v...)
}

func (l *logger) Warn(format string, v ...interface{}) {
	l.s.Warnf(trim(format), v...)
}

func (l *logger) Error(format string, v ...interface{}) {
	l.s.Errorf(trim(format), v...)
}

func (l *logger) Fatal(format string, v ...interface{}) {
	l.s.Fatalf(trim(format), v...)
}

// Sync flushes any buffered log entries.
func (l *logger) Sync() {
	_ = l.s.Sync()
}
