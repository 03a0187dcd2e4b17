// Package mlog defines the logging interface shared by every component of
// the payment pipeline, independent of the concrete backend (see ZapLogger
// in zap.go).
package mlog

import "context"

// Logger is the common structured-logging interface used throughout the
// pipeline. Handlers never depend on zap directly; they depend on Logger.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)

	// WithFields returns a new Logger with the given structured key/value
	// pairs attached to every subsequent line. It leaves the receiver
	// unchanged.
	WithFields(fields ...any) Logger

	Sync() error
}

type loggerContextKey struct{}

// ContextWithLogger returns a context carrying logger for retrieval via
// NewLoggerFromContext.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// NewLoggerFromContext extracts the Logger stored by ContextWithLogger, or a
// no-op logger if none is present.
func NewLoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return l
	}

	return &NoneLogger{}
}

// NoneLogger discards everything. Used as a safe default when no logger was
// wired into the context — e.g. in unit tests that don't care about logs.
type NoneLogger struct{}

func (n *NoneLogger) Info(args ...any)                  {}
func (n *NoneLogger) Infof(format string, args ...any)  {}
func (n *NoneLogger) Error(args ...any)                 {}
func (n *NoneLogger) Errorf(format string, args ...any) {}
func (n *NoneLogger) Warn(args ...any)                  {}
func (n *NoneLogger) Warnf(format string, args ...any)  {}
func (n *NoneLogger) Debug(args ...any)                 {}
func (n *NoneLogger) Debugf(format string, args ...any) {}
func (n *NoneLogger) Fatal(args ...any)                 {}
func (n *NoneLogger) Fatalf(format string, args ...any) {}
func (n *NoneLogger) WithFields(fields ...any) Logger   { return n }
func (n *NoneLogger) Sync() error                       { return nil }
