package mlog

import "go.uber.org/zap"

// ZapLogger is the zap-backed implementation of Logger.
type ZapLogger struct {
	Sugar *zap.SugaredLogger
}

// NewZapLogger builds a production zap logger at the given level name
// (debug|info|warn|error|fatal), falling back to info on a bad value.
func NewZapLogger(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()

	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &ZapLogger{Sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)                  { l.Sugar.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any)  { l.Sugar.Infof(format, args...) }
func (l *ZapLogger) Error(args ...any)                 { l.Sugar.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.Sugar.Errorf(format, args...) }
func (l *ZapLogger) Warn(args ...any)                  { l.Sugar.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any)  { l.Sugar.Warnf(format, args...) }
func (l *ZapLogger) Debug(args ...any)                 { l.Sugar.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.Sugar.Debugf(format, args...) }
func (l *ZapLogger) Fatal(args ...any)                 { l.Sugar.Fatal(args...) }
func (l *ZapLogger) Fatalf(format string, args ...any) { l.Sugar.Fatalf(format, args...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{Sugar: l.Sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.Sugar.Sync() }
