package types

import (
	"log/slog"
	"os"
)

// SlogLogger adapts a *slog.Logger to the Logger interface. All process
// entrypoints build one of these over a JSON handler.
type SlogLogger struct {
	inner *slog.Logger
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(inner *slog.Logger) *SlogLogger {
	return &SlogLogger{inner: inner}
}

// NewJSONLogger builds a JSON-emitting logger at the given level with the
// service name attached to every record.
func NewJSONLogger(service, level string) *SlogLogger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return &SlogLogger{inner: slog.New(handler).With("service", service)}
}

func (l *SlogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{inner: l.inner.With(args...)}
}

var _ Logger = (*SlogLogger)(nil)
