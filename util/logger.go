package util

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(NewLogger(os.Stderr, LogLevelInfo, LogFormatText))
}

// NewLogger builds a leveled slog logger writing text or JSON records to w.
func NewLogger(w io.Writer, level LogLevel, format LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.slogLevel()}
	if format == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetLogger replaces the process logger used by the package-level helpers.
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	current.Store(l)
}

// SetLevel rebuilds the process logger on stderr with the given level.
func SetLevel(level LogLevel) {
	current.Store(NewLogger(os.Stderr, level, LogFormatText))
}

func Logger() *slog.Logger {
	return current.Load()
}

// ResolveLogger guarantees a non-nil logger for component code paths.
func ResolveLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Logger()
	}
	return l
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Fatal(msg string, args ...any) {
	Logger().Error(msg, args...)
	os.Exit(1)
}
