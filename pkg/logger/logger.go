// Package logger provides the structured logging facade used across the
// engine, backed by log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is the logging interface handed to engine components. All methods
// are context-aware so handlers can pick up trace metadata.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// Named returns a logger whose attributes are grouped under name.
	Named(name string) Logger
}

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// Field constructors.
func String(key, val string) Field          { return Field{Key: key, Value: val} }
func Int(key string, val int) Field         { return Field{Key: key, Value: val} }
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }
func Any(key string, val any) Field         { return Field{Key: key, Value: val} }
func Err(err error) Field                   { return Field{Key: "error", Value: err} }

func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }

type slogLogger struct {
	logger *slog.Logger
}

// New wraps an existing slog.Logger.
func New(l *slog.Logger) Logger {
	return &slogLogger{logger: l}
}

// NewText builds a text-handler logger writing to w at the given level.
// Levels are parsed as in SetLevelString; an unknown level falls back to
// info.
func NewText(w io.Writer, level string) Logger {
	var lv slog.LevelVar
	if parsed, err := parseLevel(level); err == nil {
		lv.Set(parsed)
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &lv})
	return &slogLogger{logger: slog.New(h)}
}

// Nop returns a logger that discards everything. Used as the default when a
// component is constructed without an explicit logger.
func Nop() Logger {
	return &slogLogger{logger: slog.New(slog.DiscardHandler)}
}

func (l *slogLogger) Named(name string) Logger {
	return &slogLogger{logger: l.logger.WithGroup(name)}
}

func (l *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelDebug, msg, convertFields(fields)...)
}

func (l *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, msg, convertFields(fields)...)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, msg, convertFields(fields)...)
}

func (l *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.logger.LogAttrs(ctx, slog.LevelError, msg, convertFields(fields)...)
}

func convertFields(fields []Field) []slog.Attr {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}

var global Logger = NewText(os.Stdout, "info")

// Get returns the process-wide logger.
func Get() Logger { return global }

// SetGlobal replaces the process-wide logger.
func SetGlobal(l Logger) { global = l }

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}
