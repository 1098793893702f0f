package addrgo

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with addrgo-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithShard adds a shard field to the logger.
func (l *Logger) WithShard(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", id),
	}
}

// WithResource adds a resource name field to the logger.
func (l *Logger) WithResource(resource string) *Logger {
	return &Logger{
		Logger: l.Logger.With("resource", resource),
	}
}

// LogLoad logs a bundle load operation.
func (l *Logger) LogLoad(ctx context.Context, resource string, cached bool, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bundle load failed",
			"resource", resource,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "bundle load completed",
			"resource", resource,
			"cached", cached,
			"duration", duration,
		)
	}
}

// LogSearch logs an interactive search operation.
func (l *Logger) LogSearch(ctx context.Context, query string, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"query", query,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"query", query,
			"results", resultsFound,
		)
	}
}

// LogPreload logs the outcome of a background preload attempt.
func (l *Logger) LogPreload(ctx context.Context, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "background preload failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "background preload completed",
			"elapsed", elapsed,
		)
	}
}

// LogManifest logs a manifest fetch.
func (l *Logger) LogManifest(ctx context.Context, version string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "manifest fetch failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "manifest fetched",
			"version", version,
		)
	}
}
