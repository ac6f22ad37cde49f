// Package logging wraps log/slog with component-scoped loggers and a
// file-backed handler so interactive output stays clean while diagnostics
// land in the state directory.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type componentKey struct{}

var (
	mu      sync.Mutex
	logger  = slog.New(slog.NewTextHandler(io.Discard, nil))
	logFile *os.File
	level   = new(slog.LevelVar)
	verbose bool
)

// Init directs log output to <stateDir>/patchllm.log. Sessions share one
// file; the session ID travels as an attribute, not a file name.
func Init(stateDir, sessionID string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return err //nolint:wrapcheck // caller adds context
	}
	f, err := os.OpenFile(filepath.Join(stateDir, "patchllm.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err //nolint:wrapcheck // caller adds context
	}
	logFile = f

	var w io.Writer = f
	if verbose {
		w = io.MultiWriter(f, os.Stderr)
	}
	base := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	if sessionID != "" {
		base = base.With(slog.String("session_id", sessionID))
	}
	logger = base
	return nil
}

// SetLevel adjusts the minimum level for all subsequent records.
func SetLevel(l slog.Level) { level.Set(l) }

// SetVerbose mirrors log records to stderr at debug level, for --verbose
// runs. It is sticky: a later Init keeps the stderr mirror.
func SetVerbose() {
	mu.Lock()
	defer mu.Unlock()
	verbose = true
	level.Set(slog.LevelDebug)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Close flushes and closes the log file, if one was opened.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// WithComponent tags the context so records carry a component attribute.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

func fromContext(ctx context.Context) *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if c, ok := ctx.Value(componentKey{}).(string); ok && c != "" {
		return l.With(slog.String("component", c))
	}
	return l
}

// Debug logs at debug level with the context's component attribute.
func Debug(ctx context.Context, msg string, args ...any) { fromContext(ctx).Debug(msg, args...) }

// Info logs at info level with the context's component attribute.
func Info(ctx context.Context, msg string, args ...any) { fromContext(ctx).Info(msg, args...) }

// Warn logs at warn level with the context's component attribute.
func Warn(ctx context.Context, msg string, args ...any) { fromContext(ctx).Warn(msg, args...) }

// Error logs at error level with the context's component attribute.
func Error(ctx context.Context, msg string, args ...any) { fromContext(ctx).Error(msg, args...) }

// LogDuration logs msg at the given level with a duration_ms attribute
// measured from start.
func LogDuration(ctx context.Context, l slog.Level, msg string, start time.Time, args ...any) {
	args = append(args, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	fromContext(ctx).Log(ctx, l, msg, args...)
}
