// Package logging holds the process-wide structured logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// Discarded until Setup runs so library code never writes into the TUI.
var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Options controls where log records go
type Options struct {
	// Path of a JSON log file. Empty disables file logging.
	Path string
	// Verbose also writes human-readable records to stderr at debug level.
	Verbose bool
}

// Setup installs the process logger. The returned closer releases the log
// file, if one was opened.
func Setup(opts Options) (io.Closer, error) {
	var handlers []slog.Handler
	var closer io.Closer = nopCloser{}

	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closer = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if opts.Verbose {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	switch len(handlers) {
	case 0:
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		logger = slog.New(handlers[0])
	default:
		logger = slog.New(fanout(handlers))
	}
	return closer, nil
}

// Logger returns the process logger
func Logger() *slog.Logger {
	return logger
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return logger.With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestID returns the request_id stored in the context, if any.
func RequestID(ctx context.Context) (string, bool) {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID, reqID != ""
}

// FromContext adds request_id if present.
func FromContext(ctx context.Context) *slog.Logger {
	return WithContext(ctx, logger)
}

// WithContext adds the context's request_id, if present, to l.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	if reqID, ok := RequestID(ctx); ok {
		return l.With("request_id", reqID)
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends each record to every handler that accepts its level
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
