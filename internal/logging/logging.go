// Package logging builds the process logger: slog records to stderr and,
// optionally, to a size-rotated log file, with OpenTelemetry trace
// correlation on every record.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jrick/logrotate/rotator"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for the rotated log file.
const (
	DefaultMaxKB    = 10 * 1024
	DefaultMaxRolls = 3
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Format is text or json. Empty means text.
	Format string
	// File, when set, receives a copy of every record and is rotated at
	// MaxKB keeping MaxRolls old files.
	File     string
	MaxKB    int64
	MaxRolls int
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", s)
	}
}

// New creates a logger writing to w (usually os.Stderr) and to the rotated
// file if one is configured. The returned closer flushes and closes the file.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		r, err := newRotator(opts.File, opts.MaxKB, opts.MaxRolls)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, r)
		closer = r
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, handlerOpts)
	case "json":
		h = slog.NewJSONHandler(w, handlerOpts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("invalid log format %q (valid: text, json)", opts.Format)
	}

	return slog.New(&TraceHandler{Handler: h}), closer, nil
}

func newRotator(path string, maxKB int64, maxRolls int) (*rotator.Rotator, error) {
	if maxKB <= 0 {
		maxKB = DefaultMaxKB
	}
	if maxRolls <= 0 {
		maxRolls = DefaultMaxRolls
	}
	// if the dir is empty the file is in the cwd and there's nothing to create.
	if dir, _ := filepath.Split(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	r, err := rotator.New(path, maxKB, false, maxRolls)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	return r, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TraceHandler wraps an slog.Handler to inject OpenTelemetry trace_id and
// span_id into every record logged with a span in its context.
type TraceHandler struct {
	slog.Handler
}

// Handle implements slog.Handler.
func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: h.Handler.WithGroup(name)}
}
