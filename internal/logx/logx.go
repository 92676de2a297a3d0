// Package logx builds the process logger and threads component loggers
// through context so handlers and background tasks share one sink.
package logx

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New constructs the root logger. format is "console" or "json"; level is a
// zerolog level name (unknown names fall back to info). extra, when non-nil,
// receives every line in addition to stderr — the refresh log ring uses this
// so the SSE stream carries the same output the operator sees.
func New(level, format string, extra io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	if extra != nil {
		out = zerolog.MultiLevelWriter(out, extra)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return logger.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or a disabled logger when
// none is present (library code never panics for lack of a logger).
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// Component returns the context logger tagged with a component name.
func Component(ctx context.Context, name string) zerolog.Logger {
	return FromContext(ctx).With().Str("component", name).Logger()
}
