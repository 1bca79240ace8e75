package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the root logger. The zero value logs info-level JSON to
// stderr.
type Options struct {
	Level  string
	Writer io.Writer
}

// New builds the root JSON logger. Every record carries a service attribute
// so taskhive lines stay filterable when logs are aggregated.
func New(opts Options) *slog.Logger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: Level(opts.Level)})
	return slog.New(handler).With("service", "taskhive")
}

// Module derives a per-subsystem logger. The HTTP layer and the assistant tag
// their records this way instead of threading attribute names around.
func Module(root *slog.Logger, name string) *slog.Logger {
	return root.With("module", strings.TrimSpace(name))
}

// Level maps the configured level string to a slog level, defaulting to info.
func Level(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
