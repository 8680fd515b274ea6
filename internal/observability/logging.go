// Package observability provides the process-wide logging and metrics
// plumbing.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level sets the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Format is "json" or "text". JSON is the production default.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// NewLogger builds the process slog.Logger. Empty or unknown level and
// format values fall back to "info" and "json".
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}
