package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// NewLogger creates a new structured logger based on configuration.
func NewLogger(config LoggingConfig) *slog.Logger {
	var output io.Writer = os.Stdout
	if strings.ToLower(config.Output) == "stderr" {
		output = os.Stderr
	}
	return NewLoggerTo(output, config)
}

// NewLoggerTo is NewLogger writing to w. Output is ignored.
func NewLoggerTo(w io.Writer, config LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
