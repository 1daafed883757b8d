package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"info level", "info", slog.LevelInfo},
		{"warn level", "warn", slog.LevelWarn},
		{"warning level", "warning", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"invalid defaults to info", "invalid", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
		{"uppercase", "DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
	}{
		{"json to stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text to stderr", LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"defaults", LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := NewLogger(tt.config); logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLoggerTo_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"json", "json", `"pool":"Pool#1"`},
		{"text", "text", "pool=Pool#1"},
		{"default is json", "", `"msg":"pool drained"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerTo(&buf, LoggingConfig{Level: "info", Format: tt.format})
			logger.Info("pool drained", "pool", "Pool#1")

			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestNewLoggerTo_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "text"})

	logger.Info("dropped")
	logger.Warn("kept")

	output := buf.String()
	if strings.Contains(output, "dropped") {
		t.Errorf("info record should be filtered at warn level, got: %s", output)
	}
	if !strings.Contains(output, "kept") {
		t.Errorf("warn record should be written, got: %s", output)
	}
}
