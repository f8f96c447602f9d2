package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

// =============================================================================
// NewLogger / parseLevel
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLoggerWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "info")

	logger.Info("session_started", "media_key", "movie-1")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "session_started" {
		t.Errorf("msg = %v, want session_started", record["msg"])
	}
	if record["media_key"] != "movie-1" {
		t.Errorf("media_key = %v, want movie-1", record["media_key"])
	}
}

func TestNewLoggerWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "info")

	logger.Info("session_started")

	if !strings.Contains(buf.String(), "session_started") {
		t.Errorf("text output missing message: %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "json", "warn")

	logger.Info("suppressed")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info record leaked past warn level: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestNewLoggerLevelEnvOverride(t *testing.T) {
	t.Setenv(LevelEnvVar, "error")
	logger := NewLogger("json", "info", false)

	if logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn enabled despite error-level env override")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error not enabled under error-level env override")
	}
}

func TestVerboseOutranksEnvLevel(t *testing.T) {
	t.Setenv(LevelEnvVar, "error")
	logger := NewLogger("json", "info", true)

	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose should force debug regardless of env level")
	}
}
