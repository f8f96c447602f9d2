// Package logging provides structured logging and the named-event sink for
// playback-sentinel. The engine core never blocks on log delivery: engine
// events go through Sink, which drops under backpressure instead of stalling
// a playback callback.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelEnvVar overrides the configured log level when set, so a kiosk can be
// flipped to debug without touching its service file.
const LevelEnvVar = "PLAYBACK_SENTINEL_LOG_LEVEL"

// NewLogger creates the daemon logger writing to stderr. Format is "json"
// (the default) or "text". Verbose forces debug; otherwise the level comes
// from LevelEnvVar when set, falling back to the level argument.
func NewLogger(format, level string, verbose bool) *slog.Logger {
	if env := os.Getenv(LevelEnvVar); env != "" {
		level = env
	}
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(newHandler(os.Stderr, format, &slog.HandlerOptions{
		Level: logLevel,
		// Source locations only matter when chasing engine internals.
		AddSource: logLevel == slog.LevelDebug,
	}))
}

// NewLoggerWithWriter creates a logger writing to w. Used by tests.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	return slog.New(newHandler(w, format, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel converts a string level to slog.Level. Unknown values fall back
// to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
