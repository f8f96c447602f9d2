package config

import (
	"flag"
	"fmt"
	"os"
)

// ParseFlags parses command-line flags and returns a Config.
// Returns an error if arguments are invalid.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	// Custom usage message
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `playback-sentinel - playback resilience engine for the household media hub

Usage:
  playback-sentinel [flags]

Health / Stall Detection:
`)
		printFlagCategory([]string{"poll-interval", "progress-epsilon", "stall-threshold", "hard-recover-after", "loading-grace"})

		fmt.Fprintf(os.Stderr, "\nRecovery Policy:\n")
		printFlagCategory([]string{"recovery-cooldown", "max-recovery-attempts", "segment-retry-interval", "segment-min-buffer"})

		fmt.Fprintf(os.Stderr, "\nOverlay:\n")
		printFlagCategory([]string{"reveal-delay", "pause-overlay"})

		fmt.Fprintf(os.Stderr, "\nSeek Coordination:\n")
		printFlagCategory([]string{"seek-max-hold", "seek-settle-delay"})

		fmt.Fprintf(os.Stderr, "\nObservability:\n")
		printFlagCategory([]string{"metrics", "feed", "v", "log-format", "tui"})

		fmt.Fprintf(os.Stderr, "\nPersistence:\n")
		printFlagCategory([]string{"prefs"})

		fmt.Fprintf(os.Stderr, `
Examples:
  # Kiosk daemon with defaults
  playback-sentinel

  # Faster stall detection for a low-latency live feed
  playback-sentinel -stall-threshold 2s -hard-recover-after 1s

  # Operator dashboard in the terminal
  playback-sentinel -tui

`)
	}

	// Health flags
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Metrics poll interval while unpaused")
	flag.Float64Var(&cfg.ProgressEpsilonSeconds, "progress-epsilon", cfg.ProgressEpsilonSeconds, "Minimum position delta (seconds) counted as progress")
	flag.DurationVar(&cfg.StallThreshold, "stall-threshold", cfg.StallThreshold, "No-progress time before a playing stream is stalling")
	flag.DurationVar(&cfg.HardRecoverAfterStalled, "hard-recover-after", cfg.HardRecoverAfterStalled, "Additional no-progress time in stalling before hard recovery")
	flag.DurationVar(&cfg.LoadingGrace, "loading-grace", cfg.LoadingGrace, "No-progress time allowed during startup/recovering before recovery")

	// Recovery flags
	flag.DurationVar(&cfg.RecoveryCooldown, "recovery-cooldown", cfg.RecoveryCooldown, "Minimum spacing between recovery reloads")
	flag.IntVar(&cfg.MaxRecoveryAttempts, "max-recovery-attempts", cfg.MaxRecoveryAttempts, "Recovery attempts per session before surfacing for manual intervention")
	flag.DurationVar(&cfg.SegmentRetryInterval, "segment-retry-interval", cfg.SegmentRetryInterval, "Retry interval for segment-not-found fetches")
	flag.Float64Var(&cfg.SegmentMinBufferAhead, "segment-min-buffer", cfg.SegmentMinBufferAhead, "Buffer-ahead seconds below which segment retries stop")

	// Overlay flags
	flag.DurationVar(&cfg.RevealDelay, "reveal-delay", cfg.RevealDelay, "Overlay reveal debounce")
	flag.BoolVar(&cfg.PauseOverlayEnabled, "pause-overlay", cfg.PauseOverlayEnabled, "Allow the pause overlay")

	// Seek flags
	flag.DurationVar(&cfg.SeekMaxHold, "seek-max-hold", cfg.SeekMaxHold, "Safety-net timeout for an in-flight seek intent")
	flag.DurationVar(&cfg.SeekSettleDelay, "seek-settle-delay", cfg.SeekSettleDelay, "Settle delay before a completed seek returns to idle")

	// Observability flags
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address")
	flag.StringVar(&cfg.FeedAddr, "feed", cfg.FeedAddr, "Decision feed (websocket) listen address")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose (debug) logging")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: json or text")
	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show the operator dashboard TUI")

	// Persistence flags
	flag.StringVar(&cfg.PrefsPath, "prefs", cfg.PrefsPath, "Path to the preference database")

	flag.Parse()

	if flag.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", flag.Arg(0))
	}

	return cfg, nil
}

// printFlagCategory prints usage lines for the named flags.
func printFlagCategory(names []string) {
	for _, name := range names {
		f := flag.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(os.Stderr, "  -%-24s %s (default: %s)\n", f.Name, f.Usage, f.DefValue)
	}
}
