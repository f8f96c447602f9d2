// Package config provides configuration management for playback-sentinel.
package config

import "time"

// Config holds all configuration options for the playback engine daemon.
type Config struct {
	// Health / progress detection
	PollInterval           time.Duration `json:"poll_interval"`
	ProgressEpsilonSeconds float64       `json:"progress_epsilon_seconds"`

	// Resilience state machine
	StallThreshold          time.Duration `json:"stall_threshold"`
	HardRecoverAfterStalled time.Duration `json:"hard_recover_after_stalled"`
	LoadingGrace            time.Duration `json:"loading_grace"`
	RecoveryCooldown        time.Duration `json:"recovery_cooldown"`
	MaxRecoveryAttempts     int           `json:"max_recovery_attempts"`

	// Overlay
	RevealDelay         time.Duration `json:"reveal_delay"`
	PauseOverlayEnabled bool          `json:"pause_overlay_enabled"`

	// Seek coordination
	SeekMatchTolerance   float64       `json:"seek_match_tolerance"`
	SeekSettleTolerance  float64       `json:"seek_settle_tolerance"`
	SeekRelaxedTolerance float64       `json:"seek_relaxed_tolerance"`
	SeekRelaxedGrace     time.Duration `json:"seek_relaxed_grace"`
	SeekSettleDelay      time.Duration `json:"seek_settle_delay"`
	SeekMaxHold          time.Duration `json:"seek_max_hold"`

	// Segment-fetch recovery
	SegmentRetryInterval  time.Duration `json:"segment_retry_interval"`
	SegmentMinBufferAhead float64       `json:"segment_min_buffer_ahead"`
	SegmentSkipPadding    float64       `json:"segment_skip_padding"`

	// Observability
	MetricsAddr string `json:"metrics_addr"`
	FeedAddr    string `json:"feed_addr"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Persistence
	PrefsPath string `json:"prefs_path"`
}

// DefaultConfig returns a Config with the engine's default timings.
func DefaultConfig() *Config {
	return &Config{
		// Health
		PollInterval:           100 * time.Millisecond,
		ProgressEpsilonSeconds: 0.25,

		// Resilience
		StallThreshold:          5 * time.Second,
		HardRecoverAfterStalled: 2 * time.Second,
		LoadingGrace:            15 * time.Second,
		RecoveryCooldown:        4 * time.Second,
		MaxRecoveryAttempts:     5,

		// Overlay
		RevealDelay:         300 * time.Millisecond,
		PauseOverlayEnabled: true,

		// Seek
		SeekMatchTolerance:   0.5,
		SeekSettleTolerance:  0.15,
		SeekRelaxedTolerance: 0.75,
		SeekRelaxedGrace:     650 * time.Millisecond,
		SeekSettleDelay:      100 * time.Millisecond,
		SeekMaxHold:          2500 * time.Millisecond,

		// Segment recovery
		SegmentRetryInterval:  2 * time.Second,
		SegmentMinBufferAhead: 2.0,
		SegmentSkipPadding:    2.0,

		// Observability
		MetricsAddr: "0.0.0.0:17092",
		FeedAddr:    "0.0.0.0:17093",
		Verbose:     false,
		LogFormat:   "json",

		// Persistence
		PrefsPath: "playback-sentinel.db",
	}
}
