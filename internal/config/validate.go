package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "poll_interval",
			Message: "must be positive",
		})
	}

	if cfg.ProgressEpsilonSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "progress_epsilon_seconds",
			Message: "must be positive",
		})
	}

	if cfg.StallThreshold <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stall_threshold",
			Message: "must be positive",
		})
	}

	if cfg.StallThreshold <= cfg.PollInterval {
		errs = append(errs, ValidationError{
			Field:   "stall_threshold",
			Message: "must exceed the poll interval or every tick looks stalled",
		})
	}

	if cfg.HardRecoverAfterStalled <= 0 {
		errs = append(errs, ValidationError{
			Field:   "hard_recover_after_stalled",
			Message: "must be positive",
		})
	}

	if cfg.LoadingGrace < cfg.StallThreshold {
		errs = append(errs, ValidationError{
			Field:   "loading_grace",
			Message: "must be at least the stall threshold; startup legitimately buffers longer than steady state",
		})
	}

	if cfg.RecoveryCooldown <= 0 {
		errs = append(errs, ValidationError{
			Field:   "recovery_cooldown",
			Message: "must be positive",
		})
	}

	if cfg.MaxRecoveryAttempts < 1 {
		errs = append(errs, ValidationError{
			Field:   "max_recovery_attempts",
			Message: "must be at least 1",
		})
	}

	if cfg.RevealDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "reveal_delay",
			Message: "must not be negative",
		})
	}

	if cfg.SeekSettleTolerance > cfg.SeekMatchTolerance {
		errs = append(errs, ValidationError{
			Field:   "seek_settle_tolerance",
			Message: "must not exceed the match tolerance",
		})
	}

	if cfg.SeekMatchTolerance > cfg.SeekRelaxedTolerance {
		errs = append(errs, ValidationError{
			Field:   "seek_match_tolerance",
			Message: "must not exceed the relaxed tolerance",
		})
	}

	if cfg.SeekMaxHold <= cfg.SeekSettleDelay {
		errs = append(errs, ValidationError{
			Field:   "seek_max_hold",
			Message: "must exceed the settle delay",
		})
	}

	if cfg.SegmentRetryInterval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "segment_retry_interval",
			Message: "must be positive",
		})
	}

	if cfg.SegmentMinBufferAhead <= 0 {
		errs = append(errs, ValidationError{
			Field:   "segment_min_buffer_ahead",
			Message: "must be positive",
		})
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: "must be json or text",
		})
	}

	if cfg.PrefsPath == "" {
		errs = append(errs, ValidationError{
			Field:   "prefs_path",
			Message: "is required",
		})
	}

	return errors.Join(errs...)
}
