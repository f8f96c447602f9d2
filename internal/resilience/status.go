// Package resilience implements the authoritative playback status machine.
//
// The machine is the single writer of ResilienceState: health samples, user
// intent, deadline timers, and recovery outcomes all funnel into one reducer.
// A progress tick always wins over a pending stall or recovery deadline
// because timers are cancelled before being rearmed whenever progress lands.
package resilience

// Status is the authoritative playback status for one session.
type Status int

const (
	// StatusStartup is the initial status before first progress.
	StatusStartup Status = iota

	// StatusPlaying means progress is being observed.
	StatusPlaying

	// StatusPaused means the user paused playback. System pauses do not
	// force this status; a starved stream must still escalate to stalling.
	StatusPaused

	// StatusStalling means no progress beyond the stall threshold while
	// playback was expected to be active.
	StatusStalling

	// StatusRecovering means a recovery action is in flight, or recovery is
	// exhausted and awaiting manual intervention.
	StatusRecovering
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusStartup:
		return "startup"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusStalling:
		return "stalling"
	case StatusRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// IsHealthy reports whether the status needs no overlay attention.
func (s Status) IsHealthy() bool {
	return s == StatusPlaying || s == StatusPaused
}

// IsDistressed reports whether playback is stalled or recovering.
func (s Status) IsDistressed() bool {
	return s == StatusStalling || s == StatusRecovering
}

// State is the full resilience state owned by the machine. Snapshots of it
// flow downstream; nothing outside the machine writes it.
type State struct {
	Status             Status
	LastStallToken     uint64
	RecoveryGuardToken uint64
	RecoveryAttempts   int
	CarryRecovery      bool
	Exhausted          bool
}
