// Package reporter adapts a bound playback surface into a normalized,
// de-duplicated stream of playback metrics snapshots.
//
// A snapshot is immutable and complete: consumers always receive the latest
// full picture, never a delta. Identical consecutive snapshots are not
// re-emitted.
package reporter

import (
	"time"

	"github.com/hearthward/playback-sentinel/internal/surface"
)

// PauseIntent classifies why the surface is paused.
type PauseIntent string

const (
	// PauseIntentNone means playback is not paused.
	PauseIntentNone PauseIntent = ""

	// PauseIntentUser means a person paused playback. Only user pauses may
	// freeze the overlay and suppress stall escalation.
	PauseIntentUser PauseIntent = "user"

	// PauseIntentSystem means the surface paused itself: end of media,
	// near-natural end, or network starvation.
	PauseIntentSystem PauseIntent = "system"
)

// Metrics is one complete snapshot of the playback surface.
type Metrics struct {
	MediaKey        string
	PositionSeconds float64
	IsPaused        bool
	IsSeeking       bool
	PauseIntent     PauseIntent
	Diagnostics     *surface.BufferDiagnostics
	At              time.Time
}

// Equal reports field equality, ignoring the observation timestamp.
// Two reads of an unchanged surface are the same snapshot.
func (m Metrics) Equal(o Metrics) bool {
	if m.MediaKey != o.MediaKey ||
		m.PositionSeconds != o.PositionSeconds ||
		m.IsPaused != o.IsPaused ||
		m.IsSeeking != o.IsSeeking ||
		m.PauseIntent != o.PauseIntent {
		return false
	}
	if (m.Diagnostics == nil) != (o.Diagnostics == nil) {
		return false
	}
	if m.Diagnostics != nil && *m.Diagnostics != *o.Diagnostics {
		return false
	}
	return true
}

// Override carries optional field replacements merged onto a fresh base
// snapshot by Report. Nil members leave the base value in place.
type Override struct {
	PositionSeconds *float64
	IsPaused        *bool
	IsSeeking       *bool
	PauseIntent     *PauseIntent
}
