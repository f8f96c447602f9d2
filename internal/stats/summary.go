package stats

import (
	"fmt"
	"time"
)

// Quantiles holds percentile values, in seconds, for one distribution.
type Quantiles struct {
	Samples int64
	P50     float64
	P90     float64
	P99     float64
}

// Summary is a point-in-time snapshot of one session's resilience stats.
type Summary struct {
	SessionID string
	MediaKey  string
	Uptime    time.Duration

	ProgressTicks  int64
	StallsDetected int64

	RecoveriesTriggered  int64
	RecoveriesSuppressed int64
	RecoveryExhaustions  int64

	SeeksCommitted int64
	SeeksCompleted int64
	SeeksExpired   int64

	SegmentRetries   int64
	SegmentRecovered int64
	SegmentSkips     int64

	OverlayReveals int64

	StallDuration Quantiles
	SeekLatency   Quantiles
	RecoveryDelay Quantiles
}

// Healthy reports whether the session looks trouble-free: no stall or
// recovery activity since start.
func (s Summary) Healthy() bool {
	return s.StallsDetected == 0 &&
		s.RecoveriesTriggered == 0 &&
		s.SegmentSkips == 0
}

// SeekCompletionRate returns completed/committed, or 1 when no seeks were
// committed.
func (s Summary) SeekCompletionRate() float64 {
	if s.SeeksCommitted == 0 {
		return 1
	}
	return float64(s.SeeksCompleted) / float64(s.SeeksCommitted)
}

// String renders a one-line operator summary.
func (s Summary) String() string {
	return fmt.Sprintf("session=%s media=%s up=%s ticks=%d stalls=%d recoveries=%d seeks=%d/%d skips=%d",
		s.SessionID, s.MediaKey, s.Uptime.Round(time.Second),
		s.ProgressTicks, s.StallsDetected, s.RecoveriesTriggered,
		s.SeeksCompleted, s.SeeksCommitted, s.SegmentSkips)
}
