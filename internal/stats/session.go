// Package stats provides per-session and aggregated playback resilience
// statistics:
// - Stall counts and stall-duration percentiles (T-Digest)
// - Recovery attempts, suppressions, and reload latency
// - Seek commit/complete counts and completion-latency percentiles
// - Segment retry outcomes
// - Overlay reveal counts
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/influxdata/tdigest"
)

// DigestCompression is the T-Digest compression used for all latency
// distributions. 100 keeps memory small with good tail accuracy.
const DigestCompression = 100

// SessionStats holds resilience statistics for a single playback session.
//
// Thread-safe: counters are atomics, digests are mutex-protected.
type SessionStats struct {
	SessionID string
	MediaKey  string
	StartTime time.Time

	// Health counters (atomic, lock-free)
	ProgressTicks  atomic.Int64
	StallsDetected atomic.Int64

	// Recovery counters
	RecoveriesTriggered  atomic.Int64
	RecoveriesSuppressed atomic.Int64
	RecoveryExhaustions  atomic.Int64

	// Seek counters
	SeeksCommitted atomic.Int64
	SeeksCompleted atomic.Int64
	SeeksExpired   atomic.Int64

	// Segment fetch counters
	SegmentRetries   atomic.Int64
	SegmentRecovered atomic.Int64
	SegmentSkips     atomic.Int64

	// Overlay counters
	OverlayReveals atomic.Int64

	// Latency distributions
	mu              sync.Mutex
	stallDurations  *tdigest.TDigest // seconds from stall detection to next progress
	seekLatencies   *tdigest.TDigest // seconds from commit to intent cleared
	recoveryDelays  *tdigest.TDigest // seconds from recovery trigger to next progress
	stallSamples    int64
	seekSamples     int64
	recoverySamples int64
}

// NewSessionStats creates stats for one playback session.
func NewSessionStats(sessionID, mediaKey string, start time.Time) *SessionStats {
	return &SessionStats{
		SessionID:      sessionID,
		MediaKey:       mediaKey,
		StartTime:      start,
		stallDurations: tdigest.NewWithCompression(DigestCompression),
		seekLatencies:  tdigest.NewWithCompression(DigestCompression),
		recoveryDelays: tdigest.NewWithCompression(DigestCompression),
	}
}

// RecordStallDuration folds one resolved stall into the distribution.
func (s *SessionStats) RecordStallDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stallDurations.Add(d.Seconds(), 1)
	s.stallSamples++
}

// RecordSeekLatency folds one completed seek into the distribution.
func (s *SessionStats) RecordSeekLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekLatencies.Add(d.Seconds(), 1)
	s.seekSamples++
}

// RecordRecoveryDelay folds one recovered reload into the distribution.
func (s *SessionStats) RecordRecoveryDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoveryDelays.Add(d.Seconds(), 1)
	s.recoverySamples++
}

// Snapshot computes a point-in-time summary.
func (s *SessionStats) Snapshot(now time.Time) Summary {
	sum := Summary{
		SessionID: s.SessionID,
		MediaKey:  s.MediaKey,
		Uptime:    now.Sub(s.StartTime),

		ProgressTicks:  s.ProgressTicks.Load(),
		StallsDetected: s.StallsDetected.Load(),

		RecoveriesTriggered:  s.RecoveriesTriggered.Load(),
		RecoveriesSuppressed: s.RecoveriesSuppressed.Load(),
		RecoveryExhaustions:  s.RecoveryExhaustions.Load(),

		SeeksCommitted: s.SeeksCommitted.Load(),
		SeeksCompleted: s.SeeksCompleted.Load(),
		SeeksExpired:   s.SeeksExpired.Load(),

		SegmentRetries:   s.SegmentRetries.Load(),
		SegmentRecovered: s.SegmentRecovered.Load(),
		SegmentSkips:     s.SegmentSkips.Load(),

		OverlayReveals: s.OverlayReveals.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stallSamples > 0 {
		sum.StallDuration = quantiles(s.stallDurations, s.stallSamples)
	}
	if s.seekSamples > 0 {
		sum.SeekLatency = quantiles(s.seekLatencies, s.seekSamples)
	}
	if s.recoverySamples > 0 {
		sum.RecoveryDelay = quantiles(s.recoveryDelays, s.recoverySamples)
	}
	return sum
}

func quantiles(d *tdigest.TDigest, samples int64) Quantiles {
	return Quantiles{
		Samples: samples,
		P50:     d.Quantile(0.50),
		P90:     d.Quantile(0.90),
		P99:     d.Quantile(0.99),
	}
}
