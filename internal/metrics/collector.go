// Package metrics provides Prometheus metrics for playback-sentinel.
//
// Metrics cover the full resilience pipeline: health ticks, stall and
// recovery activity, seek latency, segment-fetch retries, and overlay
// decisions. One collector serves the whole hub; sessions are distinguished
// by the media_key label on the info gauge only, keeping cardinality flat.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Panel 1: Session Overview ---
var (
	sentinelInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_info",
			Help: "Information about the active session (value always 1)",
		},
		[]string{"version", "session_id", "media_key"},
	)

	sentinelStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_status",
			Help: "Current resilience status (1 for the active status, 0 otherwise)",
		},
		[]string{"status"},
	)

	sentinelUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_session_uptime_seconds",
			Help: "Seconds since the current session started",
		},
	)
)

// --- Panel 2: Playback Health ---
var (
	sentinelPositionSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_position_seconds",
			Help: "Last observed playback position",
		},
	)

	sentinelBufferAheadSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_buffer_ahead_seconds",
			Help: "Buffered media ahead of the playhead",
		},
	)

	sentinelDroppedFrames = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_dropped_frames",
			Help: "Dropped frames reported by the playback surface",
		},
	)

	sentinelProgressTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_progress_ticks_total",
			Help: "Total confirmed forward-progress ticks",
		},
	)
)

// --- Panel 3: Stalls & Recovery ---
var (
	sentinelStallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_stalls_detected_total",
			Help: "Total stall detections",
		},
	)

	sentinelStallDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playback_sentinel_stall_duration_seconds",
			Help:    "Time from stall detection to the next confirmed progress",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	sentinelRecoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_sentinel_recoveries_triggered_total",
			Help: "Total recovery reloads, by trigger reason",
		},
		[]string{"reason"},
	)

	sentinelRecoveriesSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_recoveries_suppressed_total",
			Help: "Recovery triggers dropped by the cooldown gate",
		},
	)

	sentinelRecoveryExhaustionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_recovery_exhaustions_total",
			Help: "Times the per-session recovery attempt budget ran out",
		},
	)

	sentinelRecoveryAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_recovery_attempts",
			Help: "Recovery attempts consumed in the current session",
		},
	)
)

// --- Panel 4: Seeks ---
var (
	sentinelSeeksCommittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_seeks_committed_total",
			Help: "Total committed seek intents",
		},
	)

	sentinelSeeksExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_seeks_expired_total",
			Help: "Seek intents force-cleared by the max-hold timeout",
		},
	)

	sentinelSeekCompletionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playback_sentinel_seek_completion_seconds",
			Help:    "Time from seek commit to intent cleared",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
	)
)

// --- Panel 5: Segment Fetch & Overlay ---
var (
	sentinelSegmentRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_segment_retries_total",
			Help: "Total refetch attempts for not-found segments",
		},
	)

	sentinelSegmentRecoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_segment_recovered_total",
			Help: "Not-found segments that became available on retry",
		},
	)

	sentinelSegmentSkipsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_segment_skips_total",
			Help: "Forward skips past permanently missing segments",
		},
	)

	sentinelOverlayVisible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playback_sentinel_overlay_visible",
			Help: "Whether the buffering overlay is currently visible (0/1)",
		},
	)

	sentinelOverlayRevealsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playback_sentinel_overlay_reveals_total",
			Help: "Total overlay reveals",
		},
	)
)

// statusNames is the fixed label set for the status gauge. Enumerated up
// front so scrapes always see every series.
var statusNames = []string{"startup", "playing", "paused", "stalling", "recovering"}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
}

// Collector owns registration and provides typed recording methods. All
// methods are safe for concurrent use.
type Collector struct {
	cfg CollectorConfig

	mu           sync.Mutex
	sessionStart time.Time
	infoLabels   prometheus.Labels
}

// NewCollector creates a collector registered on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Used by tests to avoid duplicate registration panics.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	registry.MustRegister(
		sentinelInfo,
		sentinelStatus,
		sentinelUptimeSeconds,

		sentinelPositionSeconds,
		sentinelBufferAheadSeconds,
		sentinelDroppedFrames,
		sentinelProgressTicksTotal,

		sentinelStallsTotal,
		sentinelStallDurationSeconds,
		sentinelRecoveriesTotal,
		sentinelRecoveriesSuppressedTotal,
		sentinelRecoveryExhaustionsTotal,
		sentinelRecoveryAttempts,

		sentinelSeeksCommittedTotal,
		sentinelSeeksExpiredTotal,
		sentinelSeekCompletionSeconds,

		sentinelSegmentRetriesTotal,
		sentinelSegmentRecoveredTotal,
		sentinelSegmentSkipsTotal,
		sentinelOverlayVisible,
		sentinelOverlayRevealsTotal,
	)

	for _, name := range statusNames {
		sentinelStatus.WithLabelValues(name).Set(0)
	}

	return &Collector{cfg: cfg}
}

// SessionStarted points the info gauge at the new session and resets the
// per-session gauges.
func (c *Collector) SessionStarted(sessionID, mediaKey string, start time.Time) {
	c.mu.Lock()
	if c.infoLabels != nil {
		sentinelInfo.Delete(c.infoLabels)
	}
	c.infoLabels = prometheus.Labels{
		"version":    c.cfg.Version,
		"session_id": sessionID,
		"media_key":  mediaKey,
	}
	c.sessionStart = start
	c.mu.Unlock()

	sentinelInfo.With(c.infoLabels).Set(1)
	sentinelUptimeSeconds.Set(0)
	sentinelRecoveryAttempts.Set(0)
	sentinelOverlayVisible.Set(0)
}

// TickUptime refreshes the uptime gauge.
func (c *Collector) TickUptime(now time.Time) {
	c.mu.Lock()
	start := c.sessionStart
	c.mu.Unlock()
	if !start.IsZero() {
		sentinelUptimeSeconds.Set(now.Sub(start).Seconds())
	}
}

// SetStatus flips the status gauge set so exactly one series reads 1.
func (c *Collector) SetStatus(status string) {
	for _, name := range statusNames {
		v := 0.0
		if name == status {
			v = 1
		}
		sentinelStatus.WithLabelValues(name).Set(v)
	}
}

// ObservePlayback records the latest metrics snapshot fields.
func (c *Collector) ObservePlayback(positionSeconds, bufferAheadSeconds float64, droppedFrames int64) {
	sentinelPositionSeconds.Set(positionSeconds)
	sentinelBufferAheadSeconds.Set(bufferAheadSeconds)
	sentinelDroppedFrames.Set(float64(droppedFrames))
}

// RecordProgressTick counts one confirmed forward-progress tick.
func (c *Collector) RecordProgressTick() {
	sentinelProgressTicksTotal.Inc()
}

// RecordStall counts one stall detection.
func (c *Collector) RecordStall() {
	sentinelStallsTotal.Inc()
}

// RecordStallDuration observes the time a resolved stall lasted.
func (c *Collector) RecordStallDuration(d time.Duration) {
	sentinelStallDurationSeconds.Observe(d.Seconds())
}

// RecordRecovery counts one executed recovery reload.
func (c *Collector) RecordRecovery(reason string, attempt int) {
	sentinelRecoveriesTotal.WithLabelValues(reason).Inc()
	sentinelRecoveryAttempts.Set(float64(attempt))
}

// RecordRecoverySuppressed counts a trigger dropped by the cooldown gate.
func (c *Collector) RecordRecoverySuppressed() {
	sentinelRecoveriesSuppressedTotal.Inc()
}

// RecordRecoveryExhaustion counts an exhausted attempt budget.
func (c *Collector) RecordRecoveryExhaustion() {
	sentinelRecoveryExhaustionsTotal.Inc()
}

// RecordSeekCommitted counts one committed seek intent.
func (c *Collector) RecordSeekCommitted() {
	sentinelSeeksCommittedTotal.Inc()
}

// RecordSeekCompleted observes a completed seek's latency.
func (c *Collector) RecordSeekCompleted(d time.Duration) {
	sentinelSeekCompletionSeconds.Observe(d.Seconds())
}

// RecordSeekExpired counts one intent cleared by the max-hold timeout.
func (c *Collector) RecordSeekExpired() {
	sentinelSeeksExpiredTotal.Inc()
}

// RecordSegmentRetry counts one refetch attempt.
func (c *Collector) RecordSegmentRetry() {
	sentinelSegmentRetriesTotal.Inc()
}

// RecordSegmentRecovered counts one segment that turned up on retry.
func (c *Collector) RecordSegmentRecovered() {
	sentinelSegmentRecoveredTotal.Inc()
}

// RecordSegmentSkip counts one forward skip past a missing segment.
func (c *Collector) RecordSegmentSkip() {
	sentinelSegmentSkipsTotal.Inc()
}

// SetOverlayVisible tracks visibility and counts reveals on the rising edge.
func (c *Collector) SetOverlayVisible(visible bool) {
	if visible {
		sentinelOverlayVisible.Set(1)
		sentinelOverlayRevealsTotal.Inc()
	} else {
		sentinelOverlayVisible.Set(0)
	}
}
