package reporter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/surface"
)

const (
	// DefaultPollInterval is how often the surface is sampled while unpaused.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultNearEndSeconds is the remaining-time window inside which a pause
	// is classified as the system winding down, not a user action.
	DefaultNearEndSeconds = 1.5

	pollTimerName = "reporter.poll"
)

// Config holds configuration for creating a new Reporter.
type Config struct {
	MediaKey string
	Surface  *surface.Surface
	Clock    clock.Clock
	Logger   *slog.Logger
	Events   *logging.Sink

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration

	// NearEndSeconds defaults to DefaultNearEndSeconds.
	NearEndSeconds float64

	// OnMetrics receives every emitted (post-dedup) snapshot.
	OnMetrics func(Metrics)
}

// Reporter normalizes a playback surface into a metrics stream. It emits on
// every observed change (native notifications when the surface has them) and
// on a fixed poll interval while not paused.
type Reporter struct {
	cfg    Config
	timers *clock.Group

	mu          sync.Mutex
	last        *Metrics
	pendingSeek *float64
	unsubscribe func()
	closed      bool

	// selfPaused marks a pause we issued ourselves during a hard reset.
	// Such a pause is classified as system intent until the surface
	// unpauses: recovery must not read as the user freezing playback.
	selfPaused bool
}

// New creates a Reporter. Call Start to begin observation.
func New(cfg Config) *Reporter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.NearEndSeconds <= 0 {
		cfg.NearEndSeconds = DefaultNearEndSeconds
	}
	return &Reporter{
		cfg:    cfg,
		timers: clock.NewGroup(cfg.Clock),
	}
}

// Start subscribes to the surface's native change notifications when
// available and arms the polling fallback.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.cfg.Surface != nil && r.cfg.Surface.Subscribe != nil && r.unsubscribe == nil {
		r.unsubscribe = r.cfg.Surface.Subscribe(r.onSurfaceChange)
	}
	r.mu.Unlock()

	r.Report(nil)
	r.armPoll()
}

// Close unsubscribes and clears all timers. The reporter emits nothing after
// Close returns.
func (r *Reporter) Close() {
	r.mu.Lock()
	r.closed = true
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	r.timers.Close()
}

// MediaKey returns the media identity key this reporter is scoped to.
func (r *Reporter) MediaKey() string {
	return r.cfg.MediaKey
}

// Report reads a fresh base snapshot from the surface, merges the optional
// override onto it, and emits it unless it equals the previous snapshot.
// Returns the snapshot that stands after the call (emitted or deduplicated).
func (r *Reporter) Report(override *Override) Metrics {
	m := r.readSnapshot()

	if override != nil {
		if override.PositionSeconds != nil {
			m.PositionSeconds = *override.PositionSeconds
		}
		if override.IsPaused != nil {
			m.IsPaused = *override.IsPaused
		}
		if override.IsSeeking != nil {
			m.IsSeeking = *override.IsSeeking
		}
		if override.PauseIntent != nil {
			m.PauseIntent = *override.PauseIntent
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return m
	}
	if r.last != nil && r.last.Equal(m) {
		last := *r.last
		r.mu.Unlock()
		return last
	}
	r.last = &m
	onMetrics := r.cfg.OnMetrics
	r.mu.Unlock()

	if onMetrics != nil {
		onMetrics(m)
	}
	return m
}

// Last returns the most recently emitted snapshot, or false if none yet.
func (r *Reporter) Last() (Metrics, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Metrics{}, false
	}
	return *r.last, true
}

// QueueSeek records a pending seek target to be applied when the surface
// can accept it.
func (r *Reporter) QueueSeek(seconds float64) {
	r.mu.Lock()
	r.pendingSeek = &seconds
	r.mu.Unlock()
}

// PendingSeek returns the queued seek target, or false if none.
func (r *Reporter) PendingSeek() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingSeek == nil {
		return 0, false
	}
	return *r.pendingSeek, true
}

// ApplyPendingSeek applies the queued seek target if the surface is
// available, clears the queue, and reports metrics. Returns false when the
// surface cannot seek yet; the caller should retry later. A false return is
// not an error.
func (r *Reporter) ApplyPendingSeek() bool {
	r.mu.Lock()
	if r.pendingSeek == nil {
		r.mu.Unlock()
		return true
	}
	target := *r.pendingSeek
	r.mu.Unlock()

	if r.cfg.Surface == nil || !r.cfg.Surface.CanSeek() {
		return false
	}
	if err := r.cfg.Surface.SeekTo(target); err != nil {
		if r.cfg.Logger != nil {
			r.cfg.Logger.Warn("pending_seek_failed",
				"media_key", r.cfg.MediaKey,
				"target", target,
				"error", err,
			)
		}
		return false
	}

	r.mu.Lock()
	r.pendingSeek = nil
	r.mu.Unlock()

	r.Report(nil)
	return true
}

// HardResetRequest describes a recovery-driven reload of the surface.
type HardResetRequest struct {
	Reason        string
	SeekToSeconds float64
}

// HardReset pauses the surface, queues the reload seek target, forces a
// reload, and reports metrics. Used by the recovery orchestrator.
func (r *Reporter) HardReset(req HardResetRequest) error {
	s := r.cfg.Surface
	if s == nil || !s.CanReload() {
		return fmt.Errorf("hard reset %q: %w", req.Reason, surface.ErrCapabilityMissing)
	}

	r.mu.Lock()
	r.selfPaused = true
	r.mu.Unlock()

	if s.Pause != nil {
		if err := s.Pause(); err != nil && r.cfg.Logger != nil {
			r.cfg.Logger.Warn("hard_reset_pause_failed",
				"media_key", r.cfg.MediaKey,
				"error", err,
			)
		}
	}

	r.QueueSeek(req.SeekToSeconds)

	err := s.HardReload(surface.ReloadRequest{
		Reason:         req.Reason,
		SeekToIntentMS: int64(req.SeekToSeconds * 1000),
	})
	if err != nil {
		return fmt.Errorf("hard reset %q: %w", req.Reason, err)
	}

	r.cfg.Events.Emit("reporter.hard-reset",
		"media_key", r.cfg.MediaKey,
		"reason", req.Reason,
		"seek_to", req.SeekToSeconds,
	)

	r.Report(nil)
	return nil
}

// onSurfaceChange handles a native change notification.
func (r *Reporter) onSurfaceChange() {
	r.Report(nil)
	// A notification while paused is the only wake-up we get once polling
	// has parked, so rearm here.
	r.armPoll()
}

// pollTick is the polling fallback body.
func (r *Reporter) pollTick() {
	m := r.Report(nil)
	if m.IsPaused && r.hasSubscription() {
		// Parked: native notifications resume polling on unpause.
		return
	}
	r.armPoll()
}

func (r *Reporter) armPoll() {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	r.timers.Arm(pollTimerName, r.cfg.PollInterval, r.pollTick)
}

func (r *Reporter) hasSubscription() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribe != nil
}

// readSnapshot reads the surface and classifies pause intent.
func (r *Reporter) readSnapshot() Metrics {
	s := r.cfg.Surface

	pos, _ := s.ReadPosition()
	m := Metrics{
		MediaKey:        r.cfg.MediaKey,
		PositionSeconds: pos,
		IsPaused:        s.ReadPaused(),
		IsSeeking:       s.ReadSeeking(),
		Diagnostics:     s.ReadDiagnostics(),
		At:              r.cfg.Clock.Now(),
	}
	if m.IsPaused {
		r.mu.Lock()
		selfPaused := r.selfPaused
		r.mu.Unlock()
		if selfPaused {
			m.PauseIntent = PauseIntentSystem
		} else {
			m.PauseIntent = r.classifyPause(s, m)
		}
	} else {
		r.mu.Lock()
		r.selfPaused = false
		r.mu.Unlock()
	}
	return m
}

// classifyPause decides whether a pause came from the user or the system.
// System pauses: end of media, near-natural end, or network starvation
// (still loading without enough decoded data to continue).
func (r *Reporter) classifyPause(s *surface.Surface, m Metrics) PauseIntent {
	if s.ReadEnded() {
		return PauseIntentSystem
	}
	if dur, ok := s.ReadDuration(); ok && dur > 0 {
		if dur-m.PositionSeconds <= r.cfg.NearEndSeconds {
			return PauseIntentSystem
		}
	}
	if d := m.Diagnostics; d != nil {
		if d.NetworkState == surface.NetworkLoading && d.ReadyState < surface.ReadyFutureData {
			return PauseIntentSystem
		}
	}
	return PauseIntentUser
}
