// Package session composes the resilience pipeline for one playback
// session and manages session lifecycle across media changes.
//
// Data flow within a session: surface -> reporter -> health monitor ->
// state machine -> {overlay engine, recovery orchestrator}. The seek
// coordinator sits alongside, fed by user actions and the reporter's
// position stream. Every component is reset when the media key changes, and
// in-flight timers for the old session are cancelled before new ones arm.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/config"
	"github.com/hearthward/playback-sentinel/internal/health"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/metrics"
	"github.com/hearthward/playback-sentinel/internal/overlay"
	"github.com/hearthward/playback-sentinel/internal/prefs"
	"github.com/hearthward/playback-sentinel/internal/recovery"
	"github.com/hearthward/playback-sentinel/internal/reporter"
	"github.com/hearthward/playback-sentinel/internal/resilience"
	"github.com/hearthward/playback-sentinel/internal/seek"
	"github.com/hearthward/playback-sentinel/internal/stats"
	"github.com/hearthward/playback-sentinel/internal/surface"
)

// Snapshot is the externally visible state of a session, assembled for the
// feed and the dashboard.
type Snapshot struct {
	SessionID string
	MediaKey  string

	Status           resilience.Status
	RecoveryAttempts int
	Exhausted        bool

	Metrics reporter.Metrics
	Seek    seek.State
	Overlay overlay.Decision

	Summary stats.Summary
}

// Session wires one media item's playback surface into the full pipeline.
type Session struct {
	ID       string
	MediaKey string

	cfg       *config.Config
	clock     clock.Clock
	logger    *slog.Logger
	events    *logging.Sink
	collector *metrics.Collector
	prefs     *prefs.Store

	reporter *reporter.Reporter
	monitor  *health.Monitor
	machine  *resilience.Machine
	seeker   *seek.Coordinator
	overlay  *overlay.Engine
	orch     *recovery.Orchestrator
	guard    *recovery.SegmentGuard
	stats    *stats.SessionStats

	mu           sync.Mutex
	carryPending bool
	stalledAt    time.Time
	stallOpen    bool
	recoveredAt  time.Time
	recoveryOpen bool
	seekCommitAt time.Time
	seekOpen     bool
	lastVisible  bool
	onSnapshot   func(Snapshot)
	closed       bool
}

// Options carries the shared collaborators a session does not own.
type Options struct {
	Config    *config.Config
	Clock     clock.Clock
	Logger    *slog.Logger
	Events    *logging.Sink
	Collector *metrics.Collector
	Prefs     *prefs.Store

	// OnSnapshot receives a fresh snapshot after every externally visible
	// state change.
	OnSnapshot func(Snapshot)
}

// New builds and wires a session for one media key. Call Start to begin
// observation.
func New(mediaKey string, surf *surface.Surface, opts Options) *Session {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Session{
		ID:         xid.New().String(),
		MediaKey:   mediaKey,
		cfg:        cfg,
		clock:      opts.Clock,
		logger:     opts.Logger,
		events:     opts.Events,
		collector:  opts.Collector,
		prefs:      opts.Prefs,
		onSnapshot: opts.OnSnapshot,
	}

	s.stats = stats.NewSessionStats(s.ID, mediaKey, opts.Clock.Now())
	s.monitor = health.NewMonitor(cfg.ProgressEpsilonSeconds)

	s.reporter = reporter.New(reporter.Config{
		MediaKey:     mediaKey,
		Surface:      surf,
		Clock:        opts.Clock,
		Logger:       opts.Logger,
		Events:       opts.Events,
		PollInterval: cfg.PollInterval,
		OnMetrics:    s.onMetrics,
	})

	s.machine = resilience.NewMachine(resilience.Config{
		StallThreshold:          cfg.StallThreshold,
		HardRecoverAfterStalled: cfg.HardRecoverAfterStalled,
		LoadingGrace:            cfg.LoadingGrace,
		RecoveryCooldown:        cfg.RecoveryCooldown,
		MaxAttempts:             cfg.MaxRecoveryAttempts,
		Clock:                   opts.Clock,
		Logger:                  opts.Logger,
		Events:                  opts.Events,
		OnStatusChange:          s.onStatusChange,
		OnRecover:               s.onRecover,
	})

	s.seeker = seek.NewCoordinator(seek.Config{
		MatchTolerance:   cfg.SeekMatchTolerance,
		SettleTolerance:  cfg.SeekSettleTolerance,
		RelaxedTolerance: cfg.SeekRelaxedTolerance,
		RelaxedGrace:     cfg.SeekRelaxedGrace,
		SettleDelay:      cfg.SeekSettleDelay,
		MaxHold:          cfg.SeekMaxHold,
		Clock:            opts.Clock,
		Logger:           opts.Logger,
		Events:           opts.Events,
		SoftSeek:         s.softSeek,
		HardReload:       s.seekHardReload,
		IsStalled:        s.machine.IsStalled,
		OnState:          s.onSeekState,
		OnExpired:        s.onSeekExpired,
	})

	s.overlay = overlay.NewEngine(overlay.Config{
		RevealDelay:         cfg.RevealDelay,
		PauseOverlayEnabled: cfg.PauseOverlayEnabled,
		Clock:               opts.Clock,
		Logger:              opts.Logger,
		Events:              opts.Events,
		OnDecision:          s.onOverlayDecision,
		RequestRecovery:     s.machine.RequestRecovery,
	})

	s.orch = recovery.NewOrchestrator(recovery.Config{
		Logger:       opts.Logger,
		Events:       opts.Events,
		HardReset:    s.hardReset,
		SeekIntent:   s.seekIntent,
		LastProgress: s.lastProgress,
		OnExecuted:   s.onRecoveryExecuted,
		OnSuppressed: s.onRecoverySuppressed,
	})

	s.guard = recovery.NewSegmentGuard(recovery.GuardConfig{
		RetryInterval:  cfg.SegmentRetryInterval,
		MinBufferAhead: cfg.SegmentMinBufferAhead,
		SkipPadding:    cfg.SegmentSkipPadding,
		Clock:          opts.Clock,
		Logger:         opts.Logger,
		Events:         opts.Events,
		BufferAhead:    s.bufferAhead,
		Position:       s.position,
		SkipAhead:      s.segmentSkip,
	})

	// Persisted pause-overlay preference, read once at session start.
	if opts.Prefs != nil {
		if hidden, err := opts.Prefs.PauseOverlayHidden(); err == nil {
			s.overlay.SetPauseOverlayHidden(hidden)
		} else if opts.Logger != nil {
			opts.Logger.Warn("prefs_read_failed", "error", err)
		}
	}

	return s
}

// Start begins observation: startup deadline, overlay hold, first report.
func (s *Session) Start() {
	if s.collector != nil {
		s.collector.SessionStarted(s.ID, s.MediaKey, s.clock.Now())
		s.collector.SetStatus(resilience.StatusStartup.String())
	}
	s.events.Emit("session.started", "session_id", s.ID, "media_key", s.MediaKey)
	s.machine.Start()
	s.overlay.Start()
	s.reporter.Start()
}

// Close tears the session down. Timers are cancelled before collaborators
// are released.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.reporter.Close()
	s.machine.Close()
	s.seeker.Close()
	s.overlay.Close()
	s.guard.Close()
	s.events.Emit("session.closed", "session_id", s.ID, "media_key", s.MediaKey)
}

// Stats exposes the session's statistics for aggregation.
func (s *Session) Stats() *stats.SessionStats {
	return s.stats
}

// Snapshot assembles the externally visible state.
func (s *Session) Snapshot() Snapshot {
	state := s.machine.State()
	mtr, _ := s.reporter.Last()
	return Snapshot{
		SessionID:        s.ID,
		MediaKey:         s.MediaKey,
		Status:           state.Status,
		RecoveryAttempts: state.RecoveryAttempts,
		Exhausted:        state.Exhausted,
		Metrics:          mtr,
		Seek:             s.seeker.State(),
		Overlay:          s.overlay.Decision(),
		Summary:          s.stats.Snapshot(s.clock.Now()),
	}
}

// =============================================================================
// User-facing operations
// =============================================================================

// CommitSeek is the only write path for a seek target.
func (s *Session) CommitSeek(seconds float64) {
	s.mu.Lock()
	s.seekCommitAt = s.clock.Now()
	s.seekOpen = true
	s.mu.Unlock()

	s.stats.SeeksCommitted.Add(1)
	if s.collector != nil {
		s.collector.RecordSeekCommitted()
	}
	s.seeker.CommitSeek(seconds)
}

// Preview forwards a visual-only scrub position.
func (s *Session) Preview(seconds float64) { s.seeker.Preview(seconds) }

// ClearPreview drops the scrub position.
func (s *Session) ClearPreview() { s.seeker.ClearPreview() }

// DisplaySeconds resolves the progress-bar value for the given actual
// position.
func (s *Session) DisplaySeconds(actual float64) float64 {
	return s.seeker.DisplaySeconds(actual)
}

// NotifySeeked forwards the surface's native "seeked" signal.
func (s *Session) NotifySeeked() { s.seeker.NotifySeeked() }

// NotifyPlaying forwards the surface's native "playing" signal to the seek
// coordinator and the overlay hold.
func (s *Session) NotifyPlaying() {
	s.seeker.NotifyPlaying()
	s.overlay.NotifyPlaying()
}

// SetOverlayExplicitShow forces the overlay on or off.
func (s *Session) SetOverlayExplicitShow(show bool) {
	s.overlay.SetExplicitShow(show)
}

// SetPauseOverlayHidden applies the user's pause-overlay toggle and writes
// it through to the preference store so it survives the session.
func (s *Session) SetPauseOverlayHidden(hidden bool) {
	s.overlay.SetPauseOverlayHidden(hidden)
	if s.prefs != nil {
		if err := s.prefs.SetPauseOverlayHidden(hidden); err != nil && s.logger != nil {
			s.logger.Warn("prefs_write_failed", "error", err)
		}
	}
}

// HandleSegmentNotFound reports a fetched segment that returned "not
// found". retry refetches it, returning true on success.
func (s *Session) HandleSegmentNotFound(url string, retry func(string) bool) {
	s.guard.HandleNotFound(url, func(u string) bool {
		s.stats.SegmentRetries.Add(1)
		if s.collector != nil {
			s.collector.RecordSegmentRetry()
		}
		ok := retry != nil && retry(u)
		if ok {
			s.stats.SegmentRecovered.Add(1)
			if s.collector != nil {
				s.collector.RecordSegmentRecovered()
			}
		}
		return ok
	})
}

// ResolveSegment ends a segment retry episode resolved externally.
func (s *Session) ResolveSegment(url string) { s.guard.Resolve(url) }

// NotifySurfaceReset is called after the playback surface reloaded. A reset
// caused by our own recovery action carries the recovering status forward;
// any other reset is a fresh start.
func (s *Session) NotifySurfaceReset() {
	s.mu.Lock()
	carry := s.carryPending
	s.carryPending = false
	s.mu.Unlock()

	s.monitor.Reset()
	s.seeker.Reset()
	s.overlay.Reset()
	s.guard.Reset()
	s.machine.ResetSession(carry)

	// The reload embedded its seek target, but some surfaces drop it; the
	// queued fallback applies it once the surface is back.
	s.reporter.ApplyPendingSeek()
	s.events.Emit("session.surface-reset", "session_id", s.ID, "carry", carry)
}

// =============================================================================
// Pipeline wiring
// =============================================================================

func (s *Session) onMetrics(mtr reporter.Metrics) {
	sample := s.monitor.Observe(mtr, s.clock.Now())
	s.machine.Observe(sample, mtr)
	if mtr.PositionSeconds >= 0 {
		s.seeker.ObservePosition(mtr.PositionSeconds)
	}
	s.overlay.SetPauseState(mtr.IsPaused, mtr.PauseIntent)

	if sample.Advanced {
		s.recordProgress(mtr)
	}
	if s.collector != nil {
		ahead := 0.0
		var dropped int64
		if mtr.Diagnostics != nil {
			ahead = mtr.Diagnostics.BufferAheadSeconds
			dropped = mtr.Diagnostics.DroppedFrames
		}
		s.collector.ObservePlayback(mtr.PositionSeconds, ahead, dropped)
		s.collector.TickUptime(s.clock.Now())
	}
}

func (s *Session) recordProgress(mtr reporter.Metrics) {
	s.stats.ProgressTicks.Add(1)
	if s.collector != nil {
		s.collector.RecordProgressTick()
	}

	now := s.clock.Now()
	var stallDur, recoveryDur time.Duration
	var hadStall, hadRecovery bool

	s.mu.Lock()
	if s.stallOpen {
		s.stallOpen = false
		stallDur = now.Sub(s.stalledAt)
		hadStall = true
	}
	if s.recoveryOpen {
		s.recoveryOpen = false
		recoveryDur = now.Sub(s.recoveredAt)
		hadRecovery = true
	}
	s.mu.Unlock()

	if hadStall {
		s.stats.RecordStallDuration(stallDur)
		if s.collector != nil {
			s.collector.RecordStallDuration(stallDur)
		}
	}
	if hadRecovery {
		s.stats.RecordRecoveryDelay(recoveryDur)
	}
}

func (s *Session) onStatusChange(old, new resilience.Status) {
	if new == resilience.StatusStalling {
		s.stats.StallsDetected.Add(1)
		if s.collector != nil {
			s.collector.RecordStall()
		}
		s.mu.Lock()
		s.stalledAt = s.clock.Now()
		s.stallOpen = true
		s.mu.Unlock()
	}

	state := s.machine.State()
	s.overlay.SetStatus(new, state.Exhausted)
	if state.Exhausted && new == resilience.StatusRecovering {
		s.stats.RecoveryExhaustions.Add(1)
		if s.collector != nil {
			s.collector.RecordRecoveryExhaustion()
		}
	}
	if s.collector != nil {
		s.collector.SetStatus(new.String())
	}
	s.publish()
}

func (s *Session) onRecover(req resilience.RecoverRequest) {
	s.stats.RecoveriesTriggered.Add(1)
	if s.collector != nil {
		s.collector.RecordRecovery(req.Reason, req.Attempt)
	}
	s.mu.Lock()
	s.recoveredAt = s.clock.Now()
	s.recoveryOpen = true
	s.mu.Unlock()

	s.orch.Execute(req)
}

func (s *Session) onRecoveryExecuted(resilience.RecoverRequest) {
	// The reload we are about to issue will reset the surface; the machine
	// must treat that reset as recovery-in-progress, not a fresh startup.
	s.mu.Lock()
	s.carryPending = true
	s.mu.Unlock()
}

func (s *Session) onRecoverySuppressed(resilience.RecoverRequest) {
	s.stats.RecoveriesSuppressed.Add(1)
	if s.collector != nil {
		s.collector.RecordRecoverySuppressed()
	}
}

func (s *Session) onSeekExpired(float64) {
	// Close the in-flight seek window before OnState arrives, otherwise the
	// idle transition would count as a completion.
	s.mu.Lock()
	s.seekOpen = false
	s.mu.Unlock()
	s.stats.SeeksExpired.Add(1)
	if s.collector != nil {
		s.collector.RecordSeekExpired()
	}
}

func (s *Session) onSeekState(st seek.State) {
	s.overlay.SetSeekLifecycle(st.Lifecycle)
	if st.Lifecycle == seek.LifecycleIdle && st.IntentSeconds == nil {
		s.mu.Lock()
		open := s.seekOpen
		s.seekOpen = false
		commitAt := s.seekCommitAt
		s.mu.Unlock()
		if open {
			d := s.clock.Now().Sub(commitAt)
			s.stats.SeeksCompleted.Add(1)
			s.stats.RecordSeekLatency(d)
			if s.collector != nil {
				s.collector.RecordSeekCompleted(d)
			}
		}
	}
	s.publish()
}

func (s *Session) onOverlayDecision(d overlay.Decision) {
	s.mu.Lock()
	flipped := d.IsVisible != s.lastVisible
	s.lastVisible = d.IsVisible
	s.mu.Unlock()

	if flipped {
		if d.IsVisible {
			s.stats.OverlayReveals.Add(1)
		}
		if s.collector != nil {
			s.collector.SetOverlayVisible(d.IsVisible)
		}
	}
	s.publish()
}

func (s *Session) softSeek(target float64) bool {
	s.reporter.QueueSeek(target)
	return s.reporter.ApplyPendingSeek()
}

func (s *Session) seekHardReload(target float64) {
	s.hardReset(reporter.HardResetRequest{
		Reason:        "seek-while-stalled",
		SeekToSeconds: target,
	})
}

func (s *Session) hardReset(req reporter.HardResetRequest) {
	if err := s.reporter.HardReset(req); err != nil && s.logger != nil {
		s.logger.Error("hard_reset_failed",
			"session_id", s.ID,
			"reason", req.Reason,
			"error", err)
	}
}

func (s *Session) segmentSkip(reason string, seekToSeconds float64) {
	s.stats.SegmentSkips.Add(1)
	if s.collector != nil {
		s.collector.RecordSegmentSkip()
	}
	s.mu.Lock()
	s.carryPending = true
	s.mu.Unlock()
	s.hardReset(reporter.HardResetRequest{Reason: reason, SeekToSeconds: seekToSeconds})
}

func (s *Session) seekIntent() *float64 {
	return s.seeker.State().IntentSeconds
}

func (s *Session) lastProgress() (float64, bool) {
	cur := s.monitor.Current()
	return cur.LastProgressPosition, cur.HasProgress
}

func (s *Session) bufferAhead() (float64, bool) {
	if mtr, ok := s.reporter.Last(); ok && mtr.Diagnostics != nil {
		return mtr.Diagnostics.BufferAheadSeconds, true
	}
	return 0, false
}

func (s *Session) position() float64 {
	if mtr, ok := s.reporter.Last(); ok {
		return mtr.PositionSeconds
	}
	return 0
}

func (s *Session) publish() {
	if s.onSnapshot == nil {
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.onSnapshot(s.Snapshot())
}
