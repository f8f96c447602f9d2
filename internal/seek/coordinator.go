// Package seek coordinates seek intent independently of playback status.
//
// The committed intent is the only legal seek target. Display code reads
// DisplaySeconds and never writes it back: preview and display values are
// visual-only and must never become a seek target implicitly.
package seek

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/logging"
)

// Lifecycle is the in-flight seek lifecycle.
type Lifecycle int

const (
	// LifecycleIdle means no seek is in flight.
	LifecycleIdle Lifecycle = iota

	// LifecycleSeeking means an intent is committed and the surface has not
	// yet reached it.
	LifecycleSeeking

	// LifecycleBuffering means the observed position is near the target but
	// real playback has not resumed.
	LifecycleBuffering

	// LifecyclePlaying means playback resumed at the target; the intent
	// clears after a short settle delay.
	LifecyclePlaying
)

// String returns a human-readable name for the lifecycle.
func (l Lifecycle) String() string {
	switch l {
	case LifecycleIdle:
		return "idle"
	case LifecycleSeeking:
		return "seeking"
	case LifecycleBuffering:
		return "buffering"
	case LifecyclePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// State is a snapshot of the coordinator.
type State struct {
	IntentSeconds  *float64
	PreviewSeconds *float64
	Lifecycle      Lifecycle
}

// Defaults.
const (
	DefaultMatchTolerance   = 0.5
	DefaultSettleTolerance  = 0.15
	DefaultRelaxedTolerance = 0.75
	DefaultRelaxedGrace     = 650 * time.Millisecond
	DefaultSettleDelay      = 100 * time.Millisecond
	DefaultMaxHold          = 2500 * time.Millisecond

	// DefaultPreviewThrottle coalesces preview updates the way an
	// animation-frame callback would.
	DefaultPreviewThrottle = 16 * time.Millisecond
)

const (
	settleTimerName  = "seek.settle"
	maxHoldTimerName = "seek.max-hold"
	previewTimerName = "seek.preview-throttle"
)

// Config holds configuration for creating a Coordinator.
type Config struct {
	MatchTolerance   float64
	SettleTolerance  float64
	RelaxedTolerance float64
	RelaxedGrace     time.Duration
	SettleDelay      time.Duration
	MaxHold          time.Duration
	PreviewThrottle  time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
	Events *logging.Sink

	// SoftSeek asks the surface to seek directly. Returns false when the
	// surface cannot accept the seek yet (the intent stays pending).
	SoftSeek func(target float64) bool

	// HardReload reloads the stream with the target embedded. Used instead
	// of SoftSeek when the surface is stalled: a stalled surface cannot be
	// trusted to honor a position assignment.
	HardReload func(target float64)

	// IsStalled reports whether the surface is currently distressed.
	IsStalled func() bool

	// OnState receives a snapshot after every state change.
	OnState func(State)

	// OnExpired fires when an intent is cleared by the max-hold timer
	// rather than by position confirmation. Called before OnState.
	OnExpired func(target float64)
}

// Coordinator tracks seek intent, preview, and lifecycle for one session.
type Coordinator struct {
	cfg    Config
	timers *clock.Group

	mu             sync.Mutex
	intent         *float64
	preview        *float64
	lifecycle      Lifecycle
	seekedAt       time.Time
	haveSeeked     bool
	pendingPreview *float64
	throttling     bool
}

// NewCoordinator creates a Coordinator in the idle lifecycle.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.MatchTolerance <= 0 {
		cfg.MatchTolerance = DefaultMatchTolerance
	}
	if cfg.SettleTolerance <= 0 {
		cfg.SettleTolerance = DefaultSettleTolerance
	}
	if cfg.RelaxedTolerance <= 0 {
		cfg.RelaxedTolerance = DefaultRelaxedTolerance
	}
	if cfg.RelaxedGrace <= 0 {
		cfg.RelaxedGrace = DefaultRelaxedGrace
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.MaxHold <= 0 {
		cfg.MaxHold = DefaultMaxHold
	}
	if cfg.PreviewThrottle <= 0 {
		cfg.PreviewThrottle = DefaultPreviewThrottle
	}
	return &Coordinator{
		cfg:    cfg,
		timers: clock.NewGroup(cfg.Clock),
	}
}

// Close cancels all timers.
func (c *Coordinator) Close() {
	c.timers.Close()
}

// State returns a snapshot of the coordinator.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Coordinator) stateLocked() State {
	s := State{Lifecycle: c.lifecycle}
	if c.intent != nil {
		v := *c.intent
		s.IntentSeconds = &v
	}
	if c.preview != nil {
		v := *c.preview
		s.PreviewSeconds = &v
	}
	return s
}

// DisplaySeconds resolves the value the progress bar should show:
// preview over intent over the actual position.
func (c *Coordinator) DisplaySeconds(actual float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preview != nil {
		return *c.preview
	}
	if c.intent != nil {
		return *c.intent
	}
	return actual
}

// CommitSeek sets the authoritative seek target. This is the only entry
// point that may change it. Committing the same target again while the seek
// is still in flight is a no-op: the existing timeout chain stands.
func (c *Coordinator) CommitSeek(target float64) {
	c.mu.Lock()
	if c.intent != nil && *c.intent == target && c.lifecycle != LifecycleIdle {
		c.mu.Unlock()
		return
	}

	t := target
	c.intent = &t
	c.lifecycle = LifecycleSeeking
	c.haveSeeked = false
	c.timers.Cancel(settleTimerName)
	c.timers.Arm(maxHoldTimerName, c.cfg.MaxHold, c.onMaxHold)

	stalled := c.cfg.IsStalled != nil && c.cfg.IsStalled()
	c.mu.Unlock()

	c.cfg.Events.Emit("seek.commit", "target", target, "stalled", stalled)

	if stalled && c.cfg.HardReload != nil {
		// A stalled surface cannot honor a position assignment; reload with
		// the target embedded instead.
		c.cfg.HardReload(target)
	} else if c.cfg.SoftSeek != nil {
		if !c.cfg.SoftSeek(target) && c.cfg.Logger != nil {
			c.cfg.Logger.Debug("soft_seek_deferred", "target", target)
		}
	}

	c.notify()
}

// Preview sets the visual-only scrub position. Updates are coalesced so a
// drag does not flood downstream consumers. Preview is never committed as a
// seek target implicitly.
func (c *Coordinator) Preview(seconds float64) {
	c.mu.Lock()
	v := seconds
	if c.throttling {
		c.pendingPreview = &v
		c.mu.Unlock()
		return
	}
	c.preview = &v
	c.throttling = true
	c.timers.Arm(previewTimerName, c.cfg.PreviewThrottle, c.onPreviewThrottle)
	c.mu.Unlock()

	c.notify()
}

// ClearPreview removes the scrub position; display falls back to intent or
// the actual position.
func (c *Coordinator) ClearPreview() {
	c.mu.Lock()
	c.preview = nil
	c.pendingPreview = nil
	c.mu.Unlock()
	c.notify()
}

// ObservePosition folds an observed playback position into the lifecycle.
func (c *Coordinator) ObservePosition(pos float64) {
	c.mu.Lock()
	if c.intent == nil {
		c.mu.Unlock()
		return
	}
	target := *c.intent
	dist := math.Abs(pos - target)
	changed := false

	if c.lifecycle == LifecycleSeeking && dist <= c.cfg.MatchTolerance {
		c.lifecycle = LifecycleBuffering
		changed = true
	}

	// Clearing rules, whichever fires first: tight tolerance while awaiting
	// settle, the relaxed tolerance once the grace window after the seeked
	// signal has elapsed, or the max-hold safety net (timer-driven).
	tol := 0.0
	if c.lifecycle == LifecyclePlaying {
		tol = c.cfg.SettleTolerance
	}
	if c.haveSeeked && c.timers.Now().Sub(c.seekedAt) >= c.cfg.RelaxedGrace {
		tol = math.Max(tol, c.cfg.RelaxedTolerance)
	}
	if tol > 0 && dist <= tol {
		c.clearIntentLocked("position-match")
		changed = true
	}
	c.mu.Unlock()

	if changed {
		c.notify()
	}
}

// NotifySeeked records the surface's native "seeked" signal; the relaxed
// clearing tolerance applies once a grace window after it has elapsed.
func (c *Coordinator) NotifySeeked() {
	c.mu.Lock()
	c.seekedAt = c.timers.Now()
	c.haveSeeked = true
	c.mu.Unlock()
}

// NotifyPlaying reports real playback resumption (decode restarted), not
// mere position proximity. Moves buffering to playing and arms the settle
// delay that returns the lifecycle to idle.
func (c *Coordinator) NotifyPlaying() {
	c.mu.Lock()
	if c.lifecycle != LifecycleBuffering {
		c.mu.Unlock()
		return
	}
	c.lifecycle = LifecyclePlaying
	c.timers.Arm(settleTimerName, c.cfg.SettleDelay, c.onSettle)
	c.mu.Unlock()

	c.notify()
}

// Reset clears all seek state for a new session.
func (c *Coordinator) Reset() {
	c.timers.CancelAll()
	c.mu.Lock()
	c.intent = nil
	c.preview = nil
	c.pendingPreview = nil
	c.lifecycle = LifecycleIdle
	c.haveSeeked = false
	c.throttling = false
	c.mu.Unlock()
	c.notify()
}

// --- timers ------------------------------------------------------------------

func (c *Coordinator) onSettle() {
	c.mu.Lock()
	if c.lifecycle != LifecyclePlaying {
		c.mu.Unlock()
		return
	}
	c.clearIntentLocked("settled")
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) onMaxHold() {
	c.mu.Lock()
	if c.intent == nil {
		c.mu.Unlock()
		return
	}
	target := *c.intent
	c.clearIntentLocked("max-hold")
	c.mu.Unlock()

	// A stale intent is not evidence the stream is broken: clear locally,
	// never escalate to recovery.
	c.cfg.Events.Emit("seek.timeout", "target", target)
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug("seek_intent_expired", "target", target)
	}
	if c.cfg.OnExpired != nil {
		c.cfg.OnExpired(target)
	}
	c.notify()
}

func (c *Coordinator) onPreviewThrottle() {
	c.mu.Lock()
	c.throttling = false
	pending := c.pendingPreview
	c.pendingPreview = nil
	if pending != nil {
		c.preview = pending
		c.throttling = true
		c.timers.Arm(previewTimerName, c.cfg.PreviewThrottle, c.onPreviewThrottle)
	}
	c.mu.Unlock()

	if pending != nil {
		c.notify()
	}
}

func (c *Coordinator) clearIntentLocked(reason string) {
	c.intent = nil
	c.lifecycle = LifecycleIdle
	c.haveSeeked = false
	c.timers.Cancel(settleTimerName)
	c.timers.Cancel(maxHoldTimerName)
	c.cfg.Events.Emit("seek.cleared", "reason", reason)
}

func (c *Coordinator) notify() {
	if c.cfg.OnState == nil {
		return
	}
	c.cfg.OnState(c.State())
}
