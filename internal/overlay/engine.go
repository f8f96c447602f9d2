// Package overlay derives the buffering-overlay render contract.
//
// The engine is a pure derivation over its inputs: every input change
// recomputes the full decision, and the rendering layer draws strictly from
// the decision without computing anything itself. Two timing gates keep the
// output calm: a render gate (should the overlay exist at all) and a reveal
// gate (a short delay before it becomes visible, so sub-delay blips such as
// a fast seek never flash an overlay).
package overlay

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/reporter"
	"github.com/hearthward/playback-sentinel/internal/resilience"
	"github.com/hearthward/playback-sentinel/internal/seek"
)

// Decision is the render contract consumed by the rendering layer.
// Derived, never stored across inputs: recomputed each time an input changes.
type Decision struct {
	ShouldRender       bool
	IsVisible          bool
	PauseOverlayActive bool
	CountdownSeconds   float64
	Reasons            []string
}

// Reason strings carried in Decision.Reasons.
const (
	ReasonWaiting           = "waiting"
	ReasonStalling          = "stalling"
	ReasonSeekInFlight      = "seek-in-flight"
	ReasonExplicitShow      = "explicit-show"
	ReasonPauseOverlay      = "pause-overlay"
	ReasonStartupHold       = "startup-hold"
	ReasonRecoveryExhausted = "recovery-exhausted"
)

// Defaults.
const (
	DefaultRevealDelay = 300 * time.Millisecond

	// DefaultStallCountdown is the user-facing deadline shown once playback
	// stalls mid-stream. Longer than the automatic stall recovery chain: it
	// is the backstop for the case where the machine's own timers were
	// suppressed by cooldown.
	DefaultStallCountdown = 10 * time.Second

	// DefaultLoadingCountdown is the deadline during initial load or an
	// in-flight recovery, where long buffering is legitimate.
	DefaultLoadingCountdown = 30 * time.Second
)

const (
	revealTimerName    = "overlay.reveal"
	countdownTimerName = "overlay.countdown"
)

// Config holds configuration for creating an Engine.
type Config struct {
	RevealDelay      time.Duration
	StallCountdown   time.Duration
	LoadingCountdown time.Duration

	// PauseOverlayEnabled gates the pause overlay feature as a whole.
	PauseOverlayEnabled bool

	Clock  clock.Clock
	Logger *slog.Logger
	Events *logging.Sink

	// OnDecision receives the decision after every recomputation that
	// changed it.
	OnDecision func(Decision)

	// RequestRecovery is invoked exactly once per distress episode when the
	// countdown reaches zero.
	RequestRecovery func(reason string)
}

// Engine folds status, seek lifecycle, pause intent, and user toggles into
// an overlay decision. All inputs are pushed in; the engine owns no pollers.
type Engine struct {
	cfg    Config
	timers *clock.Group

	mu            sync.Mutex
	status        resilience.Status
	exhausted     bool
	seekLifecycle seek.Lifecycle
	paused        bool
	pauseIntent   reporter.PauseIntent
	explicitShow  bool
	prefHidden    bool

	// holdActive covers the gap between session start and the first health
	// signal, so the overlay renders before any metrics exist.
	holdActive bool

	distressed    bool
	distressSince time.Time
	stallEpisode  bool
	latched       bool

	revealed     bool
	revealArmed  bool
	lastDecision Decision
	haveDecision bool
}

// NewEngine creates an Engine holding the overlay for a fresh session.
func NewEngine(cfg Config) *Engine {
	if cfg.RevealDelay <= 0 {
		cfg.RevealDelay = DefaultRevealDelay
	}
	if cfg.StallCountdown <= 0 {
		cfg.StallCountdown = DefaultStallCountdown
	}
	if cfg.LoadingCountdown <= 0 {
		cfg.LoadingCountdown = DefaultLoadingCountdown
	}
	e := &Engine{
		cfg:        cfg,
		timers:     clock.NewGroup(cfg.Clock),
		holdActive: true,
	}
	return e
}

// Start computes the initial decision and begins the startup countdown.
func (e *Engine) Start() {
	e.recompute()
}

// Close cancels all timers.
func (e *Engine) Close() {
	e.timers.Close()
}

// SetStatus feeds the resilience status. exhausted marks the persistent
// recovering state after the attempt budget ran out.
func (e *Engine) SetStatus(status resilience.Status, exhausted bool) {
	e.mu.Lock()
	e.status = status
	e.exhausted = exhausted
	if status == resilience.StatusPlaying {
		e.holdActive = false
		e.latched = false
	}
	e.mu.Unlock()
	e.recompute()
}

// SetSeekLifecycle feeds the seek coordinator's lifecycle.
func (e *Engine) SetSeekLifecycle(l seek.Lifecycle) {
	e.mu.Lock()
	e.seekLifecycle = l
	e.mu.Unlock()
	e.recompute()
}

// SetPauseState feeds the paused flag and its classified intent.
func (e *Engine) SetPauseState(paused bool, intent reporter.PauseIntent) {
	e.mu.Lock()
	e.paused = paused
	e.pauseIntent = intent
	e.mu.Unlock()
	e.recompute()
}

// SetExplicitShow forces the overlay on regardless of health.
func (e *Engine) SetExplicitShow(show bool) {
	e.mu.Lock()
	e.explicitShow = show
	e.mu.Unlock()
	e.recompute()
}

// SetPauseOverlayHidden applies the user's module-scoped hide toggle.
func (e *Engine) SetPauseOverlayHidden(hidden bool) {
	e.mu.Lock()
	e.prefHidden = hidden
	e.mu.Unlock()
	e.recompute()
}

// NotifyPlaying reports the surface's native "playing" signal; it releases
// the startup hold even before the first progress token.
func (e *Engine) NotifyPlaying() {
	e.mu.Lock()
	e.holdActive = false
	e.mu.Unlock()
	e.recompute()
}

// Reset returns the engine to its fresh-session state.
func (e *Engine) Reset() {
	e.timers.CancelAll()
	e.mu.Lock()
	e.status = resilience.StatusStartup
	e.exhausted = false
	e.seekLifecycle = seek.LifecycleIdle
	e.paused = false
	e.pauseIntent = reporter.PauseIntentNone
	e.explicitShow = false
	e.holdActive = true
	e.distressed = false
	e.stallEpisode = false
	e.latched = false
	e.revealed = false
	e.revealArmed = false
	e.haveDecision = false
	e.mu.Unlock()
	e.recompute()
}

// Decision returns the current decision with a countdown computed at call
// time.
func (e *Engine) Decision() Decision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deriveLocked()
}

// =============================================================================
// Derivation
// =============================================================================

func (e *Engine) deriveLocked() Decision {
	waiting := e.status == resilience.StatusStartup || e.status == resilience.StatusRecovering
	stalling := e.status == resilience.StatusStalling
	seekInFlight := e.seekLifecycle == seek.LifecycleSeeking || e.seekLifecycle == seek.LifecycleBuffering

	pauseOverlay := e.cfg.PauseOverlayEnabled &&
		!e.prefHidden &&
		e.paused && e.pauseIntent == reporter.PauseIntentUser &&
		!waiting && !stalling

	d := Decision{
		ShouldRender:       waiting || stalling || seekInFlight || e.explicitShow || pauseOverlay || e.holdActive,
		IsVisible:          e.revealed,
		PauseOverlayActive: pauseOverlay,
	}

	reasons := make([]string, 0, 4)
	if waiting {
		reasons = append(reasons, ReasonWaiting)
	}
	if stalling {
		reasons = append(reasons, ReasonStalling)
	}
	if seekInFlight {
		reasons = append(reasons, ReasonSeekInFlight)
	}
	if e.explicitShow {
		reasons = append(reasons, ReasonExplicitShow)
	}
	if pauseOverlay {
		reasons = append(reasons, ReasonPauseOverlay)
	}
	if e.holdActive {
		reasons = append(reasons, ReasonStartupHold)
	}
	if e.exhausted {
		reasons = append(reasons, ReasonRecoveryExhausted)
	}
	sort.Strings(reasons)
	d.Reasons = reasons

	if e.distressed {
		deadline := e.cfg.LoadingCountdown
		if e.stallEpisode {
			deadline = e.cfg.StallCountdown
		}
		remaining := deadline - e.timers.Now().Sub(e.distressSince)
		if remaining < 0 {
			remaining = 0
		}
		d.CountdownSeconds = remaining.Seconds()
	}
	return d
}

func (e *Engine) recompute() {
	e.mu.Lock()

	// Countdown episode tracking. A user pause is not distress: the
	// countdown only runs while the stream is expected to make progress.
	userPaused := e.paused && e.pauseIntent == reporter.PauseIntentUser
	distressedNow := !userPaused &&
		(e.status == resilience.StatusStartup ||
			e.status == resilience.StatusStalling ||
			e.status == resilience.StatusRecovering)
	if distressedNow && !e.distressed {
		e.distressed = true
		e.distressSince = e.timers.Now()
		e.stallEpisode = e.status == resilience.StatusStalling
		deadline := e.cfg.LoadingCountdown
		if e.stallEpisode {
			deadline = e.cfg.StallCountdown
		}
		e.timers.Arm(countdownTimerName, deadline, e.onCountdownExpired)
	} else if !distressedNow && e.distressed {
		e.distressed = false
		e.timers.Cancel(countdownTimerName)
	}

	d := e.deriveLocked()

	// Reveal gate: visibility lags the render gate by the reveal delay so a
	// short blip never flashes the overlay. An already-visible overlay stays
	// visible without re-delay while the render gate holds.
	if d.ShouldRender {
		if !e.revealed && !e.revealArmed {
			e.revealArmed = true
			e.timers.Arm(revealTimerName, e.cfg.RevealDelay, e.onReveal)
		}
	} else {
		if e.revealArmed {
			e.revealArmed = false
			e.timers.Cancel(revealTimerName)
		}
		e.revealed = false
		d.IsVisible = false
	}

	changed := !e.haveDecision || !decisionsEqual(d, e.lastDecision)
	visibilityFlipped := e.haveDecision && d.IsVisible != e.lastDecision.IsVisible
	e.lastDecision = d
	e.haveDecision = true
	e.mu.Unlock()

	if visibilityFlipped {
		e.cfg.Events.Emit("overlay.visibility-changed", "visible", d.IsVisible)
	}
	if changed && e.cfg.OnDecision != nil {
		e.cfg.OnDecision(d)
	}
}

func (e *Engine) onReveal() {
	e.mu.Lock()
	e.revealArmed = false
	e.revealed = true
	e.mu.Unlock()
	e.recompute()
}

// onCountdownExpired fires hard recovery exactly once per distress episode,
// even if the overlay itself is not visible at the time.
func (e *Engine) onCountdownExpired() {
	e.mu.Lock()
	if e.latched || !e.distressed {
		e.mu.Unlock()
		return
	}
	e.latched = true
	e.mu.Unlock()

	e.cfg.Events.Emit("overlay.countdown-expired")
	if e.cfg.Logger != nil {
		e.cfg.Logger.Info("overlay_countdown_expired")
	}
	if e.cfg.RequestRecovery != nil {
		e.cfg.RequestRecovery(resilience.ReasonOverlayDeadline)
	}
	e.recompute()
}

func decisionsEqual(a, b Decision) bool {
	if a.ShouldRender != b.ShouldRender ||
		a.IsVisible != b.IsVisible ||
		a.PauseOverlayActive != b.PauseOverlayActive ||
		a.CountdownSeconds != b.CountdownSeconds ||
		len(a.Reasons) != len(b.Reasons) {
		return false
	}
	for i := range a.Reasons {
		if a.Reasons[i] != b.Reasons[i] {
			return false
		}
	}
	return true
}
