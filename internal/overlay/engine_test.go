package overlay

import (
	"sync"
	"testing"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/reporter"
	"github.com/hearthward/playback-sentinel/internal/resilience"
	"github.com/hearthward/playback-sentinel/internal/seek"
)

// =============================================================================
// Test harness
// =============================================================================

type harness struct {
	clock  *clock.Manual
	engine *Engine

	mu        sync.Mutex
	decisions []Decision
	recovers  []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock: clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.engine = NewEngine(Config{
		Clock:               h.clock,
		PauseOverlayEnabled: true,
		OnDecision: func(d Decision) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.decisions = append(h.decisions, d)
		},
		RequestRecovery: func(reason string) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.recovers = append(h.recovers, reason)
		},
	})
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) recoverReasons() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.recovers...)
}

func (h *harness) everVisible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.decisions {
		if d.IsVisible {
			return true
		}
	}
	return false
}

func hasReason(d Decision, reason string) bool {
	for _, r := range d.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// becomePlaying walks the engine out of the startup hold.
func (h *harness) becomePlaying() {
	h.engine.SetStatus(resilience.StatusPlaying, false)
}

// =============================================================================
// Render and reveal gates
// =============================================================================

func TestStartupHoldRendersBeforeAnyHealthSignal(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()

	d := h.engine.Decision()
	if !d.ShouldRender {
		t.Fatal("fresh session should render the overlay")
	}
	if d.IsVisible {
		t.Fatal("overlay must not be visible before the reveal delay")
	}
	if !hasReason(d, ReasonStartupHold) || !hasReason(d, ReasonWaiting) {
		t.Errorf("reasons = %v, want startup-hold and waiting", d.Reasons)
	}

	h.clock.Advance(DefaultRevealDelay)
	if !h.engine.Decision().IsVisible {
		t.Error("overlay should be visible after the reveal delay")
	}
}

func TestFastSeekBlipNeverFlashesOverlay(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.becomePlaying()

	if d := h.engine.Decision(); d.ShouldRender {
		t.Fatalf("healthy playback should not render, reasons = %v", d.Reasons)
	}

	// A seek that resolves inside the reveal delay renders but never shows.
	h.engine.SetSeekLifecycle(seek.LifecycleSeeking)
	if !h.engine.Decision().ShouldRender {
		t.Fatal("in-flight seek should pass the render gate")
	}
	h.clock.Advance(150 * time.Millisecond)
	h.engine.SetSeekLifecycle(seek.LifecycleIdle)
	h.clock.Advance(time.Second)

	if h.everVisible() {
		t.Error("sub-delay blip must never become visible")
	}
	if h.engine.Decision().IsVisible {
		t.Error("overlay visible after the blip resolved")
	}
}

func TestRevealedOverlayStaysVisibleWithoutRedelay(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.clock.Advance(DefaultRevealDelay)

	// A reason change while visible must not restart the reveal delay.
	h.engine.SetStatus(resilience.StatusRecovering, false)
	if !h.engine.Decision().IsVisible {
		t.Error("overlay should stay visible across a reason change")
	}
}

func TestHideIsImmediate(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.clock.Advance(DefaultRevealDelay)

	h.becomePlaying()

	d := h.engine.Decision()
	if d.ShouldRender || d.IsVisible {
		t.Errorf("decision after progress = %+v, want hidden immediately", d)
	}
}

func TestNotifyPlayingReleasesHold(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()

	h.engine.NotifyPlaying()

	// Status is still startup, so the waiting reason keeps rendering, but
	// the hold reason is gone.
	d := h.engine.Decision()
	if hasReason(d, ReasonStartupHold) {
		t.Errorf("reasons = %v, want startup-hold released", d.Reasons)
	}
}

func TestExplicitShowRenders(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.becomePlaying()

	h.engine.SetExplicitShow(true)
	if d := h.engine.Decision(); !d.ShouldRender || !hasReason(d, ReasonExplicitShow) {
		t.Errorf("decision = %+v, want explicit-show render", d)
	}

	h.engine.SetExplicitShow(false)
	if h.engine.Decision().ShouldRender {
		t.Error("overlay should drop once explicit show clears")
	}
}

func TestExhaustionReasonSurfaces(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.becomePlaying()

	h.engine.SetStatus(resilience.StatusRecovering, true)

	d := h.engine.Decision()
	if !d.ShouldRender || !hasReason(d, ReasonRecoveryExhausted) {
		t.Errorf("decision = %+v, want persistent recovering with exhaustion reason", d)
	}
}

// =============================================================================
// Pause overlay
// =============================================================================

func TestPauseOverlayEligibility(t *testing.T) {
	tests := []struct {
		name   string
		status resilience.Status
		paused bool
		intent reporter.PauseIntent
		hidden bool
		want   bool
	}{
		{"user pause while healthy", resilience.StatusPaused, true, reporter.PauseIntentUser, false, true},
		{"system pause", resilience.StatusPlaying, true, reporter.PauseIntentSystem, false, false},
		{"not paused", resilience.StatusPlaying, false, reporter.PauseIntentNone, false, false},
		{"user hid the overlay", resilience.StatusPaused, true, reporter.PauseIntentUser, true, false},
		{"paused during stall", resilience.StatusStalling, true, reporter.PauseIntentUser, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.engine.Start()
			h.becomePlaying()

			h.engine.SetPauseOverlayHidden(tt.hidden)
			h.engine.SetStatus(tt.status, false)
			h.engine.SetPauseState(tt.paused, tt.intent)

			if got := h.engine.Decision().PauseOverlayActive; got != tt.want {
				t.Errorf("PauseOverlayActive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPauseOverlayDisabledByConfig(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	e := NewEngine(Config{Clock: clk, PauseOverlayEnabled: false})
	defer e.Close()
	e.Start()
	e.SetStatus(resilience.StatusPaused, false)
	e.SetPauseState(true, reporter.PauseIntentUser)

	if e.Decision().PauseOverlayActive {
		t.Error("pause overlay active despite being disabled")
	}
}

// =============================================================================
// Countdown
// =============================================================================

func TestStartupCountdownUsesLoadingDeadline(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()

	if got := h.engine.Decision().CountdownSeconds; got != DefaultLoadingCountdown.Seconds() {
		t.Errorf("countdown = %v, want %v", got, DefaultLoadingCountdown.Seconds())
	}

	h.clock.Advance(10 * time.Second)
	if got := h.engine.Decision().CountdownSeconds; got != 20 {
		t.Errorf("countdown after 10s = %v, want 20", got)
	}
}

func TestStallCountdownExpiryTriggersRecoveryOnce(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.becomePlaying()

	h.engine.SetStatus(resilience.StatusStalling, false)
	if got := h.engine.Decision().CountdownSeconds; got != DefaultStallCountdown.Seconds() {
		t.Fatalf("stall countdown = %v, want %v", got, DefaultStallCountdown.Seconds())
	}

	h.clock.Advance(DefaultStallCountdown)

	reasons := h.recoverReasons()
	if len(reasons) != 1 || reasons[0] != resilience.ReasonOverlayDeadline {
		t.Fatalf("recovery requests = %v, want exactly one overlay-deadline request", reasons)
	}

	// Still distressed: no second request from the same episode.
	h.engine.SetStatus(resilience.StatusRecovering, false)
	h.clock.Advance(time.Minute)
	if got := h.recoverReasons(); len(got) != 1 {
		t.Errorf("recovery requests = %v, want the latch to hold", got)
	}
}

func TestCountdownLatchClearsOnRecoveredPlayback(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.becomePlaying()

	h.engine.SetStatus(resilience.StatusStalling, false)
	h.clock.Advance(DefaultStallCountdown)
	h.becomePlaying()

	// A later, separate stall episode may trigger recovery again.
	h.engine.SetStatus(resilience.StatusStalling, false)
	h.clock.Advance(DefaultStallCountdown)

	if got := h.recoverReasons(); len(got) != 2 {
		t.Errorf("recovery requests = %v, want one per episode", got)
	}
}

func TestUserPauseSuspendsCountdown(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()

	h.engine.SetPauseState(true, reporter.PauseIntentUser)
	h.clock.Advance(2 * DefaultLoadingCountdown)

	if got := h.recoverReasons(); len(got) != 0 {
		t.Errorf("recovery requests = %v, want none while user-paused", got)
	}
	if got := h.engine.Decision().CountdownSeconds; got != 0 {
		t.Errorf("countdown while paused = %v, want 0", got)
	}
}

// =============================================================================
// Reset
// =============================================================================

func TestResetRestoresFreshSession(t *testing.T) {
	h := newHarness(t)
	h.engine.Start()
	h.becomePlaying()
	h.engine.SetExplicitShow(true)
	h.clock.Advance(DefaultRevealDelay)

	h.engine.Reset()

	d := h.engine.Decision()
	if !hasReason(d, ReasonStartupHold) {
		t.Errorf("reasons = %v, want the startup hold back", d.Reasons)
	}
	if d.IsVisible {
		t.Error("reset should hide the overlay until the reveal delay passes")
	}
	if hasReason(d, ReasonExplicitShow) {
		t.Error("explicit show should clear on reset")
	}
}
