package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/health"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/reporter"
)

const (
	// DefaultStallThreshold is how long playing may go without progress
	// before the status becomes stalling.
	DefaultStallThreshold = 5 * time.Second

	// DefaultHardRecoverAfterStalled is how long stalling may persist before
	// hard recovery triggers.
	DefaultHardRecoverAfterStalled = 2 * time.Second

	// DefaultLoadingGrace is how long startup or recovering may go without
	// progress. Initial buffering legitimately takes longer than a
	// steady-state stall.
	DefaultLoadingGrace = 15 * time.Second

	// DefaultRecoveryCooldown is the minimum spacing between recoveries.
	DefaultRecoveryCooldown = 4 * time.Second

	// DefaultMaxAttempts bounds recoveries per session before the machine
	// surfaces a persistent recovering state for manual intervention.
	DefaultMaxAttempts = 5
)

// Timer names; one deadline of each kind at most.
const (
	stallTimer       = "resilience.stall"
	hardRecoverTimer = "resilience.hard-recover"
	loadingTimer     = "resilience.loading"
)

// Recovery reasons.
const (
	ReasonStall           = "stall"
	ReasonStartupDeadline = "startup-deadline-exceeded"
	ReasonOverlayDeadline = "overlay-countdown-expired"
	ReasonSegmentSkip     = "segment-skip-ahead"
)

// RecoverRequest asks the recovery orchestrator to act. GuardToken makes the
// request idempotent against racing timers: the orchestrator executes each
// token at most once.
type RecoverRequest struct {
	Reason     string
	GuardToken uint64
	Attempt    int
}

// Config holds configuration for creating a Machine.
type Config struct {
	StallThreshold          time.Duration
	HardRecoverAfterStalled time.Duration
	LoadingGrace            time.Duration
	RecoveryCooldown        time.Duration
	MaxAttempts             int

	Clock  clock.Clock
	Logger *slog.Logger
	Events *logging.Sink

	// OnStatusChange is called after every status transition.
	OnStatusChange func(old, new Status)

	// OnRecover is called when a recovery should execute. Never called
	// inside the machine's lock.
	OnRecover func(RecoverRequest)
}

// Machine is the resilience state machine for one playback session.
type Machine struct {
	cfg    Config
	timers *clock.Group

	mu             sync.Mutex
	state          State
	latestToken    uint64
	lastRecoveryAt time.Time
	hasRecovered   bool
	started        bool

	// pending accumulates callbacks queued by the reducer; finishLocked runs
	// them after releasing the lock so they may call back into the machine.
	pending []func()
}

// NewMachine creates a Machine in startup status. Call Start to arm the
// startup deadline.
func NewMachine(cfg Config) *Machine {
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultStallThreshold
	}
	if cfg.HardRecoverAfterStalled <= 0 {
		cfg.HardRecoverAfterStalled = DefaultHardRecoverAfterStalled
	}
	if cfg.LoadingGrace <= 0 {
		cfg.LoadingGrace = DefaultLoadingGrace
	}
	if cfg.RecoveryCooldown <= 0 {
		cfg.RecoveryCooldown = DefaultRecoveryCooldown
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Machine{
		cfg:    cfg,
		timers: clock.NewGroup(cfg.Clock),
		state:  State{Status: StatusStartup},
	}
}

// Start arms the startup deadline. Idempotent.
func (m *Machine) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.timers.Arm(loadingTimer, m.cfg.LoadingGrace, m.onLoadingDeadline)
}

// Close cancels all deadlines. The machine stops transitioning.
func (m *Machine) Close() {
	m.timers.Close()
}

// State returns a snapshot of the resilience state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// IsStalled reports whether the surface should be treated as unable to honor
// direct seeks (stalling or recovering).
func (m *Machine) IsStalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status.IsDistressed()
}

// Observe folds one health sample and its metrics snapshot into the machine.
func (m *Machine) Observe(s health.Sample, mtr reporter.Metrics) {
	m.mu.Lock()
	m.latestToken = s.ProgressToken

	switch {
	case s.Advanced:
		m.applyProgressLocked()
	case mtr.IsPaused && mtr.PauseIntent == reporter.PauseIntentUser:
		m.applyUserPauseLocked()
	case !mtr.IsPaused && m.state.Status == StatusPaused:
		m.applyResumeLocked()
	default:
		m.mu.Unlock()
		return
	}
	m.finishLocked()
}

// RequestRecovery routes an external recovery demand (overlay countdown,
// segment skip) through the same cooldown and attempt gates as the machine's
// own deadlines.
func (m *Machine) RequestRecovery(reason string) {
	m.mu.Lock()
	m.triggerRecoveryLocked(reason)
	m.finishLocked()
}

// ResetSession resets the machine for a new media identity. When carry is
// true and the machine is recovering, the recovering status and attempt count
// survive the reset: a reload caused by recovery must not masquerade as a
// fresh startup.
func (m *Machine) ResetSession(carry bool) {
	m.timers.CancelAll()

	m.mu.Lock()
	if carry && m.state.Status == StatusRecovering {
		m.state.CarryRecovery = true
	} else {
		old := m.state.Status
		m.state = State{Status: StatusStartup}
		m.latestToken = 0
		m.lastRecoveryAt = time.Time{}
		m.hasRecovered = false
		if old != StatusStartup {
			m.pendStatusChangeLocked(old, StatusStartup)
		}
	}
	m.mu.Unlock()

	m.timers.Arm(loadingTimer, m.cfg.LoadingGrace, m.onLoadingDeadline)
	m.runPending()
}

// --- reducer -----------------------------------------------------------------

// applyProgressLocked handles a progress tick: any status goes to playing,
// every distress deadline is cleared, and the attempt budget refills.
func (m *Machine) applyProgressLocked() {
	m.timers.Cancel(stallTimer)
	m.timers.Cancel(hardRecoverTimer)
	m.timers.Cancel(loadingTimer)

	old := m.state.Status
	m.state.Status = StatusPlaying
	m.state.RecoveryAttempts = 0
	m.state.CarryRecovery = false
	m.state.Exhausted = false

	m.timers.Arm(stallTimer, m.cfg.StallThreshold, m.onStallDeadline)

	if old != StatusPlaying {
		m.pendStatusChangeLocked(old, StatusPlaying)
	}
}

func (m *Machine) applyUserPauseLocked() {
	if m.state.Status == StatusPaused {
		return
	}
	// A paused stream is not a stalled stream: suspend every deadline.
	m.timers.Cancel(stallTimer)
	m.timers.Cancel(hardRecoverTimer)
	m.timers.Cancel(loadingTimer)

	old := m.state.Status
	m.state.Status = StatusPaused
	m.pendStatusChangeLocked(old, StatusPaused)
}

func (m *Machine) applyResumeLocked() {
	old := m.state.Status
	m.state.Status = StatusPlaying
	m.timers.Arm(stallTimer, m.cfg.StallThreshold, m.onStallDeadline)
	m.pendStatusChangeLocked(old, StatusPlaying)
}

func (m *Machine) onStallDeadline() {
	m.mu.Lock()
	if m.state.Status != StatusPlaying {
		m.mu.Unlock()
		return
	}
	old := m.state.Status
	m.state.Status = StatusStalling
	m.state.LastStallToken = m.latestToken
	m.pendStatusChangeLocked(old, StatusStalling)

	m.cfg.Events.Emit("resilience.stall-detected",
		"token", m.latestToken,
		"threshold", m.cfg.StallThreshold.String(),
	)

	m.timers.Arm(hardRecoverTimer, m.cfg.HardRecoverAfterStalled, m.onHardRecoverDeadline)
	m.finishLocked()
}

func (m *Machine) onHardRecoverDeadline() {
	m.mu.Lock()
	if m.state.Status != StatusStalling {
		m.mu.Unlock()
		return
	}
	m.triggerRecoveryLocked(ReasonStall)
	m.finishLocked()
}

func (m *Machine) onLoadingDeadline() {
	m.mu.Lock()
	if m.state.Status != StatusStartup && m.state.Status != StatusRecovering {
		m.mu.Unlock()
		return
	}
	m.triggerRecoveryLocked(ReasonStartupDeadline)
	m.finishLocked()
}

// triggerRecoveryLocked applies the cooldown and max-attempt gates, then
// schedules the recovery callback.
func (m *Machine) triggerRecoveryLocked(reason string) {
	old := m.state.Status
	now := m.timers.Now()

	if m.state.RecoveryAttempts >= m.cfg.MaxAttempts {
		// Exhaustion is not fatal: stay recovering so the overlay keeps
		// signaling until a person intervenes or progress returns.
		m.state.Status = StatusRecovering
		if !m.state.Exhausted {
			m.state.Exhausted = true
			m.cfg.Events.Emit("resilience.recovery-exhausted",
				"attempts", m.state.RecoveryAttempts,
				"max", m.cfg.MaxAttempts,
			)
			if m.cfg.Logger != nil {
				m.cfg.Logger.Warn("recovery_exhausted",
					"attempts", m.state.RecoveryAttempts,
					"max", m.cfg.MaxAttempts,
				)
			}
		}
		if old != StatusRecovering {
			m.pendStatusChangeLocked(old, StatusRecovering)
		}
		return
	}

	if m.hasRecovered && now.Sub(m.lastRecoveryAt) < m.cfg.RecoveryCooldown {
		// Inside the cooldown window: hold the recovering status, skip the
		// reload. The loading deadline below retriggers if nothing improves.
		m.state.Status = StatusRecovering
		if old != StatusRecovering {
			m.pendStatusChangeLocked(old, StatusRecovering)
		}
		m.timers.Arm(loadingTimer, m.cfg.LoadingGrace, m.onLoadingDeadline)
		return
	}

	m.state.Status = StatusRecovering
	m.state.RecoveryAttempts++
	m.state.RecoveryGuardToken++
	m.lastRecoveryAt = now
	m.hasRecovered = true

	req := RecoverRequest{
		Reason:     reason,
		GuardToken: m.state.RecoveryGuardToken,
		Attempt:    m.state.RecoveryAttempts,
	}

	m.cfg.Events.Emit("resilience.recovery-triggered",
		"reason", reason,
		"attempt", req.Attempt,
		"guard_token", req.GuardToken,
	)

	if old != StatusRecovering {
		m.pendStatusChangeLocked(old, StatusRecovering)
	}

	m.timers.Arm(loadingTimer, m.cfg.LoadingGrace, m.onLoadingDeadline)

	if m.cfg.OnRecover != nil {
		fn := m.cfg.OnRecover
		m.pending = append(m.pending, func() { fn(req) })
	}
}

// --- callback plumbing -------------------------------------------------------

func (m *Machine) pendStatusChangeLocked(old, new Status) {
	if m.cfg.OnStatusChange == nil || old == new {
		return
	}
	fn := m.cfg.OnStatusChange
	m.pending = append(m.pending, func() { fn(old, new) })
}

// finishLocked releases the lock and runs callbacks queued by the reducer.
func (m *Machine) finishLocked() {
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

func (m *Machine) runPending() {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}
