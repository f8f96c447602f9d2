package recovery

import (
	"sync"
	"testing"

	"github.com/hearthward/playback-sentinel/internal/reporter"
	"github.com/hearthward/playback-sentinel/internal/resilience"
)

// =============================================================================
// Test harness
// =============================================================================

type orchHarness struct {
	orch *Orchestrator

	mu           sync.Mutex
	resets       []reporter.HardResetRequest
	executed     []resilience.RecoverRequest
	suppressed   []resilience.RecoverRequest
	seekIntent   *float64
	lastProgress float64
	haveProgress bool
}

func newOrchHarness() *orchHarness {
	h := &orchHarness{}
	h.orch = NewOrchestrator(Config{
		HardReset: func(req reporter.HardResetRequest) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.resets = append(h.resets, req)
		},
		SeekIntent: func() *float64 {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.seekIntent
		},
		LastProgress: func() (float64, bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.lastProgress, h.haveProgress
		},
		OnExecuted: func(req resilience.RecoverRequest) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.executed = append(h.executed, req)
		},
		OnSuppressed: func(req resilience.RecoverRequest) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.suppressed = append(h.suppressed, req)
		},
	})
	return h
}

func (h *orchHarness) hardResets() []reporter.HardResetRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]reporter.HardResetRequest(nil), h.resets...)
}

// =============================================================================
// Orchestrator
// =============================================================================

func TestExecuteIssuesHardResetWithProgressAnchor(t *testing.T) {
	h := newOrchHarness()
	h.lastProgress = 37.5
	h.haveProgress = true

	h.orch.Execute(resilience.RecoverRequest{
		Reason:     resilience.ReasonStall,
		GuardToken: 1,
		Attempt:    1,
	})

	resets := h.hardResets()
	if len(resets) != 1 {
		t.Fatalf("hard resets = %d, want 1", len(resets))
	}
	if resets[0].Reason != resilience.ReasonStall {
		t.Errorf("reason = %q, want %q", resets[0].Reason, resilience.ReasonStall)
	}
	if resets[0].SeekToSeconds != 37.5 {
		t.Errorf("anchor = %v, want last progress 37.5", resets[0].SeekToSeconds)
	}
	if len(h.executed) != 1 || h.executed[0].GuardToken != 1 {
		t.Errorf("executed callbacks = %v, want the request echoed", h.executed)
	}
}

func TestSeekIntentOutranksProgressAnchor(t *testing.T) {
	h := newOrchHarness()
	h.lastProgress = 37.5
	h.haveProgress = true
	intent := 120.0
	h.seekIntent = &intent

	h.orch.Execute(resilience.RecoverRequest{Reason: resilience.ReasonStall, GuardToken: 1, Attempt: 1})

	if got := h.hardResets()[0].SeekToSeconds; got != 120 {
		t.Errorf("anchor = %v, want the seek intent 120", got)
	}
}

func TestAnchorFallsBackToZero(t *testing.T) {
	h := newOrchHarness()

	h.orch.Execute(resilience.RecoverRequest{Reason: resilience.ReasonStartupDeadline, GuardToken: 1})

	if got := h.hardResets()[0].SeekToSeconds; got != 0 {
		t.Errorf("anchor = %v, want 0 with no progress and no intent", got)
	}
}

func TestDuplicateGuardTokenSuppressed(t *testing.T) {
	h := newOrchHarness()

	req := resilience.RecoverRequest{Reason: resilience.ReasonStall, GuardToken: 3, Attempt: 1}
	h.orch.Execute(req)
	h.orch.Execute(req)
	h.orch.Execute(resilience.RecoverRequest{Reason: resilience.ReasonStall, GuardToken: 2, Attempt: 1})

	if got := len(h.hardResets()); got != 1 {
		t.Errorf("hard resets = %d, want racing duplicates collapsed to 1", got)
	}
	h.mu.Lock()
	dropped := len(h.suppressed)
	h.mu.Unlock()
	if dropped != 2 {
		t.Errorf("suppressed callbacks = %d, want 2", dropped)
	}

	// A genuinely new token executes.
	h.orch.Execute(resilience.RecoverRequest{Reason: resilience.ReasonStall, GuardToken: 4, Attempt: 2})
	if got := len(h.hardResets()); got != 2 {
		t.Errorf("hard resets = %d, want 2 after a fresh token", got)
	}
}

func TestResetForgetsGuardWatermark(t *testing.T) {
	h := newOrchHarness()

	h.orch.Execute(resilience.RecoverRequest{Reason: resilience.ReasonStall, GuardToken: 5, Attempt: 1})
	h.orch.Reset()
	h.orch.Execute(resilience.RecoverRequest{Reason: resilience.ReasonStall, GuardToken: 1, Attempt: 1})

	if got := len(h.hardResets()); got != 2 {
		t.Errorf("hard resets = %d, want token watermark cleared by reset", got)
	}
}
