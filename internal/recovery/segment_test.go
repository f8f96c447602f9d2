package recovery

import (
	"sync"
	"testing"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/resilience"
)

// =============================================================================
// Test harness
// =============================================================================

type guardHarness struct {
	clock *clock.Manual
	guard *SegmentGuard

	mu        sync.Mutex
	retries   []string
	retryOK   bool
	ahead     float64
	haveAhead bool
	position  float64
	skips     []skipCall
}

type skipCall struct {
	reason string
	target float64
}

func newGuardHarness(t *testing.T) *guardHarness {
	t.Helper()

	h := &guardHarness{
		clock:     clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		ahead:     10,
		haveAhead: true,
	}
	h.guard = NewSegmentGuard(GuardConfig{
		Clock: h.clock,
		BufferAhead: func() (float64, bool) {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.ahead, h.haveAhead
		},
		Position: func() float64 {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.position
		},
		SkipAhead: func(reason string, target float64) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.skips = append(h.skips, skipCall{reason, target})
		},
	})
	t.Cleanup(h.guard.Close)
	return h
}

// retry is the refetch callback handed to HandleNotFound.
func (h *guardHarness) retry(url string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retries = append(h.retries, url)
	return h.retryOK
}

func (h *guardHarness) setBuffer(ahead float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ahead = ahead
}

func (h *guardHarness) retryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retries)
}

func (h *guardHarness) skipCalls() []skipCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]skipCall(nil), h.skips...)
}

// =============================================================================
// Retry under buffer budget
// =============================================================================

func TestNotFoundRetriesOnIntervalWhileBufferHolds(t *testing.T) {
	h := newGuardHarness(t)

	h.guard.HandleNotFound("seg-042.ts", h.retry)
	if got := h.retryCount(); got != 0 {
		t.Fatalf("retries before the interval = %d, want 0", got)
	}

	h.clock.Advance(DefaultRetryInterval)
	if got := h.retryCount(); got != 1 {
		t.Fatalf("retries after one interval = %d, want 1", got)
	}

	h.clock.Advance(DefaultRetryInterval)
	if got := h.retryCount(); got != 2 {
		t.Errorf("retries after two intervals = %d, want 2", got)
	}
	if got := h.skipCalls(); len(got) != 0 {
		t.Errorf("skips = %v, want none while the buffer holds", got)
	}
}

func TestSuccessfulRetryEndsEpisode(t *testing.T) {
	h := newGuardHarness(t)
	h.mu.Lock()
	h.retryOK = true
	h.mu.Unlock()

	h.guard.HandleNotFound("seg-042.ts", h.retry)
	h.clock.Advance(DefaultRetryInterval)

	if got := h.guard.PendingCount(); got != 0 {
		t.Fatalf("pending episodes = %d, want 0 after a successful refetch", got)
	}
	h.clock.Advance(10 * DefaultRetryInterval)
	if got := h.retryCount(); got != 1 {
		t.Errorf("retries = %d, want no further attempts", got)
	}
}

func TestBufferDepletionSkipsAhead(t *testing.T) {
	h := newGuardHarness(t)
	h.setBuffer(5)
	h.mu.Lock()
	h.position = 100
	h.mu.Unlock()

	h.guard.HandleNotFound("seg-042.ts", h.retry)

	// First retry: 5s of buffer still covers the wait.
	h.clock.Advance(DefaultRetryInterval)
	if got := h.retryCount(); got != 1 {
		t.Fatalf("retries = %d, want 1", got)
	}

	// Buffer runs down before the second retry: give up and skip past the
	// hole, padded so playback lands beyond it.
	h.setBuffer(1.5)
	h.clock.Advance(DefaultRetryInterval)

	if got := h.retryCount(); got != 1 {
		t.Errorf("retries = %d, want no retry after depletion", got)
	}
	skips := h.skipCalls()
	if len(skips) != 1 {
		t.Fatalf("skips = %v, want exactly one", skips)
	}
	if skips[0].reason != resilience.ReasonSegmentSkip {
		t.Errorf("skip reason = %q, want %q", skips[0].reason, resilience.ReasonSegmentSkip)
	}
	if want := 100 + 1.5 + DefaultSkipPadding; skips[0].target != want {
		t.Errorf("skip target = %v, want %v", skips[0].target, want)
	}
	if got := h.guard.PendingCount(); got != 0 {
		t.Errorf("pending episodes = %d, want 0 after the skip", got)
	}
}

func TestMissingDiagnosticsKeepRetrying(t *testing.T) {
	h := newGuardHarness(t)
	h.mu.Lock()
	h.haveAhead = false
	h.mu.Unlock()

	h.guard.HandleNotFound("seg-042.ts", h.retry)
	h.clock.Advance(3 * DefaultRetryInterval)

	if got := h.retryCount(); got != 3 {
		t.Errorf("retries = %d, want 3: no diagnostics means no depletion verdict", got)
	}
	if got := h.skipCalls(); len(got) != 0 {
		t.Errorf("skips = %v, want none", got)
	}
}

// =============================================================================
// Episode management
// =============================================================================

func TestDuplicateNotFoundIsNoOp(t *testing.T) {
	h := newGuardHarness(t)

	h.guard.HandleNotFound("seg-042.ts", h.retry)
	h.clock.Advance(time.Second)
	h.guard.HandleNotFound("seg-042.ts", h.retry)

	// The second report must not restart the interval.
	h.clock.Advance(time.Second)
	if got := h.retryCount(); got != 1 {
		t.Errorf("retries = %d, want the original schedule intact", got)
	}
}

func TestIndependentEpisodesPerSegment(t *testing.T) {
	h := newGuardHarness(t)

	h.guard.HandleNotFound("seg-042.ts", h.retry)
	h.guard.HandleNotFound("seg-043.ts", h.retry)
	if got := h.guard.PendingCount(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	h.guard.Resolve("seg-042.ts")
	h.clock.Advance(DefaultRetryInterval)

	h.mu.Lock()
	retries := append([]string(nil), h.retries...)
	h.mu.Unlock()
	if len(retries) != 1 || retries[0] != "seg-043.ts" {
		t.Errorf("retries = %v, want only the unresolved segment", retries)
	}
}

func TestResetAbandonsAllEpisodes(t *testing.T) {
	h := newGuardHarness(t)

	h.guard.HandleNotFound("seg-042.ts", h.retry)
	h.guard.HandleNotFound("seg-043.ts", h.retry)
	h.guard.Reset()

	h.clock.Advance(5 * DefaultRetryInterval)
	if got := h.retryCount(); got != 0 {
		t.Errorf("retries after reset = %d, want 0", got)
	}
	if got := h.guard.PendingCount(); got != 0 {
		t.Errorf("pending after reset = %d, want 0", got)
	}
}
