package recovery

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/resilience"
)

// Defaults.
const (
	DefaultRetryInterval  = 2 * time.Second
	DefaultMinBufferAhead = 2.0
	DefaultSkipPadding    = 2.0
)

// GuardConfig holds configuration for creating a SegmentGuard.
type GuardConfig struct {
	RetryInterval  time.Duration
	MinBufferAhead float64
	SkipPadding    float64

	Clock  clock.Clock
	Logger *slog.Logger
	Events *logging.Sink

	// BufferAhead reports the current buffered seconds ahead of the
	// playhead, false when diagnostics are unavailable.
	BufferAhead func() (float64, bool)

	// Position reports the current playback position.
	Position func() float64

	// SkipAhead reloads the stream past the missing segment.
	SkipAhead func(reason string, seekToSeconds float64)
}

// SegmentGuard absorbs segment-fetch "not found" failures. Many such
// failures are transient (a live segment published late), so the guard
// holds the fetch open and retries on an interval for as long as buffered
// media can cover the wait. Only when the buffer runs down does it give up
// and skip forward past the hole.
type SegmentGuard struct {
	cfg    GuardConfig
	timers *clock.Group

	mu      sync.Mutex
	pending map[string]*episode
}

// episode tracks one missing segment's retry loop.
type episode struct {
	attempts int
	retry    func(url string) bool
}

// NewSegmentGuard creates a SegmentGuard.
func NewSegmentGuard(cfg GuardConfig) *SegmentGuard {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.MinBufferAhead <= 0 {
		cfg.MinBufferAhead = DefaultMinBufferAhead
	}
	if cfg.SkipPadding <= 0 {
		cfg.SkipPadding = DefaultSkipPadding
	}
	return &SegmentGuard{
		cfg:     cfg,
		timers:  clock.NewGroup(cfg.Clock),
		pending: make(map[string]*episode),
	}
}

// Close cancels all retry timers.
func (g *SegmentGuard) Close() {
	g.timers.Close()
}

// HandleNotFound begins a retry episode for a segment whose fetch returned
// "not found". The caller keeps the original request pending; the guard
// resolves or abandons it. retry refetches the segment, returning true on
// success. A second report for the same URL while an episode is running is
// a no-op.
func (g *SegmentGuard) HandleNotFound(url string, retry func(url string) bool) {
	g.mu.Lock()
	if _, exists := g.pending[url]; exists {
		g.mu.Unlock()
		return
	}
	g.pending[url] = &episode{retry: retry}
	g.mu.Unlock()

	g.cfg.Events.Emit("segment.not-found", "url", url)
	g.timers.Arm(timerName(url), g.cfg.RetryInterval, func() { g.onRetry(url) })
}

// Resolve ends the episode for a segment that became available through some
// other path.
func (g *SegmentGuard) Resolve(url string) {
	g.mu.Lock()
	_, exists := g.pending[url]
	delete(g.pending, url)
	g.mu.Unlock()
	if exists {
		g.timers.Cancel(timerName(url))
	}
}

// PendingCount returns the number of in-flight episodes.
func (g *SegmentGuard) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Reset abandons all episodes for a session change.
func (g *SegmentGuard) Reset() {
	g.timers.CancelAll()
	g.mu.Lock()
	g.pending = make(map[string]*episode)
	g.mu.Unlock()
}

func (g *SegmentGuard) onRetry(url string) {
	g.mu.Lock()
	ep, exists := g.pending[url]
	if !exists {
		g.mu.Unlock()
		return
	}
	attempts := ep.attempts

	// Buffer check before spending another retry: once buffered media can
	// no longer cover the wait, skipping beats waiting.
	ahead, haveAhead := 0.0, false
	if g.cfg.BufferAhead != nil {
		ahead, haveAhead = g.cfg.BufferAhead()
	}
	if haveAhead && ahead < g.cfg.MinBufferAhead {
		delete(g.pending, url)
		g.mu.Unlock()

		pos := 0.0
		if g.cfg.Position != nil {
			pos = g.cfg.Position()
		}
		target := pos + ahead + g.cfg.SkipPadding
		g.cfg.Events.Emit("segment.skip-ahead",
			"url", url, "attempts", attempts, "target_seconds", target)
		if g.cfg.Logger != nil {
			g.cfg.Logger.Warn("segment_skip_ahead",
				"url", url, "attempts", attempts, "target_seconds", target)
		}
		if g.cfg.SkipAhead != nil {
			g.cfg.SkipAhead(resilience.ReasonSegmentSkip, target)
		}
		return
	}

	ep.attempts = attempts + 1
	g.mu.Unlock()

	if ep.retry != nil && ep.retry(url) {
		g.mu.Lock()
		delete(g.pending, url)
		g.mu.Unlock()
		g.cfg.Events.Emit("segment.recovered", "url", url, "attempts", attempts+1)
		return
	}

	g.timers.Arm(timerName(url), g.cfg.RetryInterval, func() { g.onRetry(url) })
}

func timerName(url string) string {
	return "segment.retry." + url
}
