package session

import (
	"log/slog"
	"sync"

	"github.com/hearthward/playback-sentinel/internal/clock"
	"github.com/hearthward/playback-sentinel/internal/config"
	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/metrics"
	"github.com/hearthward/playback-sentinel/internal/prefs"
	"github.com/hearthward/playback-sentinel/internal/stats"
	"github.com/hearthward/playback-sentinel/internal/surface"
)

// Engine owns session lifecycle for the hub: one active session at a time,
// keyed by media identity. Starting a session for a new key tears the old
// one down first, so old timers can never fire into the new session.
type Engine struct {
	cfg        *config.Config
	clock      clock.Clock
	logger     *slog.Logger
	events     *logging.Sink
	collector  *metrics.Collector
	prefs      *prefs.Store
	aggregator *stats.Aggregator
	onSnapshot func(Snapshot)

	mu     sync.Mutex
	active *Session
}

// EngineOptions carries the process-wide collaborators.
type EngineOptions struct {
	Config    *config.Config
	Clock     clock.Clock
	Logger    *slog.Logger
	Events    *logging.Sink
	Collector *metrics.Collector
	Prefs     *prefs.Store

	// OnSnapshot receives snapshots from whichever session is active.
	OnSnapshot func(Snapshot)
}

// NewEngine creates an Engine with no active session.
func NewEngine(opts EngineOptions) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Engine{
		cfg:        cfg,
		clock:      opts.Clock,
		logger:     opts.Logger,
		events:     opts.Events,
		collector:  opts.Collector,
		prefs:      opts.Prefs,
		aggregator: stats.NewAggregator(opts.Clock.Now),
		onSnapshot: opts.OnSnapshot,
	}
}

// StartSession begins a session for the given media key, replacing the
// active one. Starting the same key again restarts it from scratch.
func (e *Engine) StartSession(mediaKey string, surf *surface.Surface) *Session {
	e.mu.Lock()
	old := e.active
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}

	s := New(mediaKey, surf, Options{
		Config:     e.cfg,
		Clock:      e.clock,
		Logger:     e.logger,
		Events:     e.events,
		Collector:  e.collector,
		Prefs:      e.prefs,
		OnSnapshot: e.onSnapshot,
	})
	e.aggregator.Register(s.Stats())

	e.mu.Lock()
	e.active = s
	e.mu.Unlock()

	s.Start()
	return s
}

// Active returns the current session, or nil.
func (e *Engine) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Aggregate computes hub-wide statistics across all sessions ever run.
func (e *Engine) Aggregate() stats.AggregatedStats {
	return e.aggregator.Aggregate()
}

// EndSession tears down the active session, if any. The engine stays ready
// to start another.
func (e *Engine) EndSession() {
	e.Close()
}

// Close tears down the active session.
func (e *Engine) Close() {
	e.mu.Lock()
	active := e.active
	e.active = nil
	e.mu.Unlock()
	if active != nil {
		active.Close()
	}
}
