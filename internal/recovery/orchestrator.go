// Package recovery executes the reload actions the resilience machine
// requests, and shields playback from transient segment-fetch failures.
package recovery

import (
	"log/slog"
	"sync"

	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/reporter"
	"github.com/hearthward/playback-sentinel/internal/resilience"
)

// Config holds configuration for creating an Orchestrator.
type Config struct {
	Logger *slog.Logger
	Events *logging.Sink

	// HardReset performs the actual surface reload with an embedded seek
	// anchor. Wired to the metrics reporter.
	HardReset func(reporter.HardResetRequest)

	// SeekIntent returns the in-flight seek target, if any. When present it
	// outranks the last progress position as the reload anchor: the user
	// asked for that position explicitly.
	SeekIntent func() *float64

	// LastProgress returns the last position at which real forward progress
	// was confirmed.
	LastProgress func() (float64, bool)

	// OnExecuted fires after a reload was issued, before control returns to
	// the caller. The session uses it to mark the coming surface reset as
	// recovery-caused.
	OnExecuted func(resilience.RecoverRequest)

	// OnSuppressed fires when a request is dropped as a guard-token
	// duplicate.
	OnSuppressed func(resilience.RecoverRequest)
}

// Orchestrator turns recovery requests into hard resets, deduplicating by
// guard token so racing timers produce at most one reload per request.
type Orchestrator struct {
	cfg Config

	mu        sync.Mutex
	lastGuard uint64
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Execute performs the reload for one recovery request. Requests carrying a
// guard token at or below the last executed one are dropped.
func (o *Orchestrator) Execute(req resilience.RecoverRequest) {
	o.mu.Lock()
	if req.GuardToken <= o.lastGuard {
		o.mu.Unlock()
		o.cfg.Events.Emit("recovery.duplicate-suppressed",
			"guard_token", req.GuardToken, "reason", req.Reason)
		if o.cfg.OnSuppressed != nil {
			o.cfg.OnSuppressed(req)
		}
		return
	}
	o.lastGuard = req.GuardToken
	o.mu.Unlock()

	anchor := o.anchor()

	o.cfg.Events.Emit("recovery.executed",
		"reason", req.Reason,
		"attempt", req.Attempt,
		"anchor_seconds", anchor)
	if o.cfg.Logger != nil {
		o.cfg.Logger.Info("recovery_reload",
			"reason", req.Reason,
			"attempt", req.Attempt,
			"anchor_seconds", anchor)
	}

	if o.cfg.OnExecuted != nil {
		o.cfg.OnExecuted(req)
	}
	if o.cfg.HardReset != nil {
		o.cfg.HardReset(reporter.HardResetRequest{
			Reason:        req.Reason,
			SeekToSeconds: anchor,
		})
	}
}

// Reset forgets the guard-token watermark for a new session.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.lastGuard = 0
	o.mu.Unlock()
}

func (o *Orchestrator) anchor() float64 {
	if o.cfg.SeekIntent != nil {
		if intent := o.cfg.SeekIntent(); intent != nil {
			return *intent
		}
	}
	if o.cfg.LastProgress != nil {
		if pos, ok := o.cfg.LastProgress(); ok {
			return pos
		}
	}
	return 0
}
