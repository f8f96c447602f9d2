package clock

import (
	"sync"
	"time"
)

// Group scopes a set of named timers to one owner (typically a playback
// session). Arming a name cancels the previous timer under that name, so a
// deadline is rearmed, never duplicated. CancelAll is called on session
// identity change and teardown so no timer leaks into the next session.
type Group struct {
	clock Clock

	mu     sync.Mutex
	timers map[string]Timer
	closed bool
}

// NewGroup creates a timer group on the given clock.
func NewGroup(c Clock) *Group {
	return &Group{
		clock:  c,
		timers: make(map[string]Timer),
	}
}

// Arm schedules fn after d under the given name, replacing any timer already
// armed under that name. Arming on a closed group is a no-op.
func (g *Group) Arm(name string, d time.Duration, fn func()) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if prev, ok := g.timers[name]; ok {
		prev.Stop()
	}
	// The wrapper removes the entry on fire so Armed() reflects live timers.
	var t Timer
	t = g.clock.AfterFunc(d, func() {
		g.mu.Lock()
		if g.timers[name] == t {
			delete(g.timers, name)
		}
		closed := g.closed
		g.mu.Unlock()
		if !closed {
			fn()
		}
	})
	g.timers[name] = t
	g.mu.Unlock()
}

// Cancel stops the timer armed under name, if any.
func (g *Group) Cancel(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.timers[name]; ok {
		t.Stop()
		delete(g.timers, name)
	}
}

// Armed reports whether a timer is currently armed under name.
func (g *Group) Armed(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.timers[name]
	return ok
}

// CancelAll stops every armed timer. The group remains usable.
func (g *Group) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, t := range g.timers {
		t.Stop()
		delete(g.timers, name)
	}
}

// Close cancels every timer and rejects further arming.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for name, t := range g.timers {
		t.Stop()
		delete(g.timers, name)
	}
}

// Now returns the group's clock time.
func (g *Group) Now() time.Time {
	return g.clock.Now()
}
