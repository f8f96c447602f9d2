package clock

import (
	"sync"
	"time"
)

// Manual is a virtual-time Clock for tests.
//
// Time only moves when Advance or Set is called. Timers due at or before the
// new time fire synchronously, in deadline order, before Advance returns.
// Callbacks run without the internal lock held, so they may arm new timers;
// newly armed timers that fall inside the advance window fire in the same
// call. This mirrors the cooperative, single-threaded scheduling model of the
// engine: no two callbacks ever run concurrently.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	pending []*manualTimer
}

// NewManual creates a Manual clock starting at the given time.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc implements Clock.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{
		clock: m,
		when:  m.now.Add(d),
		seq:   m.seq,
		fn:    fn,
	}
	m.seq++
	m.pending = append(m.pending, t)
	return t
}

// Advance moves virtual time forward by d, firing due timers in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	m.Set(target)
}

// Set moves virtual time to target, firing due timers in order.
// Setting time backwards only updates Now; nothing un-fires.
func (m *Manual) Set(target time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		// Step time to the timer's deadline before running it, so callbacks
		// observe a consistent Now.
		if next.when.After(m.now) {
			m.now = next.when
		}
		next.fired = true
		m.removeLocked(next)
		m.mu.Unlock()

		next.fn()
	}
}

// PendingCount returns the number of armed, unfired timers. Test helper.
func (m *Manual) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// nextDueLocked returns the earliest timer due at or before target, breaking
// ties by arming order.
func (m *Manual) nextDueLocked(target time.Time) *manualTimer {
	var best *manualTimer
	for _, t := range m.pending {
		if t.when.After(target) {
			continue
		}
		if best == nil || t.when.Before(best.when) ||
			(t.when.Equal(best.when) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) removeLocked(t *manualTimer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

type manualTimer struct {
	clock *Manual
	when  time.Time
	seq   int
	fn    func()
	fired bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired {
		return false
	}
	for i, p := range t.clock.pending {
		if p == t {
			t.clock.pending = append(t.clock.pending[:i], t.clock.pending[i+1:]...)
			t.fired = true
			return true
		}
	}
	return false
}
