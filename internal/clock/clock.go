// Package clock provides the timer scheduling used by the playback engine.
//
// Every deadline in the engine (stall detection, recovery cooldown, overlay
// reveal, seek settle and max-hold) is armed through a Clock so tests can
// drive them deterministically with Manual instead of sleeping.
package clock

import "time"

// Clock abstracts wall time and one-shot timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc arms fn to run after d. The returned Timer can be stopped.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancelable one-shot timer.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was stopped.
	Stop() bool
}

// Real is a Clock backed by the time package.
type Real struct{}

// NewReal returns a Clock backed by real wall time.
func NewReal() Real {
	return Real{}
}

// Now implements Clock.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc implements Clock.
func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

type realTimer struct {
	t *time.Timer
}

func (r realTimer) Stop() bool {
	return r.t.Stop()
}
