// Package health derives playback progress from the metrics stream.
//
// The monitor is purely reactive: it owns no timers and mutates nothing but
// its own counters, so a test can feed it any snapshot sequence and get a
// deterministic answer. Deadline-driven stall decisions live in the
// resilience state machine, which consumes the monitor's output.
package health

import (
	"sync"
	"time"

	"github.com/hearthward/playback-sentinel/internal/reporter"
)

// DefaultEpsilonSeconds is the minimum forward position delta that counts as
// real progress. Position jitter below this never advances the token.
const DefaultEpsilonSeconds = 0.25

// Sample is the monitor's output for one observed snapshot.
type Sample struct {
	// ProgressToken is a monotonic counter. Equal tokens across two
	// observations mean no real progress happened between them.
	ProgressToken uint64

	// Advanced is true when this observation incremented the token.
	Advanced bool

	// HasProgress is true once any progress has been observed this session.
	HasProgress bool

	// LastProgressAt is when the token last advanced (zero until first
	// progress).
	LastProgressAt time.Time

	// LastProgressPosition is the playback position at the last token
	// advance. Recovery uses it as the resume anchor.
	LastProgressPosition float64
}

// Monitor turns a stream of metrics snapshots into a monotonic progress
// token. The token advances only when position moves forward by more than
// epsilon while neither paused nor seeking; equal or decreasing positions
// (including post-seek rewinds) never advance it.
type Monitor struct {
	epsilon float64

	mu           sync.Mutex
	token        uint64
	havePosition bool
	lastPosition float64
	lastAt       time.Time
	lastPos      float64
	hasProgress  bool
}

// NewMonitor creates a Monitor. epsilonSeconds <= 0 selects the default.
func NewMonitor(epsilonSeconds float64) *Monitor {
	if epsilonSeconds <= 0 {
		epsilonSeconds = DefaultEpsilonSeconds
	}
	return &Monitor{epsilon: epsilonSeconds}
}

// Observe folds one metrics snapshot into the monitor and returns the
// resulting sample.
func (m *Monitor) Observe(mtr reporter.Metrics, now time.Time) Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	advanced := false
	if !mtr.IsPaused && !mtr.IsSeeking && m.havePosition {
		delta := mtr.PositionSeconds - m.lastPosition
		if delta > m.epsilon {
			m.token++
			m.hasProgress = true
			m.lastAt = now
			m.lastPos = mtr.PositionSeconds
			advanced = true
		}
	}

	// The reference is simply the previous observation. Updating it while
	// paused or seeking means a seek jump is never mistaken for progress on
	// the first tick after resume.
	m.lastPosition = mtr.PositionSeconds
	m.havePosition = true

	return Sample{
		ProgressToken:        m.token,
		Advanced:             advanced,
		HasProgress:          m.hasProgress,
		LastProgressAt:       m.lastAt,
		LastProgressPosition: m.lastPos,
	}
}

// Current returns the monitor's state without folding a new snapshot.
func (m *Monitor) Current() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Sample{
		ProgressToken:        m.token,
		HasProgress:          m.hasProgress,
		LastProgressAt:       m.lastAt,
		LastProgressPosition: m.lastPos,
	}
}

// Reset clears all state for a new playback session.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = 0
	m.havePosition = false
	m.lastPosition = 0
	m.lastAt = time.Time{}
	m.lastPos = 0
	m.hasProgress = false
}
