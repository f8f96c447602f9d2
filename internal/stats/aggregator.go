package stats

import (
	"sync"
	"time"
)

// AggregatedStats holds totals across every session the hub has run.
//
// This is a snapshot - values are computed at the time of Aggregate() call.
type AggregatedStats struct {
	Timestamp time.Time

	TotalSessions     int
	UnhealthySessions int

	TotalProgressTicks int64
	TotalStalls        int64
	TotalRecoveries    int64
	TotalExhaustions   int64
	TotalSeekCommits   int64
	TotalSeekExpiries  int64
	TotalSegmentSkips  int64
	TotalOverlayShows  int64

	// StallRate is stalls per hour of cumulative session uptime.
	StallRate float64

	// Per-session summaries for the detailed TUI view.
	PerSession []Summary
}

// Aggregator folds session stats into hub-wide totals. Sessions register on
// creation and stay registered after teardown so history survives zapping.
type Aggregator struct {
	mu       sync.Mutex
	sessions []*SessionStats
	now      func() time.Time
}

// NewAggregator creates an Aggregator. nowFn may be nil for wall-clock time.
func NewAggregator(nowFn func() time.Time) *Aggregator {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Aggregator{now: nowFn}
}

// Register adds a session's stats to the aggregate.
func (a *Aggregator) Register(s *SessionStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = append(a.sessions, s)
}

// Aggregate computes a snapshot across all registered sessions.
func (a *Aggregator) Aggregate() AggregatedStats {
	a.mu.Lock()
	sessions := append([]*SessionStats(nil), a.sessions...)
	a.mu.Unlock()

	now := a.now()
	agg := AggregatedStats{
		Timestamp:     now,
		TotalSessions: len(sessions),
		PerSession:    make([]Summary, 0, len(sessions)),
	}

	var uptime time.Duration
	for _, s := range sessions {
		sum := s.Snapshot(now)
		agg.PerSession = append(agg.PerSession, sum)

		if !sum.Healthy() {
			agg.UnhealthySessions++
		}
		agg.TotalProgressTicks += sum.ProgressTicks
		agg.TotalStalls += sum.StallsDetected
		agg.TotalRecoveries += sum.RecoveriesTriggered
		agg.TotalExhaustions += sum.RecoveryExhaustions
		agg.TotalSeekCommits += sum.SeeksCommitted
		agg.TotalSeekExpiries += sum.SeeksExpired
		agg.TotalSegmentSkips += sum.SegmentSkips
		agg.TotalOverlayShows += sum.OverlayReveals
		uptime += sum.Uptime
	}

	if hours := uptime.Hours(); hours > 0 {
		agg.StallRate = float64(agg.TotalStalls) / hours
	}
	return agg
}
