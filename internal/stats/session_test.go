package stats

import (
	"testing"
	"time"
)

var statsT0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestSnapshotCarriesCounters(t *testing.T) {
	s := NewSessionStats("sess-1", "movie-42", statsT0)
	s.ProgressTicks.Add(100)
	s.StallsDetected.Add(3)
	s.RecoveriesTriggered.Add(2)
	s.SeeksCommitted.Add(5)
	s.SeeksCompleted.Add(4)
	s.SegmentSkips.Add(1)

	sum := s.Snapshot(statsT0.Add(90 * time.Second))

	if sum.SessionID != "sess-1" || sum.MediaKey != "movie-42" {
		t.Errorf("identity = %s/%s, want sess-1/movie-42", sum.SessionID, sum.MediaKey)
	}
	if sum.Uptime != 90*time.Second {
		t.Errorf("uptime = %v, want 90s", sum.Uptime)
	}
	if sum.ProgressTicks != 100 || sum.StallsDetected != 3 || sum.RecoveriesTriggered != 2 {
		t.Errorf("counters = %+v, want the recorded values", sum)
	}
	if sum.SeeksCommitted != 5 || sum.SeeksCompleted != 4 || sum.SegmentSkips != 1 {
		t.Errorf("seek/segment counters = %+v, want the recorded values", sum)
	}
}

func TestStallDurationPercentiles(t *testing.T) {
	s := NewSessionStats("sess-1", "movie-42", statsT0)
	for i := 1; i <= 100; i++ {
		s.RecordStallDuration(time.Duration(i) * 100 * time.Millisecond)
	}

	q := s.Snapshot(statsT0).StallDuration
	if q.Samples != 100 {
		t.Fatalf("samples = %d, want 100", q.Samples)
	}
	// Uniform 0.1..10.0s: the digest should land near the true quantiles.
	if q.P50 < 4.0 || q.P50 > 6.0 {
		t.Errorf("p50 = %v, want ~5.0", q.P50)
	}
	if q.P99 < 9.0 || q.P99 > 10.0 {
		t.Errorf("p99 = %v, want ~9.9", q.P99)
	}
	if q.P50 > q.P90 || q.P90 > q.P99 {
		t.Errorf("quantiles not ordered: p50=%v p90=%v p99=%v", q.P50, q.P90, q.P99)
	}
}

func TestEmptyDistributionsStayZero(t *testing.T) {
	s := NewSessionStats("sess-1", "movie-42", statsT0)

	sum := s.Snapshot(statsT0)
	if sum.StallDuration.Samples != 0 || sum.SeekLatency.Samples != 0 {
		t.Errorf("distributions = %+v, want zero-valued with no samples", sum)
	}
}

func TestSummaryHealthy(t *testing.T) {
	tests := []struct {
		name string
		sum  Summary
		want bool
	}{
		{"clean session", Summary{ProgressTicks: 500}, true},
		{"had a stall", Summary{StallsDetected: 1}, false},
		{"had a recovery", Summary{RecoveriesTriggered: 1}, false},
		{"had a segment skip", Summary{SegmentSkips: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sum.Healthy(); got != tt.want {
				t.Errorf("Healthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeekCompletionRate(t *testing.T) {
	if got := (Summary{}).SeekCompletionRate(); got != 1 {
		t.Errorf("rate with no seeks = %v, want 1", got)
	}
	if got := (Summary{SeeksCommitted: 4, SeeksCompleted: 3}).SeekCompletionRate(); got != 0.75 {
		t.Errorf("rate = %v, want 0.75", got)
	}
}

func TestAggregateAcrossSessions(t *testing.T) {
	agg := NewAggregator(func() time.Time { return statsT0.Add(time.Hour) })

	a := NewSessionStats("sess-1", "movie-42", statsT0)
	a.StallsDetected.Add(2)
	a.ProgressTicks.Add(10)
	b := NewSessionStats("sess-2", "show-7", statsT0)
	b.ProgressTicks.Add(20)

	agg.Register(a)
	agg.Register(b)

	snap := agg.Aggregate()
	if snap.TotalSessions != 2 {
		t.Fatalf("sessions = %d, want 2", snap.TotalSessions)
	}
	if snap.UnhealthySessions != 1 {
		t.Errorf("unhealthy = %d, want 1", snap.UnhealthySessions)
	}
	if snap.TotalStalls != 2 || snap.TotalProgressTicks != 30 {
		t.Errorf("totals = %+v, want stalls 2, ticks 30", snap)
	}
	// Two sessions, one hour each: 2 stalls over 2 hours of uptime.
	if snap.StallRate != 1 {
		t.Errorf("stall rate = %v, want 1 per hour", snap.StallRate)
	}
	if len(snap.PerSession) != 2 {
		t.Errorf("per-session summaries = %d, want 2", len(snap.PerSession))
	}
}
