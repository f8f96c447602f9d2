package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hearthward/playback-sentinel/internal/session"
	"github.com/hearthward/playback-sentinel/internal/stats"
)

// maxRecentEvents bounds the event log section.
const maxRecentEvents = 8

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// SnapshotMsg carries a fresh session snapshot.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// EventMsg carries one engine event line for the recent-events section.
type EventMsg struct {
	Line string
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	metricsAddr string
	feedAddr    string
	maxAttempts int

	// Current state
	snapshot     *session.Snapshot
	aggregate    *stats.AggregatedStats
	events       []string
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	// Sources (for fetching updates on tick)
	snapshotSource SnapshotSource
	statsSource    StatsSource

	// Quit flag
	quitting bool
}

// SnapshotSource provides the active session's snapshot, if any.
type SnapshotSource interface {
	Snapshot() (session.Snapshot, bool)
}

// StatsSource provides hub-wide aggregated statistics.
type StatsSource interface {
	Aggregate() stats.AggregatedStats
}

// Config holds TUI configuration.
type Config struct {
	MetricsAddr    string
	FeedAddr       string
	MaxAttempts    int
	SnapshotSource SnapshotSource
	StatsSource    StatsSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	return Model{
		metricsAddr:    cfg.MetricsAddr,
		feedAddr:       cfg.FeedAddr,
		maxAttempts:    cfg.MaxAttempts,
		snapshotSource: cfg.SnapshotSource,
		statsSource:    cfg.StatsSource,
		startTime:      time.Now(),
		lastUpdate:     time.Now(),
		width:          80,
		height:         24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.snapshotSource != nil {
			if snap, ok := m.snapshotSource.Snapshot(); ok {
				m.snapshot = &snap
			} else {
				m.snapshot = nil
			}
		}
		if m.statsSource != nil {
			agg := m.statsSource.Aggregate()
			m.aggregate = &agg
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case SnapshotMsg:
		m.snapshot = &msg.Snapshot
		m.lastUpdate = time.Now()
		return m, nil

	case EventMsg:
		m.events = append(m.events, msg.Line)
		if len(m.events) > maxRecentEvents {
			m.events = m.events[len(m.events)-maxRecentEvents:]
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.detailedView && m.aggregate != nil && len(m.aggregate.PerSession) > 0 {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// AttemptsProgress returns the used share of the recovery budget (0.0 to 1.0).
func (m Model) AttemptsProgress() float64 {
	if m.snapshot == nil || m.maxAttempts == 0 {
		return 0
	}
	return float64(m.snapshot.RecoveryAttempts) / float64(m.maxAttempts)
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendSnapshot sends a session snapshot to the TUI.
func SendSnapshot(p *tea.Program, snap session.Snapshot) {
	if p != nil {
		p.Send(SnapshotMsg{Snapshot: snap})
	}
}

// SendEvent sends an event line to the TUI.
func SendEvent(p *tea.Program, line string) {
	if p != nil {
		p.Send(EventMsg{Line: line})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatClock formats a media position in seconds as H:MM:SS, or MM:SS under
// an hour.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// formatSeconds formats a duration in seconds with one decimal.
func formatSeconds(seconds float64) string {
	return fmt.Sprintf("%.1fs", seconds)
}

// formatNumber formats a number with K/M suffixes.
func formatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// formatQuantiles formats a quantile triple, or a placeholder when the
// distribution has no samples.
func formatQuantiles(q stats.Quantiles) string {
	if q.Samples == 0 {
		return "no samples"
	}
	return fmt.Sprintf("p50 %.2fs / p90 %.2fs / p99 %.2fs", q.P50, q.P90, q.P99)
}
