package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hearthward/playback-sentinel/internal/reporter"
	"github.com/hearthward/playback-sentinel/internal/seek"
	"github.com/hearthward/playback-sentinel/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	sections = append(sections, m.renderHeader())

	if m.snapshot == nil {
		sections = append(sections, m.renderIdle())
	} else {
		sections = append(sections, m.renderPlayback())
		sections = append(sections, m.renderResilience())
		sections = append(sections, m.renderSeek())
		sections = append(sections, m.renderOverlay())
		sections = append(sections, m.renderSessionStats())
	}

	if len(m.events) > 0 {
		sections = append(sections, m.renderEvents())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders per-session summaries.
func (m Model) renderDetailedView() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderSessionTable())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	media := "no session"
	status := statusInfo.Render("● idle")
	if m.snapshot != nil {
		media = m.snapshot.MediaKey
		status = GetStatusLabel(m.snapshot.Status)
	}

	header := fmt.Sprintf(
		" playback-sentinel │ %s │ Media: %s │ Elapsed: %s ",
		status,
		media,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Idle Placeholder
// =============================================================================

func (m Model) renderIdle() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Playback"),
		mutedStyle.Render("Waiting for a session to start..."),
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Playback Section
// =============================================================================

func (m Model) renderPlayback() string {
	s := m.snapshot

	display := s.Metrics.PositionSeconds
	if s.Seek.IntentSeconds != nil {
		display = *s.Seek.IntentSeconds
	}
	if s.Seek.PreviewSeconds != nil {
		display = *s.Seek.PreviewSeconds
	}

	rows := []string{
		RenderKeyValue("Position", formatClock(s.Metrics.PositionSeconds)),
		RenderKeyValue("Displayed", formatClock(display)),
	}

	if d := s.Metrics.Diagnostics; d != nil {
		ahead := GetBufferStyle(d.BufferAheadSeconds).Render(formatSeconds(d.BufferAheadSeconds))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Buffer ahead:"), ahead))
		if d.DroppedFrames > 0 {
			rows = append(rows, RenderKeyValue("Dropped frames", formatNumber(d.DroppedFrames)))
		}
	}

	if s.Metrics.IsPaused {
		intent := "system"
		if s.Metrics.PauseIntent == reporter.PauseIntentUser {
			intent = "user"
		}
		rows = append(rows, RenderKeyValue("Paused by", intent))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Playback")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Resilience Section
// =============================================================================

func (m Model) renderResilience() string {
	s := m.snapshot

	barWidth := m.width - 40
	if barWidth < 20 {
		barWidth = 20
	}

	attempts := fmt.Sprintf("%d/%d", s.RecoveryAttempts, m.maxAttempts)
	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Status:"), GetStatusLabel(s.Status)),
		RenderKeyValue("Recovery budget", attempts),
		RenderProgressBar(m.AttemptsProgress(), barWidth),
	}

	if s.Exhausted {
		rows = append(rows, statusError.Render("✗ Recovery exhausted, manual intervention needed"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Resilience")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Seek Section
// =============================================================================

func (m Model) renderSeek() string {
	s := m.snapshot

	lifecycle := s.Seek.Lifecycle.String()
	style := valueStyle
	if s.Seek.Lifecycle != seek.LifecycleIdle {
		style = valueWarnStyle
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Lifecycle:"), style.Render(lifecycle)),
	}
	if s.Seek.IntentSeconds != nil {
		rows = append(rows, RenderKeyValue("Intent", formatClock(*s.Seek.IntentSeconds)))
	}
	if s.Seek.PreviewSeconds != nil {
		rows = append(rows, RenderKeyValue("Scrub preview", formatClock(*s.Seek.PreviewSeconds)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Seek Coordination")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Overlay Section
// =============================================================================

func (m Model) renderOverlay() string {
	o := m.snapshot.Overlay

	var visibility string
	switch {
	case o.IsVisible:
		visibility = statusWarning.Render("visible")
	case o.ShouldRender:
		visibility = statusInfo.Render("rendered, reveal pending")
	default:
		visibility = statusOK.Render("hidden")
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Spinner:"), visibility),
	}
	if len(o.Reasons) > 0 {
		rows = append(rows, RenderKeyValue("Reasons", strings.Join(o.Reasons, ", ")))
	}
	if o.CountdownSeconds > 0 {
		rows = append(rows, RenderKeyValue("Countdown", formatSeconds(o.CountdownSeconds)))
	}
	if o.PauseOverlayActive {
		rows = append(rows, RenderKeyValue("Pause overlay", "active"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Overlay")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Session Statistics
// =============================================================================

func (m Model) renderSessionStats() string {
	sum := m.snapshot.Summary

	stallsStyle := valueGoodStyle
	if sum.StallsDetected > 0 {
		stallsStyle = valueWarnStyle
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelWideStyle.Render("Stalls:"),
			stallsStyle.Render(formatNumber(sum.StallsDetected))),
		RenderKeyValueWide("Recoveries",
			fmt.Sprintf("%s (%s suppressed)",
				formatNumber(sum.RecoveriesTriggered),
				formatNumber(sum.RecoveriesSuppressed))),
		RenderKeyValueWide("Seeks",
			fmt.Sprintf("%s committed, %s completed",
				formatNumber(sum.SeeksCommitted),
				formatNumber(sum.SeeksCompleted))),
		RenderKeyValueWide("Segment retries",
			fmt.Sprintf("%s (%s recovered, %s skipped)",
				formatNumber(sum.SegmentRetries),
				formatNumber(sum.SegmentRecovered),
				formatNumber(sum.SegmentSkips))),
		RenderKeyValueWide("Stall duration", formatQuantiles(sum.StallDuration)),
		RenderKeyValueWide("Seek latency", formatQuantiles(sum.SeekLatency)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Session Statistics")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Recent Events
// =============================================================================

func (m Model) renderEvents() string {
	rows := make([]string, 0, len(m.events))
	for _, line := range m.events {
		rows = append(rows, dimStyle.Render(line))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Recent Events")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Per-Session Table (detailed view)
// =============================================================================

func (m Model) renderSessionTable() string {
	header := tableHeaderStyle.Render(fmt.Sprintf(
		"%-14s %-20s %8s %7s %7s %7s %7s  %s",
		"Session", "Media", "Uptime", "Stalls", "Recov", "Seeks", "Skips", "Health"))

	rows := []string{header}
	for i, s := range m.aggregate.PerSession {
		style := tableRowEvenStyle
		if i%2 == 1 {
			style = tableRowOddStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf(
			"%-14s %-20s %8s %7d %7d %7d %7d  ",
			truncate(s.SessionID, 14),
			truncate(s.MediaKey, 20),
			formatDuration(s.Uptime),
			s.StallsDetected,
			s.RecoveriesTriggered,
			s.SeeksCommitted,
			s.SegmentSkips,
		))+healthLabel(s))
	}

	summary := mutedStyle.Render(fmt.Sprintf(
		"%d sessions, %d unhealthy, stall rate %.2f/h",
		m.aggregate.TotalSessions,
		m.aggregate.UnhealthySessions,
		m.aggregate.StallRate,
	))

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Sessions")},
			append(rows, summary)...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// healthLabel returns a styled one-word health verdict for a summary.
func healthLabel(s stats.Summary) string {
	if s.Healthy() {
		return statusOK.Render("healthy")
	}
	return statusWarning.Render("degraded")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	keys := "q: quit │ d: sessions │ r: refresh"
	addrs := fmt.Sprintf("metrics %s │ feed %s", m.metricsAddr, m.feedAddr)
	return footerStyle.Render(keys + "   " + dimStyle.Render(addrs))
}
