package tui

import (
	"strings"
	"testing"

	"github.com/hearthward/playback-sentinel/internal/resilience"
)

// =============================================================================
// Tests: Status Styles
// =============================================================================

func TestGetStatusLabel(t *testing.T) {
	tests := []struct {
		status resilience.Status
		want   string
	}{
		{resilience.StatusStartup, "startup"},
		{resilience.StatusPlaying, "playing"},
		{resilience.StatusPaused, "paused"},
		{resilience.StatusStalling, "stalling"},
		{resilience.StatusRecovering, "recovering"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			label := GetStatusLabel(tt.status)
			if !strings.Contains(label, tt.want) {
				t.Errorf("GetStatusLabel(%v) = %q, want it to contain %q",
					tt.status, label, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: Progress Bar
// =============================================================================

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
		wantPct  string
	}{
		{"empty", 0.0, 20, "0%"},
		{"half", 0.5, 20, "50%"},
		{"full", 1.0, 20, "100%"},
		{"over full clamps", 1.5, 20, "150%"},
		{"negative clamps fill", -0.5, 20, "-50%"},
		{"narrow width floors to 10", 0.5, 3, "50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(bar, tt.wantPct) {
				t.Errorf("RenderProgressBar(%v, %d) = %q, want it to contain %q",
					tt.progress, tt.width, bar, tt.wantPct)
			}
		})
	}
}

func TestRenderProgressBarFillCount(t *testing.T) {
	bar := RenderProgressBar(0.5, 20)

	filled := strings.Count(bar, "█")
	empty := strings.Count(bar, "░")
	if filled != 10 || empty != 10 {
		t.Errorf("fill = %d/%d, want 10/10", filled, empty)
	}
}

// =============================================================================
// Tests: Key-Value Rendering
// =============================================================================

func TestRenderKeyValue(t *testing.T) {
	out := RenderKeyValue("Position", "01:23")

	if !strings.Contains(out, "Position:") {
		t.Errorf("output %q missing label", out)
	}
	if !strings.Contains(out, "01:23") {
		t.Errorf("output %q missing value", out)
	}
}

// =============================================================================
// Tests: Helpers
// =============================================================================

func TestRepeatChar(t *testing.T) {
	if got := repeatChar('x', 3); got != "xxx" {
		t.Errorf("repeatChar('x', 3) = %q, want xxx", got)
	}
	if got := repeatChar('x', 0); got != "" {
		t.Errorf("repeatChar('x', 0) = %q, want empty", got)
	}
	if got := repeatChar('x', -1); got != "" {
		t.Errorf("repeatChar('x', -1) = %q, want empty", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"this-is-a-long-session-id", 10, "this-is-a…"},
		{"ab", 1, "a"},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
