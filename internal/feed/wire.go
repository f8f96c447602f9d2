// Package feed serves the decision feed consumed by the rendering layer.
//
// The renderer computes nothing: every overlay decision, seek state, and
// status it displays arrives through this feed as a complete snapshot. The
// reverse direction carries the renderer's user actions (seek commits, scrub
// previews, overlay toggles), the session lifecycle (the renderer owns the
// media element, so it starts and ends sessions), and periodic media-element
// reports that back the engine's surface binding. Surface operations the
// engine issues (pause, seek, reload) travel outward as control envelopes.
package feed

import (
	"github.com/hearthward/playback-sentinel/internal/session"
)

// Envelope message types pushed to clients.
const (
	MessageTypeSnapshot = "snapshot"
	MessageTypeControl  = "control"
)

// Command types accepted from clients.
const (
	CommandStartSession          = "startSession"
	CommandEndSession            = "endSession"
	CommandReport                = "report"
	CommandNotifySeeked          = "notifySeeked"
	CommandNotifyPlaying         = "notifyPlaying"
	CommandCommitSeek            = "commitSeek"
	CommandPreview               = "preview"
	CommandClearPreview          = "clearPreview"
	CommandSetOverlayShow        = "setOverlayShow"
	CommandSetPauseOverlayHidden = "setPauseOverlayHidden"
)

// Control actions the engine issues to the renderer's media element.
const (
	ControlActionPause  = "pause"
	ControlActionPlay   = "play"
	ControlActionSeek   = "seek"
	ControlActionReload = "reload"
)

// Envelope wraps every message pushed to a feed client.
type Envelope struct {
	Type     string        `json:"type"`
	Snapshot *WireSnapshot `json:"snapshot,omitempty"`
	Control  *WireControl  `json:"control,omitempty"`
}

// Command is a renderer-originated action. Fields are pointers so a missing
// argument is distinguishable from a zero one.
type Command struct {
	Type     string      `json:"type"`
	MediaKey *string     `json:"mediaKey,omitempty"`
	Report   *WireReport `json:"report,omitempty"`
	Seconds  *float64    `json:"seconds,omitempty"`
	Hidden   *bool       `json:"hidden,omitempty"`
	Show     *bool       `json:"show,omitempty"`
}

// WireControl is a surface operation the renderer must apply to its media
// element. Seconds is set for seek; Reason and ResumeMS for reload.
type WireControl struct {
	Action   string   `json:"action"`
	Seconds  *float64 `json:"seconds,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	ResumeMS *int64   `json:"resumeMs,omitempty"`
}

// WireReport is the renderer's periodic reading of its media element. It
// backs the remote surface: the engine polls these values instead of a local
// player.
type WireReport struct {
	PositionSeconds float64 `json:"positionSeconds"`
	DurationSeconds float64 `json:"durationSeconds"`
	Paused          bool    `json:"paused"`
	Seeking         bool    `json:"seeking"`
	Ended           bool    `json:"ended"`

	BufferAheadSeconds     float64 `json:"bufferAheadSeconds"`
	BufferBehindSeconds    float64 `json:"bufferBehindSeconds"`
	BufferGapSeconds       float64 `json:"bufferGapSeconds"`
	NextBufferStartSeconds float64 `json:"nextBufferStartSeconds"`
	DroppedFrames          int64   `json:"droppedFrames"`
	TotalFrames            int64   `json:"totalFrames"`
	ReadyState             int     `json:"readyState"`
	NetworkState           int     `json:"networkState"`
}

// WireSnapshot is the JSON shape of a session snapshot.
type WireSnapshot struct {
	SessionID string `json:"sessionId"`
	MediaKey  string `json:"mediaKey"`

	Status           string `json:"status"`
	RecoveryAttempts int    `json:"recoveryAttempts"`
	Exhausted        bool   `json:"exhausted"`

	PositionSeconds    float64  `json:"positionSeconds"`
	DisplaySeconds     float64  `json:"displaySeconds"`
	IsPaused           bool     `json:"isPaused"`
	PauseIntent        string   `json:"pauseIntent,omitempty"`
	BufferAheadSeconds *float64 `json:"bufferAheadSeconds,omitempty"`

	Seek    WireSeek    `json:"seek"`
	Overlay WireOverlay `json:"overlay"`
}

// WireSeek is the JSON shape of the seek coordinator state.
type WireSeek struct {
	Lifecycle      string   `json:"lifecycle"`
	IntentSeconds  *float64 `json:"intentSeconds,omitempty"`
	PreviewSeconds *float64 `json:"previewSeconds,omitempty"`
}

// WireOverlay is the JSON shape of an overlay decision.
type WireOverlay struct {
	ShouldRender       bool     `json:"shouldRender"`
	IsVisible          bool     `json:"isVisible"`
	PauseOverlayActive bool     `json:"pauseOverlayActive"`
	CountdownSeconds   float64  `json:"countdownSeconds"`
	Reasons            []string `json:"reasons,omitempty"`
}

// ToWire converts a session snapshot into its JSON shape. DisplaySeconds
// resolves preview over intent over the actual position, so the renderer's
// progress bar never needs the precedence rule itself.
func ToWire(s session.Snapshot) WireSnapshot {
	display := s.Metrics.PositionSeconds
	if s.Seek.IntentSeconds != nil {
		display = *s.Seek.IntentSeconds
	}
	if s.Seek.PreviewSeconds != nil {
		display = *s.Seek.PreviewSeconds
	}

	var ahead *float64
	if d := s.Metrics.Diagnostics; d != nil {
		v := d.BufferAheadSeconds
		ahead = &v
	}

	return WireSnapshot{
		SessionID:          s.SessionID,
		MediaKey:           s.MediaKey,
		Status:             s.Status.String(),
		RecoveryAttempts:   s.RecoveryAttempts,
		Exhausted:          s.Exhausted,
		PositionSeconds:    s.Metrics.PositionSeconds,
		DisplaySeconds:     display,
		IsPaused:           s.Metrics.IsPaused,
		PauseIntent:        string(s.Metrics.PauseIntent),
		BufferAheadSeconds: ahead,
		Seek: WireSeek{
			Lifecycle:      s.Seek.Lifecycle.String(),
			IntentSeconds:  s.Seek.IntentSeconds,
			PreviewSeconds: s.Seek.PreviewSeconds,
		},
		Overlay: WireOverlay{
			ShouldRender:       s.Overlay.ShouldRender,
			IsVisible:          s.Overlay.IsVisible,
			PauseOverlayActive: s.Overlay.PauseOverlayActive,
			CountdownSeconds:   s.Overlay.CountdownSeconds,
			Reasons:            s.Overlay.Reasons,
		},
	}
}
