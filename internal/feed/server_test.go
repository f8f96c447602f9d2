package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthward/playback-sentinel/internal/overlay"
	"github.com/hearthward/playback-sentinel/internal/resilience"
	"github.com/hearthward/playback-sentinel/internal/seek"
	"github.com/hearthward/playback-sentinel/internal/session"
	"github.com/hearthward/playback-sentinel/internal/surface"
)

const testWait = 2 * time.Second

// fakeController records dispatched commands.
type fakeController struct {
	calls chan string
}

func newFakeController() *fakeController {
	return &fakeController{calls: make(chan string, 16)}
}

func (f *fakeController) CommitSeek(seconds float64) {
	f.calls <- fmt.Sprintf("commitSeek %v", seconds)
}
func (f *fakeController) Preview(seconds float64) {
	f.calls <- fmt.Sprintf("preview %v", seconds)
}
func (f *fakeController) ClearPreview() {
	f.calls <- "clearPreview"
}
func (f *fakeController) SetOverlayExplicitShow(show bool) {
	f.calls <- fmt.Sprintf("setOverlayShow %v", show)
}
func (f *fakeController) SetPauseOverlayHidden(hidden bool) {
	f.calls <- fmt.Sprintf("setPauseOverlayHidden %v", hidden)
}
func (f *fakeController) NotifySeeked() {
	f.calls <- "notifySeeked"
}
func (f *fakeController) NotifyPlaying() {
	f.calls <- "notifyPlaying"
}

func (f *fakeController) waitCall(t *testing.T) string {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(testWait):
		t.Fatal("timed out waiting for a controller call")
		return ""
	}
}

// fakeSessions records lifecycle calls and captures the surface the feed
// binds for a started session.
type fakeSessions struct {
	mu    sync.Mutex
	surf  *surface.Surface
	calls chan string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{calls: make(chan string, 16)}
}

func (f *fakeSessions) StartSession(mediaKey string, surf *surface.Surface) *session.Session {
	f.mu.Lock()
	f.surf = surf
	f.mu.Unlock()
	f.calls <- "start " + mediaKey
	return nil
}

func (f *fakeSessions) EndSession() {
	f.calls <- "end"
}

func (f *fakeSessions) surface() *surface.Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.surf
}

func (f *fakeSessions) waitCall(t *testing.T) string {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(testWait):
		t.Fatal("timed out waiting for a session lifecycle call")
		return ""
	}
}

type harness struct {
	srv      *Server
	http     *httptest.Server
	ctl      *fakeController
	sessions *fakeSessions
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{ctl: newFakeController(), sessions: newFakeSessions()}
	h.srv = NewServer(Config{
		Addr:       "127.0.0.1:0",
		Logger:     slog.New(slog.DiscardHandler),
		Sessions:   h.sessions,
		Controller: func() Controller { return h.ctl },
	})
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(h.http.Close)
	return h
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return env
}

func sampleSnapshot(mediaKey string) session.Snapshot {
	return session.Snapshot{
		SessionID: "sess-1",
		MediaKey:  mediaKey,
		Status:    resilience.StatusPlaying,
	}
}

// =============================================================================
// Snapshot Push
// =============================================================================

func TestPublishBroadcastsToClient(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	h.srv.Publish(sampleSnapshot("movie-1"))

	env := readEnvelope(t, conn)
	if env.Type != MessageTypeSnapshot {
		t.Errorf("type = %q, want %q", env.Type, MessageTypeSnapshot)
	}
	if env.Snapshot == nil || env.Snapshot.MediaKey != "movie-1" {
		t.Errorf("snapshot = %+v, want mediaKey movie-1", env.Snapshot)
	}
	if env.Snapshot.Status != "playing" {
		t.Errorf("status = %q, want playing", env.Snapshot.Status)
	}
}

func TestLatestSnapshotReplayedOnConnect(t *testing.T) {
	h := newHarness(t)

	h.srv.Publish(sampleSnapshot("movie-old"))
	h.srv.Publish(sampleSnapshot("movie-latest"))

	conn := h.dial(t)
	env := readEnvelope(t, conn)
	if env.Snapshot == nil || env.Snapshot.MediaKey != "movie-latest" {
		t.Errorf("replayed snapshot = %+v, want mediaKey movie-latest", env.Snapshot)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestCommitSeekCommand(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	if err := conn.WriteJSON(Command{Type: CommandCommitSeek, Seconds: f64(120.5)}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := h.ctl.waitCall(t); got != "commitSeek 120.5" {
		t.Errorf("call = %q, want commitSeek 120.5", got)
	}
}

func TestScrubCommands(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandPreview, Seconds: f64(60)})
	conn.WriteJSON(Command{Type: CommandClearPreview})

	if got := h.ctl.waitCall(t); got != "preview 60" {
		t.Errorf("first call = %q, want preview 60", got)
	}
	if got := h.ctl.waitCall(t); got != "clearPreview" {
		t.Errorf("second call = %q, want clearPreview", got)
	}
}

func TestOverlayCommands(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandSetOverlayShow, Show: b(true)})
	conn.WriteJSON(Command{Type: CommandSetPauseOverlayHidden, Hidden: b(true)})

	if got := h.ctl.waitCall(t); got != "setOverlayShow true" {
		t.Errorf("first call = %q, want setOverlayShow true", got)
	}
	if got := h.ctl.waitCall(t); got != "setPauseOverlayHidden true" {
		t.Errorf("second call = %q, want setPauseOverlayHidden true", got)
	}
}

func TestUnknownCommandKeepsConnection(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: "danceParty"})
	conn.WriteJSON(Command{Type: CommandCommitSeek, Seconds: f64(5)})

	if got := h.ctl.waitCall(t); got != "commitSeek 5" {
		t.Errorf("call after unknown command = %q, want commitSeek 5", got)
	}
}

func TestCommandWithMissingArgumentDropped(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandCommitSeek}) // no seconds
	conn.WriteJSON(Command{Type: CommandClearPreview})

	if got := h.ctl.waitCall(t); got != "clearPreview" {
		t.Errorf("call = %q, want clearPreview only", got)
	}
}

func TestCommandWithoutActiveSessionDropped(t *testing.T) {
	srv := NewServer(Config{
		Addr:       "127.0.0.1:0",
		Logger:     slog.New(slog.DiscardHandler),
		Controller: func() Controller { return nil },
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(Command{Type: CommandCommitSeek, Seconds: f64(10)})

	// The connection survives: the next publish still arrives.
	srv.Publish(sampleSnapshot("movie-1"))
	env := readEnvelope(t, conn)
	if env.Type != MessageTypeSnapshot {
		t.Errorf("type = %q, want %q", env.Type, MessageTypeSnapshot)
	}
}

// =============================================================================
// Session Lifecycle
// =============================================================================

func TestStartSessionCommandBindsSurface(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandStartSession, MediaKey: str("movie-9")})

	if got := h.sessions.waitCall(t); got != "start movie-9" {
		t.Fatalf("lifecycle call = %q, want start movie-9", got)
	}
	surf := h.sessions.surface()
	if surf == nil {
		t.Fatal("no surface bound for the session")
	}
	if !surf.ReadPaused() {
		t.Error("surface should read paused before any report")
	}
	if surf.ReadDiagnostics() != nil {
		t.Error("diagnostics should be nil before any report")
	}
}

func TestStartSessionWithoutMediaKeyDropped(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandStartSession}) // no media key
	conn.WriteJSON(Command{Type: CommandStartSession, MediaKey: str("movie-2")})

	if got := h.sessions.waitCall(t); got != "start movie-2" {
		t.Errorf("lifecycle call = %q, want start movie-2 only", got)
	}
}

func TestReportDrivesSurfaceReads(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandStartSession, MediaKey: str("movie-9")})
	h.sessions.waitCall(t)
	surf := h.sessions.surface()

	changed := make(chan struct{}, 4)
	unsub := surf.Subscribe(func() { changed <- struct{}{} })
	defer unsub()

	conn.WriteJSON(Command{Type: CommandReport, Report: &WireReport{
		PositionSeconds:    42.5,
		DurationSeconds:    3600,
		Paused:             false,
		BufferAheadSeconds: 8.2,
		DroppedFrames:      3,
		ReadyState:         int(surface.ReadyEnoughData),
	}})

	select {
	case <-changed:
	case <-time.After(testWait):
		t.Fatal("timed out waiting for the surface change notification")
	}

	if pos, ok := surf.ReadPosition(); !ok || pos != 42.5 {
		t.Errorf("position = %v %v, want 42.5 true", pos, ok)
	}
	if dur, ok := surf.ReadDuration(); !ok || dur != 3600 {
		t.Errorf("duration = %v %v, want 3600 true", dur, ok)
	}
	if surf.ReadPaused() {
		t.Error("surface should read unpaused after the report")
	}
	d := surf.ReadDiagnostics()
	if d == nil {
		t.Fatal("diagnostics = nil after report")
	}
	if d.BufferAheadSeconds != 8.2 || d.DroppedFrames != 3 {
		t.Errorf("diagnostics = %+v, want ahead 8.2 dropped 3", d)
	}
	if d.ReadyState != surface.ReadyEnoughData {
		t.Errorf("ready state = %v, want enough-data", d.ReadyState)
	}
}

func TestSurfaceControlsPublishToClients(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandStartSession, MediaKey: str("movie-9")})
	h.sessions.waitCall(t)
	surf := h.sessions.surface()

	if err := surf.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Type != MessageTypeControl || env.Control == nil || env.Control.Action != ControlActionPause {
		t.Fatalf("envelope = %+v, want control pause", env)
	}

	if err := surf.SeekTo(90); err != nil {
		t.Fatalf("seek: %v", err)
	}
	env = readEnvelope(t, conn)
	if env.Control == nil || env.Control.Action != ControlActionSeek ||
		env.Control.Seconds == nil || *env.Control.Seconds != 90 {
		t.Fatalf("envelope = %+v, want control seek 90", env)
	}

	if err := surf.HardReload(surface.ReloadRequest{Reason: "stall", SeekToIntentMS: 90000}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	env = readEnvelope(t, conn)
	if env.Control == nil || env.Control.Action != ControlActionReload ||
		env.Control.Reason != "stall" ||
		env.Control.ResumeMS == nil || *env.Control.ResumeMS != 90000 {
		t.Fatalf("envelope = %+v, want control reload stall 90000", env)
	}
}

func TestEndSessionCommand(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandStartSession, MediaKey: str("movie-9")})
	h.sessions.waitCall(t)
	conn.WriteJSON(Command{Type: CommandEndSession})

	if got := h.sessions.waitCall(t); got != "end" {
		t.Fatalf("lifecycle call = %q, want end", got)
	}

	// A report after the end is dropped; the connection survives.
	conn.WriteJSON(Command{Type: CommandReport, Report: &WireReport{PositionSeconds: 1}})
	conn.WriteJSON(Command{Type: CommandClearPreview})
	if got := h.ctl.waitCall(t); got != "clearPreview" {
		t.Errorf("call = %q, want clearPreview", got)
	}
}

func TestNotifyCommands(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)

	conn.WriteJSON(Command{Type: CommandNotifySeeked})
	conn.WriteJSON(Command{Type: CommandNotifyPlaying})

	if got := h.ctl.waitCall(t); got != "notifySeeked" {
		t.Errorf("first call = %q, want notifySeeked", got)
	}
	if got := h.ctl.waitCall(t); got != "notifyPlaying" {
		t.Errorf("second call = %q, want notifyPlaying", got)
	}
}

// =============================================================================
// REST Endpoints
// =============================================================================

func TestSnapshotEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.http.URL + "/snapshot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status before publish = %d, want 204", resp.StatusCode)
	}

	h.srv.Publish(sampleSnapshot("movie-1"))

	resp, err = http.Get(h.http.URL + "/snapshot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status after publish = %d, want 200", resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Snapshot == nil || env.Snapshot.MediaKey != "movie-1" {
		t.Errorf("snapshot = %+v, want mediaKey movie-1", env.Snapshot)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.http.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", resp.StatusCode, body)
	}
}

// =============================================================================
// Wire Conversion
// =============================================================================

func TestToWireDisplayPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		intent  *float64
		preview *float64
		want    float64
	}{
		{"actual position when idle", nil, nil, 30},
		{"intent outranks actual", f64(120), nil, 120},
		{"preview outranks intent", f64(120), f64(95), 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := sampleSnapshot("movie-1")
			snap.Metrics.PositionSeconds = 30
			snap.Seek = seek.State{
				IntentSeconds:  tt.intent,
				PreviewSeconds: tt.preview,
			}
			if got := ToWire(snap).DisplaySeconds; got != tt.want {
				t.Errorf("DisplaySeconds = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToWireOverlay(t *testing.T) {
	snap := sampleSnapshot("movie-1")
	snap.Overlay = overlay.Decision{
		ShouldRender:     true,
		IsVisible:        true,
		CountdownSeconds: 7,
		Reasons:          []string{overlay.ReasonStalling},
	}

	w := ToWire(snap)
	if !w.Overlay.ShouldRender || !w.Overlay.IsVisible {
		t.Errorf("overlay gates = %+v, want render and visible", w.Overlay)
	}
	if w.Overlay.CountdownSeconds != 7 {
		t.Errorf("CountdownSeconds = %v, want 7", w.Overlay.CountdownSeconds)
	}
	if len(w.Overlay.Reasons) != 1 || w.Overlay.Reasons[0] != "stalling" {
		t.Errorf("Reasons = %v, want [stalling]", w.Overlay.Reasons)
	}
}

func f64(v float64) *float64 { return &v }
func b(v bool) *bool         { return &v }
func str(v string) *string   { return &v }
