package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/xid"

	"github.com/hearthward/playback-sentinel/internal/logging"
	"github.com/hearthward/playback-sentinel/internal/session"
	"github.com/hearthward/playback-sentinel/internal/surface"
)

const (
	// WebsocketSubprotocol identifies the feed protocol version.
	WebsocketSubprotocol = "sentinel_feed_v1"

	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	clientQueueSize   = 32
	writeWait         = 10 * time.Second
)

// Controller is the slice of session operations a feed client may drive.
// The active session satisfies it.
type Controller interface {
	CommitSeek(seconds float64)
	Preview(seconds float64)
	ClearPreview()
	SetOverlayExplicitShow(show bool)
	SetPauseOverlayHidden(hidden bool)
	NotifySeeked()
	NotifyPlaying()
}

// SessionManager is the session lifecycle as the renderer drives it: the
// renderer owns the media element, so sessions start and end at its request,
// bound to a surface fed by its reports. The engine satisfies it.
type SessionManager interface {
	StartSession(mediaKey string, surf *surface.Surface) *session.Session
	EndSession()
}

// Config holds configuration for creating a feed Server.
type Config struct {
	Addr   string
	Logger *slog.Logger
	Events *logging.Sink

	// Sessions starts and ends sessions on renderer command. Nil disables
	// the lifecycle commands.
	Sessions SessionManager

	// Controller resolves the active session on each command. It may return
	// nil when no session is running; commands are then dropped.
	Controller func() Controller
}

// Server pushes session snapshots to websocket clients and routes their
// commands back into the engine.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[string]*client
	last    []byte
	remote  *remoteSurface
	closed  bool
}

type client struct {
	id        string
	conn      *websocket.Conn
	sendQueue chan []byte
	closing   chan struct{}
	once      sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.closing) })
}

// NewServer creates a feed Server. Call Start to begin serving.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadBufferSize,
			WriteBufferSize: wsWriteBufferSize,
			Subprotocols:    []string{WebsocketSubprotocol},
			// The renderer connects from the kiosk on the local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the HTTP handler serving the feed routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})
	return cors.Default().Handler(r)
}

// Start starts the feed server in a goroutine. Returns immediately; use
// Shutdown to stop.
func (s *Server) Start() error {
	s.cfg.Logger.Info("feed_server_starting", "addr", s.cfg.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cfg.Logger.Error("feed_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown disconnects all clients and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*client)
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// ClientCount returns the number of connected feed clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish pushes a snapshot to every connected client. The latest snapshot
// is retained and replayed to clients that connect later. A client whose
// send queue is full is disconnected rather than allowed to stall the feed.
func (s *Server) Publish(snap session.Snapshot) {
	payload, err := json.Marshal(Envelope{
		Type:     MessageTypeSnapshot,
		Snapshot: toWirePtr(snap),
	})
	if err != nil {
		s.cfg.Logger.Error("feed_marshal_failed", "error", err)
		return
	}
	s.broadcast(payload, true)
}

// publishControl pushes a surface control action to every client. Controls
// are not retained: a reconnecting client gets the latest snapshot, not a
// stale pause.
func (s *Server) publishControl(ctl WireControl) {
	payload, err := json.Marshal(Envelope{
		Type:    MessageTypeControl,
		Control: &ctl,
	})
	if err != nil {
		s.cfg.Logger.Error("feed_marshal_failed", "error", err)
		return
	}
	s.broadcast(payload, false)
}

func (s *Server) broadcast(payload []byte, retain bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if retain {
		s.last = payload
	}
	var slow []*client
	for _, c := range s.clients {
		select {
		case c.sendQueue <- payload:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()

	for _, c := range slow {
		s.cfg.Logger.Warn("feed_client_dropped_slow", "client_id", c.id)
		c.close()
	}
}

func toWirePtr(snap session.Snapshot) *WireSnapshot {
	w := ToWire(snap)
	return &w
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn("feed_upgrade_failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:        xid.New().String(),
		conn:      conn,
		sendQueue: make(chan []byte, clientQueueSize),
		closing:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	last := s.last
	s.mu.Unlock()

	// Replay the latest snapshot so a fresh client renders immediately.
	if last != nil {
		c.sendQueue <- last
	}

	s.cfg.Events.Emit("feed.client-connected",
		"client_id", c.id,
		"remote", conn.RemoteAddr().String(),
	)

	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if last == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Write(last)
}

// writePump is the only goroutine writing to c.conn.
func (s *Server) writePump(c *client) {
	defer c.conn.Close()
	for {
		select {
		case payload := <-c.sendQueue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.unregister(c)
				return
			}
		case <-c.closing:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readPump is the only goroutine reading from c.conn.
func (s *Server) readPump(c *client) {
	defer s.unregister(c)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.cfg.Logger.Warn("feed_client_read_error", "client_id", c.id, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			s.cfg.Logger.Warn("feed_invalid_command", "client_id", c.id, "error", err)
			continue
		}
		s.dispatch(c, cmd)
	}
}

// dispatch routes a renderer command. Lifecycle commands manage the session
// itself; the rest go to the active session, and are dropped when there is
// none or an argument is missing.
func (s *Server) dispatch(c *client, cmd Command) {
	switch cmd.Type {
	case CommandStartSession:
		if cmd.MediaKey == nil || s.cfg.Sessions == nil {
			s.cfg.Logger.Warn("feed_start_session_dropped", "client_id", c.id)
			return
		}
		rs := newRemoteSurface(s.publishControl)
		s.mu.Lock()
		s.remote = rs
		s.mu.Unlock()
		s.cfg.Events.Emit("feed.start-session",
			"client_id", c.id, "media_key", *cmd.MediaKey)
		s.cfg.Sessions.StartSession(*cmd.MediaKey, rs.bind())
		return
	case CommandEndSession:
		if s.cfg.Sessions == nil {
			return
		}
		s.mu.Lock()
		s.remote = nil
		s.mu.Unlock()
		s.cfg.Events.Emit("feed.end-session", "client_id", c.id)
		s.cfg.Sessions.EndSession()
		return
	case CommandReport:
		if cmd.Report == nil {
			return
		}
		s.mu.Lock()
		rs := s.remote
		s.mu.Unlock()
		if rs == nil {
			s.cfg.Logger.Warn("feed_report_no_session", "client_id", c.id)
			return
		}
		rs.apply(*cmd.Report)
		return
	}

	var ctl Controller
	if s.cfg.Controller != nil {
		ctl = s.cfg.Controller()
	}
	if ctl == nil {
		s.cfg.Logger.Warn("feed_command_no_session", "client_id", c.id, "type", cmd.Type)
		return
	}

	switch cmd.Type {
	case CommandCommitSeek:
		if cmd.Seconds == nil {
			return
		}
		s.cfg.Events.Emit("feed.commit-seek", "client_id", c.id, "seconds", *cmd.Seconds)
		ctl.CommitSeek(*cmd.Seconds)
	case CommandPreview:
		if cmd.Seconds == nil {
			return
		}
		ctl.Preview(*cmd.Seconds)
	case CommandClearPreview:
		ctl.ClearPreview()
	case CommandSetOverlayShow:
		if cmd.Show == nil {
			return
		}
		ctl.SetOverlayExplicitShow(*cmd.Show)
	case CommandSetPauseOverlayHidden:
		if cmd.Hidden == nil {
			return
		}
		ctl.SetPauseOverlayHidden(*cmd.Hidden)
	case CommandNotifySeeked:
		ctl.NotifySeeked()
	case CommandNotifyPlaying:
		ctl.NotifyPlaying()
	default:
		s.cfg.Logger.Warn("feed_unknown_command", "client_id", c.id, "type", cmd.Type)
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	if ok {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()

	if ok {
		s.cfg.Events.Emit("feed.client-disconnected", "client_id", c.id)
	}
	c.close()
}
