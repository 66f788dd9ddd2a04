package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"epub-reader-session/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
)

// Send pings to peer with this period. Must be less than pongWait.
var pingPeriod = (pongWait * 9) / 10

// Frame types spoken over the renderer socket. The server drives the
// renderer with display/scroll commands; the renderer reports readiness,
// command completion and every visible-position change.
const (
	frameDisplay   = "display"
	frameScroll    = "scroll"
	frameReady     = "ready"
	frameDisplayed = "displayed"
	frameScrolled  = "scrolled"
	frameRelocated = "relocated"
	frameMetrics   = "metrics"
)

type rendererFrame struct {
	Type    string                `json:"type"`
	ID      string                `json:"id,omitempty"`
	Locator string                `json:"locator,omitempty"`
	Px      float64               `json:"px,omitempty"`
	Error   string                `json:"error,omitempty"`
	Metrics *domain.ScrollMetrics `json:"metrics,omitempty"`
}

var errRendererGone = errors.New("renderer connection closed")

// wsSurface adapts a renderer websocket connection to the RenderSurface
// contract. Display and SetScrollTop are synchronous: each command carries
// an id and settles when the renderer acks it with the same id.
type wsSurface struct {
	conn   *websocket.Conn
	logger domain.Logger

	send chan rendererFrame

	ready     chan struct{}
	readyOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	// onClose fires once when the connection drops, after the surface
	// has been attached to a session.
	onClose func()

	mu        sync.Mutex
	pending   map[string]chan error
	callbacks map[string]func(domain.Relocation)
	metrics   *domain.ScrollMetrics
}

func newWSSurface(conn *websocket.Conn, logger domain.Logger) *wsSurface {
	return &wsSurface{
		conn:      conn,
		logger:    logger,
		send:      make(chan rendererFrame, 16),
		ready:     make(chan struct{}),
		closed:    make(chan struct{}),
		pending:   make(map[string]chan error),
		callbacks: make(map[string]func(domain.Relocation)),
	}
}

func (s *wsSurface) Ready() <-chan struct{} {
	return s.ready
}

func (s *wsSurface) Display(ctx context.Context, locator string) error {
	return s.command(ctx, rendererFrame{Type: frameDisplay, Locator: locator})
}

func (s *wsSurface) SetScrollTop(ctx context.Context, px float64) error {
	return s.command(ctx, rendererFrame{Type: frameScroll, Px: px})
}

func (s *wsSurface) command(ctx context.Context, frame rendererFrame) error {
	frame.ID = uuid.NewString()
	ack := make(chan error, 1)

	s.mu.Lock()
	s.pending[frame.ID] = ack
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, frame.ID)
		s.mu.Unlock()
	}()

	select {
	case s.send <- frame:
	case <-s.closed:
		return errRendererGone
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ack:
		return err
	case <-s.closed:
		return errRendererGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *wsSurface) OnRelocated(cb func(domain.Relocation)) func() {
	id := uuid.NewString()
	s.mu.Lock()
	s.callbacks[id] = cb
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.callbacks, id)
		s.mu.Unlock()
	}
}

func (s *wsSurface) ViewportMetrics() *domain.ScrollMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		return nil
	}
	m := *s.metrics
	return &m
}

// readPump pumps frames from the renderer connection. It runs in the
// request goroutine; all reads happen here so there is at most one reader
// per connection.
func (s *wsSurface) readPump() {
	defer s.teardown()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Renderer connection closed unexpectedly", "error", err.Error())
			}
			break
		}

		var frame rendererFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.logger.Warn("Malformed renderer frame", "error", err.Error())
			continue
		}
		s.handleFrame(frame)
	}
}

func (s *wsSurface) handleFrame(frame rendererFrame) {
	switch frame.Type {
	case frameReady:
		s.readyOnce.Do(func() { close(s.ready) })

	case frameDisplayed, frameScrolled:
		s.mu.Lock()
		ack, ok := s.pending[frame.ID]
		s.mu.Unlock()
		if !ok {
			return
		}
		if frame.Error != "" {
			ack <- errors.New(frame.Error)
		} else {
			ack <- nil
		}

	case frameRelocated:
		s.mu.Lock()
		if frame.Metrics != nil {
			m := *frame.Metrics
			s.metrics = &m
		}
		cbs := make([]func(domain.Relocation), 0, len(s.callbacks))
		for _, cb := range s.callbacks {
			cbs = append(cbs, cb)
		}
		s.mu.Unlock()
		for _, cb := range cbs {
			cb(domain.Relocation{Locator: frame.Locator, Metrics: frame.Metrics})
		}

	case frameMetrics:
		if frame.Metrics == nil {
			return
		}
		s.mu.Lock()
		m := *frame.Metrics
		s.metrics = &m
		s.mu.Unlock()
	}
}

// writePump pumps frames to the renderer connection. One writer goroutine
// per connection; it also keeps the connection alive with pings.
func (s *wsSurface) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (s *wsSurface) teardown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

// RendererHandler upgrades renderer connections and binds them to reading
// sessions.
type RendererHandler struct {
	sessionService domain.ReaderSessionService
	logger         domain.Logger
	upgrader       websocket.Upgrader
}

// NewRendererHandler creates a new renderer socket handler
func NewRendererHandler(sessionService domain.ReaderSessionService, allowedOrigins []string, logger domain.Logger) *RendererHandler {
	return &RendererHandler{
		sessionService: sessionService,
		logger:         logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker allows non-browser clients (no Origin header), same-host
// connections, and the configured frontend origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Attach upgrades the request to a websocket and attaches the resulting
// render surface to the session. The request goroutine then serves the
// connection until it drops, at which point the session is closed.
func (h *RendererHandler) Attach(w http.ResponseWriter, r *http.Request) {
	user, ok := GetUserFromContext(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "User not found in context")
		return
	}
	sessionID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", err, "session_id", sessionID)
		return
	}

	surface := newWSSurface(conn, h.logger)

	if err := h.sessionService.AttachSurface(sessionID, user.ID, surface); err != nil {
		h.logger.Warn("Renderer attach rejected", "session_id", sessionID, "error", err.Error())
		code := websocket.CloseInternalServerErr
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			code = websocket.ClosePolicyViolation
		case errors.Is(err, domain.ErrAccessDenied):
			code = websocket.ClosePolicyViolation
		case errors.Is(err, domain.ErrSurfaceAttached):
			code = websocket.ClosePolicyViolation
		}
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, err.Error()), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	// A dropped connection ends the session; a later reconnect opens a
	// fresh one and restores position again.
	surface.onClose = func() {
		if err := h.sessionService.Close(sessionID); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			h.logger.Error("Failed to close session after renderer disconnect", err, "session_id", sessionID)
		}
	}

	go surface.writePump()
	surface.readPump()
}
