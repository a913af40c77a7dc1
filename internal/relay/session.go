package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zavolah/marketplace/internal/logging"
)

// Defaults applied when SessionConfig leaves a field unset.
const (
	DefaultSendBuffer      = 64
	DefaultMaxMessageBytes = 64 * 1024
)

// Frame is an inbound chat frame sent by a client.
type Frame struct {
	RoomID      string        `json:"room_id"`
	MessageType string        `json:"message_type,omitempty"`
	Content     string        `json:"content"`
	Attachments []interface{} `json:"attachments,omitempty"`
}

// Valid reports whether the frame names a room and carries content.
func (f Frame) Valid() bool {
	return strings.TrimSpace(f.RoomID) != "" && strings.TrimSpace(f.Content) != ""
}

// FrameHandler processes one valid inbound frame from userID. Failures are
// the handler's to log; they never terminate the session.
type FrameHandler interface {
	HandleFrame(ctx context.Context, userID string, frame Frame)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(ctx context.Context, userID string, frame Frame)

// HandleFrame calls f.
func (f FrameHandlerFunc) HandleFrame(ctx context.Context, userID string, frame Frame) {
	f(ctx, userID, frame)
}

// SessionConfig tunes per-connection behavior.
type SessionConfig struct {
	SendBuffer      int
	MaxMessageBytes int64
	// AllowedOrigins restricts the Origin header on upgrade. Empty or "*"
	// allows any origin.
	AllowedOrigins []string
}

// Server upgrades HTTP requests into relay sessions.
type Server struct {
	registry *Registry
	handler  FrameHandler
	cfg      SessionConfig
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewServer wires a session server over registry.
func NewServer(registry *Registry, handler FrameHandler, cfg SessionConfig, logger *logging.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &Server{
		registry: registry,
		handler:  handler,
		cfg:      cfg,
		logger:   logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Registry returns the registry sessions are registered in.
func (s *Server) Registry() *Registry {
	return s.registry
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Serve upgrades the request and runs the session for userID until the
// client disconnects. It blocks for the lifetime of the connection.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		s.logger.WithContext(r.Context()).WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := newWSConn(ws, s.cfg.SendBuffer)
	s.registry.Register(userID, conn)
	log := s.logger.WithContext(r.Context()).WithField("user_id", userID)
	log.Info("relay session opened")

	go conn.writePump()

	s.readPump(r.Context(), userID, conn)

	s.registry.UnregisterConn(userID, conn)
	_ = conn.Close()
	<-conn.pumpDone
	log.Info("relay session closed")
}

// readPump reads frames until the socket fails or is closed.
func (s *Server) readPump(ctx context.Context, userID string, conn *wsConn) {
	ws := conn.ws
	ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.WithContext(ctx).WithError(err).Debug("relay read error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.logger.WithContext(ctx).WithField("user_id", userID).WithError(err).Warn("malformed relay frame")
			continue
		}
		if !frame.Valid() {
			s.logger.WithContext(ctx).WithField("user_id", userID).Warn("relay frame missing room_id or content")
			continue
		}

		if s.handler != nil {
			s.handler.HandleFrame(ctx, userID, frame)
		}
	}
}
