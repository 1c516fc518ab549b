package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/internal/protocol"
	"github.com/mcdev12/showdown/go/internal/session"
)

// Sessions is the part of the session registry the gateway uses
type Sessions interface {
	Create(cfg session.Config) (string, error)
	Get(id string) (*session.Session, error)
	Remove(id string)
	Len() int
}

// WebSocketHandler handles WebSocket upgrade requests for sessions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	sessions          Sessions
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, sessions Sessions) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		sessions:          sessions,
	}
}

// HandleSessionConnection attaches a websocket to a live session. The session
// answers the attach with connection_ack and a full state.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")

	sess, err := h.sessions.Get(sessionID)
	if err != nil {
		if websocket.IsWebSocketUpgrade(r) {
			h.rejectUpgrade(w, r, sessionID)
			return
		}
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.connectionManager.Upgrade(w, r, sessionID)
	if err != nil {
		// the upgrader already answered the request
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	conn.onMessage = func(raw []byte) { h.handleMessage(conn, sess, raw) }
	conn.onClose = func() {
		// a finished table has nothing left to reconnect to
		if sess.Status().Lifecycle == session.Ended {
			h.sessions.Remove(sessionID)
		}
	}
	h.connectionManager.Register(conn)

	if err := sess.Attach(); err != nil {
		h.connectionManager.SendTo(conn, errorEvent(sessionID, protocol.CodeSessionEnded, err.Error()))
		h.connectionManager.Unregister(conn)
	}
}

func (h *WebSocketHandler) handleMessage(conn *Connection, sess *session.Session, raw []byte) {
	m, err := protocol.ParseClientMessage(raw)
	if err != nil {
		h.connectionManager.SendTo(conn, errorEvent(conn.SessionID, protocol.CodeInvalidMessage, err.Error()))
		return
	}
	if err := sess.Submit(m); err != nil {
		code := protocol.CodeInternal
		if errors.Is(err, session.ErrSessionEnded) {
			code = protocol.CodeSessionEnded
		}
		h.connectionManager.SendTo(conn, errorEvent(conn.SessionID, code, err.Error()))
	}
}

// rejectUpgrade completes the handshake only to tell the client the session
// does not exist and close with CloseSessionNotFound
func (h *WebSocketHandler) rejectUpgrade(w http.ResponseWriter, r *http.Request, sessionID string) {
	ws, err := h.connectionManager.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	log.Info().Str("session_id", sessionID).Msg("websocket for unknown session rejected")

	deadline := time.Now().Add(h.connectionManager.config.WriteTimeout)
	ws.SetWriteDeadline(deadline)
	if ev := errorEvent(sessionID, protocol.CodeSessionNotFound, "session not found"); ev != nil {
		if data, err := json.Marshal(ev); err == nil {
			ws.WriteMessage(websocket.TextMessage, data)
		}
	}
	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseSessionNotFound, "session not found"), deadline)
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()
	stats["active_sessions"] = h.sessions.Len()
	writeJSON(w, http.StatusOK, stats)
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("GET /ws/{sessionID}", h.HandleSessionConnection)
}

func errorEvent(sessionID, code, message string) *protocol.Event {
	ev, err := protocol.New(protocol.EventError, sessionID, time.Now(), protocol.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build error event")
		return nil
	}
	return ev
}
