package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/internal/protocol"
)

var (
	ErrNoConnection  = errors.New("no live connection for session")
	ErrSendQueueFull = errors.New("connection send queue full")
)

// CloseSessionNotFound is the websocket close code for an unknown session
const CloseSessionNotFound = 4004

// ConnectionManager holds the one live websocket connection of each session
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// onResync is told when a connection dropped an event and needs a full state
	onResync func(sessionID string)
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	lastPing    atomic.Int64

	// set while the client's view is stale; events are dropped until a full
	// state goes out through Resync
	awaitingResync atomic.Bool
	// resyncMu orders queue writes against the resync bookkeeping.
	// resyncAsked is set while a full state has been requested and not yet
	// delivered or refused.
	resyncMu    sync.Mutex
	resyncAsked bool
	// dead is set, and Send closed, under the manager's write lock
	dead bool

	onMessage func(raw []byte)
	onClose   func()
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendQueueSize   int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendQueueSize:   256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultConnectionConfig().SendQueueSize
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// OnResync sets the callback asked for a full state after a dropped event.
// It must not block.
func (cm *ConnectionManager) OnResync(fn func(sessionID string)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onResync = fn
}

// Upgrade upgrades an HTTP request to a websocket connection for a session.
// The connection is not registered yet.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, sessionID string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	c := &Connection{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendQueueSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
	c.lastPing.Store(c.ConnectedAt.UnixNano())
	return c, nil
}

// Register makes conn the live connection of its session, replacing any
// previous one, and starts its pumps. Nothing is sent on it until the first
// Resync.
func (cm *ConnectionManager) Register(conn *Connection) {
	// the session's greeting is the pending resync
	conn.resyncMu.Lock()
	conn.awaitingResync.Store(true)
	conn.resyncAsked = true
	conn.resyncMu.Unlock()

	cm.mu.Lock()
	old := cm.connections[conn.SessionID]
	cm.connections[conn.SessionID] = conn
	if old != nil {
		old.retire()
	}
	total := len(cm.connections)
	cm.mu.Unlock()

	go conn.writePump()
	go conn.readPump()

	logger := log.Info().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID).
		Int("total_connections", total)
	if old != nil {
		logger = logger.Str("replaced_connection_id", old.ID)
	}
	logger.Msg("connection registered")
}

// Unregister marks conn dead and removes it if it is still the live
// connection of its session
func (cm *ConnectionManager) Unregister(conn *Connection) {
	cm.mu.Lock()
	removed := false
	if cm.connections[conn.SessionID] == conn {
		delete(cm.connections, conn.SessionID)
		removed = true
	}
	wasLive := !conn.dead
	conn.retire()
	cm.mu.Unlock()

	if removed {
		log.Info().
			Str("connection_id", conn.ID).
			Str("session_id", conn.SessionID).
			Msg("connection unregistered")
	}
	if wasLive && conn.onClose != nil {
		conn.onClose()
	}
}

// retire closes the send queue once; the caller holds the write lock
func (c *Connection) retire() {
	if c.dead {
		return
	}
	c.dead = true
	close(c.Send)
}

// Broadcast queues ev on the live connection of the session. Events are never
// reordered; an event that does not fit the queue is dropped and the session is
// asked for a full state.
func (cm *ConnectionManager) Broadcast(sessionID string, ev *protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.RLock()
	conn := cm.connections[sessionID]
	if conn == nil || conn.dead || conn.awaitingResync.Load() {
		cm.mu.RUnlock()
		return
	}
	overflow, ask := false, false
	conn.resyncMu.Lock()
	select {
	case conn.Send <- data:
	default:
		overflow = true
		conn.awaitingResync.Store(true)
		ask = !conn.resyncAsked
		conn.resyncAsked = true
	}
	conn.resyncMu.Unlock()
	onResync := cm.onResync
	cm.mu.RUnlock()

	if overflow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("session_id", sessionID).
			Str("event_type", string(ev.Type)).
			Msg("connection send queue full, dropping event and forcing resync")
		if ask && onResync != nil {
			onResync(sessionID)
		}
	}
}

// Resync queues evs on the live connection ahead of any later broadcast and
// lets broadcasts through again. When the queue has no room yet the
// connection stays stale and the write pump asks again once it has drained.
// A queue too small to ever hold the resync closes the connection.
func (cm *ConnectionManager) Resync(sessionID string, evs ...*protocol.Event) error {
	frames := make([][]byte, 0, len(evs))
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", ev.Type, err)
		}
		frames = append(frames, data)
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	conn := cm.connections[sessionID]
	if conn == nil || conn.dead {
		return fmt.Errorf("%w: %s", ErrNoConnection, sessionID)
	}
	if cap(conn.Send) < len(frames) {
		log.Error().
			Str("connection_id", conn.ID).
			Str("session_id", sessionID).
			Int("frames", len(frames)).
			Msg("send queue cannot hold a resync, closing connection")
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		return fmt.Errorf("%w: %s", ErrSendQueueFull, sessionID)
	}

	conn.resyncMu.Lock()
	defer conn.resyncMu.Unlock()
	if cap(conn.Send)-len(conn.Send) < len(frames) {
		conn.resyncAsked = false
		log.Debug().
			Str("connection_id", conn.ID).
			Str("session_id", sessionID).
			Msg("no room for resync yet, waiting for the queue to drain")
		return fmt.Errorf("%w: %s", ErrSendQueueFull, sessionID)
	}
	for _, data := range frames {
		conn.Send <- data
	}
	conn.awaitingResync.Store(false)
	conn.resyncAsked = false
	return nil
}

// drained is called by the write pump after every write. A stale connection
// whose queue is empty asks for its full state again.
func (c *Connection) drained() {
	if !c.awaitingResync.Load() {
		return
	}
	c.resyncMu.Lock()
	ask := !c.resyncAsked && len(c.Send) == 0
	if ask {
		c.resyncAsked = true
	}
	c.resyncMu.Unlock()

	if ask {
		c.Manager.mu.RLock()
		onResync := c.Manager.onResync
		c.Manager.mu.RUnlock()
		if onResync != nil {
			onResync(c.SessionID)
		}
	}
}

// SendTo queues one event on a specific connection, for replies that belong
// to that connection only
func (cm *ConnectionManager) SendTo(conn *Connection, ev *protocol.Event) {
	if ev == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event")
		return
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if conn.dead {
		return
	}
	conn.resyncMu.Lock()
	defer conn.resyncMu.Unlock()
	select {
	case conn.Send <- data:
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("connection send queue full, dropping reply")
	}
}

// Connected reports whether the session has a live connection
func (cm *ConnectionManager) Connected(sessionID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c := cm.connections[sessionID]
	return c != nil && !c.dead
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	resyncing := 0
	sessions := make(map[string]interface{}, len(cm.connections))
	for sessionID, conn := range cm.connections {
		if conn.awaitingResync.Load() {
			resyncing++
		}
		sessions[sessionID] = map[string]interface{}{
			"connection_id": conn.ID,
			"connected_at":  conn.ConnectedAt,
			"queued":        len(conn.Send),
			"last_ping":     time.Unix(0, conn.lastPing.Load()),
		}
	}

	return map[string]interface{}{
		"total_connections":     len(cm.connections),
		"resyncing_connections": resyncing,
		"sessions":              sessions,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}
			c.drained()

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.lastPing.Store(time.Now().UnixNano())
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.onMessage != nil {
			c.onMessage(message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
