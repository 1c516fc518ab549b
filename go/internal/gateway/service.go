package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/internal/session"
)

// Service is the session gateway: websocket connections plus the REST API
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	sessionsHandler   *SessionsHandler
	sessions          Sessions
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// Defaults fills table settings a create request leaves out
	Defaults session.Config
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService wires the handlers to the connection manager the sessions
// broadcast through. models and health may be nil.
func NewService(config Config, cm *ConnectionManager, sessions Sessions, models ModelCatalog, health ArchiveHealth) *Service {
	cm.OnResync(func(sessionID string) {
		sess, err := sessions.Get(sessionID)
		if err != nil {
			return
		}
		sess.RequestResync()
	})

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, sessions),
		sessionsHandler:   NewSessionsHandler(sessions, config.Defaults, models, health),
		sessions:          sessions,
	}
}

// Start blocks until ctx is cancelled, then stops the service
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting session gateway service")
	<-ctx.Done()
	log.Info().Msg("session gateway service shutting down")
	return s.Stop()
}

// Stop closes every session
func (s *Service) Stop() error {
	if closer, ok := s.sessions.(interface{ CloseAll() }); ok {
		closer.CloseAll()
	}
	log.Info().Msg("session gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.sessionsHandler.RegisterRoutes(mux)
	log.Info().Msg("session gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "session_gateway"
	stats["active_sessions"] = s.sessions.Len()
	return stats
}
