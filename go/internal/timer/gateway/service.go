package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Service is the realtime timer gateway. It owns the WebSocket connections and fans
// timer events out to subscribers.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the timer gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the timer gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new timer gateway service
func NewService(config Config, states StateProvider) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, states)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting timer gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("timer gateway service stopped")
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("timer gateway routes registered")
}

// BroadcastUpdate implements timer.Broadcaster
func (s *Service) BroadcastUpdate(timer *models.TimerSession) {
	s.connectionManager.BroadcastUpdate(timer)
}

// BroadcastComplete implements timer.Broadcaster
func (s *Service) BroadcastComplete(timer *models.TimerSession) {
	s.connectionManager.BroadcastComplete(timer)
}

// Dispatch delivers an already built event to local subscribers
func (s *Service) Dispatch(event *TimerEvent) {
	s.connectionManager.Dispatch(event)
}

// ReleaseTimer forgets every subscription to a timer that no longer exists
func (s *Service) ReleaseTimer(timerID uuid.UUID) {
	s.connectionManager.ReleaseTimer(timerID)
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
