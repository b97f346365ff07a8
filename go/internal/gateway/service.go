package gateway

import (
	"context"
	"net/http"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
	"github.com/rs/zerolog/log"
)

// MetricsCollector defines what the gateway reports about its clients
type MetricsCollector interface {
	RecordConnections(n int)
	RecordClientMessage(applied bool)
}

type noOpMetrics struct{}

func (noOpMetrics) RecordConnections(n int)          {}
func (noOpMetrics) RecordClientMessage(applied bool) {}

// Service is the presentation boundary: it serves game state and intents over
// HTTP and pushes every committed snapshot to WebSocket clients
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler

	snapshots   <-chan gameclock.Snapshot
	unsubscribe func()
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates the gateway and subscribes it to the controller, so no
// snapshot committed after this call is missed
func NewService(config Config, controller GameController, metrics MetricsCollector) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, controller, metrics)
	snapshots, unsubscribe := controller.Subscribe()

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(controller),
		snapshots:         snapshots,
		unsubscribe:       unsubscribe,
	}
}

// Start relays snapshots to connected clients until ctx is done
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting game gateway service")

	go s.connectionManager.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("game gateway service shutting down")
			return s.Stop()
		case snap, ok := <-s.snapshots:
			if !ok {
				log.Info().Msg("snapshot stream closed")
				<-ctx.Done()
				return s.Stop()
			}
			s.connectionManager.Broadcast(snap)
		}
	}
}

// Stop releases the snapshot subscription
func (s *Service) Stop() error {
	s.unsubscribe()
	log.Info().Msg("game gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("game gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
