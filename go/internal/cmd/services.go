package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/Xolot-32/lax-clock/go/internal/config"
	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
	"github.com/Xolot-32/lax-clock/go/internal/gateway"
	"github.com/Xolot-32/lax-clock/go/internal/metrics"
	"github.com/Xolot-32/lax-clock/go/internal/publisher"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Metrics     *metrics.Recorder
	Coordinator *gameclock.Coordinator
	Gateway     *gateway.Service
	Publisher   publisher.EventPublisher
	Forwarder   *publisher.Forwarder

	events      <-chan gameclock.Snapshot
	unsubscribe func()
	wg          sync.WaitGroup
}

func setupServices(ctx context.Context, cfg config.Config, rules gameclock.Rules) (*Services, error) {
	// Wire up dependency injection chain
	// Metrics → Coordinator → Gateway / Publisher

	recorder := metrics.NewRecorder()
	coordinator := gameclock.NewCoordinator(rules, gameclock.WithMetrics(recorder))

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig.CheckOrigin = gateway.OriginChecker(cfg.AllowedOrigins)
	gatewayService := gateway.NewService(gatewayConfig, coordinator, recorder)

	eventPublisher, err := setupPublisher(ctx, cfg.NATS)
	if err != nil {
		return nil, err
	}
	// Subscribing here, before the tick driver starts, means the feed sees every snapshot
	events, unsubscribe := coordinator.Subscribe()

	return &Services{
		Metrics:     recorder,
		Coordinator: coordinator,
		Gateway:     gatewayService,
		Publisher:   eventPublisher,
		Forwarder:   publisher.NewForwarder(eventPublisher, recorder),
		events:      events,
		unsubscribe: unsubscribe,
	}, nil
}

func setupPublisher(ctx context.Context, cfg config.NATSConfig) (publisher.EventPublisher, error) {
	if cfg.URL == "" {
		log.Info().Msg("NATS_URL not set, game events are only logged")
		return publisher.NewLogPublisher(), nil
	}

	js, err := publisher.NewJetStreamPublisher(ctx, publisher.JetStreamConfig{
		URL:           cfg.URL,
		StreamName:    cfg.StreamName,
		SubjectPrefix: cfg.SubjectPrefix,
		MaxReconnects: cfg.MaxReconnects,
		ReconnectWait: cfg.ReconnectWait,
		MaxAge:        cfg.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}
	return js, nil
}

// Start launches the background loops; they all stop when ctx is cancelled
func (s *Services) Start(ctx context.Context) {
	s.wg.Add(3)

	go func() {
		defer s.wg.Done()
		if err := s.Coordinator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("tick driver failed")
		}
	}()

	go func() {
		defer s.wg.Done()
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("game gateway failed")
		}
	}()

	go func() {
		defer s.wg.Done()
		if err := s.Forwarder.Run(ctx, s.events); err != nil {
			log.Error().Err(err).Msg("event forwarder failed")
		}
	}()
}

// Wait blocks until every background loop has returned, then releases the
// event feed subscription
func (s *Services) Wait() {
	s.wg.Wait()
	s.unsubscribe()
}
