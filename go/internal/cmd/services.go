package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/showdown/go/clients/ollama_client"
	"github.com/mcdev12/showdown/go/internal/archive"
	"github.com/mcdev12/showdown/go/internal/config"
	"github.com/mcdev12/showdown/go/internal/gateway"
	"github.com/mcdev12/showdown/go/internal/reasoning"
	"github.com/mcdev12/showdown/go/internal/session"
)

type Services struct {
	Ollama   *ollama_client.OllamaClient
	Archive  *archive.Async
	Registry *session.Registry
	Gateway  *gateway.Service
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency chain
	// Inference client → Pipeline → Registry ← Connection manager → Gateway
	clock := clockwork.NewRealClock()

	ollama := ollama_client.NewOllamaClient(ollama_client.Config{
		BaseURL:       cfg.Ollama.URL,
		Timeout:       cfg.Ollama.Timeout,
		MaxConcurrent: cfg.Ollama.MaxConcurrent,
		Think:         cfg.Ollama.Think,
	})
	if err := ollama.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("ollama not reachable yet, opponents will fall back to safe moves")
	}

	// History archive
	sink, err := setupArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	history := archive.NewAsync(sink, clock, archive.DefaultAsyncConfig())

	// Sessions
	pipeline := reasoning.NewPipeline(ollama, clock, cfg.PipelineConfig())

	connConfig := gateway.DefaultConnectionConfig()
	connConfig.SendQueueSize = cfg.SendQueueSize
	connections := gateway.NewConnectionManager(connConfig)

	registry := session.NewRegistry(session.Deps{
		Clock:       clock,
		Pipeline:    pipeline,
		Broadcaster: connections,
		Archiver:    history,
	})

	// Gateway
	gatewayConfig := gateway.Config{
		ConnectionConfig: connConfig,
		Defaults:         cfg.SessionDefaults(),
	}
	gw := gateway.NewService(gatewayConfig, connections, registry, ollama, history)

	return &Services{
		Ollama:   ollama,
		Archive:  history,
		Registry: registry,
		Gateway:  gw,
	}, nil
}

func setupArchive(ctx context.Context, cfg config.Config) (archive.Archiver, error) {
	if cfg.NATSURL == "" {
		log.Info().Int("limit", cfg.ArchiveLimit).Msg("archiving history in memory")
		return archive.NewMemory(cfg.ArchiveLimit), nil
	}

	natsConfig := archive.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	sink, err := archive.NewNATSArchiver(ctx, natsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect history archive: %w", err)
	}
	log.Info().Str("url", cfg.NATSURL).Str("stream", natsConfig.StreamName).Msg("archiving history to NATS JetStream")
	return sink, nil
}

// Close flushes the archive after the sessions are gone
func (s *Services) Close() {
	s.Registry.CloseAll()
	if err := s.Archive.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close history archive")
	}
}
