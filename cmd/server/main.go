package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/ecem"
	"github.com/tensorplex-labs/hyperdetect/internal/server"
	"github.com/tensorplex-labs/hyperdetect/internal/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting detection server...")

	cfg, err := config.LoadConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}
	logger.SetVerbose(cfg.Verbose)
	if preset := cfg.ApplyPreset(); preset != nil {
		log.Info().Str("scenario", preset.Name).Float64("lambda", preset.Lambda).Msg("Applied scenario preset")
	}

	detector, err := ecem.NewDetectorFromEnv(&cfg.DetectorEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid detector configuration")
	}

	s := server.NewServerFromEnv(&cfg.ServerEnvConfig, detector)

	// setup signal handling for graceful shutdown before starting the server
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, stopping server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	if err := s.Start(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}
