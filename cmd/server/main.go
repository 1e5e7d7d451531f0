package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/tmscore/internal/api"
	"github.com/tensorplex-labs/tmscore/internal/config"
	"github.com/tensorplex-labs/tmscore/internal/utils/logger"
	"github.com/tensorplex-labs/tmscore/internal/utils/redis"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting scoring server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load environment configuration")
		return
	}
	serverConfig, err := newServerConfig(cfg)
	if err != nil {
		log.Error().Err(err).Msg("invalid scoring configuration")
		return
	}
	if cfg.RedisHost != "" {
		cache, err := redis.NewRedis(ctx, &cfg.RedisEnvConfig)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect score cache, serving without it")
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to close score cache")
				}
			}()
			serverConfig.Cache = cache
		}
	}

	server := api.NewServer(serverConfig)

	if err := server.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}

// newServerConfig maps the environment onto the server's request defaults.
func newServerConfig(cfg *config.AppConfig) (*api.ServerConfig, error) {
	norm, err := cfg.Normalization()
	if err != nil {
		return nil, err
	}
	pol, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	return &api.ServerConfig{
		Host:          cfg.Host,
		Port:          cfg.Port,
		BodyLimit:     cfg.BodyLimit,
		Normalization: norm,
		Policy:        pol,
		Workers:       cfg.Workers,
	}, nil
}
