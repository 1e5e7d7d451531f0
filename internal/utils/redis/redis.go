// Package redis provides a Redis-backed pairwise score cache
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/tmscore/internal/config"
)

type Redis struct {
	client *goredis.Client
	cfg    *config.RedisEnvConfig
}

type RedisInterface interface {
	GetScore(ctx context.Context, key string) (float64, bool, error)
	SetScore(ctx context.Context, key string, score float64) error
	Ping(ctx context.Context) error
	Close() error
}

// NewRedis connects to the configured server and pings it.
func NewRedis(ctx context.Context, cfg *config.RedisEnvConfig) (*Redis, error) {
	if cfg == nil || cfg.RedisHost == "" {
		return nil, errors.New("redis host not configured")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	r := &Redis{client: client, cfg: cfg}
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", client.Options().Addr, err)
	}

	log.Info().
		Str("addr", client.Options().Addr).
		Int("db", cfg.RedisDB).
		Str("ttl", cfg.CacheTTL.String()).
		Msg("redis score cache connected")
	return r, nil
}

// GetScore reports ok=false for a key that is not cached.
func (r *Redis) GetScore(ctx context.Context, key string) (float64, bool, error) {
	score, err := r.client.Get(ctx, key).Float64()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (r *Redis) SetScore(ctx context.Context, key string, score float64) error {
	return r.client.Set(ctx, key, score, r.ttl()).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) ttl() time.Duration {
	if r.cfg.CacheTTL < 0 {
		return 0
	}
	return r.cfg.CacheTTL
}
