// Package config defines environment configuration structs and loaders.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/tensorplex-labs/tmscore/internal/ensemble"
	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
)

type AppConfig struct {
	ScoringEnvConfig
	AssemblyEnvConfig
	ServerEnvConfig
	ClientEnvConfig
	RedisEnvConfig
	Environment string `env:"ENVIRONMENT, default=prod"`
}

// ScoringEnvConfig holds the default scoring policies.
type ScoringEnvConfig struct {
	NormalizeBy    string `env:"NORMALIZE_BY, default=target"`
	EnsemblePolicy string `env:"ENSEMBLE_POLICY, default=best_of_best"`
	// Workers bounds concurrent pairwise scoring; 0 uses GOMAXPROCS.
	Workers   int    `env:"SCORE_WORKERS, default=0"`
	PadSize   int    `env:"PAD_SIZE, default=0"`
	PadPolicy string `env:"PAD_POLICY, default=none"`
}

// AssemblyEnvConfig holds label-table extraction defaults.
type AssemblyEnvConfig struct {
	// CopyIndex selects a chain copy; 0 keeps every copy.
	CopyIndex  int `env:"COPY_INDEX, default=1"`
	PredModels int `env:"PRED_MODELS, default=5"`
	RefModels  int `env:"REF_MODELS, default=40"`
}

// ServerEnvConfig configures the HTTP scoring service.
type ServerEnvConfig struct {
	Host      string `env:"SERVER_HOST, default=0.0.0.0"`
	Port      int    `env:"SERVER_PORT, default=8888"`
	BodyLimit int    `env:"SERVER_BODY_LIMIT, default=16777216"`
}

// ClientEnvConfig configures the HTTP client.
type ClientEnvConfig struct {
	BaseURL       string        `env:"TMSCORE_URL, default=http://127.0.0.1:8888"`
	ClientTimeout time.Duration `env:"CLIENT_TIMEOUT, default=30s"`
	// ClientRetries is the number of extra attempts on connection errors and
	// 5xx responses.
	ClientRetries int `env:"CLIENT_RETRIES, default=3"`
}

// RedisEnvConfig configures the optional pairwise score cache. An empty host
// disables it.
type RedisEnvConfig struct {
	RedisHost     string        `env:"REDIS_HOST"`
	RedisPort     int           `env:"REDIS_PORT, default=6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB, default=0"`
	CacheTTL      time.Duration `env:"SCORE_CACHE_TTL, default=24h"`
}

func LoadConfig(ctx context.Context) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every policy name is known.
func (c *AppConfig) Validate() error {
	if _, err := c.Normalization(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if _, err := c.Padding(); err != nil {
		return err
	}
	if c.ClientRetries < 0 {
		return fmt.Errorf("CLIENT_RETRIES must be >= 0, got %d", c.ClientRetries)
	}
	if c.CopyIndex < 0 {
		return fmt.Errorf("COPY_INDEX must be >= 0, got %d", c.CopyIndex)
	}
	return nil
}

func (c ScoringEnvConfig) Normalization() (scoring.Normalization, error) {
	return scoring.ParseNormalization(strings.ToLower(c.NormalizeBy))
}

func (c ScoringEnvConfig) Policy() (ensemble.Policy, error) {
	return ensemble.ParsePolicy(strings.ToLower(c.EnsemblePolicy))
}

func (c ScoringEnvConfig) Padding() (ensemble.PadPolicy, error) {
	return ensemble.ParsePadPolicy(strings.ToLower(c.PadPolicy))
}

// EvaluatorOptions turns the scoring defaults into evaluator options.
func (c ScoringEnvConfig) EvaluatorOptions() ([]ensemble.EvaluatorOption, error) {
	norm, err := c.Normalization()
	if err != nil {
		return nil, err
	}
	pad, err := c.Padding()
	if err != nil {
		return nil, err
	}
	return []ensemble.EvaluatorOption{
		ensemble.WithNormalization(norm),
		ensemble.WithWorkers(c.Workers),
		ensemble.WithPadding(c.PadSize, pad),
	}, nil
}

func (c AssemblyEnvConfig) Copies() structure.CopySelection {
	if c.CopyIndex == 0 {
		return structure.AllCopies()
	}
	return structure.CopyIndex(c.CopyIndex)
}
