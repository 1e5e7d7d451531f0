package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/tmscore/internal/api"
	"github.com/tensorplex-labs/tmscore/internal/config"
	"github.com/tensorplex-labs/tmscore/internal/ensemble"
	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/utils/logger"
	"github.com/tensorplex-labs/tmscore/internal/utils/redis"
)

var (
	predPath   = flag.String("pred", "", "prediction label table (.csv or .csv.zst)")
	refPath    = flag.String("ref", "", "reference label table (.csv or .csv.zst)")
	target     = flag.String("target", "", "score only this target; default every target in -ref")
	policy     = flag.String("policy", "", "ensemble policy: best_of_best, avg_of_best or best_of_avg")
	normalize  = flag.String("normalize", "", "length normalization: target, pred or average")
	predModels = flag.Int("pred-models", 0, "prediction members per target")
	refModels  = flag.Int("ref-models", 0, "reference members per target")
	copyIndex  = flag.Int("copy", 0, "chain copy to keep; 0 keeps every copy")
	workers    = flag.Int("workers", 0, "concurrent pairwise scores; 0 uses GOMAXPROCS")
	padSize    = flag.Int("pad-size", 0, "pad predictions to this many slots")
	padPolicy  = flag.String("pad-policy", "", "padding: none, repeat_first or repeat_best")
	remote     = flag.Bool("remote", false, "evaluate through the scoring server at TMSCORE_URL")
)

type targetResult struct {
	Target   string                   `json:"target"`
	Policy   string                   `json:"policy,omitempty"`
	Score    float64                  `json:"tm_score"`
	BestPred int                      `json:"best_pred_idx"`
	BestRef  int                      `json:"best_ref_idx"`
	Preds    int                      `json:"preds"`
	Refs     int                      `json:"refs"`
	Failures []api.CellFailurePayload `json:"failures,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	if *predPath == "" || *refPath == "" {
		fmt.Fprintln(os.Stderr, "usage: tmscore -pred predictions.csv -ref labels.csv [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	preds, err := structure.OpenLabels(*predPath, structure.ReadOptions{MaxModels: cfg.PredModels})
	if err != nil {
		log.Fatal().Err(err).Str("path", *predPath).Msg("failed to read predictions")
	}
	refs, err := structure.OpenLabels(*refPath, structure.ReadOptions{MaxModels: cfg.RefModels})
	if err != nil {
		log.Fatal().Err(err).Str("path", *refPath).Msg("failed to read references")
	}

	targets := structure.Targets(refs)
	if *target != "" {
		targets = []string{*target}
	}

	eval, cleanup, err := newEvaluator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build evaluator")
	}
	failed, err := scoreTargets(ctx, eval, targets, preds, refs)
	cleanup()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode result")
	}

	log.Info().Int("targets", len(targets)).Int("failed", failed).Msg("scoring finished")
	if failed > 0 {
		os.Exit(1)
	}
}

// scoreTargets prints one JSON line per target and returns how many failed.
func scoreTargets(ctx context.Context, eval evalFunc, targets []string, preds, refs []structure.Record) (int, error) {
	failed := 0
	for _, t := range targets {
		if ctx.Err() != nil {
			log.Warn().Msg("interrupted, stopping")
			break
		}
		res := eval(ctx, t, preds, refs)
		if res.Error != "" {
			failed++
			log.Error().Str("target", t).Str("error", res.Error).Msg("target not scored")
		}
		line, err := sonic.Marshal(res)
		if err != nil {
			return failed, err
		}
		fmt.Println(string(line))
	}
	return failed, nil
}

// applyFlags overrides environment defaults with flags given on the command
// line.
func applyFlags(cfg *config.AppConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "policy":
			cfg.EnsemblePolicy = *policy
		case "normalize":
			cfg.NormalizeBy = *normalize
		case "pred-models":
			cfg.PredModels = *predModels
		case "ref-models":
			cfg.RefModels = *refModels
		case "copy":
			cfg.CopyIndex = *copyIndex
		case "workers":
			cfg.Workers = *workers
		case "pad-size":
			cfg.PadSize = *padSize
		case "pad-policy":
			cfg.PadPolicy = *padPolicy
		}
	})
}

type evalFunc func(ctx context.Context, target string, preds, refs []structure.Record) targetResult

func assemble(cfg *config.AppConfig, target string, preds, refs []structure.Record) (structure.Ensemble, structure.Ensemble, error) {
	copies := cfg.Copies()
	p, err := structure.Assemble(preds, target, structure.AssembleOptions{Copies: copies, Models: cfg.PredModels})
	if err != nil {
		return nil, nil, fmt.Errorf("predictions: %w", err)
	}
	r, err := structure.Assemble(refs, target, structure.AssembleOptions{Copies: copies, Models: cfg.RefModels})
	if err != nil {
		return nil, nil, fmt.Errorf("references: %w", err)
	}
	return p, r, nil
}

// newEvaluator returns the per-target scorer and a cleanup releasing its
// cache connection or HTTP client.
func newEvaluator(cfg *config.AppConfig) (evalFunc, func(), error) {
	pol, err := cfg.Policy()
	if err != nil {
		return nil, nil, err
	}
	if *remote {
		return remoteEvaluator(cfg, pol)
	}

	opts, err := cfg.EvaluatorOptions()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	if cache := connectCache(cfg); cache != nil {
		opts = append(opts, ensemble.WithCache(cache))
		cleanup = func() {
			if err := cache.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close score cache")
			}
		}
	}
	evaluator := ensemble.NewEvaluator(opts...)

	return func(ctx context.Context, target string, preds, refs []structure.Record) targetResult {
		out := targetResult{Target: target, Policy: string(pol)}
		p, r, err := assemble(cfg, target, preds, refs)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		res, err := evaluator.Evaluate(ctx, p, r, pol)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Score, out.BestPred, out.BestRef = res.Score, res.BestPred, res.BestRef
		out.Preds, out.Refs = len(p), len(r)
		for i, row := range res.Cells {
			for j, cell := range row {
				if !cell.OK() {
					out.Failures = append(out.Failures, api.CellFailurePayload{Pred: i, Ref: j, Error: cell.Err.Error()})
				}
			}
		}
		return out
	}, cleanup, nil
}

// connectCache returns nil when no cache is configured or it is unreachable.
func connectCache(cfg *config.AppConfig) *redis.Redis {
	if cfg.RedisHost == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cache, err := redis.NewRedis(ctx, &cfg.RedisEnvConfig)
	if err != nil {
		log.Error().Err(err).Msg("score cache unavailable, scoring without it")
		return nil
	}
	return cache
}

func remoteEvaluator(cfg *config.AppConfig, pol ensemble.Policy) (evalFunc, func(), error) {
	client, err := api.NewClient(&api.ClientConfig{
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.ClientTimeout,
		ZstdCompression: true,
		Retries:         cfg.ClientRetries,
	})
	if err != nil {
		return nil, nil, err
	}

	return func(ctx context.Context, target string, preds, refs []structure.Record) targetResult {
		out := targetResult{Target: target, Policy: string(pol)}
		p, r, err := assemble(cfg, target, preds, refs)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		req := api.EnsembleRequest{
			Policy:      string(pol),
			NormalizeBy: cfg.NormalizeBy,
			PadSize:     cfg.PadSize,
			PadPolicy:   cfg.PadPolicy,
		}
		for _, s := range p {
			req.Preds = append(req.Preds, api.FromStructure(s))
		}
		for _, s := range r {
			req.Refs = append(req.Refs, api.FromStructure(s))
		}
		res, err := client.Ensemble(ctx, req)
		if err != nil {
			out.Error = err.Error()
			return out
		}
		out.Score, out.BestPred, out.BestRef = res.Score, res.BestPred, res.BestRef
		out.Preds, out.Refs = len(p), len(r)
		out.Failures = res.Failures
		return out
	}, client.Close, nil
}
