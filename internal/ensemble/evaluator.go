// Package ensemble scores prediction ensembles against reference ensembles
// of the same target under a named aggregation policy.
package ensemble

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tensorplex-labs/tmscore/internal/matching"
	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
)

type Evaluator struct {
	Normalization scoring.Normalization
	Workers       int
	PadSize       int
	Pad           PadPolicy
	Cache         ScoreCache
}

type EvaluatorOption func(*Evaluator)

func WithNormalization(norm scoring.Normalization) EvaluatorOption {
	return func(e *Evaluator) {
		e.Normalization = norm
	}
}

func WithWorkers(n int) EvaluatorOption {
	return func(e *Evaluator) {
		e.Workers = n
	}
}

// WithPadding fills the prediction ensemble to size slots under policy
// before reduction.
func WithPadding(size int, policy PadPolicy) EvaluatorOption {
	return func(e *Evaluator) {
		e.PadSize = size
		e.Pad = policy
	}
}

// WithCache reuses pairwise scores through c.
func WithCache(c ScoreCache) EvaluatorOption {
	return func(e *Evaluator) {
		e.Cache = c
	}
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		Normalization: scoring.NormalizeTarget,
		Pad:           PadNone,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the reduced ensemble score and the data that produced it.
// Indices refer to prediction slots after padding; Slots maps each slot to
// the original prediction index.
type Result struct {
	Policy   Policy  `json:"policy"`
	Score    float64 `json:"tm_score"`
	BestPred int     `json:"best_pred_idx"`
	BestRef  int     `json:"best_ref_idx"`

	// Matrix is the (prediction, reference) score matrix; nil for
	// best_of_avg.
	Matrix *mat.Dense       `json:"-"`
	Cells  [][]scoring.Cell `json:"-"`

	// BestPredPerRef is the column maximum for each reference (avg_of_best).
	BestPredPerRef    []float64 `json:"best_pred_per_ref,omitempty"`
	BestPredIdxPerRef []int     `json:"best_pred_idx_per_ref,omitempty"`
	// PredScores is the best prediction's row (best_of_best) or every
	// prediction against the averaged reference (best_of_avg).
	PredScores []float64 `json:"pred_scores,omitempty"`
	// RefScores is the best reference's column (best_of_best).
	RefScores []float64 `json:"ref_scores,omitempty"`

	AverageReference structure.Structure `json:"-"`
	Slots            []int               `json:"slots"`
}

func (e *Evaluator) pairScore(ctx context.Context, pred, ref structure.Structure) (float64, error) {
	var key string
	if e.Cache != nil {
		key = PairKey(e.Normalization, pred, ref)
		score, ok, err := e.Cache.GetScore(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("score cache lookup failed")
		} else if ok {
			return score, nil
		}
	}

	res, err := matching.ScoreMultiChain(ctx, pred, ref, matching.Options{Normalization: e.Normalization, Workers: 1})
	if err != nil {
		return 0, err
	}

	if e.Cache != nil {
		if err := e.Cache.SetScore(ctx, key, res.Score); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("score cache store failed")
		}
	}
	return res.Score, nil
}

// EvaluateNamed parses policy and calls Evaluate.
func (e *Evaluator) EvaluateNamed(ctx context.Context, preds, refs structure.Ensemble, policy string) (Result, error) {
	p, err := ParsePolicy(policy)
	if err != nil {
		return Result{}, err
	}
	return e.Evaluate(ctx, preds, refs, p)
}

// Evaluate scores every prediction against every reference and reduces the
// matrix under policy. Pairwise failures are logged and scored 0.
func (e *Evaluator) Evaluate(ctx context.Context, preds, refs structure.Ensemble, policy Policy) (Result, error) {
	if !policy.valid() {
		return Result{}, &UnknownPolicyError{Name: string(policy)}
	}
	if _, err := e.Normalization.Length(0, 0); err != nil {
		return Result{}, err
	}
	if len(preds) == 0 {
		return Result{}, &EmptyEnsembleError{Side: "prediction"}
	}
	if len(refs) == 0 {
		return Result{}, &EmptyEnsembleError{Side: "reference"}
	}

	startTime := time.Now()
	var (
		res Result
		err error
	)
	switch policy {
	case BestOfBest, AvgOfBest:
		res, err = e.evaluateMatrix(ctx, preds, refs, policy)
	case BestOfAvg:
		res, err = e.evaluateAverage(ctx, preds, refs)
	}
	if err != nil {
		return Result{}, err
	}
	res.Policy = policy

	log.Debug().
		Str("policy", string(policy)).
		Int("preds", len(preds)).
		Int("refs", len(refs)).
		Float64("score", res.Score).
		Dur("elapsed", time.Since(startTime)).
		Msg("ensemble evaluated")
	return res, nil
}

func (e *Evaluator) evaluateMatrix(ctx context.Context, preds, refs structure.Ensemble, policy Policy) (Result, error) {
	grid := scoring.BuildGrid(ctx, len(preds), len(refs), e.Workers, func(ctx context.Context, i, j int) (float64, error) {
		return e.pairScore(ctx, preds[i], refs[j])
	})

	bestRow, _ := argmax(grid.Matrix())
	slots, err := Slots(len(preds), e.PadSize, e.Pad, bestRow)
	if err != nil {
		return Result{}, err
	}
	cells := make([][]scoring.Cell, len(slots))
	for i, src := range slots {
		cells[i] = grid.Cells[src]
	}
	padded := scoring.Grid{Rows: len(slots), Cols: len(refs), Cells: cells}
	m := padded.Matrix()

	res := Result{Matrix: m, Cells: cells, Slots: slots, BestPred: -1, BestRef: -1}
	switch policy {
	case BestOfBest:
		i, j := argmax(m)
		res.Score = m.At(i, j)
		res.BestPred, res.BestRef = i, j
		res.PredScores = mat.Row(nil, i, m)
		res.RefScores = mat.Col(nil, j, m)
	case AvgOfBest:
		_, k := m.Dims()
		res.BestPredPerRef = make([]float64, k)
		res.BestPredIdxPerRef = make([]int, k)
		for j := range k {
			col := mat.Col(nil, j, m)
			idx := floats.MaxIdx(col)
			res.BestPredPerRef[j] = col[idx]
			res.BestPredIdxPerRef[j] = idx
		}
		res.Score = stat.Mean(res.BestPredPerRef, nil)
	}
	return res, nil
}

func (e *Evaluator) evaluateAverage(ctx context.Context, preds, refs structure.Ensemble) (Result, error) {
	avg, err := AverageStructure(refs)
	if err != nil {
		return Result{}, fmt.Errorf("average reference: %w", err)
	}

	grid := scoring.BuildGrid(ctx, len(preds), 1, e.Workers, func(ctx context.Context, i, _ int) (float64, error) {
		return e.pairScore(ctx, preds[i], avg)
	})
	raw := mat.Col(nil, 0, grid.Matrix())

	slots, err := Slots(len(preds), e.PadSize, e.Pad, floats.MaxIdx(raw))
	if err != nil {
		return Result{}, err
	}
	scores := make([]float64, len(slots))
	cells := make([][]scoring.Cell, len(slots))
	for i, src := range slots {
		scores[i] = raw[src]
		cells[i] = grid.Cells[src]
	}

	best := floats.MaxIdx(scores)
	return Result{
		Score:            scores[best],
		BestPred:         best,
		BestRef:          -1,
		Cells:            cells,
		PredScores:       scores,
		AverageReference: avg,
		Slots:            slots,
	}, nil
}

// SingleResult summarises one prediction against a reference ensemble.
type SingleResult struct {
	Best    float64        `json:"best_score"`
	Avg     float64        `json:"avg_score"`
	Worst   float64        `json:"worst_score"`
	Std     float64        `json:"std_score"`
	Scores  []float64      `json:"all_scores"`
	BestRef int            `json:"best_ref_idx"`
	Cells   []scoring.Cell `json:"-"`
}

// EvaluateSingle scores pred against every reference. Std is the population
// standard deviation.
func (e *Evaluator) EvaluateSingle(ctx context.Context, pred structure.Structure, refs structure.Ensemble) (SingleResult, error) {
	if len(refs) == 0 {
		return SingleResult{}, &EmptyEnsembleError{Side: "reference"}
	}
	grid := scoring.BuildGrid(ctx, 1, len(refs), e.Workers, func(ctx context.Context, _, j int) (float64, error) {
		return e.pairScore(ctx, pred, refs[j])
	})
	scores := mat.Row(nil, 0, grid.Matrix())

	n := float64(len(scores))
	mean, variance := stat.MeanVariance(scores, nil)
	if len(scores) > 1 {
		variance *= (n - 1) / n
	} else {
		variance = 0
	}

	best := floats.MaxIdx(scores)
	return SingleResult{
		Best:    scores[best],
		Avg:     mean,
		Worst:   floats.Min(scores),
		Std:     math.Sqrt(variance),
		Scores:  scores,
		BestRef: best,
		Cells:   grid.Cells[0],
	}, nil
}

// argmax returns the first maximal entry in row-major order.
func argmax(m *mat.Dense) (int, int) {
	r, c := m.Dims()
	bi, bj := 0, 0
	best := m.At(0, 0)
	for i := range r {
		for j := range c {
			if v := m.At(i, j); v > best {
				best, bi, bj = v, i, j
			}
		}
	}
	return bi, bj
}
