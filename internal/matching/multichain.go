package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
)

var ErrNoFeasibleAssignment = errors.New("no feasible chain assignment")

type NoFeasibleAssignmentError struct {
	PredChains int
	TrueChains int
}

func (e *NoFeasibleAssignmentError) Error() string {
	return fmt.Sprintf("no feasible chain assignment: pred has %d chains, true has %d", e.PredChains, e.TrueChains)
}

func (e *NoFeasibleAssignmentError) Is(target error) bool { return target == ErrNoFeasibleAssignment }

type Options struct {
	Normalization scoring.Normalization
	// Workers bounds concurrent pairwise scoring; 0 uses GOMAXPROCS.
	Workers int
}

// Pair is one matched chain pair. Err is set when the pair's score could
// not be computed; it then contributes 0 with its full weight.
type Pair struct {
	Pred      string  `json:"pred"`
	True      string  `json:"true"`
	PredIndex int     `json:"pred_index"`
	TrueIndex int     `json:"true_index"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Err       error   `json:"-"`
}

type Result struct {
	Score         float64
	Pairs         []Pair
	UnmatchedPred []string
	UnmatchedTrue []string
	// Matrix holds pairwise scores indexed (pred chain, true chain); nil when
	// both sides are single-chain.
	Matrix *mat.Dense
	Grid   scoring.Grid
}

// ScoreMultiChain finds the chain correspondence maximising total TM-Score
// and returns the length-weighted mean score over matched pairs. Two
// single-chain structures are scored directly, surfacing any pair error.
func ScoreMultiChain(ctx context.Context, pred, truth structure.Structure, opts Options) (Result, error) {
	if pred.Len() == 0 || truth.Len() == 0 {
		return Result{}, &NoFeasibleAssignmentError{PredChains: pred.Len(), TrueChains: truth.Len()}
	}
	if _, err := opts.Normalization.Length(0, 0); err != nil {
		return Result{}, err
	}

	if pred.Len() == 1 && truth.Len() == 1 {
		p, t := pred.At(0), truth.At(0)
		score, err := scoring.Score(p.Points, t.Points, opts.Normalization)
		if err != nil {
			return Result{}, fmt.Errorf("chain %s vs %s: %w", p.Label, t.Label, err)
		}
		w, _ := opts.Normalization.Length(len(p.Points), len(t.Points))
		return Result{
			Score: score,
			Pairs: []Pair{{Pred: p.Label, True: t.Label, Score: score, Weight: w}},
		}, nil
	}

	predChains, trueChains := pred.Chains(), truth.Chains()
	grid := scoring.BuildGrid(ctx, len(predChains), len(trueChains), opts.Workers,
		func(_ context.Context, i, j int) (float64, error) {
			return scoring.Score(predChains[i].Points, trueChains[j].Points, opts.Normalization)
		})

	scores := grid.Matrix()
	var cost mat.Dense
	cost.Scale(-1, scores)

	rowInd, colInd, err := LinearSumAssignment(&cost)
	if err != nil {
		return Result{}, fmt.Errorf("chain assignment: %w", err)
	}

	res := Result{Matrix: scores, Grid: grid}
	matchedPred := make(map[int]bool, len(rowInd))
	matchedTrue := make(map[int]bool, len(colInd))
	var weighted, totalWeight float64
	for k := range rowInd {
		i, j := rowInd[k], colInd[k]
		matchedPred[i], matchedTrue[j] = true, true

		p, t := predChains[i], trueChains[j]
		w, _ := opts.Normalization.Length(len(p.Points), len(t.Points))
		cell := grid.Cells[i][j]
		res.Pairs = append(res.Pairs, Pair{
			Pred: p.Label, True: t.Label,
			PredIndex: i, TrueIndex: j,
			Score: cell.Value(), Weight: w, Err: cell.Err,
		})
		weighted += cell.Value() * w
		totalWeight += w
	}
	for i, c := range predChains {
		if !matchedPred[i] {
			res.UnmatchedPred = append(res.UnmatchedPred, c.Label)
		}
	}
	for j, c := range trueChains {
		if !matchedTrue[j] {
			res.UnmatchedTrue = append(res.UnmatchedTrue, c.Label)
		}
	}
	if totalWeight > 0 {
		res.Score = weighted / totalWeight
	}

	log.Debug().
		Int("predChains", len(predChains)).
		Int("trueChains", len(trueChains)).
		Int("pairs", len(res.Pairs)).
		Float64("score", res.Score).
		Msg("multi-chain assignment solved")
	return res, nil
}
