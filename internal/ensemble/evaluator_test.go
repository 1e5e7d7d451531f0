package ensemble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/synthetic"
)

type fixture struct {
	truth structure.PointSet
	preds structure.Ensemble
	refs  structure.Ensemble
}

func newFixture(seed uint64) fixture {
	rng := synthetic.NewRand(seed)
	truth := synthetic.Helix(50)
	f := fixture{truth: truth}
	for _, sigma := range []float64{4, 0.5, 2} {
		f.preds = append(f.preds, structure.SingleChain(synthetic.Perturb(truth, sigma, rng)))
	}
	for _, sigma := range []float64{0.3, 1, 3} {
		f.refs = append(f.refs, structure.SingleChain(synthetic.Perturb(truth, sigma, rng)))
	}
	return f
}

func TestEvaluate_BestOfBest(t *testing.T) {
	f := newFixture(1)
	res, err := NewEvaluator().Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
	require.NoError(t, err)

	r, c := res.Matrix.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)
	for i := range r {
		for j := range c {
			assert.LessOrEqual(t, res.Matrix.At(i, j), res.Score)
		}
	}
	assert.Equal(t, res.Matrix.At(res.BestPred, res.BestRef), res.Score)
	assert.Equal(t, 1, res.BestPred, "the least perturbed prediction wins")
	assert.Equal(t, 0, res.BestRef, "against the least perturbed reference")
	assert.Len(t, res.PredScores, 3)
	assert.Len(t, res.RefScores, 3)
	assert.Equal(t, []int{0, 1, 2}, res.Slots)
}

func TestEvaluate_AvgOfBest(t *testing.T) {
	f := newFixture(2)
	res, err := NewEvaluator().Evaluate(context.Background(), f.preds, f.refs, AvgOfBest)
	require.NoError(t, err)

	var sum float64
	for j := range 3 {
		best := 0.0
		for i := range 3 {
			best = max(best, res.Matrix.At(i, j))
		}
		assert.Equal(t, best, res.BestPredPerRef[j])
		assert.Equal(t, best, res.Matrix.At(res.BestPredIdxPerRef[j], j))
		sum += best
	}
	assert.InDelta(t, sum/3, res.Score, 1e-12)
}

func TestEvaluate_BestOfAvg(t *testing.T) {
	f := newFixture(3)
	res, err := NewEvaluator().Evaluate(context.Background(), f.preds, f.refs, BestOfAvg)
	require.NoError(t, err)

	assert.Nil(t, res.Matrix)
	assert.Equal(t, -1, res.BestRef)
	require.Len(t, res.PredScores, 3)
	assert.Equal(t, res.PredScores[res.BestPred], res.Score)
	assert.Equal(t, 1, res.AverageReference.Len())

	avg, err := AverageStructure(f.refs)
	require.NoError(t, err)
	want, err := scoring.Score(f.preds[1].At(0).Points, avg.At(0).Points, scoring.NormalizeTarget)
	require.NoError(t, err)
	assert.InDelta(t, want, res.PredScores[1], 1e-12)
}

func TestEvaluate_PolicyOrdering(t *testing.T) {
	for seed := range uint64(5) {
		f := newFixture(seed + 10)
		e := NewEvaluator()

		bob, err := e.Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
		require.NoError(t, err)
		aob, err := e.Evaluate(context.Background(), f.preds, f.refs, AvgOfBest)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bob.Score, aob.Score)

		// The mean of identical references is the reference itself.
		same := structure.Ensemble{f.refs[0], f.refs[0], f.refs[0]}
		bobSame, err := e.Evaluate(context.Background(), f.preds, same, BestOfBest)
		require.NoError(t, err)
		boaSame, err := e.Evaluate(context.Background(), f.preds, same, BestOfAvg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bobSame.Score+1e-9, boaSame.Score)
		assert.InDelta(t, bobSame.Score, boaSame.Score, 1e-9)
	}
}

func TestEvaluate_IdenticalEnsemblesScoreOne(t *testing.T) {
	f := newFixture(4)
	for _, policy := range Policies {
		refs := structure.Ensemble{f.refs[0]}
		res, err := NewEvaluator().Evaluate(context.Background(), refs, refs, policy)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, res.Score, 1e-9, string(policy))
	}
}

func TestEvaluate_FailuresScoreZero(t *testing.T) {
	f := newFixture(5)
	short := structure.Ensemble{structure.SingleChain(synthetic.Helix(10))}
	preds := append(structure.Ensemble{}, short...)
	preds = append(preds, f.preds[1])

	res, err := NewEvaluator().Evaluate(context.Background(), preds, f.refs, BestOfBest)
	require.NoError(t, err)
	for j := range 3 {
		assert.False(t, res.Cells[0][j].OK())
		assert.ErrorIs(t, res.Cells[0][j].Err, structure.ErrShapeMismatch)
		assert.Equal(t, 0.0, res.Matrix.At(0, j))
		assert.True(t, res.Cells[1][j].OK())
	}
	assert.Equal(t, 1, res.BestPred)

	res, err = NewEvaluator().Evaluate(context.Background(), short, f.refs, AvgOfBest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
}

func TestEvaluate_Cancelled(t *testing.T) {
	f := newFixture(6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewEvaluator().Evaluate(ctx, f.preds, f.refs, BestOfBest)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Score)
	assert.ErrorIs(t, res.Cells[2][2].Err, context.Canceled)
}

func TestEvaluate_Padding(t *testing.T) {
	f := newFixture(7)

	t.Run("repeat_first fills slots without changing best_of_best", func(t *testing.T) {
		plain, err := NewEvaluator().Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
		require.NoError(t, err)
		padded, err := NewEvaluator(WithPadding(5, PadRepeatFirst)).Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
		require.NoError(t, err)

		assert.Equal(t, []int{0, 1, 2, 0, 0}, padded.Slots)
		r, _ := padded.Matrix.Dims()
		assert.Equal(t, 5, r)
		assert.Equal(t, plain.Score, padded.Score)
	})

	t.Run("repeat_best repeats the strongest prediction", func(t *testing.T) {
		res, err := NewEvaluator(WithPadding(5, PadRepeatBest)).Evaluate(context.Background(), f.preds, f.refs, AvgOfBest)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 1, 1}, res.Slots)
	})

	t.Run("truncation drops trailing predictions", func(t *testing.T) {
		res, err := NewEvaluator(WithPadding(1, PadRepeatFirst)).Evaluate(context.Background(), f.preds, f.refs, BestOfAvg)
		require.NoError(t, err)
		assert.Equal(t, []int{0}, res.Slots)
		assert.Len(t, res.PredScores, 1)
	})
}

func TestEvaluate_Errors(t *testing.T) {
	f := newFixture(8)
	e := NewEvaluator()

	_, err := e.Evaluate(context.Background(), f.preds, f.refs, Policy("median"))
	var unknown *UnknownPolicyError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "median", unknown.Name)

	_, err = e.EvaluateNamed(context.Background(), f.preds, f.refs, "nope")
	assert.ErrorIs(t, err, ErrUnknownPolicy)

	_, err = e.Evaluate(context.Background(), nil, f.refs, BestOfBest)
	assert.ErrorIs(t, err, ErrEmptyEnsemble)

	_, err = e.Evaluate(context.Background(), f.preds, nil, AvgOfBest)
	var empty *EmptyEnsembleError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "reference", empty.Side)

	_, err = NewEvaluator(WithNormalization("median")).Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
	assert.ErrorIs(t, err, scoring.ErrUnknownNormalization)

	mixed := structure.Ensemble{f.refs[0], structure.SingleChain(synthetic.Helix(10))}
	_, err = e.Evaluate(context.Background(), f.preds, mixed, BestOfAvg)
	assert.ErrorIs(t, err, structure.ErrShapeMismatch)
}

func TestEvaluateSingle(t *testing.T) {
	f := newFixture(9)
	e := NewEvaluator(WithWorkers(2))

	res, err := e.EvaluateSingle(context.Background(), f.preds[1], f.refs)
	require.NoError(t, err)
	require.Len(t, res.Scores, 3)
	assert.Equal(t, res.Scores[res.BestRef], res.Best)
	assert.GreaterOrEqual(t, res.Best, res.Avg)
	assert.GreaterOrEqual(t, res.Avg, res.Worst)
	assert.Positive(t, res.Std)

	same := structure.Ensemble{f.refs[0], f.refs[0]}
	res, err = e.EvaluateSingle(context.Background(), f.refs[0], same)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Best, 1e-9)
	assert.InDelta(t, 1.0, res.Worst, 1e-9)
	assert.InDelta(t, 0, res.Std, 1e-9)

	two := structure.Ensemble{f.refs[0], f.refs[2]}
	res, err = e.EvaluateSingle(context.Background(), f.refs[0], two)
	require.NoError(t, err)
	assert.InDelta(t, (res.Best-res.Worst)/2, res.Std, 1e-12, "population standard deviation")

	_, err = e.EvaluateSingle(context.Background(), f.refs[0], nil)
	assert.ErrorIs(t, err, ErrEmptyEnsemble)
}

func TestParsePolicy(t *testing.T) {
	for _, p := range Policies {
		got, err := ParsePolicy(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePolicy("")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func BenchmarkEvaluate(b *testing.B) {
	rng := synthetic.NewRand(1)
	truth := synthetic.Helix(100)
	var preds, refs structure.Ensemble
	for range 5 {
		preds = append(preds, structure.SingleChain(synthetic.Perturb(truth, 1, rng)))
	}
	for range 40 {
		refs = append(refs, structure.SingleChain(synthetic.Perturb(truth, 1, rng)))
	}
	e := NewEvaluator()
	ctx := context.Background()
	for b.Loop() {
		_, _ = e.Evaluate(ctx, preds, refs, AvgOfBest)
	}
}
