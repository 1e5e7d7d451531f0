package ensemble

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/synthetic"
)

type memoryCache struct {
	mu     sync.Mutex
	scores map[string]float64
	gets   int
	hits   int
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{scores: map[string]float64{}}
}

func (m *memoryCache) GetScore(_ context.Context, key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return 0, false, m.getErr
	}
	s, ok := m.scores[key]
	if ok {
		m.hits++
	}
	return s, ok, nil
}

func (m *memoryCache) SetScore(_ context.Context, key string, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[key] = score
	return nil
}

func TestPairKey(t *testing.T) {
	a := structure.SingleChain(synthetic.Helix(10))
	b := structure.SingleChain(synthetic.Helix(11))

	assert.Equal(t, PairKey(scoring.NormalizeTarget, a, b), PairKey(scoring.NormalizeTarget, a, b))
	assert.NotEqual(t, PairKey(scoring.NormalizeTarget, a, b), PairKey(scoring.NormalizeTarget, b, a))
	assert.NotEqual(t, PairKey(scoring.NormalizeTarget, a, b), PairKey(scoring.NormalizePred, a, b))

	relabelled, err := structure.NewStructure(structure.Chain{Label: "B", Points: synthetic.Helix(10)})
	require.NoError(t, err)
	assert.NotEqual(t, PairKey(scoring.NormalizeTarget, a, b), PairKey(scoring.NormalizeTarget, relabelled, b))
	assert.Contains(t, PairKey(scoring.NormalizeAverage, a, b), "tmscore:pair:average:")
}

func TestEvaluate_WithCache(t *testing.T) {
	f := newFixture(11)
	cache := newMemoryCache()
	e := NewEvaluator(WithCache(cache))

	first, err := e.Evaluate(context.Background(), f.preds, f.refs, AvgOfBest)
	require.NoError(t, err)
	assert.Len(t, cache.scores, 9)
	assert.Zero(t, cache.hits)

	second, err := e.Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
	require.NoError(t, err)
	assert.Equal(t, 9, cache.hits)

	plain, err := NewEvaluator().Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
	require.NoError(t, err)
	assert.Equal(t, plain.Score, second.Score)
	assert.Equal(t, first.Matrix.RawMatrix().Data, second.Matrix.RawMatrix().Data)
}

func TestEvaluate_CacheFailuresFallThrough(t *testing.T) {
	f := newFixture(12)
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")

	res, err := NewEvaluator(WithCache(cache)).Evaluate(context.Background(), f.preds, f.refs, BestOfBest)
	require.NoError(t, err)
	assert.Positive(t, res.Score)
	assert.Equal(t, 9, cache.gets)
}

func TestEvaluate_FailedPairsAreNotCached(t *testing.T) {
	f := newFixture(13)
	cache := newMemoryCache()
	short := structure.Ensemble{structure.SingleChain(synthetic.Helix(10))}

	_, err := NewEvaluator(WithCache(cache)).Evaluate(context.Background(), short, f.refs, BestOfBest)
	require.NoError(t, err)
	assert.Empty(t, cache.scores)
}
