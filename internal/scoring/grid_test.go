package scoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGrid(t *testing.T) {
	g := BuildGrid(context.Background(), 3, 4, 2, func(_ context.Context, i, j int) (float64, error) {
		return float64(i*10 + j), nil
	})

	require.Equal(t, 3, g.Rows)
	require.Equal(t, 4, g.Cols)
	assert.Empty(t, g.Failures())

	m := g.Matrix()
	for i := range 3 {
		for j := range 4 {
			assert.Equal(t, float64(i*10+j), m.At(i, j))
		}
	}
}

func TestBuildGrid_TagsFailures(t *testing.T) {
	boom := errors.New("boom")
	g := BuildGrid(context.Background(), 2, 2, 0, func(_ context.Context, i, j int) (float64, error) {
		switch {
		case i == 0 && j == 1:
			return 0.9, boom
		case i == 1 && j == 0:
			panic("bad cell")
		}
		return 0.5, nil
	})

	assert.True(t, g.Cells[0][0].OK())
	assert.False(t, g.Cells[0][1].OK())
	assert.ErrorIs(t, g.Cells[0][1].Err, boom)
	assert.Equal(t, 0.0, g.Cells[0][1].Value(), "failed cells read as zero")
	assert.ErrorContains(t, g.Cells[1][0].Err, "panicked")

	failures := g.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, CellFailure{Row: 0, Col: 1, Err: boom}, failures[0])
	assert.Equal(t, 1, failures[1].Row)

	m := g.Matrix()
	assert.Equal(t, 0.0, m.At(0, 1))
	assert.Equal(t, 0.5, m.At(1, 1))
}

func TestBuildGrid_GenuineZeroIsNotFailure(t *testing.T) {
	g := BuildGrid(context.Background(), 1, 1, 1, func(context.Context, int, int) (float64, error) {
		return 0, nil
	})
	assert.True(t, g.Cells[0][0].OK())
	assert.Empty(t, g.Failures())
}

func TestBuildGrid_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	g := BuildGrid(ctx, 2, 3, 1, func(context.Context, int, int) (float64, error) {
		calls.Add(1)
		return 1, nil
	})
	assert.Zero(t, calls.Load())
	assert.Len(t, g.Failures(), 6)
	assert.ErrorIs(t, g.Cells[1][2].Err, context.Canceled)
}

func TestBuildGrid_RespectsWorkerLimit(t *testing.T) {
	var active, peak atomic.Int32
	BuildGrid(context.Background(), 8, 8, 3, func(context.Context, int, int) (float64, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		active.Add(-1)
		return 0, nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestGrid_EmptyMatrix(t *testing.T) {
	g := BuildGrid(context.Background(), 0, 5, 1, nil)
	assert.True(t, g.Matrix().IsEmpty())
}

func TestWorkers(t *testing.T) {
	assert.Equal(t, 4, Workers(4))
	assert.Positive(t, Workers(0))
	assert.Positive(t, Workers(-1))
}
