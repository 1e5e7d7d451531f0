// Package scoring computes TM-Scores of superposed point sets and builds
// score grids over pairs of structures.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/superpose"
)

// D0 is the length-dependent distance scale.
func D0(lNorm float64) float64 {
	if lNorm > D0Offset {
		return D0Scale*math.Cbrt(lNorm-D0Offset) - D0Shift
	}
	return D0Floor
}

// TMScore reduces per-residue distances to (1/L) * sum 1/(1+(d_i/d0)^2).
func TMScore(distances []float64, lNorm float64) float64 {
	d0 := D0(lNorm)
	var sum float64
	for _, d := range distances {
		r := d / d0
		sum += 1 / (1 + r*r)
	}
	return sum / lNorm
}

// Score superposes pred onto truth and returns the TM-Score. The score is
// not symmetric in its arguments unless norm is NormalizeAverage.
func Score(pred, truth structure.PointSet, norm Normalization) (float64, error) {
	d, err := ScoreDetail(pred, truth, norm)
	if err != nil {
		return 0, err
	}
	return d.Score, nil
}

// ScoreDetail is Score with the alignment and distance statistics.
func ScoreDetail(pred, truth structure.PointSet, norm Normalization) (Detail, error) {
	lNorm, err := norm.Length(len(pred), len(truth))
	if err != nil {
		return Detail{}, err
	}
	a, err := superpose.Kabsch(pred, truth)
	if err != nil {
		return Detail{}, err
	}

	return Detail{
		Score:        TMScore(a.Distances, lNorm),
		RMSD:         a.RMSD(),
		D0:           D0(lNorm),
		LNorm:        lNorm,
		MinDistance:  floats.Min(a.Distances),
		MeanDistance: stat.Mean(a.Distances, nil),
		MaxDistance:  floats.Max(a.Distances),
		Rotation:     a.Rotation,
		Translation:  a.Translation,
		Aligned:      a.Aligned,
		Distances:    a.Distances,
	}, nil
}
