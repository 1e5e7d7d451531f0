package api

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/tmscore/internal/matching"
	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
)

func (p Points) PointSet() (structure.PointSet, error) {
	ps := make(structure.PointSet, len(p))
	for i, xyz := range p {
		if len(xyz) != 3 {
			return nil, fmt.Errorf("point %d has %d coordinates, want 3: %w", i, len(xyz), structure.ErrShapeMismatch)
		}
		ps[i] = structure.Point(xyz)
	}
	return ps, nil
}

func wirePair(pred, truth Points) (structure.PointSet, structure.PointSet, error) {
	p, err := pred.PointSet()
	if err != nil {
		return nil, nil, fmt.Errorf("pred: %w", err)
	}
	t, err := truth.PointSet()
	if err != nil {
		return nil, nil, fmt.Errorf("true: %w", err)
	}
	return p, t, nil
}

func FromPointSet(ps structure.PointSet) Points {
	out := make(Points, len(ps))
	for i, pt := range ps {
		out[i] = []float64{pt[0], pt[1], pt[2]}
	}
	return out
}

func (m ModelPayload) Structure() (structure.Structure, error) {
	chains := make([]structure.Chain, len(m))
	for i, c := range m {
		label := c.Label
		if label == "" && len(m) == 1 {
			label = structure.DefaultChain
		}
		ps, err := c.Points.PointSet()
		if err != nil {
			return structure.Structure{}, fmt.Errorf("chain %q: %w", c.Label, err)
		}
		chains[i] = structure.Chain{Label: label, Points: ps}
	}
	return structure.NewStructure(chains...)
}

func FromStructure(s structure.Structure) ModelPayload {
	out := make(ModelPayload, s.Len())
	for i, c := range s.Chains() {
		out[i] = ChainPayload{Label: c.Label, Points: FromPointSet(c.Points)}
	}
	return out
}

func toEnsemble(models []ModelPayload, side string) (structure.Ensemble, error) {
	e := make(structure.Ensemble, len(models))
	for i, m := range models {
		s, err := m.Structure()
		if err != nil {
			return nil, fmt.Errorf("%s model %d: %w", side, i, err)
		}
		e[i] = s
	}
	return e, nil
}

func rotation3(m *mat.Dense) [3][3]float64 {
	var out [3][3]float64
	if m == nil {
		return out
	}
	for i := range 3 {
		for j := range 3 {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

func rows(m *mat.Dense) [][]float64 {
	if m == nil || m.IsEmpty() {
		return nil
	}
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range r {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}

func detailPayload(d scoring.Detail) *DetailPayload {
	return &DetailPayload{
		RMSD:         d.RMSD,
		D0:           d.D0,
		LNorm:        d.LNorm,
		MinDistance:  d.MinDistance,
		MeanDistance: d.MeanDistance,
		MaxDistance:  d.MaxDistance,
		Rotation:     rotation3(d.Rotation),
		Translation:  [3]float64(d.Translation),
		Aligned:      FromPointSet(d.Aligned),
		Distances:    d.Distances,
	}
}

func pairPayloads(pairs []matching.Pair) []PairPayload {
	out := make([]PairPayload, len(pairs))
	for i, p := range pairs {
		out[i] = PairPayload{Pred: p.Pred, True: p.True, Score: p.Score, Weight: p.Weight}
		if p.Err != nil {
			out[i].Error = p.Err.Error()
		}
	}
	return out
}
