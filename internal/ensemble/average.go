package ensemble

import (
	"fmt"

	"github.com/tensorplex-labs/tmscore/internal/structure"
)

// AverageStructure is the coordinate-wise mean of the members, chain by
// chain. Every member must have the first member's chain labels and chain
// lengths. Averaging ignores rigid geometry, so flexible regions collapse
// toward their mean.
func AverageStructure(members structure.Ensemble) (structure.Structure, error) {
	if len(members) == 0 {
		return structure.Structure{}, &EmptyEnsembleError{Side: "reference"}
	}
	first := members[0]
	labels := first.Labels()
	sums := make([]structure.PointSet, len(labels))
	for c, label := range labels {
		ps, _ := first.Chain(label)
		sums[c] = make(structure.PointSet, len(ps))
	}

	for m, s := range members {
		if s.Len() != len(labels) {
			return structure.Structure{}, fmt.Errorf("member %d has %d chains, want %d: %w",
				m, s.Len(), len(labels), structure.ErrShapeMismatch)
		}
		for c, label := range labels {
			ps, ok := s.Chain(label)
			if !ok {
				return structure.Structure{}, fmt.Errorf("member %d has no chain %q: %w", m, label, structure.ErrShapeMismatch)
			}
			if len(ps) != len(sums[c]) {
				return structure.Structure{}, fmt.Errorf("member %d chain %q: %w", m, label,
					&structure.ShapeMismatchError{PredLen: len(ps), TrueLen: len(sums[c])})
			}
			for i, p := range ps {
				sums[c][i][0] += p[0]
				sums[c][i][1] += p[1]
				sums[c][i][2] += p[2]
			}
		}
	}

	n := float64(len(members))
	chains := make([]structure.Chain, len(labels))
	for c, label := range labels {
		for i := range sums[c] {
			sums[c][i] = structure.Point{sums[c][i][0] / n, sums[c][i][1] / n, sums[c][i][2] / n}
		}
		chains[c] = structure.Chain{Label: label, Points: sums[c]}
	}
	return structure.NewStructure(chains...)
}
