package scoring

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/tmscore/internal/structure"
)

// Normalization selects the length L_norm used for d0 and the final average.
type Normalization string

const (
	NormalizeTarget  Normalization = "target"
	NormalizePred    Normalization = "pred"
	NormalizeAverage Normalization = "average"
)

var ErrUnknownNormalization = errors.New("unknown normalization")

type UnknownNormalizationError struct {
	Name string
}

func (e *UnknownNormalizationError) Error() string {
	return fmt.Sprintf("unknown normalization %q (want target, pred or average)", e.Name)
}

func (e *UnknownNormalizationError) Is(target error) bool { return target == ErrUnknownNormalization }

// ParseNormalization maps a policy name to a Normalization. The empty string
// selects NormalizeTarget.
func ParseNormalization(name string) (Normalization, error) {
	switch Normalization(name) {
	case "", NormalizeTarget:
		return NormalizeTarget, nil
	case NormalizePred, NormalizeAverage:
		return Normalization(name), nil
	}
	return "", &UnknownNormalizationError{Name: name}
}

// Length returns L_norm for the given prediction and reference lengths.
func (n Normalization) Length(predLen, trueLen int) (float64, error) {
	switch n {
	case "", NormalizeTarget:
		return float64(trueLen), nil
	case NormalizePred:
		return float64(predLen), nil
	case NormalizeAverage:
		return float64(predLen+trueLen) / 2, nil
	}
	return 0, &UnknownNormalizationError{Name: string(n)}
}

// Detail is the full TM-Score report for one pair.
type Detail struct {
	Score        float64            `json:"tm_score"`
	RMSD         float64            `json:"rmsd"`
	D0           float64            `json:"d0"`
	LNorm        float64            `json:"l_norm"`
	MinDistance  float64            `json:"min_distance"`
	MeanDistance float64            `json:"mean_distance"`
	MaxDistance  float64            `json:"max_distance"`
	Rotation     *mat.Dense         `json:"-"`
	Translation  structure.Point    `json:"translation"`
	Aligned      structure.PointSet `json:"aligned"`
	Distances    []float64          `json:"distances"`
}
