package scoring

import (
	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/utils/logger"
)

type Scorer struct {
	Normalization Normalization
}

type ScorerOption func(*Scorer)

func WithNormalization(norm Normalization) ScorerOption {
	return func(s *Scorer) {
		s.Normalization = norm
	}
}

func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		Normalization: NormalizeTarget,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Scorer) Score(pred, truth structure.PointSet) (float64, error) {
	return Score(pred, truth, s.Normalization)
}

func (s *Scorer) Detail(pred, truth structure.PointSet) (Detail, error) {
	d, err := ScoreDetail(pred, truth, s.Normalization)
	if err != nil {
		return Detail{}, err
	}
	logger.Sugar().Debugw("Scored pair",
		"normalization", s.Normalization,
		"residues", len(truth),
		"tmScore", d.Score,
		"rmsd", d.RMSD,
		"d0", d.D0,
	)
	return d, nil
}
