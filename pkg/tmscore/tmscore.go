// Package tmscore is the public entry point of the scoring engine: rigid
// superposition, TM-Score, assignment-based multi-chain scoring and
// ensemble evaluation.
//
//	score, err := tmscore.Score(pred, ref, tmscore.NormalizeTarget)
//	res, err := tmscore.EvaluateEnsemble(ctx, preds, refs, tmscore.BestOfBest)
package tmscore

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/tmscore/internal/ensemble"
	"github.com/tensorplex-labs/tmscore/internal/matching"
	"github.com/tensorplex-labs/tmscore/internal/scoring"
	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/superpose"
)

type (
	Point                     = structure.Point
	PointSet                  = structure.PointSet
	Chain                     = structure.Chain
	Structure                 = structure.Structure
	Ensemble                  = structure.Ensemble
	Record                    = structure.Record
	CopySelection             = structure.CopySelection
	AssembleOptions           = structure.AssembleOptions
	Normalization             = scoring.Normalization
	Detail                    = scoring.Detail
	Cell                      = scoring.Cell
	Alignment                 = superpose.Alignment
	MultiChainResult          = matching.Result
	Policy                    = ensemble.Policy
	PadPolicy                 = ensemble.PadPolicy
	EnsembleResult            = ensemble.Result
	SingleResult              = ensemble.SingleResult
	EvaluatorOption           = ensemble.EvaluatorOption
	ShapeMismatchError        = structure.ShapeMismatchError
	EmptyStructureError       = structure.EmptyStructureError
	MissingTargetError        = structure.MissingTargetError
	DuplicateResidueError     = structure.DuplicateResidueError
	NoFeasibleAssignmentError = matching.NoFeasibleAssignmentError
	UnknownPolicyError        = ensemble.UnknownPolicyError
)

const (
	NormalizeTarget  = scoring.NormalizeTarget
	NormalizePred    = scoring.NormalizePred
	NormalizeAverage = scoring.NormalizeAverage

	BestOfBest = ensemble.BestOfBest
	AvgOfBest  = ensemble.AvgOfBest
	BestOfAvg  = ensemble.BestOfAvg

	PadNone        = ensemble.PadNone
	PadRepeatFirst = ensemble.PadRepeatFirst
	PadRepeatBest  = ensemble.PadRepeatBest
)

var (
	ErrShapeMismatch        = structure.ErrShapeMismatch
	ErrEmptyStructure       = structure.ErrEmptyStructure
	ErrMissingTarget        = structure.ErrMissingTarget
	ErrDuplicateResidue     = structure.ErrDuplicateResidue
	ErrNoFeasibleAssignment = matching.ErrNoFeasibleAssignment
	ErrUnknownPolicy        = ensemble.ErrUnknownPolicy
	ErrSVDFailed            = superpose.ErrSVDFailed

	NewStructure = structure.NewStructure
	SingleChain  = structure.SingleChain
	Assemble     = structure.Assemble
	ParsePolicy  = ensemble.ParsePolicy

	WithNormalization = ensemble.WithNormalization
	WithWorkers       = ensemble.WithWorkers
	WithPadding       = ensemble.WithPadding
)

// Superpose aligns pred onto truth and returns the rotation, translation and
// aligned points.
func Superpose(pred, truth PointSet) (*mat.Dense, Point, PointSet, error) {
	return superpose.Superpose(pred, truth)
}

// Score returns the TM-Score of pred against truth.
func Score(pred, truth PointSet, norm Normalization) (float64, error) {
	return scoring.Score(pred, truth, norm)
}

// ScoreDetail returns the TM-Score with alignment and distance statistics.
func ScoreDetail(pred, truth PointSet, norm Normalization) (Detail, error) {
	return scoring.ScoreDetail(pred, truth, norm)
}

// ScoreMultiChain returns the length-weighted TM-Score over the optimal
// chain assignment.
func ScoreMultiChain(ctx context.Context, pred, truth Structure, norm Normalization) (float64, error) {
	res, err := ScoreMultiChainDetail(ctx, pred, truth, norm)
	if err != nil {
		return 0, err
	}
	return res.Score, nil
}

// ScoreMultiChainDetail is ScoreMultiChain with the matched pairs and score
// matrix.
func ScoreMultiChainDetail(ctx context.Context, pred, truth Structure, norm Normalization) (MultiChainResult, error) {
	return matching.ScoreMultiChain(ctx, pred, truth, matching.Options{Normalization: norm})
}

// EvaluateEnsemble scores preds against refs and reduces under policy.
func EvaluateEnsemble(ctx context.Context, preds, refs Ensemble, policy Policy, opts ...EvaluatorOption) (EnsembleResult, error) {
	return ensemble.NewEvaluator(opts...).Evaluate(ctx, preds, refs, policy)
}

// EvaluateSingle summarises one prediction against a reference ensemble.
func EvaluateSingle(ctx context.Context, pred Structure, refs Ensemble, opts ...EvaluatorOption) (SingleResult, error) {
	return ensemble.NewEvaluator(opts...).EvaluateSingle(ctx, pred, refs)
}
