package structure

import (
	"errors"
	"fmt"
)

var (
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrEmptyStructure   = errors.New("empty structure")
	ErrMissingTarget    = errors.New("missing target")
	ErrDuplicateResidue = errors.New("duplicate residue")
)

// ShapeMismatchError reports two point sets that cannot be compared residue
// by residue.
type ShapeMismatchError struct {
	PredLen int
	TrueLen int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: pred has %d points, true has %d", e.PredLen, e.TrueLen)
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// EmptyStructureError reports a zero-length point set.
type EmptyStructureError struct {
	What string
}

func (e *EmptyStructureError) Error() string {
	if e.What == "" {
		return "empty structure"
	}
	return fmt.Sprintf("empty structure: %s", e.What)
}

func (e *EmptyStructureError) Is(target error) bool { return target == ErrEmptyStructure }

// MissingTargetError reports a target identifier with no label rows.
type MissingTargetError struct {
	Target string
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("no records for target %q", e.Target)
}

func (e *MissingTargetError) Is(target error) bool { return target == ErrMissingTarget }

// DuplicateResidueError reports two rows for the same residue of one chain
// copy. It is never resolved automatically.
type DuplicateResidueError struct {
	Target string
	Chain  string
	Copy   int
	ResID  int
}

func (e *DuplicateResidueError) Error() string {
	return fmt.Sprintf("target %q chain %q copy %d: duplicate residue %d", e.Target, e.Chain, e.Copy, e.ResID)
}

func (e *DuplicateResidueError) Is(target error) bool { return target == ErrDuplicateResidue }

// CheckPair validates that two point sets can be superposed.
func CheckPair(pred, truth PointSet) error {
	if len(pred) != len(truth) {
		return &ShapeMismatchError{PredLen: len(pred), TrueLen: len(truth)}
	}
	if len(pred) == 0 {
		return &EmptyStructureError{What: "cannot compare zero-length point sets"}
	}
	return nil
}
