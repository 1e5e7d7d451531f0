package ensemble

import (
	"errors"
	"fmt"
	"strings"
)

// Policy reduces a prediction x reference score matrix to one score.
type Policy string

const (
	// BestOfBest is the maximum over every (prediction, reference) pair.
	BestOfBest Policy = "best_of_best"
	// AvgOfBest averages, over references, the best prediction score.
	AvgOfBest Policy = "avg_of_best"
	// BestOfAvg scores each prediction against the coordinate-wise mean
	// reference and keeps the best.
	BestOfAvg Policy = "best_of_avg"
)

var Policies = []Policy{BestOfBest, AvgOfBest, BestOfAvg}

var (
	ErrUnknownPolicy = errors.New("unknown ensemble policy")
	ErrEmptyEnsemble = errors.New("empty ensemble")
)

type UnknownPolicyError struct {
	Name string
}

func (e *UnknownPolicyError) Error() string {
	names := make([]string, len(Policies))
	for i, p := range Policies {
		names[i] = string(p)
	}
	return fmt.Sprintf("unknown ensemble policy %q (want one of %s)", e.Name, strings.Join(names, ", "))
}

func (e *UnknownPolicyError) Is(target error) bool { return target == ErrUnknownPolicy }

type EmptyEnsembleError struct {
	Side string
}

func (e *EmptyEnsembleError) Error() string {
	return fmt.Sprintf("%s ensemble has no members", e.Side)
}

func (e *EmptyEnsembleError) Is(target error) bool { return target == ErrEmptyEnsemble }

// ParsePolicy maps a policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == name {
			return p, nil
		}
	}
	return "", &UnknownPolicyError{Name: name}
}

func (p Policy) valid() bool {
	_, err := ParsePolicy(string(p))
	return err == nil
}
