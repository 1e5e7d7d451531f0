package ensemble

import (
	"errors"
	"fmt"

	"github.com/tensorplex-labs/tmscore/internal/structure"
)

// PadPolicy fills a prediction ensemble up to a fixed slot count. Padding
// changes avg_of_best and best_of_avg aggregates only through which members
// are present, so it is never applied unless configured.
type PadPolicy string

const (
	PadNone PadPolicy = "none"
	// PadRepeatFirst fills empty slots with the first member.
	PadRepeatFirst PadPolicy = "repeat_first"
	// PadRepeatBest fills empty slots with the highest scoring member.
	PadRepeatBest PadPolicy = "repeat_best"
)

var ErrUnknownPadPolicy = errors.New("unknown pad policy")

func ParsePadPolicy(name string) (PadPolicy, error) {
	switch PadPolicy(name) {
	case "", PadNone:
		return PadNone, nil
	case PadRepeatFirst, PadRepeatBest:
		return PadPolicy(name), nil
	}
	return "", fmt.Errorf("%w %q (want none, repeat_first or repeat_best)", ErrUnknownPadPolicy, name)
}

// Slots returns, for each of size slots, the index of the member among n
// that fills it. Members beyond size are dropped; best is the member
// repeated under PadRepeatBest. PadNone keeps all n members.
func Slots(n, size int, policy PadPolicy, best int) ([]int, error) {
	if n == 0 {
		return nil, &EmptyEnsembleError{Side: "prediction"}
	}
	if policy == PadNone || policy == "" || size <= 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	fill := 0
	switch policy {
	case PadRepeatFirst:
	case PadRepeatBest:
		if best < 0 || best >= n {
			return nil, fmt.Errorf("best member %d out of range [0, %d)", best, n)
		}
		fill = best
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownPadPolicy, policy)
	}

	out := make([]int, size)
	for i := range out {
		if i < n {
			out[i] = i
		} else {
			out[i] = fill
		}
	}
	return out, nil
}

// Pad applies Slots to an ensemble.
func Pad(members structure.Ensemble, size int, policy PadPolicy, best int) (structure.Ensemble, error) {
	slots, err := Slots(len(members), size, policy, best)
	if err != nil {
		return nil, err
	}
	out := make(structure.Ensemble, len(slots))
	for i, src := range slots {
		out[i] = members[src]
	}
	return out, nil
}
