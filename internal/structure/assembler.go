package structure

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	DefaultChain = "A"
	DefaultCopy  = 1
)

// Record is one per-residue label row. Models[k] holds the coordinates of
// ensemble member k+1.
type Record struct {
	ID      string
	Target  string
	ResName string
	ResID   int
	Chain   string
	Copy    int
	Models  []Point
}

// SplitID splits a composite "<target>_<resid>" identifier. Targets may
// contain underscores, so the split happens at the last one.
func SplitID(id string) (target, resid string, err error) {
	idx := strings.LastIndex(id, "_")
	if idx <= 0 || idx == len(id)-1 {
		return "", "", fmt.Errorf("malformed record id %q", id)
	}
	return id[:idx], id[idx+1:], nil
}

// CopySelection selects which copies of a chain are kept. The zero value
// keeps copy 1.
type CopySelection struct {
	All   bool
	Index int
}

func DefaultCopySelection() CopySelection { return CopySelection{Index: DefaultCopy} }
func AllCopies() CopySelection            { return CopySelection{All: true} }
func CopyIndex(n int) CopySelection       { return CopySelection{Index: n} }

func (c CopySelection) keeps(copyIdx int) bool {
	if c.All {
		return true
	}
	want := c.Index
	if want == 0 {
		want = DefaultCopy
	}
	return copyIdx == want
}

func (c CopySelection) String() string {
	if c.All {
		return "all"
	}
	if c.Index == 0 {
		return fmt.Sprint(DefaultCopy)
	}
	return fmt.Sprint(c.Index)
}

// AssembleOptions configures Assemble.
type AssembleOptions struct {
	Copies CopySelection
	// Models caps the number of ensemble members extracted; 0 takes every
	// member present in all rows.
	Models int
}

type groupKey struct {
	chain string
	copy  int
}

// Assemble builds one Structure per ensemble member for target. Rows are
// grouped by (chain, copy) and sorted by residue id; the sort order is the
// residue correspondence used downstream.
func Assemble(records []Record, target string, opts AssembleOptions) (Ensemble, error) {
	var matched []Record
	for _, r := range records {
		if r.Target == target {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, &MissingTargetError{Target: target}
	}

	var (
		order  []groupKey
		groups = make(map[groupKey][]Record)
		copies = make(map[string]map[int]struct{})
	)
	available := -1
	for _, r := range matched {
		if !opts.Copies.keeps(r.Copy) {
			continue
		}
		k := groupKey{chain: r.Chain, copy: r.Copy}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
		if copies[r.Chain] == nil {
			copies[r.Chain] = make(map[int]struct{})
		}
		copies[r.Chain][r.Copy] = struct{}{}
		if available < 0 || len(r.Models) < available {
			available = len(r.Models)
		}
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("target %q: no rows for copy %s: %w", target, opts.Copies, &MissingTargetError{Target: target})
	}
	if available <= 0 {
		return nil, fmt.Errorf("target %q: rows carry no coordinates", target)
	}

	members := available
	if opts.Models > 0 && opts.Models < members {
		members = opts.Models
	}

	sorted := make([][]Record, len(order))
	for gi, k := range order {
		rows := groups[k]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].ResID < rows[j].ResID })
		for i := 1; i < len(rows); i++ {
			if rows[i].ResID == rows[i-1].ResID {
				return nil, &DuplicateResidueError{Target: target, Chain: k.chain, Copy: k.copy, ResID: rows[i].ResID}
			}
		}
		sorted[gi] = rows
	}

	ensemble := make(Ensemble, 0, members)
	for m := range members {
		chains := make([]Chain, len(order))
		for gi, k := range order {
			ps := make(PointSet, len(sorted[gi]))
			for i, r := range sorted[gi] {
				ps[i] = r.Models[m]
			}
			chains[gi] = Chain{Label: chainLabel(k, len(copies[k.chain]) > 1), Points: ps}
		}
		s, err := NewStructure(chains...)
		if err != nil {
			return nil, fmt.Errorf("target %q model %d: %w", target, m+1, err)
		}
		ensemble = append(ensemble, s)
	}

	log.Debug().
		Str("target", target).
		Int("chains", len(order)).
		Int("members", len(ensemble)).
		Str("copies", opts.Copies.String()).
		Msg("assembled target")
	return ensemble, nil
}

// AssembleByChain returns the first ensemble member of target.
func AssembleByChain(records []Record, target string, copies CopySelection) (Structure, error) {
	e, err := Assemble(records, target, AssembleOptions{Copies: copies, Models: 1})
	if err != nil {
		return Structure{}, err
	}
	return e[0], nil
}

// Targets lists distinct targets in first-seen order.
func Targets(records []Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.Target]; ok {
			continue
		}
		seen[r.Target] = struct{}{}
		out = append(out, r.Target)
	}
	return out
}

func chainLabel(k groupKey, multiCopy bool) string {
	if multiCopy {
		return fmt.Sprintf("%s:%d", k.chain, k.copy)
	}
	return k.chain
}
