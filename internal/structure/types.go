// Package structure holds the point-set model shared by the scoring packages
// and the assembler that builds it from per-residue label rows.
package structure

import (
	"fmt"
	"slices"
)

// Point is one residue position in Ångströms.
type Point [3]float64

// PointSet is an ordered list of residue positions. Index order is the
// residue correspondence used by every comparison.
type PointSet []Point

func (ps PointSet) Len() int { return len(ps) }

// Clone returns an independent copy.
func (ps PointSet) Clone() PointSet {
	return slices.Clone(ps)
}

// Centroid returns the mean position. It is the origin for an empty set.
func (ps PointSet) Centroid() Point {
	var c Point
	if len(ps) == 0 {
		return c
	}
	for _, p := range ps {
		c[0] += p[0]
		c[1] += p[1]
		c[2] += p[2]
	}
	n := float64(len(ps))
	return Point{c[0] / n, c[1] / n, c[2] / n}
}

// Chain is a labelled point set.
type Chain struct {
	Label  string   `json:"label"`
	Points PointSet `json:"points"`
}

// Structure maps chain labels to point sets, keeping insertion order so that
// chain indices in score matrices are unambiguous. A Structure is never
// mutated after construction.
type Structure struct {
	labels []string
	chains map[string]PointSet
}

// NewStructure builds a Structure from chains in the given order. Labels must
// be unique and non-empty.
func NewStructure(chains ...Chain) (Structure, error) {
	s := Structure{
		labels: make([]string, 0, len(chains)),
		chains: make(map[string]PointSet, len(chains)),
	}
	for _, c := range chains {
		if c.Label == "" {
			return Structure{}, fmt.Errorf("chain label cannot be empty")
		}
		if _, exists := s.chains[c.Label]; exists {
			return Structure{}, fmt.Errorf("duplicate chain label %q", c.Label)
		}
		s.labels = append(s.labels, c.Label)
		s.chains[c.Label] = c.Points.Clone()
	}
	return s, nil
}

// SingleChain wraps one point set as a one-chain Structure labelled "A".
func SingleChain(points PointSet) Structure {
	s, _ := NewStructure(Chain{Label: DefaultChain, Points: points})
	return s
}

// Len is the number of chains.
func (s Structure) Len() int { return len(s.labels) }

// Labels returns the chain labels in order.
func (s Structure) Labels() []string { return slices.Clone(s.labels) }

// Chain returns the points of the labelled chain.
func (s Structure) Chain(label string) (PointSet, bool) {
	ps, ok := s.chains[label]
	return ps, ok
}

// At returns the i-th chain in insertion order.
func (s Structure) At(i int) Chain {
	label := s.labels[i]
	return Chain{Label: label, Points: s.chains[label]}
}

// Chains returns every chain in order.
func (s Structure) Chains() []Chain {
	out := make([]Chain, len(s.labels))
	for i := range s.labels {
		out[i] = s.At(i)
	}
	return out
}

// Residues is the total residue count over all chains.
func (s Structure) Residues() int {
	n := 0
	for _, ps := range s.chains {
		n += len(ps)
	}
	return n
}

// Ensemble is an ordered list of alternative models of one target.
type Ensemble []Structure
