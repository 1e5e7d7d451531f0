// Package matching pairs the chains of two multi-chain structures so that
// the aggregate TM-Score is maximal.
package matching

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var ErrInvalidCost = errors.New("invalid cost matrix")

// LinearSumAssignment solves the rectangular minimum-cost assignment problem
// on cost, matching min(rows, cols) pairs. rowInd is ascending and
// colInd[k] is the column assigned to rowInd[k].
//
// It is the shortest augmenting path form of the Hungarian algorithm with
// row and column potentials, O(n^2 m) for n <= m.
func LinearSumAssignment(cost mat.Matrix) (rowInd, colInd []int, err error) {
	r, c := cost.Dims()
	if r == 0 || c == 0 {
		return nil, nil, nil
	}
	for i := range r {
		for j := range c {
			if v := cost.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, fmt.Errorf("cost[%d][%d] = %v: %w", i, j, v, ErrInvalidCost)
			}
		}
	}

	a := cost
	transposed := r > c
	if transposed {
		a = cost.T()
		r, c = c, r
	}

	n, m := r, c
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	p := make([]int, m+1)   // p[j]: row (1-based) assigned to column j
	way := make([]int, m+1) // previous column on the augmenting path
	minv := make([]float64, m+1)
	used := make([]bool, m+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := a.At(i0-1, j-1) - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	type pair struct{ row, col int }
	pairs := make([]pair, 0, n)
	for j := 1; j <= m; j++ {
		if p[j] == 0 {
			continue
		}
		if transposed {
			pairs = append(pairs, pair{row: j - 1, col: p[j] - 1})
		} else {
			pairs = append(pairs, pair{row: p[j] - 1, col: j - 1})
		}
	}
	sort.Slice(pairs, func(x, y int) bool { return pairs[x].row < pairs[y].row })

	rowInd = make([]int, len(pairs))
	colInd = make([]int, len(pairs))
	for k, pr := range pairs {
		rowInd[k], colInd[k] = pr.row, pr.col
	}
	return rowInd, colInd, nil
}

// AssignmentCost sums cost over the given assignment.
func AssignmentCost(cost mat.Matrix, rowInd, colInd []int) float64 {
	var total float64
	for k := range rowInd {
		total += cost.At(rowInd[k], colInd[k])
	}
	return total
}
