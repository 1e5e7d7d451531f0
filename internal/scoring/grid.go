package scoring

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Cell is the outcome of one pairwise computation: a score, or the reason
// it could not be computed. A failed cell is distinct from a genuine zero.
type Cell struct {
	Score float64
	Err   error
}

func Success(score float64) Cell { return Cell{Score: score} }
func Failure(err error) Cell     { return Cell{Err: err} }

func (c Cell) OK() bool { return c.Err == nil }

// Value is the score, or 0 for a failed cell.
func (c Cell) Value() float64 {
	if c.Err != nil {
		return 0
	}
	return c.Score
}

// CellFunc computes cell (i, j).
type CellFunc func(ctx context.Context, i, j int) (float64, error)

// Grid is a rows x cols table of tagged cells.
type Grid struct {
	Rows, Cols int
	Cells      [][]Cell
}

// CellFailure locates a failed cell.
type CellFailure struct {
	Row, Col int
	Err      error
}

// Workers resolves a worker count, 0 or less meaning GOMAXPROCS.
func Workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// BuildGrid evaluates fn for every (i, j) concurrently with at most workers
// goroutines. Errors and panics are kept in their cell and never cancel
// sibling cells. Cells not started before ctx is done fail with ctx.Err().
func BuildGrid(ctx context.Context, rows, cols, workers int, fn CellFunc) Grid {
	g := Grid{Rows: rows, Cols: cols, Cells: make([][]Cell, rows)}
	for i := range g.Cells {
		g.Cells[i] = make([]Cell, cols)
	}

	var eg errgroup.Group
	eg.SetLimit(Workers(workers))

	for i := range rows {
		for j := range cols {
			eg.Go(func() error {
				g.Cells[i][j] = runCell(ctx, i, j, fn)
				return nil
			})
		}
	}
	_ = eg.Wait()

	for _, f := range g.Failures() {
		log.Warn().Err(f.Err).Int("row", f.Row).Int("col", f.Col).Msg("pairwise score failed, recording 0")
	}
	return g
}

func runCell(ctx context.Context, i, j int, fn CellFunc) (cell Cell) {
	if err := ctx.Err(); err != nil {
		return Failure(err)
	}
	defer func() {
		if r := recover(); r != nil {
			cell = Failure(fmt.Errorf("cell (%d, %d) panicked: %v", i, j, r))
		}
	}()
	score, err := fn(ctx, i, j)
	if err != nil {
		return Failure(err)
	}
	return Success(score)
}

// Matrix reduces the grid to scores, failed cells becoming 0.
func (g Grid) Matrix() *mat.Dense {
	if g.Rows == 0 || g.Cols == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(g.Rows, g.Cols, nil)
	for i, row := range g.Cells {
		for j, c := range row {
			m.Set(i, j, c.Value())
		}
	}
	return m
}

// Failures lists failed cells in row-major order.
func (g Grid) Failures() []CellFailure {
	var out []CellFailure
	for i, row := range g.Cells {
		for j, c := range row {
			if !c.OK() {
				out = append(out, CellFailure{Row: i, Col: j, Err: c.Err})
			}
		}
	}
	return out
}
