// Package superpose computes optimal rigid superpositions of point sets with
// known residue correspondence.
package superpose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/tmscore/internal/structure"
)

var ErrSVDFailed = errors.New("svd factorization failed")

// Alignment is the rigid transform mapping pred onto true.
type Alignment struct {
	Rotation    *mat.Dense // 3x3, det +1
	Translation structure.Point
	Aligned     structure.PointSet
	Distances   []float64
}

// Kabsch finds R and t minimising sum |R*p_i + t - q_i|^2.
//
// Both sets are centred on their centroids, H = P^T Q is decomposed as
// U S V^T and R = V U^T. An improper solution (det R < 0) is corrected by
// negating the last column of V before recomposing R.
func Kabsch(pred, truth structure.PointSet) (Alignment, error) {
	if err := structure.CheckPair(pred, truth); err != nil {
		return Alignment{}, err
	}

	n := len(pred)
	cp, cq := pred.Centroid(), truth.Centroid()
	p := centred(pred, cp)
	q := centred(truth, cq)

	var h mat.Dense
	h.Mul(p.T(), q)

	var svd mat.SVD
	if ok := svd.Factorize(&h, mat.SVDFull); !ok {
		return Alignment{}, fmt.Errorf("kabsch on %d points: %w", n, ErrSVDFailed)
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		for i := range 3 {
			v.Set(i, 2, -v.At(i, 2))
		}
		r.Mul(&v, u.T())
	}

	rot := [3][3]float64{}
	for i := range 3 {
		for j := range 3 {
			rot[i][j] = r.At(i, j)
		}
	}

	rcp := apply(rot, cp)
	translation := structure.Point{cq[0] - rcp[0], cq[1] - rcp[1], cq[2] - rcp[2]}

	aligned := make(structure.PointSet, n)
	distances := make([]float64, n)
	for i := range n {
		x := apply(rot, structure.Point{p.At(i, 0), p.At(i, 1), p.At(i, 2)})
		a := structure.Point{x[0] + cq[0], x[1] + cq[1], x[2] + cq[2]}
		aligned[i] = a
		distances[i] = distance(a, truth[i])
	}

	return Alignment{
		Rotation:    &r,
		Translation: translation,
		Aligned:     aligned,
		Distances:   distances,
	}, nil
}

// Superpose returns the rotation, translation and aligned points of pred.
func Superpose(pred, truth structure.PointSet) (*mat.Dense, structure.Point, structure.PointSet, error) {
	a, err := Kabsch(pred, truth)
	if err != nil {
		return nil, structure.Point{}, nil, err
	}
	return a.Rotation, a.Translation, a.Aligned, nil
}

// RMSD is the root mean square deviation after optimal superposition.
func RMSD(pred, truth structure.PointSet) (float64, error) {
	a, err := Kabsch(pred, truth)
	if err != nil {
		return 0, err
	}
	return a.RMSD(), nil
}

// RMSD of the residual distances.
func (a Alignment) RMSD() float64 {
	if len(a.Distances) == 0 {
		return 0
	}
	var sum float64
	for _, d := range a.Distances {
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(a.Distances)))
}

// Apply maps an arbitrary point with the alignment transform.
func (a Alignment) Apply(pt structure.Point) structure.Point {
	var out structure.Point
	for i := range 3 {
		out[i] = a.Rotation.At(i, 0)*pt[0] + a.Rotation.At(i, 1)*pt[1] + a.Rotation.At(i, 2)*pt[2] + a.Translation[i]
	}
	return out
}

func centred(ps structure.PointSet, c structure.Point) *mat.Dense {
	data := make([]float64, 0, 3*len(ps))
	for _, pt := range ps {
		data = append(data, pt[0]-c[0], pt[1]-c[1], pt[2]-c[2])
	}
	return mat.NewDense(len(ps), 3, data)
}

func apply(r [3][3]float64, pt structure.Point) structure.Point {
	return structure.Point{
		r[0][0]*pt[0] + r[0][1]*pt[1] + r[0][2]*pt[2],
		r[1][0]*pt[0] + r[1][1]*pt[1] + r[1][2]*pt[2],
		r[2][0]*pt[0] + r[2][1]*pt[1] + r[2][2]*pt[2],
	}
}

func distance(a, b structure.Point) float64 {
	dx, dy, dz := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
