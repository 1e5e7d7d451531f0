// Package synthetic generates reproducible test structures. Every function
// that needs randomness takes an explicit *rand.Rand.
package synthetic

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tensorplex-labs/tmscore/internal/structure"
)

const (
	HelixRadius = 10.0
	HelixPitch  = 3.4
	HelixTurns  = 2
)

// NewRand returns a PCG-backed generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Helix returns n points on a helix of radius HelixRadius spanning
// HelixTurns turns, rising HelixPitch per radian.
func Helix(n int) structure.PointSet {
	ps := make(structure.PointSet, n)
	span := 2 * math.Pi * HelixTurns
	for i := range n {
		t := 0.0
		if n > 1 {
			t = span * float64(i) / float64(n-1)
		}
		ps[i] = structure.Point{HelixRadius * math.Cos(t), HelixRadius * math.Sin(t), HelixPitch * t}
	}
	return ps
}

// Cloud returns n points with independent N(0, scale^2) coordinates.
func Cloud(n int, scale float64, rng *rand.Rand) structure.PointSet {
	normal := distuv.Normal{Mu: 0, Sigma: scale, Src: rng}
	ps := make(structure.PointSet, n)
	for i := range ps {
		ps[i] = structure.Point{normal.Rand(), normal.Rand(), normal.Rand()}
	}
	return ps
}

// Perturb adds independent N(0, sigma^2) noise to every coordinate.
func Perturb(ps structure.PointSet, sigma float64, rng *rand.Rand) structure.PointSet {
	out := ps.Clone()
	if sigma == 0 {
		return out
	}
	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
	for i := range out {
		for k := range 3 {
			out[i][k] += normal.Rand()
		}
	}
	return out
}

// PerturbIsotropic adds noise whose displacement vectors have mean squared
// length rms^2, that is per-axis sigma rms/sqrt(3).
func PerturbIsotropic(ps structure.PointSet, rms float64, rng *rand.Rand) structure.PointSet {
	return Perturb(ps, rms/math.Sqrt(3), rng)
}

// Rotation is a row-major 3x3 rotation matrix.
type Rotation [3][3]float64

// RandomRotation draws a uniformly distributed proper rotation from a random
// unit quaternion.
func RandomRotation(rng *rand.Rand) Rotation {
	var q [4]float64
	var norm float64
	for norm < 1e-12 {
		for i := range q {
			q[i] = rng.NormFloat64()
		}
		norm = math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	}
	w, x, y, z := q[0]/norm, q[1]/norm, q[2]/norm, q[3]/norm
	return Rotation{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// EulerXYZ composes extrinsic rotations about x, y then z, in degrees.
func EulerXYZ(ax, ay, az float64) Rotation {
	rx, ry, rz := ax*math.Pi/180, ay*math.Pi/180, az*math.Pi/180
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)
	x := Rotation{{1, 0, 0}, {0, cx, -sx}, {0, sx, cx}}
	y := Rotation{{cy, 0, sy}, {0, 1, 0}, {-sy, 0, cy}}
	z := Rotation{{cz, -sz, 0}, {sz, cz, 0}, {0, 0, 1}}
	return z.Mul(y).Mul(x)
}

func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				out[i][j] += r[i][k] * o[k][j]
			}
		}
	}
	return out
}

// Transform returns R*p + t for every point.
func Transform(ps structure.PointSet, r Rotation, t structure.Point) structure.PointSet {
	out := make(structure.PointSet, len(ps))
	for i, p := range ps {
		for k := range 3 {
			out[i][k] = r[k][0]*p[0] + r[k][1]*p[1] + r[k][2]*p[2] + t[k]
		}
	}
	return out
}

// Translate shifts every point by t.
func Translate(ps structure.PointSet, t structure.Point) structure.PointSet {
	out := make(structure.PointSet, len(ps))
	for i, p := range ps {
		out[i] = structure.Point{p[0] + t[0], p[1] + t[1], p[2] + t[2]}
	}
	return out
}

// Mirror reflects every point through the xy plane.
func Mirror(ps structure.PointSet) structure.PointSet {
	out := ps.Clone()
	for i := range out {
		out[i][2] = -out[i][2]
	}
	return out
}
