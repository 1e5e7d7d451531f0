package superpose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/tmscore/internal/structure"
	"github.com/tensorplex-labs/tmscore/internal/synthetic"
)

const tol = 1e-8

func assertPointsNear(t *testing.T, want, got structure.PointSet, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDeltaSlice(t, want[i][:], got[i][:], delta, "point %d", i)
	}
}

func TestKabsch_Identity(t *testing.T) {
	ps := synthetic.Helix(20)
	a, err := Kabsch(ps, ps)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(a.Rotation, mat.NewDiagDense(3, []float64{1, 1, 1}), tol))
	assert.InDeltaSlice(t, []float64{0, 0, 0}, a.Translation[:], tol)
	assertPointsNear(t, ps, a.Aligned, tol)
	assert.InDelta(t, 0, a.RMSD(), tol)
}

func TestKabsch_RecoversRigidTransform(t *testing.T) {
	rng := synthetic.NewRand(3)
	truth := synthetic.Cloud(40, 10, rng)

	for range 20 {
		rot := synthetic.RandomRotation(rng)
		shift := structure.Point{rng.Float64() * 50, rng.Float64() * -50, rng.Float64() * 20}
		pred := synthetic.Transform(truth, rot, shift)

		a, err := Kabsch(pred, truth)
		require.NoError(t, err)
		assertPointsNear(t, truth, a.Aligned, 1e-6)
		assert.InDelta(t, 0, a.RMSD(), 1e-6)

		for i, p := range pred {
			applied := a.Apply(p)
			assert.InDeltaSlice(t, a.Aligned[i][:], applied[:], 1e-9)
		}
	}
}

func TestKabsch_ProperRotation(t *testing.T) {
	rng := synthetic.NewRand(5)
	truth := synthetic.Cloud(30, 5, rng)

	// A mirror image cannot be superposed by a proper rotation; the result
	// must still have det +1.
	a, err := Kabsch(synthetic.Mirror(truth), truth)
	require.NoError(t, err)
	assert.InDelta(t, 1, mat.Det(a.Rotation), 1e-9)
	assert.Greater(t, a.RMSD(), 0.1)

	var rrt mat.Dense
	rrt.Mul(a.Rotation, a.Rotation.T())
	assert.True(t, mat.EqualApprox(&rrt, mat.NewDiagDense(3, []float64{1, 1, 1}), 1e-9))
}

func TestKabsch_NoiseMinimisesRMSD(t *testing.T) {
	rng := synthetic.NewRand(9)
	truth := synthetic.Helix(50)
	pred := synthetic.Perturb(truth, 1, rng)

	a, err := Kabsch(pred, truth)
	require.NoError(t, err)

	// The unaligned RMSD is an upper bound for the optimum.
	var raw float64
	for i := range truth {
		raw += distance(pred[i], truth[i]) * distance(pred[i], truth[i])
	}
	raw /= float64(len(truth))
	assert.LessOrEqual(t, a.RMSD()*a.RMSD(), raw+1e-9)
}

func TestKabsch_Degenerate(t *testing.T) {
	t.Run("single point", func(t *testing.T) {
		a, err := Kabsch(structure.PointSet{{1, 2, 3}}, structure.PointSet{{4, 5, 6}})
		require.NoError(t, err)
		assertPointsNear(t, structure.PointSet{{4, 5, 6}}, a.Aligned, tol)
	})

	t.Run("collinear", func(t *testing.T) {
		line := structure.PointSet{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
		moved := synthetic.Transform(line, synthetic.EulerXYZ(10, 20, 30), structure.Point{1, 1, 1})
		a, err := Kabsch(moved, line)
		require.NoError(t, err)
		assert.InDelta(t, 0, a.RMSD(), 1e-6)
		assert.InDelta(t, 1, mat.Det(a.Rotation), 1e-9)
	})
}

func TestKabsch_Errors(t *testing.T) {
	_, err := Kabsch(synthetic.Helix(3), synthetic.Helix(4))
	assert.ErrorIs(t, err, structure.ErrShapeMismatch)

	_, err = Kabsch(nil, nil)
	assert.ErrorIs(t, err, structure.ErrEmptyStructure)

	_, _, _, err = Superpose(synthetic.Helix(2), synthetic.Helix(5))
	assert.ErrorIs(t, err, structure.ErrShapeMismatch)
}

func TestRMSD(t *testing.T) {
	truth := synthetic.Helix(10)
	pred := synthetic.Translate(truth, structure.Point{3, 3, 3})
	rmsd, err := RMSD(pred, truth)
	require.NoError(t, err)
	assert.InDelta(t, 0, rmsd, 1e-9)
}

func BenchmarkKabsch(b *testing.B) {
	rng := synthetic.NewRand(1)
	truth := synthetic.Cloud(500, 10, rng)
	pred := synthetic.Perturb(truth, 1, rng)
	for b.Loop() {
		_, _ = Kabsch(pred, truth)
	}
}
