package ecem

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

func TestDrawLambdaStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, base := range []float64{1e-10, 1e-6, 6e-2, 1} {
		lo := base / (1 + base)
		for range 1000 {
			l := DrawLambda(base, rng)
			assert.GreaterOrEqual(t, l, lo)
			assert.LessOrEqual(t, l, base)
		}
	}
}

func TestSolveCEMMatchesClosedForm(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	x := randomMatrix(rng, 4, 12)
	tv := mat.NewVecDense(4, []float64{1, -0.5, 2, 0.25})
	lambda := 0.1

	got, err := solveCEM(x, tv, lambda)
	require.NoError(t, err)

	var r mat.Dense
	r.Mul(x, x.T())
	r.Scale(1.0/12, &r)
	for i := range 4 {
		r.Set(i, i, r.At(i, i)+lambda)
	}
	var inv mat.Dense
	require.NoError(t, inv.Inverse(&r))
	var w, want mat.VecDense
	w.MulVec(&inv, tv)
	want.MulVec(x.T(), &w)

	require.Equal(t, 12, got.Len())
	assert.InDeltaSlice(t, want.RawVector().Data, got.RawVector().Data, 1e-9)
}

func TestAtomicCEMUsesDrawnLambda(t *testing.T) {
	x := randomMatrix(rand.New(rand.NewPCG(5, 6)), 3, 8)
	tv := mat.NewVecDense(3, mat.Col(nil, 7, x))

	got, err := AtomicCEM(x, tv, 1e-3, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)

	want, err := solveCEM(x, tv, DrawLambda(1e-3, rand.New(rand.NewPCG(9, 9))))
	require.NoError(t, err)
	assert.Equal(t, want.RawVector().Data, got.RawVector().Data)
}

func TestCEMConstantImageGivesUniformScores(t *testing.T) {
	x := mat.NewDense(3, 5, []float64{
		1, 1, 1, 1, 1,
		2, 2, 2, 2, 2,
		3, 3, 3, 3, 3,
	})
	tv := mat.NewVecDense(3, []float64{1, 2, 3})

	y, err := AtomicCEM(x, tv, 1e-6, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	for i := 1; i < y.Len(); i++ {
		assert.InDelta(t, y.AtVec(0), y.AtVec(i), 1e-9)
	}
}

func TestSolveCEMSingular(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{
		1, 1, 1,
		1, 1, 1,
	})
	tv := mat.NewVecDense(2, []float64{1, 1})

	_, err := solveCEM(x, tv, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingularMatrix))
}

func TestAcceptIllConditioned(t *testing.T) {
	assert.NoError(t, acceptIllConditioned(nil, 1e-6))
	assert.NoError(t, acceptIllConditioned(mat.Condition(3.2e16), 1e-6))
	assert.Error(t, acceptIllConditioned(mat.Condition(math.Inf(1)), 1e-6))
	assert.ErrorIs(t, acceptIllConditioned(mat.ErrShape, 1e-6), mat.ErrShape)
}

func TestRetryCEMGivesUp(t *testing.T) {
	x := mat.NewDense(2, 3, []float64{
		1, 1, 1,
		1, 1, 1,
	})
	tv := mat.NewVecDense(2, []float64{1, 1})

	_, err := retryCEM(x, tv, 1e-300, 2, rand.New(rand.NewPCG(1, 2)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSingularMatrix)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestSolveCEMDimensionMismatch(t *testing.T) {
	x := randomMatrix(rand.New(rand.NewPCG(1, 2)), 3, 4)
	_, err := solveCEM(x, mat.NewVecDense(2, nil), 1e-6)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
