package ecem

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// DrawLambda returns a regularization coefficient drawn uniformly from
// [base/(1+base), base].
func DrawLambda(base float64, rng *rand.Rand) float64 {
	lo := base / (1 + base)
	return lo + (base-lo)*rng.Float64()
}

// AtomicCEM runs one randomized CEM solve over the d×n matrix x with target t
// and returns the n scores wᵀx where w = (xxᵀ/n + λI)⁻¹t.
func AtomicCEM(x mat.Matrix, t mat.Vector, base float64, rng *rand.Rand) (*mat.VecDense, error) {
	return solveCEM(x, t, DrawLambda(base, rng))
}

// retryCEM redraws λ after a singular solve, up to retries extra attempts.
func retryCEM(x mat.Matrix, t mat.Vector, base float64, retries int, rng *rand.Rand) (*mat.VecDense, error) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		var y *mat.VecDense
		y, err = AtomicCEM(x, t, base, rng)
		if err == nil {
			return y, nil
		}
		if !errors.Is(err, ErrSingularMatrix) {
			return nil, err
		}
		log.Trace().Err(err).Int("attempt", attempt).Msg("cem solve singular, redrawing lambda")
	}
	return nil, errors.Wrapf(err, "gave up after %d attempts", retries+1)
}

func solveCEM(x mat.Matrix, t mat.Vector, lambda float64) (*mat.VecDense, error) {
	d, n := x.Dims()
	if t.Len() != d {
		return nil, errors.Wrapf(ErrDimensionMismatch, "target has %d bands, matrix has %d", t.Len(), d)
	}

	var r mat.SymDense
	r.SymOuterK(1/float64(n), x)
	for i := range d {
		r.SetSym(i, i, r.At(i, i)+lambda)
	}

	var w mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(&r) {
		if err := acceptIllConditioned(chol.SolveVecTo(&w, t), lambda); err != nil {
			return nil, errors.Wrapf(ErrSingularMatrix, "cholesky solve with lambda %g: %v", lambda, err)
		}
	} else {
		var lu mat.LU
		lu.Factorize(&r)
		if err := acceptIllConditioned(lu.SolveVecTo(&w, false, t), lambda); err != nil {
			return nil, errors.Wrapf(ErrSingularMatrix, "lu solve with lambda %g: %v", lambda, err)
		}
	}
	for _, v := range w.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(ErrSingularMatrix, "non-finite filter with lambda %g", lambda)
		}
	}

	var y mat.VecDense
	y.MulVec(x.T(), &w)
	return &y, nil
}

// acceptIllConditioned drops a finite mat.Condition error: gonum has already
// written the solution, which is what a plain inverse would give.
func acceptIllConditioned(err error, lambda float64) error {
	var cond mat.Condition
	if !errors.As(err, &cond) {
		return err
	}
	if c := float64(cond); math.IsInf(c, 0) || math.IsNaN(c) {
		return err
	}
	log.Warn().
		Float64("condition", float64(cond)).
		Float64("lambda", lambda).
		Msg("cem correlation matrix is ill-conditioned, using solution anyway")
	return nil
}
