package ecem

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tensorplex-labs/hyperdetect/internal/workpool"
)

// CascadeStage refines a stacked feature map (rows are weak detectors, the
// last column is the target) over cfg.NumLayer layers and returns the final
// layer's ensemble scores with the target column dropped (NumCEM × N).
// The input map is not modified.
func CascadeStage(ctx context.Context, features *mat.Dense, cfg Config, rng *rand.Rand) (*mat.Dense, error) {
	rows, cols := features.Dims()
	if cols < 2 {
		return nil, errors.Wrapf(ErrDimensionMismatch, "feature map has %d columns, need pixels plus target", cols)
	}

	current := mat.DenseCopyOf(features)
	forest := mat.NewDense(cfg.NumCEM, cols, nil)

	for layer := range cfg.NumLayer {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(cfg).Int("layer", layer).Msg("Cascaded detection")

		target := mat.NewVecDense(rows, mat.Col(nil, cols-1, current))
		seeds := make([]uint64, cfg.NumCEM)
		for i := range seeds {
			seeds[i] = rng.Uint64()
		}

		members, err := workpool.Map(ctx, cfg.Parallelism, seeds,
			func(_ context.Context, member int, seed uint64) ([]float64, error) {
				memberRng := rand.New(rand.NewPCG(seed, uint64(member)))
				scores, err := retryCEM(current, target, cfg.Lambda, cfg.MaxRetries, memberRng)
				if err != nil {
					return nil, err
				}
				return scores.RawVector().Data, nil
			})
		if err != nil {
			return nil, errors.Wrapf(err, "cascade layer %d", layer)
		}
		for i, scores := range members {
			forest.SetRow(i, scores)
		}

		if layer == cfg.NumLayer-1 {
			break
		}
		reweight(current, layerWeights(forest))
	}

	return mat.DenseCopyOf(forest.Slice(0, cfg.NumCEM, 0, cols-1)), nil
}

// layerWeights squashes the ensemble's per-column mean score into (0,1).
func layerWeights(ensemble *mat.Dense) []float64 {
	_, cols := ensemble.Dims()
	weights := make([]float64, cols)
	for j := range cols {
		weights[j] = logistic(stat.Mean(mat.Col(nil, j, ensemble), nil))
	}
	return weights
}

// logistic returns 1/(1+e^-x) kept strictly inside (0,1) where float64
// rounding would otherwise saturate.
func logistic(x float64) float64 {
	w := 1 / (1 + math.Exp(-x))
	switch {
	case w >= 1:
		return math.Nextafter(1, 0)
	case w <= 0:
		return math.SmallestNonzeroFloat64
	}
	return w
}

// reweight scales column j of m by weights[j] in place.
func reweight(m *mat.Dense, weights []float64) {
	rows, cols := m.Dims()
	for i := range rows {
		for j := range cols {
			m.Set(i, j, m.At(i, j)*weights[j])
		}
	}
}
