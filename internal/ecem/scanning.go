package ecem

import (
	"context"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// windowStride is the band step between consecutive window positions.
const windowStride = 2

// WindowLength returns floor(bands·r²).
func WindowLength(bands int, ratio float64) int {
	return int(float64(bands) * (ratio * ratio))
}

// WindowCount returns the number of feature rows a window of winlen bands
// produces over a cube of the given number of bands.
func WindowCount(bands, winlen int) int {
	return (bands-winlen+1)/windowStride + 1
}

// ScanningStage slides a spectral window of floor(D·r²) bands over the
// augmented cube (D × (N+1), target in the last column) and returns one CEM
// score row per window position. Each window covers winlen-1 bands starting at
// its position; rows the scan never reaches stay zero.
func ScanningStage(ctx context.Context, aug *mat.Dense, ratio float64, cfg Config, rng *rand.Rand) (*mat.Dense, error) {
	bands, cols := aug.Dims()
	winlen := WindowLength(bands, ratio)
	if winlen <= 0 || winlen > bands {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "window length %d for %d bands", winlen, bands)
	}

	progress(cfg).Int("window_length", winlen).Float64("ratio", ratio).Msg("Multi-scale scanning")

	out := mat.NewDense(WindowCount(bands, winlen), cols, nil)
	span := winlen - 1
	for pos, start := 0, 0; start+winlen <= bands; pos, start = pos+1, start+windowStride {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if span == 0 {
			continue
		}

		window := aug.Slice(start, start+span, 0, cols)
		target := mat.NewVecDense(span, mat.Col(nil, cols-1, window))

		scores, err := retryCEM(window, target, cfg.Lambda, cfg.MaxRetries, rng)
		if err != nil {
			return nil, errors.Wrapf(err, "window at band %d", start)
		}
		out.SetRow(pos, scores.RawVector().Data)
	}
	return out, nil
}
