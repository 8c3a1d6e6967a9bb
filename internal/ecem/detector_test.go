package ecem

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/hsi"
	"github.com/tensorplex-labs/hyperdetect/internal/scoring"
)

// implantedScene returns a 10-band cube of 20 low-energy noise pixels where
// pixel 7 is an exact copy of the target signature.
func implantedScene() (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(7, 11))
	const bands, pixels = 10, 20

	target := make([]float64, bands)
	for i := range target {
		target[i] = 1 + 0.5*math.Sin(float64(i))
	}

	cube := mat.NewDense(bands, pixels, nil)
	for j := range pixels {
		if j == 7 {
			cube.SetCol(j, target)
			continue
		}
		for i := range bands {
			cube.Set(i, j, rng.NormFloat64()*0.1)
		}
	}
	return cube, target
}

func smallDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	base := []Option{
		WithWindowSizes(0.5, 1.0),
		WithNumLayer(2),
		WithNumCEM(3),
		WithLambda(1e-6),
		WithSeed(42),
	}
	d, err := NewDetector(append(base, opts...)...)
	require.NoError(t, err)
	return d
}

func TestDetectReturnsOneScorePerPixel(t *testing.T) {
	cube, target := implantedScene()

	result, err := smallDetector(t).Detect(context.Background(), cube, target)
	require.NoError(t, err)

	require.Len(t, result, 20)
	for i, s := range result {
		assert.False(t, math.IsNaN(s) || math.IsInf(s, 0), "pixel %d score %g", i, s)
	}
}

func TestDetectRanksImplantedTargetFirst(t *testing.T) {
	cube, target := implantedScene()

	result, err := smallDetector(t).Detect(context.Background(), cube, target)
	require.NoError(t, err)

	assert.Equal(t, 7, floats.MaxIdx(result))
}

func TestDetectIsReproducibleForFixedSeed(t *testing.T) {
	cube, target := implantedScene()

	a, err := smallDetector(t, WithParallelism(1)).Detect(context.Background(), cube, target)
	require.NoError(t, err)
	b, err := smallDetector(t, WithParallelism(8)).Detect(context.Background(), cube, target)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("results differ across parallelism (-serial +parallel):\n%s", diff)
	}
}

func TestDetectFiniteAcrossSeeds(t *testing.T) {
	cube, target := implantedScene()

	for seed := uint64(1); seed <= 5; seed++ {
		result, err := smallDetector(t, WithSeed(seed)).Detect(context.Background(), cube, target)
		require.NoError(t, err)
		for _, s := range result {
			require.False(t, math.IsNaN(s) || math.IsInf(s, 0))
		}
		beaten := 0
		for j, s := range result {
			if j != 7 && result[7] > s {
				beaten++
			}
		}
		assert.GreaterOrEqual(t, float64(beaten), 0.9*19, "seed %d", seed)
	}
}

func TestDetectHandlesRadianceScaleCube(t *testing.T) {
	scene := hsi.Synthetic(hsi.DefaultSyntheticOptions(), rand.New(rand.NewPCG(1, 2)))
	for _, scale := range []float64{1, 1e2, 1e4} {
		var image mat.Dense
		image.Scale(scale, scene.Image)
		target := append([]float64(nil), scene.Target...)
		floats.Scale(scale, target)

		d, err := NewDetector(WithSeed(1))
		require.NoError(t, err)
		result, err := d.Detect(context.Background(), &image, target)
		require.NoError(t, err, "scale %g", scale)

		require.Len(t, result, scene.Pixels())
		for _, s := range result {
			require.False(t, math.IsNaN(s) || math.IsInf(s, 0), "scale %g", scale)
		}
	}
}

func TestDetectLeavesInputsUntouched(t *testing.T) {
	cube, target := implantedScene()
	cubeBefore := mat.DenseCopyOf(cube)
	targetBefore := append([]float64(nil), target...)

	_, err := smallDetector(t).Detect(context.Background(), cube, target)
	require.NoError(t, err)

	assert.True(t, mat.Equal(cubeBefore, cube))
	assert.Equal(t, targetBefore, target)
}

func TestNewDetectorValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"no windows", WithWindowSizes()},
		{"zero window", WithWindowSizes(0.5, 0)},
		{"window above one", WithWindowSizes(1.5)},
		{"zero layers", WithNumLayer(0)},
		{"negative cems", WithNumCEM(-1)},
		{"zero lambda", WithLambda(0)},
		{"nan lambda", WithLambda(math.NaN())},
		{"infinite lambda", WithLambda(math.Inf(1))},
		{"zero parallelism", WithParallelism(0)},
		{"negative retries", WithMaxRetries(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDetector(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestDetectRejectsBadInput(t *testing.T) {
	cube, target := implantedScene()
	ctx := context.Background()
	cfg := smallDetector(t).Config()

	_, err := Detect(ctx, cube, target[:9], cfg)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Detect(ctx, &mat.Dense{}, nil, cfg)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// 3*0.25^2 leaves an empty window.
	small := mat.NewDense(3, 4, nil)
	cfg.WindowSizes = []float64{0.25}
	_, err = Detect(ctx, small, []float64{1, 2, 3}, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	cfg.WindowSizes = nil
	_, err = Detect(ctx, cube, target, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestDetectorConfigIsACopy(t *testing.T) {
	d := smallDetector(t)
	cfg := d.Config()
	cfg.WindowSizes[0] = 0.9

	assert.Equal(t, 0.5, d.Config().WindowSizes[0])
}

func TestNewDetectorFromEnv(t *testing.T) {
	env := &config.DetectorEnvConfig{
		WindowSizes: []float64{0.5},
		NumLayer:    3,
		NumCEM:      2,
		Lambda:      1e-3,
		Parallelism: 2,
		MaxRetries:  1,
		Seed:        9,
	}

	d, err := NewDetectorFromEnv(env)
	require.NoError(t, err)

	cfg := d.Config()
	assert.Equal(t, []float64{0.5}, cfg.WindowSizes)
	assert.Equal(t, 3, cfg.NumLayer)
	assert.Equal(t, 2, cfg.NumCEM)
	assert.Equal(t, 1e-3, cfg.Lambda)
	assert.Equal(t, uint64(9), cfg.Seed)

	d, err = NewDetectorFromEnv(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindowSizes(), d.Config().WindowSizes)
}

func TestRegularizationHelpsUnderNoise(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping noisy scene detection in short mode")
	}

	opts := hsi.DefaultSyntheticOptions()
	opts.Bands = 32
	opts.Height = 20
	opts.Width = 20
	opts.Endmembers = 4
	opts.PatchSize = 3
	opts.Abundance = 0.8
	scene := hsi.Synthetic(opts, rand.New(rand.NewPCG(21, 22)))
	noisy := scene.WithNoise(20, rand.New(rand.NewPCG(23, 24)))

	aucFor := func(lambda float64) float64 {
		d, err := NewDetector(WithNumLayer(3), WithNumCEM(3), WithLambda(lambda), WithSeed(5))
		require.NoError(t, err)
		result, err := d.Detect(context.Background(), noisy.Image, noisy.Target)
		require.NoError(t, err)
		auc, err := scoring.AUC(result, noisy.GroundTruth)
		require.NoError(t, err)
		return auc
	}

	regularized := aucFor(6e-2)
	bare := aucFor(1e-10)
	t.Logf("auc regularized=%.5f bare=%.5f", regularized, bare)
	assert.GreaterOrEqual(t, regularized, bare-0.05)
}

func BenchmarkDetect(b *testing.B) {
	opts := hsi.DefaultSyntheticOptions()
	scene := hsi.Synthetic(opts, rand.New(rand.NewPCG(1, 2)))
	d, err := NewDetector(WithSeed(1))
	require.NoError(b, err)

	b.ResetTimer()
	for b.Loop() {
		_, err := d.Detect(context.Background(), scene.Image, scene.Target)
		require.NoError(b, err)
	}
}
