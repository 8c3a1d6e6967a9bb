package ecem

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestWindowGeometry(t *testing.T) {
	tests := []struct {
		ratio  float64
		winlen int
		rows   int
	}{
		{0.25, 4, 31},
		{0.5, 16, 25},
		{0.75, 36, 15},
		{1.0, 64, 1},
	}

	for _, tt := range tests {
		winlen := WindowLength(64, tt.ratio)
		assert.Equal(t, tt.winlen, winlen, "ratio %g", tt.ratio)
		assert.Equal(t, tt.rows, WindowCount(64, winlen), "ratio %g", tt.ratio)
	}
}

func TestScanningStageShapeAndWindows(t *testing.T) {
	rng := rand.New(rand.NewPCG(10, 20))
	aug := randomMatrix(rng, 11, 21)
	cfg := DefaultConfig()

	// winlen 2 over 11 bands: 6 rows, positions at bands 0,2,4,6,8
	out, err := ScanningStage(context.Background(), aug, 0.5, cfg, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	rows, cols := out.Dims()
	require.Equal(t, 6, rows)
	require.Equal(t, 21, cols)

	replay := rand.New(rand.NewPCG(1, 1))
	for pos := range 5 {
		start := pos * 2
		window := aug.Slice(start, start+1, 0, 21)
		target := mat.NewVecDense(1, mat.Col(nil, 20, window))
		want, err := solveCEM(window, target, DrawLambda(cfg.Lambda, replay))
		require.NoError(t, err)
		if diff := cmp.Diff(want.RawVector().Data, out.RawRowView(pos), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Errorf("row %d mismatch (-want +got):\n%s", pos, diff)
		}
	}
	assert.Equal(t, 0.0, floats.Norm(out.RawRowView(5), 2), "unreached row stays zero")
}

func TestScanningStageSingleBandWindowsAreZero(t *testing.T) {
	aug := randomMatrix(rand.New(rand.NewPCG(4, 4)), 10, 6)

	// 10*0.4^2 rounds down to a one-band window, which spans no bands.
	out, err := ScanningStage(context.Background(), aug, 0.4, DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	rows, _ := out.Dims()
	assert.Equal(t, 6, rows)
	for i := range rows {
		assert.Equal(t, 0.0, floats.Norm(out.RawRowView(i), 2))
	}
}

func TestScanningStageFullWindow(t *testing.T) {
	aug := randomMatrix(rand.New(rand.NewPCG(7, 7)), 8, 30)

	out, err := ScanningStage(context.Background(), aug, 1.0, DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	rows, cols := out.Dims()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 30, cols)
	assert.NotZero(t, floats.Norm(out.RawRowView(0), 2))
}

func TestScanningStageRejectsEmptyWindow(t *testing.T) {
	aug := randomMatrix(rand.New(rand.NewPCG(1, 1)), 10, 4)

	_, err := ScanningStage(context.Background(), aug, 0.1, DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestScanningStageHonoursCancellation(t *testing.T) {
	aug := randomMatrix(rand.New(rand.NewPCG(1, 1)), 16, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScanningStage(ctx, aug, 0.5, DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}
