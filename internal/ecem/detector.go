// Package ecem implements the ensemble-based cascaded constrained energy
// minimization (E-CEM) hyperspectral target detector.
package ecem

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/tensorplex-labs/hyperdetect/internal/config"
	"github.com/tensorplex-labs/hyperdetect/internal/utils/logger"
	"github.com/tensorplex-labs/hyperdetect/internal/workpool"
)

// DetectionResult holds one confidence score per pixel. Scores are relative
// and meant for ranking.
type DetectionResult []float64

// Detector runs E-CEM with a fixed configuration. It holds no mutable state
// and is safe for concurrent use.
type Detector struct {
	cfg Config
}

func NewDetector(opts ...Option) (*Detector, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg.clone()}, nil
}

// NewDetectorFromEnv builds a detector from the environment configuration.
func NewDetectorFromEnv(cfg *config.DetectorEnvConfig) (*Detector, error) {
	return NewDetector(OptionsFromEnv(cfg)...)
}

// Config returns a copy of the detector's configuration.
func (d *Detector) Config() Config {
	return d.cfg.clone()
}

func (d *Detector) Detect(ctx context.Context, cube mat.Matrix, target []float64) (DetectionResult, error) {
	logger.Sugar().Infow("Detecting with E-CEM params",
		"windowSizes", d.cfg.WindowSizes,
		"numLayer", d.cfg.NumLayer,
		"numCEM", d.cfg.NumCEM,
		"lambda", d.cfg.Lambda,
	)
	return Detect(ctx, cube, target, d.cfg)
}

// Detect scores every pixel (column) of the D×N cube against the target
// signature of length D.
func Detect(ctx context.Context, cube mat.Matrix, target []float64, cfg Config) (DetectionResult, error) {
	startTime := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bands, pixels := cube.Dims()
	if bands == 0 || pixels == 0 {
		return nil, errors.Wrap(ErrDimensionMismatch, "empty image")
	}
	if len(target) != bands {
		return nil, errors.Wrapf(ErrDimensionMismatch, "target has %d bands, image has %d", len(target), bands)
	}
	if err := cfg.validateBands(bands); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	aug := augment(cube, target)

	featureMaps, err := workpool.Map(ctx, cfg.Parallelism, cfg.WindowSizes,
		func(ctx context.Context, i int, ratio float64) (*mat.Dense, error) {
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			return ScanningStage(ctx, aug, ratio, cfg, rng)
		})
	if err != nil {
		return nil, errors.Wrap(err, "multi-scale scanning")
	}

	stacked := stackRows(featureMaps)
	cascadeRng := rand.New(rand.NewPCG(seed, uint64(len(cfg.WindowSizes))))
	ensemble, err := CascadeStage(ctx, stacked, cfg, cascadeRng)
	if err != nil {
		return nil, errors.Wrap(err, "cascaded detection")
	}

	result := make(DetectionResult, pixels)
	for j := range pixels {
		result[j] = stat.Mean(mat.Col(nil, j, ensemble), nil)
	}

	feats, _ := stacked.Dims()
	log.Debug().
		Int("bands", bands).
		Int("pixels", pixels).
		Int("features", feats).
		Dur("elapsed", time.Since(startTime)).
		Msg("E-CEM detection finished")
	return result, nil
}

// augment appends the target as an extra column: D × (N+1).
func augment(cube mat.Matrix, target []float64) *mat.Dense {
	bands, pixels := cube.Dims()
	aug := mat.NewDense(bands, pixels+1, nil)
	aug.Slice(0, bands, 0, pixels).(*mat.Dense).Copy(cube)
	aug.SetCol(pixels, target)
	return aug
}

// stackRows concatenates matrices with equal column counts vertically.
func stackRows(parts []*mat.Dense) *mat.Dense {
	var rows, cols int
	for _, p := range parts {
		r, c := p.Dims()
		rows += r
		cols = c
	}
	out := mat.NewDense(rows, cols, nil)
	offset := 0
	for _, p := range parts {
		r, _ := p.Dims()
		out.Slice(offset, offset+r, 0, cols).(*mat.Dense).Copy(p)
		offset += r
	}
	return out
}

func progress(cfg Config) *zerolog.Event {
	if cfg.Verbose {
		return log.Info()
	}
	return log.Debug()
}
