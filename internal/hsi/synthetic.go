package hsi

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SyntheticOptions describes a synthetic scene: a linear mixture of smooth
// random endmembers with a square patch of implanted target pixels.
type SyntheticOptions struct {
	Name       string
	Bands      int
	Height     int
	Width      int
	Endmembers int
	// PatchSize is the side of the square target patch at the image center.
	PatchSize int
	// Abundance is the target fraction mixed into each patch pixel.
	Abundance float64
}

func DefaultSyntheticOptions() SyntheticOptions {
	return SyntheticOptions{
		Name:       "syn",
		Bands:      64,
		Height:     40,
		Width:      40,
		Endmembers: 5,
		PatchSize:  4,
		Abundance:  0.7,
	}
}

// Synthetic generates a scene with ground truth.
func Synthetic(opts SyntheticOptions, rng *rand.Rand) *Scene {
	endmembers := make([][]float64, opts.Endmembers)
	for k := range endmembers {
		endmembers[k] = smoothSpectrum(opts.Bands, rng)
	}
	target := smoothSpectrum(opts.Bands, rng)

	pixels := opts.Height * opts.Width
	image := mat.NewDense(opts.Bands, pixels, nil)
	truth := make([]float64, pixels)

	top := (opts.Height - opts.PatchSize) / 2
	left := (opts.Width - opts.PatchSize) / 2

	spectrum := make([]float64, opts.Bands)
	abundances := make([]float64, opts.Endmembers)
	for col := range opts.Width {
		for row := range opts.Height {
			for k := range abundances {
				abundances[k] = rng.Float64()
			}
			floats.Scale(1/floats.Sum(abundances), abundances)

			for i := range spectrum {
				spectrum[i] = 0
			}
			for k, a := range abundances {
				floats.AddScaled(spectrum, a, endmembers[k])
			}

			p := col*opts.Height + row
			if row >= top && row < top+opts.PatchSize && col >= left && col < left+opts.PatchSize {
				floats.Scale(1-opts.Abundance, spectrum)
				floats.AddScaled(spectrum, opts.Abundance, target)
				truth[p] = 1
			}
			image.SetCol(p, spectrum)
		}
	}

	return &Scene{
		Name:        opts.Name,
		Image:       image,
		Target:      target,
		GroundTruth: truth,
		Height:      opts.Height,
		Width:       opts.Width,
	}
}

// smoothSpectrum sums a few Gaussian absorption-like bumps over a positive
// baseline.
func smoothSpectrum(bands int, rng *rand.Rand) []float64 {
	s := make([]float64, bands)
	floats.AddConst(0.2+0.3*rng.Float64(), s)
	for range 3 {
		center := rng.Float64() * float64(bands)
		width := (0.05 + 0.2*rng.Float64()) * float64(bands)
		height := 0.2 + 0.8*rng.Float64()
		for i := range s {
			z := (float64(i) - center) / width
			s[i] += height * math.Exp(-0.5*z*z)
		}
	}
	return s
}
