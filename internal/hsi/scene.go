// Package hsi holds hyperspectral scenes and the helpers that load, perturb and
// synthesize them.
package hsi

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Scene is a hyperspectral image together with the target signature to look
// for. Pixels are the image columns, ordered down each image column first
// (pixel p sits at row p%Height, column p/Height).
type Scene struct {
	Name   string
	Image  *mat.Dense // bands × pixels
	Target []float64  // one value per band
	// GroundTruth marks target pixels with 1; nil when unknown.
	GroundTruth []float64
	Height      int
	Width       int
}

// NewScene wraps an image and target as a single-column scene.
func NewScene(name string, image *mat.Dense, target []float64) *Scene {
	_, pixels := image.Dims()
	return &Scene{
		Name:   name,
		Image:  image,
		Target: target,
		Height: pixels,
		Width:  1,
	}
}

func (s *Scene) Bands() int {
	bands, _ := s.Image.Dims()
	return bands
}

func (s *Scene) Pixels() int {
	_, pixels := s.Image.Dims()
	return pixels
}

// PixelIndex maps an image position to its column in Image.
func (s *Scene) PixelIndex(row, col int) int {
	return col*s.Height + row
}

func (s *Scene) Validate() error {
	if s.Image == nil || s.Image.IsEmpty() {
		return fmt.Errorf("scene %q has no image", s.Name)
	}
	bands, pixels := s.Image.Dims()
	if len(s.Target) != bands {
		return fmt.Errorf("scene %q: target has %d bands, image has %d", s.Name, len(s.Target), bands)
	}
	if s.GroundTruth != nil && len(s.GroundTruth) != pixels {
		return fmt.Errorf("scene %q: ground truth has %d pixels, image has %d", s.Name, len(s.GroundTruth), pixels)
	}
	if s.Height*s.Width != pixels {
		return fmt.Errorf("scene %q: %dx%d grid does not hold %d pixels", s.Name, s.Height, s.Width, pixels)
	}
	return nil
}

// WithNoise returns a copy of the scene whose image carries white Gaussian
// noise at the given SNR in dB.
func (s *Scene) WithNoise(snr float64, rng *rand.Rand) *Scene {
	noisy := *s
	noisy.Name = s.Name + "_noise"
	noisy.Image = AddNoise(s.Image, snr, rng)
	return &noisy
}
