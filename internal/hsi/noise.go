package hsi

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// WGN returns white Gaussian noise for the spectrum x such that the ratio of
// the spectrum's mean power to the noise power is snr dB.
func WGN(x []float64, snr float64, rng *rand.Rand) []float64 {
	noise := make([]float64, len(x))
	if len(x) == 0 {
		return noise
	}
	power := floats.Dot(x, x) / float64(len(x))
	sigma := math.Sqrt(power / math.Pow(10, snr/10))
	for i := range noise {
		noise[i] = rng.NormFloat64() * sigma
	}
	return noise
}

// AddNoise returns a copy of img (bands × pixels) with per-pixel white
// Gaussian noise at snr dB.
func AddNoise(img mat.Matrix, snr float64, rng *rand.Rand) *mat.Dense {
	out := mat.DenseCopyOf(img)
	bands, pixels := out.Dims()
	spectrum := make([]float64, bands)
	for j := range pixels {
		mat.Col(spectrum, j, out)
		floats.Add(spectrum, WGN(spectrum, snr, rng))
		out.SetCol(j, spectrum)
	}
	return out
}
