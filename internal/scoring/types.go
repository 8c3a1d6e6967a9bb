package scoring

// GroundTruth marks target pixels with values > 0.5.
type GroundTruth []float64

// Curve is a receiver operating characteristic curve. Thresholds run from
// high to low, so FPR and TPR are non-decreasing.
type Curve struct {
	Name       string
	FPR        []float64
	TPR        []float64
	Thresholds []float64
	AUC        float64
}

// RankedPixel is a pixel index with its detection score.
type RankedPixel struct {
	Pixel int
	Score float64
}
