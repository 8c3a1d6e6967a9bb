// Package scoring evaluates and presents detection score maps.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ROC computes the ROC curve of scores against ground truth. Both classes must
// be present.
func ROC(name string, scores []float64, truth GroundTruth) (Curve, error) {
	if len(scores) != len(truth) {
		return Curve{}, fmt.Errorf("roc %s: %d scores for %d ground truth pixels", name, len(scores), len(truth))
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	sorted := make([]float64, len(scores))
	classes := make([]bool, len(scores))
	positives := 0
	for i, p := range order {
		if math.IsNaN(scores[p]) {
			return Curve{}, fmt.Errorf("roc %s: score of pixel %d is NaN", name, p)
		}
		sorted[i] = scores[p]
		classes[i] = truth[p] > 0.5
		if classes[i] {
			positives++
		}
	}
	if positives == 0 || positives == len(scores) {
		return Curve{}, fmt.Errorf("roc %s: ground truth needs both target and background pixels", name)
	}

	tpr, fpr, thresholds := stat.ROC(nil, sorted, classes, nil)

	return Curve{
		Name:       name,
		FPR:        fpr,
		TPR:        tpr,
		Thresholds: thresholds,
		AUC:        integrate.Trapezoidal(fpr, tpr),
	}, nil
}

// AUC returns the area under the ROC curve of scores against ground truth.
func AUC(scores []float64, truth GroundTruth) (float64, error) {
	curve, err := ROC("", scores, truth)
	if err != nil {
		return 0, err
	}
	return curve.AUC, nil
}

// TopPixels returns the k highest scoring pixels, best first.
func TopPixels(scores []float64, k int) []RankedPixel {
	ranked := make([]RankedPixel, len(scores))
	for i, s := range scores {
		ranked[i] = RankedPixel{Pixel: i, Score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if k >= 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}
