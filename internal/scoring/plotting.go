package scoring

import (
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// PlotTopPixelsTerminal writes a horizontal bar chart of the topK highest
// scoring pixels. Bars are scaled against the full score range.
func PlotTopPixelsTerminal(w io.Writer, scores []float64, truth GroundTruth, title string, topK int) {
	if len(scores) == 0 {
		fmt.Fprintf(w, "\n%s: no scores\n", title)
		return
	}

	scaled := MinMaxScale(scores)
	ranked := TopPixels(scores, topK)
	minScore := floats.Min(scores)
	maxScore := floats.Max(scores)

	fmt.Fprintf(w, "\n%s (Terminal Plot - Top %d Pixels):\n", title, len(ranked))
	fmt.Fprintln(w, "   Pixel | T | Score        | Bar Chart")
	fmt.Fprintln(w, "---------|---|--------------|"+strings.Repeat("-", 50))

	maxBarWidth := 50
	for _, rp := range ranked {
		var barWidth int
		if maxScore != minScore {
			barWidth = int(scaled[rp.Pixel] * float64(maxBarWidth))
		} else {
			barWidth = maxBarWidth / 2
		}

		bar := strings.Repeat("█", barWidth)
		if barWidth == 0 {
			bar = "▏"
		}

		mark := " "
		if truth != nil && truth[rp.Pixel] > 0.5 {
			mark = "*"
		}

		fmt.Fprintf(w, "%8d | %s | %12.6g | %s\n", rp.Pixel, mark, rp.Score, bar)
	}

	fmt.Fprintf(w, "\nScale: Min=%.6g, Max=%.6g\n", minScore, maxScore)
	if truth != nil {
		fmt.Fprintln(w, "T: * marks ground-truth target pixels")
	}
}
