package scoring

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SaveROCPlot draws the curves into one image; the format follows the file
// extension.
func SaveROCPlot(path string, curves ...Curve) error {
	p := plot.New()
	p.Title.Text = "ROC Curve"
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	for i, c := range curves {
		pts := make(plotter.XYs, len(c.FPR))
		for k := range c.FPR {
			pts[k] = plotter.XY{X: c.FPR[k], Y: c.TPR[k]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("roc line %s: %w", c.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (AUC %.5f)", c.Name, c.AUC), line)
	}

	p.Legend.Top = false
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = 10

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := p.Save(7*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save roc plot: %w", err)
	}
	return nil
}

// scoreGrid lays a column-major pixel vector out on its image grid with image
// row 0 at the top.
type scoreGrid struct {
	scores []float64
	height int
	width  int
}

func (g scoreGrid) Dims() (c, r int)   { return g.width, g.height }
func (g scoreGrid) X(c int) float64    { return float64(c) }
func (g scoreGrid) Y(r int) float64    { return float64(r) }
func (g scoreGrid) Z(c, r int) float64 { return g.scores[c*g.height+(g.height-1-r)] }

// SaveScoreMap renders scores (height*width pixels, column-major) as a heat map.
func SaveScoreMap(path, title string, scores []float64, height, width int) error {
	if height*width != len(scores) || len(scores) == 0 {
		return fmt.Errorf("score map %s: %d scores do not fill a %dx%d grid", title, len(scores), height, width)
	}

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()

	grid := scoreGrid{scores: MinMaxScale(scores), height: height, width: width}
	p.Add(plotter.NewHeatMap(grid, palette.Heat(64, 1)))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	side := 6 * vg.Inch
	aspect := vg.Length(float64(height) / float64(width))
	if err := p.Save(side, side*aspect, path); err != nil {
		return fmt.Errorf("save score map: %w", err)
	}
	return nil
}
