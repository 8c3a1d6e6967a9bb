package scoring

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// RenderScoreChart writes an interactive HTML score map of a height×width
// scene. Scores are min-max scaled; pixels marked in truth are drawn larger.
func RenderScoreChart(w io.Writer, title string, scores []float64, truth GroundTruth, height, width int) error {
	if height*width != len(scores) || len(scores) == 0 {
		return fmt.Errorf("score chart %s: %d scores do not fill a %dx%d grid", title, len(scores), height, width)
	}
	if truth != nil && len(truth) != len(scores) {
		return fmt.Errorf("score chart %s: %d ground truth pixels for %d scores", title, len(truth), len(scores))
	}

	scaled := MinMaxScale(scores)
	background := make([]opts.ScatterData, 0, len(scores))
	targets := make([]opts.ScatterData, 0)
	for p, s := range scaled {
		// image row 0 at the top
		pt := opts.ScatterData{Value: []interface{}{p / height, height - 1 - p%height, s}}
		if truth != nil && truth[p] > 0.5 {
			targets = append(targets, pt)
			continue
		}
		background = append(background, pt)
	}

	side := 900
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     fmt.Sprintf("%dpx", side),
			Height:    fmt.Sprintf("%dpx", side*height/width),
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("pixels=%d grid=%dx%d", len(scores), height, width)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: width - 1, Name: "column", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: height - 1, Name: "row", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	scatter.AddSeries("background", background, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	if len(targets) > 0 {
		scatter.AddSeries("target", targets, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render score chart: %w", err)
	}
	return nil
}
