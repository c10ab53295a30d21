package visualization

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"channeldiffusion/pkg/diffusion"
)

// RenderFitChart plots the measured half-intensity points against the
// fitted front and its one-sigma band as PNG.
func RenderFitChart(w io.Writer, r *diffusion.Result) error {
	band := drawing.Color{R: 128, G: 128, B: 128, A: 255}

	graph := chart.Chart{
		Title:  fmt.Sprintf("D = %.4g ± %.2g, C = %.4g ± %.2g", r.D, r.Uncertainties[0], r.C, r.Uncertainties[1]),
		Width:  900,
		Height: 600,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name:  "Time [s]",
			Style: chart.Style{FontSize: 10.0},
		},
		YAxis: chart.YAxis{
			Name:  "Length",
			Style: chart.Style{FontSize: 10.0},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Lower bound",
				XValues: r.Times,
				YValues: r.Lower,
				Style:   chart.Style{StrokeColor: band, StrokeWidth: 1.0, StrokeDashArray: []float64{5, 5}},
			},
			chart.ContinuousSeries{
				Name:    "Upper bound",
				XValues: r.Times,
				YValues: r.Upper,
				Style:   chart.Style{StrokeColor: band, StrokeWidth: 1.0, StrokeDashArray: []float64{5, 5}},
			},
			chart.ContinuousSeries{
				Name:    "Prediction",
				XValues: r.Times,
				YValues: r.Predictions,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2.0},
			},
			chart.ContinuousSeries{
				Name:    "Half intensity point",
				XValues: r.TimesHP,
				YValues: r.LengthsHP,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    4,
					DotColor:    chart.ColorRed,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// SaveFitChart renders the chart to path.
func SaveFitChart(path string, r *diffusion.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := RenderFitChart(file, r); err != nil {
		file.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return file.Close()
}
