package visualization

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/mat"

	"channeldiffusion/pkg/diffusion"
)

const (
	panelWidth  = 360
	panelHeight = 260
)

// RenderProfileGrid draws one panel per frame with the normalised intensity
// over length, the measured half-intensity point and the predicted front
// with its error bar. Panels fill rows left to right.
func RenderProfileGrid(normalized mat.Matrix, lengths []float64, r *diffusion.Result, rows int) (image.Image, error) {
	lines, frames := normalized.Dims()
	if len(lengths) != lines {
		return nil, fmt.Errorf("have %d lengths for %d lines", len(lengths), lines)
	}
	if len(r.LengthsHP) != frames || len(r.Predictions) != frames {
		return nil, fmt.Errorf("fit covers %d frames, profile has %d", len(r.LengthsHP), frames)
	}
	if rows < 1 {
		rows = 1
	}
	if rows > frames {
		rows = frames
	}
	cols := (frames + rows - 1) / rows

	grid := image.NewRGBA(image.Rect(0, 0, cols*panelWidth, rows*panelHeight))
	draw.Draw(grid, grid.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	spread := r.Uncertainties[0] + r.Uncertainties[1]
	column := make([]float64, lines)
	for f := 0; f < frames; f++ {
		mat.Col(column, f, normalized)
		for i, v := range column {
			// constant frames normalise to NaN
			if math.IsNaN(v) {
				column[i] = 0
			}
		}

		panel, err := renderPanel(r.Times[f], lengths, column, r.LengthsHP[f], r.Predictions[f], spread)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", f, err)
		}
		origin := image.Pt((f%cols)*panelWidth, (f/cols)*panelHeight)
		draw.Draw(grid, panel.Bounds().Add(origin), panel, panel.Bounds().Min, draw.Over)
	}
	return grid, nil
}

func renderPanel(t float64, lengths, intensity []float64, halfPoint, predicted, spread float64) (image.Image, error) {
	graph := chart.Chart{
		Title:  fmt.Sprintf("Time: %g s", t),
		Width:  panelWidth,
		Height: panelHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:  "Length",
			Style: chart.Style{FontSize: 8.0},
		},
		YAxis: chart.YAxis{
			Name:  "Intensity",
			Style: chart.Style{FontSize: 8.0},
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Measurement",
				XValues: lengths,
				YValues: intensity,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 1.5},
			},
			chart.ContinuousSeries{
				Name:    "Prediction",
				XValues: []float64{predicted - spread, predicted, predicted + spread},
				YValues: []float64{0.5, 0.5, 0.5},
				Style:   chart.Style{StrokeColor: drawing.ColorBlack, StrokeWidth: 1.0, DotWidth: 3, DotColor: drawing.ColorBlack},
			},
			chart.ContinuousSeries{
				Name:    "Half intensity point",
				XValues: []float64{halfPoint},
				YValues: []float64{0.5},
				Style:   chart.Style{StrokeWidth: chart.Disabled, DotWidth: 4, DotColor: chart.ColorRed},
			},
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return png.Decode(buffer)
}
