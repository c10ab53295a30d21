// Package diffusion tracks the half-intensity front of a fluorescence profile
// over time and fits a one-dimensional diffusion model to it.
package diffusion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Params convert pixel and frame units to physical ones.
type Params struct {
	LengthPerPixel  float64
	SecondsPerFrame float64
}

// HalfPoint is where the normalised profile of one frame first drops below
// one half.
type HalfPoint struct {
	Time   float64 `yaml:"time"`
	Length float64 `yaml:"length"`
	Line   int     `yaml:"line"`
}

// Normalize rescales every frame column of values (lines × frames) to
// [0, 1]. A constant column divides zero by zero and comes out NaN.
func Normalize(values mat.Matrix) *mat.Dense {
	rows, cols := values.Dims()
	out := mat.NewDense(rows, cols, nil)
	col := make([]float64, rows)

	for f := 0; f < cols; f++ {
		mat.Col(col, f, values)
		lo, hi := floats.Min(col), floats.Max(col)
		for l, v := range col {
			out.Set(l, f, (v-lo)/(hi-lo))
		}
	}
	return out
}

// HalfIntensityPoints returns, for every frame of the normalised matrix, the
// first line whose value is not at least 0.5. Frames that never drop below
// one half, or that are NaN throughout, report line 0.
func HalfIntensityPoints(normalized mat.Matrix, lengths, times []float64) ([]HalfPoint, error) {
	rows, cols := normalized.Dims()
	if len(lengths) != rows {
		return nil, fmt.Errorf("have %d lengths for %d lines", len(lengths), rows)
	}
	if len(times) != cols {
		return nil, fmt.Errorf("have %d times for %d frames", len(times), cols)
	}

	points := make([]HalfPoint, cols)
	for f := 0; f < cols; f++ {
		line := 0
		for l := 0; l < rows; l++ {
			if !(normalized.At(l, f) >= 0.5) {
				line = l
				break
			}
		}
		points[f] = HalfPoint{Time: times[f], Length: lengths[line], Line: line}
	}
	return points, nil
}

// Times returns the acquisition time of each of n frames.
func Times(n int, secondsPerFrame float64) []float64 {
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) * secondsPerFrame
	}
	return times
}

// Analyze runs normalisation, half-point detection and the fit on a
// lines × frames profile whose positions are given in pixels.
func Analyze(values mat.Matrix, positions []float64, p Params) (*Result, error) {
	if p.LengthPerPixel <= 0 || p.SecondsPerFrame <= 0 {
		return nil, fmt.Errorf("length per pixel and seconds per frame must be positive")
	}
	_, frames := values.Dims()

	lengths := make([]float64, len(positions))
	floats.ScaleTo(lengths, p.LengthPerPixel, positions)
	times := Times(frames, p.SecondsPerFrame)

	points, err := HalfIntensityPoints(Normalize(values), lengths, times)
	if err != nil {
		return nil, err
	}

	result, err := Fit(points, times)
	if err != nil {
		return nil, err
	}
	result.SecondsPerFrame = p.SecondsPerFrame
	result.LengthPerPixel = p.LengthPerPixel
	return result, nil
}

// Model is the front position sqrt(2·D·t) + C. Negative radicands clamp to
// zero.
func Model(t, d, c float64) float64 {
	return math.Sqrt(math.Max(0, 2*d*t)) + c
}
