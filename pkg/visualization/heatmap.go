package visualization

import (
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/transform"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
)

// viridis stops, dark to bright
var rampStops = []colorful.Color{
	mustHex("#440154"),
	mustHex("#3b528b"),
	mustHex("#21918c"),
	mustHex("#5ec962"),
	mustHex("#fde725"),
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Ramp maps v in [0, 1] onto the colour scale. Values outside the range are
// clamped and NaN renders black.
func Ramp(v float64) color.Color {
	if math.IsNaN(v) {
		return color.Black
	}
	v = math.Max(0, math.Min(1, v))

	pos := v * float64(len(rampStops)-1)
	i := int(pos)
	if i >= len(rampStops)-1 {
		return rampStops[len(rampStops)-1].Clamped()
	}
	return rampStops[i].BlendLab(rampStops[i+1], pos-float64(i)).Clamped()
}

// Heatmap renders a normalised lines × frames matrix with frames along x
// and lines along y. Each cell becomes a cellSize square.
func Heatmap(values mat.Matrix, cellSize int) image.Image {
	lines, frames := values.Dims()
	small := image.NewRGBA(image.Rect(0, 0, frames, lines))
	for l := 0; l < lines; l++ {
		for f := 0; f < frames; f++ {
			small.Set(f, l, Ramp(values.At(l, f)))
		}
	}

	if cellSize <= 1 {
		return small
	}
	return transform.Resize(small, frames*cellSize, lines*cellSize, transform.NearestNeighbor)
}
