package visualization

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/stack"
)

// PreviewOptions control the weight-map overlay.
type PreviewOptions struct {
	// Scale enlarges the background by an integer factor
	Scale int

	// Contrast is passed to imaging.AdjustContrast, in percent
	Contrast float64

	// ShowPixels tints every pixel touched by a line
	ShowPixels bool
}

// DefaultPreviewOptions returns the options used by the CLI.
func DefaultPreviewOptions() PreviewOptions {
	return PreviewOptions{Scale: 4, Contrast: 20}
}

// RenderPreview draws each box outline and its transects over a frame.
// Every box gets its own hue so neighbouring channels stay distinguishable.
func RenderPreview(frame models.Frame, maps []models.WeightMap, opts PreviewOptions) *image.NRGBA {
	scale := opts.Scale
	if scale < 1 {
		scale = 1
	}

	bg := imaging.Clone(stack.ToGray16(frame))
	if scale > 1 {
		bg = imaging.Resize(bg, frame.Width*scale, frame.Height*scale, imaging.NearestNeighbor)
	}
	if opts.Contrast != 0 {
		bg = imaging.AdjustContrast(bg, opts.Contrast)
	}

	outline := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for i, wm := range maps {
		hue := 360 * float64(i) / float64(len(maps))
		lineColor := colorful.Hsv(hue, 0.9, 1)

		if opts.ShowPixels {
			tint := colorful.Hsv(hue, 0.5, 0.6)
			for _, line := range wm.Lines {
				for _, p := range line.Pixels {
					fillCell(bg, p.X, p.Y, scale, tint)
				}
			}
		}

		c := wm.Box.Corners
		for k := range c {
			drawSegment(bg, c[k], c[(k+1)%4], scale, outline)
		}
		for _, line := range wm.Lines {
			drawSegment(bg, line.Start, line.End, scale, lineColor)
		}
	}
	return bg
}

// drawSegment rasterises a segment given in frame coordinates. Pixel
// centres sit at integer coordinates, so they map to the middle of each
// scaled cell.
func drawSegment(img *image.NRGBA, a, b models.Point, scale int, c color.Color) {
	s := float64(scale)
	x0, y0 := (a.X+0.5)*s, (a.Y+0.5)*s
	x1, y1 := (b.X+0.5)*s, (b.Y+0.5)*s

	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if steps == 0 {
		img.Set(int(x0), int(y0), c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		img.Set(int(x0+(x1-x0)*t), int(y0+(y1-y0)*t), c)
	}
}

func fillCell(img *image.NRGBA, x, y, scale int, c color.Color) {
	for dy := 0; dy < scale; dy++ {
		for dx := 0; dx < scale; dx++ {
			img.Set(x*scale+dx, y*scale+dy, c)
		}
	}
}
