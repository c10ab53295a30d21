package stack

import (
	"math"

	"channeldiffusion/internal/models"
)

// Rotate turns the frame counter-clockwise by angle degrees about its centre
// and keeps the original shape. Output pixels are bilinear samples of the
// input; samples falling outside the input read as zero.
func Rotate(frame models.Frame, angle float64) models.Frame {
	out := models.NewFrame(frame.Width, frame.Height)
	if angle == 0 {
		copy(out.Pix, frame.Pix)
		return out
	}

	theta := angle * math.Pi / 180
	cos, sin := math.Cos(theta), math.Sin(theta)
	cx := float64(frame.Width-1) / 2
	cy := float64(frame.Height-1) / 2

	for y := 0; y < frame.Height; y++ {
		dy := float64(y) - cy
		for x := 0; x < frame.Width; x++ {
			dx := float64(x) - cx
			sx := cos*dx - sin*dy + cx
			sy := sin*dx + cos*dy + cy
			out.Set(x, y, bilinear(frame, sx, sy))
		}
	}
	return out
}

func bilinear(frame models.Frame, x, y float64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix, iy := int(x0), int(y0)

	return (1-fx)*(1-fy)*pixel(frame, ix, iy) +
		fx*(1-fy)*pixel(frame, ix+1, iy) +
		(1-fx)*fy*pixel(frame, ix, iy+1) +
		fx*fy*pixel(frame, ix+1, iy+1)
}

func pixel(frame models.Frame, x, y int) float64 {
	if x < 0 || y < 0 || x >= frame.Width || y >= frame.Height {
		return 0
	}
	return frame.At(x, y)
}
