package weightmap

import (
	"fmt"
	"math"
	"strings"

	"channeldiffusion/internal/models"
)

// Kernel decides how a sub-pixel sample is spread over integer pixels.
type Kernel int

const (
	// Bilinear gives each of the four enclosing pixels a share of the
	// sample proportional to its proximity.
	Bilinear Kernel = iota

	// Nearest gives the whole sample to the closest pixel.
	Nearest
)

// ParseKernel converts a config value into a Kernel.
func ParseKernel(name string) (Kernel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest", "nearest-neighbor", "nearest-neighbour":
		return Nearest, nil
	default:
		return Bilinear, fmt.Errorf("unknown interpolation kernel %q (must be bilinear or nearest)", name)
	}
}

func (k Kernel) String() string {
	switch k {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Kernel(%d)", int(k))
	}
}

// spread distributes a unit sample at p into acc.
func (k Kernel) spread(p models.Point, acc *accumulator) {
	switch k {
	case Nearest:
		acc.add(int(math.Round(p.X)), int(math.Round(p.Y)), 1)
	default:
		x0 := math.Floor(p.X)
		y0 := math.Floor(p.Y)
		fx := p.X - x0
		fy := p.Y - y0
		ix, iy := int(x0), int(y0)

		acc.add(ix, iy, (1-fx)*(1-fy))
		acc.add(ix+1, iy, fx*(1-fy))
		acc.add(ix, iy+1, (1-fx)*fy)
		acc.add(ix+1, iy+1, fx*fy)
	}
}

// accumulator merges weights per pixel, remembering first-contact order.
type accumulator struct {
	index  map[[2]int]int
	pixels []models.PixelWeight
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[[2]int]int)}
}

func (a *accumulator) add(x, y int, w float64) {
	if w == 0 {
		return
	}
	key := [2]int{x, y}
	if i, ok := a.index[key]; ok {
		a.pixels[i].Weight += w
		return
	}
	a.index[key] = len(a.pixels)
	a.pixels = append(a.pixels, models.PixelWeight{X: x, Y: y, Weight: w})
}
