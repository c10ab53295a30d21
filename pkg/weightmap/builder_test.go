package weightmap

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/geometry"
)

const tolerance = 1e-9

var testShape = models.Shape{Height: 120, Width: 160}

// TestLineCountRectangles verifies round(max(W,H)) lines of length min(W,H)
func TestLineCountRectangles(t *testing.T) {
	tests := []struct {
		width, height float64
	}{
		{10, 4},
		{4, 10},
		{25.4, 6},
		{7, 7},
		{31, 2.5},
	}

	builder := NewBuilder(1)
	for _, tt := range tests {
		box := models.Rectangle(20, 30, tt.width, tt.height)
		wm, err := builder.Build(box, testShape)
		if err != nil {
			t.Fatalf("Build %vx%v failed: %v", tt.width, tt.height, err)
		}

		want := int(math.Round(math.Max(tt.width, tt.height)))
		if len(wm.Lines) != want {
			t.Errorf("%vx%v: expected %d lines, got %d", tt.width, tt.height, want, len(wm.Lines))
		}

		short := math.Min(tt.width, tt.height)
		for i, line := range wm.Lines {
			if math.Abs(line.Length-short) > 1e-6 {
				t.Errorf("%vx%v: expected line %d length %f, got %f", tt.width, tt.height, i, short, line.Length)
			}
		}
	}
}

// TestLineCountClamp verifies dense sampling never produces more lines than integer positions
func TestLineCountClamp(t *testing.T) {
	if got := LineCount(10, 5); got != 11 {
		t.Errorf("Expected clamp to 11 lines, got %d", got)
	}
	if got := LineCount(10, 0.5); got != 5 {
		t.Errorf("Expected 5 lines, got %d", got)
	}
	if got := LineCount(0.2, 0.1); got != 1 {
		t.Errorf("Expected at least 1 line, got %d", got)
	}
}

// TestSinglePixelBox verifies a 1x1 box yields exactly one line
func TestSinglePixelBox(t *testing.T) {
	wm, err := NewBuilder(1).Build(models.Rectangle(5, 5, 1, 1), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(wm.Lines) != 1 {
		t.Errorf("Expected 1 line, got %d", len(wm.Lines))
	}
	if len(wm.Lines[0].Pixels) == 0 {
		t.Error("Expected the line to touch pixels")
	}
}

// TestDegenerateBox verifies zero-area boxes fail with ErrDegenerateGeometry
func TestDegenerateBox(t *testing.T) {
	_, err := NewBuilder(1).Build(models.Rectangle(5, 5, 10, 0), testShape)
	if !errors.Is(err, geometry.ErrDegenerateGeometry) {
		t.Errorf("Expected ErrDegenerateGeometry, got %v", err)
	}
}

// TestInvalidDensity verifies a non-positive density fails with ErrEmptyWeightMap
func TestInvalidDensity(t *testing.T) {
	for _, lpl := range []float64{0, -1, math.NaN()} {
		_, err := NewBuilder(lpl).Build(models.Rectangle(5, 5, 10, 4), testShape)
		if !errors.Is(err, ErrEmptyWeightMap) {
			t.Errorf("Density %v: expected ErrEmptyWeightMap, got %v", lpl, err)
		}
	}
}

// TestBuildOutOfBounds verifies boxes reaching past the image fail instead of clamping
func TestBuildOutOfBounds(t *testing.T) {
	shape := models.Shape{Height: 20, Width: 20}
	_, err := NewBuilder(1).Build(models.Rectangle(12, 2, 10, 4), shape)
	if !errors.Is(err, ErrOutOfBoundsSample) {
		t.Errorf("Expected ErrOutOfBoundsSample, got %v", err)
	}
}

// TestBuildDeterministic verifies two builds are identical
func TestBuildDeterministic(t *testing.T) {
	box := models.NewBoundingBox(
		models.Point{X: 10.3, Y: 12.1},
		models.Point{X: 60.7, Y: 20.9},
		models.Point{X: 58.2, Y: 31.4},
		models.Point{X: 8.8, Y: 22.6},
	)
	builder := NewBuilder(1.5)
	builder.SamplesPerPixel = 2

	first, err := builder.Build(box, testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := builder.Build(box, testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected bit-identical weight maps from identical inputs")
	}
}

// TestLinesOrderedAlongAxis verifies line centres advance from the axis start to its end
func TestLinesOrderedAlongAxis(t *testing.T) {
	wm, err := NewBuilder(1).Build(models.Rectangle(10, 10, 4, 30), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	prev := math.Inf(-1)
	for i, line := range wm.Lines {
		cy := (line.Start.Y + line.End.Y) / 2
		if cy <= prev {
			t.Errorf("Line %d centre y=%f does not advance past %f", i, cy, prev)
		}
		prev = cy
	}
	if wm.Lines[0].Start.Y != 10 || wm.Lines[len(wm.Lines)-1].Start.Y != 40 {
		t.Errorf("Expected lines to include both ends of the axis, got first y=%f last y=%f",
			wm.Lines[0].Start.Y, wm.Lines[len(wm.Lines)-1].Start.Y)
	}
}

// TestBilinearWeights verifies sub-pixel samples are shared between neighbours
func TestBilinearWeights(t *testing.T) {
	acc := newAccumulator()
	Bilinear.spread(models.Point{X: 2.25, Y: 3}, acc)

	want := []models.PixelWeight{{X: 2, Y: 3, Weight: 0.75}, {X: 3, Y: 3, Weight: 0.25}}
	if !reflect.DeepEqual(acc.pixels, want) {
		t.Errorf("Expected %v, got %v", want, acc.pixels)
	}

	acc = newAccumulator()
	Bilinear.spread(models.Point{X: 4, Y: 7}, acc)
	if len(acc.pixels) != 1 || acc.pixels[0].Weight != 1 {
		t.Errorf("Expected a sample on a pixel centre to hit one pixel, got %v", acc.pixels)
	}
}

// TestNearestWeights verifies nearest-neighbour sampling gives whole samples to one pixel
func TestNearestWeights(t *testing.T) {
	acc := newAccumulator()
	Nearest.spread(models.Point{X: 2.25, Y: 3.6}, acc)
	Nearest.spread(models.Point{X: 1.9, Y: 4.1}, acc)

	want := []models.PixelWeight{{X: 2, Y: 4, Weight: 2}}
	if !reflect.DeepEqual(acc.pixels, want) {
		t.Errorf("Expected %v, got %v", want, acc.pixels)
	}
}

// TestKernelsAgreeOnGrid verifies both kernels give the same map when samples sit on pixel centres
func TestKernelsAgreeOnGrid(t *testing.T) {
	// 13 lines over a 12 pixel axis puts every line on a pixel column
	box := models.Rectangle(10, 20, 12, 6)
	density := 13.0 / 12

	bilinear := NewBuilder(density)
	nearest := NewBuilder(density)
	nearest.Kernel = Nearest

	a, err := bilinear.Build(box, testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	b, err := nearest.Build(box, testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(a.Lines) != 13 {
		t.Fatalf("Expected 13 lines, got %d", len(a.Lines))
	}
	for i := range a.Lines {
		if !reflect.DeepEqual(a.Lines[i].Pixels, b.Lines[i].Pixels) {
			t.Errorf("Line %d differs between kernels: %v vs %v", i, a.Lines[i].Pixels, b.Lines[i].Pixels)
		}
	}
	if a.Kernel != "bilinear" || b.Kernel != "nearest" {
		t.Errorf("Expected kernel names to be recorded, got %q and %q", a.Kernel, b.Kernel)
	}
}

// TestParseKernel verifies config names map onto kernels
func TestParseKernel(t *testing.T) {
	tests := map[string]Kernel{"": Bilinear, "bilinear": Bilinear, "Nearest": Nearest, "nearest-neighbor": Nearest}
	for name, want := range tests {
		got, err := ParseKernel(name)
		if err != nil || got != want {
			t.Errorf("ParseKernel(%q) = %v, %v; expected %v", name, got, err, want)
		}
	}
	if _, err := ParseKernel("bicubic"); err == nil {
		t.Error("Expected an error for an unknown kernel")
	}
}

// TestBuildAllOrder verifies maps come back in left-to-right box order
func TestBuildAllOrder(t *testing.T) {
	boxes, err := geometry.NewBoxList(
		models.Rectangle(50, 10, 4, 30),
		models.Rectangle(10, 10, 4, 20),
		models.Rectangle(30, 10, 4, 40),
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	builder := NewBuilder(1)
	builder.Workers = 3
	calls := 0
	builder.Progress = func(completed, total int, message string) {
		calls++
		if total != 3 {
			t.Errorf("Expected total 3, got %d", total)
		}
	}

	maps, err := builder.BuildAll(boxes, testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expectedLeft := []float64{10, 30, 50}
	expectedLines := []int{20, 40, 30}
	for i, wm := range maps {
		if wm.Box.Leftmost() != expectedLeft[i] {
			t.Errorf("Expected map %d for box at x=%f, got %f", i, expectedLeft[i], wm.Box.Leftmost())
		}
		if len(wm.Lines) != expectedLines[i] {
			t.Errorf("Expected map %d to have %d lines, got %d", i, expectedLines[i], len(wm.Lines))
		}
	}
	if calls != 3 {
		t.Errorf("Expected 3 progress calls, got %d", calls)
	}
}

// TestBuildAllError verifies the leftmost failing box is reported
func TestBuildAllError(t *testing.T) {
	boxes, err := geometry.NewBoxList(
		models.Rectangle(10, 10, 4, 20),
		models.Rectangle(150, 10, 20, 4),
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err = NewBuilder(1).BuildAll(boxes, testShape)
	if !errors.Is(err, ErrOutOfBoundsSample) {
		t.Errorf("Expected ErrOutOfBoundsSample, got %v", err)
	}

	if _, err := NewBuilder(1).BuildAll(geometry.BoxList{}, testShape); !errors.Is(err, ErrEmptyWeightMap) {
		t.Errorf("Expected ErrEmptyWeightMap for no boxes, got %v", err)
	}
}

// TestPreview verifies the preview uses the requested number of lines
func TestPreview(t *testing.T) {
	wm, err := NewBuilder(1).Preview(models.Rectangle(10, 10, 40, 6), testShape, 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(wm.Lines) != 5 {
		t.Errorf("Expected 5 preview lines, got %d", len(wm.Lines))
	}
	if _, err := NewBuilder(1).Preview(models.Rectangle(10, 10, 40, 6), testShape, 0); !errors.Is(err, ErrEmptyWeightMap) {
		t.Errorf("Expected ErrEmptyWeightMap for zero preview lines, got %v", err)
	}
}

// TestMiddleLineLength verifies the centre transect length for rectangles and trapezoids
func TestMiddleLineLength(t *testing.T) {
	l, err := MiddleLineLength(models.Rectangle(0, 0, 30, 5))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(l-5) > tolerance {
		t.Errorf("Expected 5, got %f", l)
	}

	trapezoid := models.NewBoundingBox(
		models.Point{X: 0, Y: 4}, models.Point{X: 20, Y: 2},
		models.Point{X: 20, Y: 8}, models.Point{X: 0, Y: 6},
	)
	l, err = MiddleLineLength(trapezoid)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(l-4) > tolerance {
		t.Errorf("Expected 4, got %f", l)
	}

	boxes, _ := geometry.NewBoxList(models.Rectangle(40, 0, 3, 20), models.Rectangle(0, 0, 30, 5))
	lengths, err := MiddleLineLengths(boxes)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if math.Abs(lengths[0]-5) > tolerance || math.Abs(lengths[1]-3) > tolerance {
		t.Errorf("Expected [5 3], got %v", lengths)
	}
}
