package weightmap

import (
	"errors"
	"math"
	"testing"

	"channeldiffusion/internal/models"
)

// createTestStack builds a stack whose pixel values follow pattern(frame, x, y)
func createTestStack(shape models.Shape, frames int, pattern func(f, x, y int) float64) models.ImageStack {
	stack := make(models.ImageStack, frames)
	for f := range stack {
		frame := models.NewFrame(shape.Width, shape.Height)
		for y := 0; y < shape.Height; y++ {
			for x := 0; x < shape.Width; x++ {
				frame.Set(x, y, pattern(f, x, y))
			}
		}
		stack[f] = frame
	}
	return stack
}

func tiltedBox(dx, dy float64) models.BoundingBox {
	return models.NewBoundingBox(
		models.Point{X: 12.4 + dx, Y: 15.2 + dy},
		models.Point{X: 70.9 + dx, Y: 31.7 + dy},
		models.Point{X: 67.3 + dx, Y: 42.5 + dy},
		models.Point{X: 9.6 + dx, Y: 25.1 + dy},
	)
}

// TestApplyConstantFrame verifies a constant frame reduces to the same constant everywhere
func TestApplyConstantFrame(t *testing.T) {
	boxes := []models.BoundingBox{
		models.Rectangle(20, 20, 30, 5),
		models.Rectangle(5, 5, 1, 1),
		tiltedBox(0, 0),
		models.NewBoundingBox(
			models.Point{X: 10, Y: 60}, models.Point{X: 50, Y: 55},
			models.Point{X: 52, Y: 75}, models.Point{X: 12, Y: 68},
		),
	}

	for _, kernel := range []Kernel{Bilinear, Nearest} {
		builder := NewBuilder(1.3)
		builder.SamplesPerPixel = 3
		builder.Kernel = kernel

		for b, box := range boxes {
			wm, err := builder.Build(box, testShape)
			if err != nil {
				t.Fatalf("%v box %d: build failed: %v", kernel, b, err)
			}

			for _, c := range []float64{0, 1, 417.25} {
				stack := createTestStack(testShape, 3, func(f, x, y int) float64 { return c })
				profile, err := Apply(wm, stack)
				if err != nil {
					t.Fatalf("%v box %d: apply failed: %v", kernel, b, err)
				}
				for l, row := range profile.Values {
					for f, v := range row {
						if math.Abs(v-c) > tolerance*math.Max(1, c) {
							t.Errorf("%v box %d: expected %f at line %d frame %d, got %f", kernel, b, c, l, f, v)
						}
					}
				}
			}
		}
	}
}

// TestApplyTranslationInvariant verifies moving frame and box together leaves the profile unchanged
func TestApplyTranslationInvariant(t *testing.T) {
	pattern := func(offsetX, offsetY int) func(f, x, y int) float64 {
		return func(f, x, y int) float64 {
			u, v := float64(x-offsetX), float64(y-offsetY)
			return 100*math.Sin(u/7)*math.Cos(v/5) + float64(f)*u + v*v/10
		}
	}

	builder := NewBuilder(1)
	builder.SamplesPerPixel = 2

	base, err := builder.Build(tiltedBox(0, 0), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	moved, err := builder.Build(tiltedBox(23, 17), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p1, err := Apply(base, createTestStack(testShape, 4, pattern(0, 0)))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	p2, err := Apply(moved, createTestStack(testShape, 4, pattern(23, 17)))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if p1.NumLines() != p2.NumLines() || p1.NumFrames() != p2.NumFrames() {
		t.Fatalf("Expected equal profile shapes, got %dx%d and %dx%d", p1.NumLines(), p1.NumFrames(), p2.NumLines(), p2.NumFrames())
	}
	for l := range p1.Values {
		for f := range p1.Values[l] {
			if d := math.Abs(p1.Values[l][f] - p2.Values[l][f]); d > 1e-6 {
				t.Errorf("Line %d frame %d differs by %g after translation", l, f, d)
			}
		}
	}
	if math.Abs(p1.MiddleLineLength-p2.MiddleLineLength) > tolerance {
		t.Errorf("Expected equal middle line lengths, got %f and %f", p1.MiddleLineLength, p2.MiddleLineLength)
	}
}

// TestApplyWeightedMean verifies the normalised sum against a hand-built map
func TestApplyWeightedMean(t *testing.T) {
	shape := models.Shape{Height: 4, Width: 4}
	wm := models.WeightMap{
		Box:        models.Rectangle(0, 0, 3, 3),
		Shape:      shape,
		AxisLength: 3,
		Lines: []models.Line{
			{Pixels: []models.PixelWeight{{X: 0, Y: 0, Weight: 1}, {X: 1, Y: 0, Weight: 3}}},
			{Pixels: []models.PixelWeight{{X: 3, Y: 3, Weight: 0.5}}},
		},
	}
	stack := createTestStack(shape, 2, func(f, x, y int) float64 {
		return float64(10*f + x + 4*y)
	})

	profile, err := NewApplier(2).Apply(wm, stack)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := [][]float64{
		{(0 + 3*1) / 4.0, (10 + 3*11) / 4.0},
		{15, 25},
	}
	for l := range expected {
		for f := range expected[l] {
			if math.Abs(profile.Values[l][f]-expected[l][f]) > tolerance {
				t.Errorf("Line %d frame %d: expected %f, got %f", l, f, expected[l][f], profile.Values[l][f])
			}
		}
	}
	if profile.Positions[0] != 0 || profile.Positions[1] != 3 {
		t.Errorf("Expected positions [0 3], got %v", profile.Positions)
	}
}

// TestApplyDoesNotMutateStack verifies frames are left untouched
func TestApplyDoesNotMutateStack(t *testing.T) {
	wm, err := NewBuilder(1).Build(models.Rectangle(10, 10, 20, 4), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	stack := createTestStack(testShape, 2, func(f, x, y int) float64 { return float64(x*y + f) })
	snapshot := make([]float64, len(stack[1].Pix))
	copy(snapshot, stack[1].Pix)

	if _, err := NewApplier(4).Apply(wm, stack); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i := range snapshot {
		if stack[1].Pix[i] != snapshot[i] {
			t.Fatalf("Pixel %d changed from %f to %f", i, snapshot[i], stack[1].Pix[i])
		}
	}
}

// TestApplyShapeMismatch verifies frames of a different size are rejected
func TestApplyShapeMismatch(t *testing.T) {
	wm, err := NewBuilder(1).Build(models.Rectangle(10, 10, 20, 4), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	other := models.Shape{Height: testShape.Height, Width: testShape.Width + 1}
	if _, err := Apply(wm, createTestStack(other, 1, func(f, x, y int) float64 { return 1 })); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
	if _, err := Apply(wm, models.ImageStack{}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch for an empty stack, got %v", err)
	}
}

// TestApplyOutOfBounds verifies a map pointing outside the frame is rejected, not clamped
func TestApplyOutOfBounds(t *testing.T) {
	shape := models.Shape{Height: 4, Width: 4}
	wm := models.WeightMap{
		Box:   models.Rectangle(0, 0, 3, 3),
		Shape: shape,
		Lines: []models.Line{
			{Pixels: []models.PixelWeight{{X: 1, Y: 1, Weight: 1}, {X: 4, Y: 1, Weight: 1}}},
		},
	}
	stack := createTestStack(shape, 1, func(f, x, y int) float64 { return 1 })
	if _, err := Apply(wm, stack); !errors.Is(err, ErrOutOfBoundsSample) {
		t.Errorf("Expected ErrOutOfBoundsSample, got %v", err)
	}
}

// TestApplyAllProgress verifies every map is applied and progress covers every frame
func TestApplyAllProgress(t *testing.T) {
	builder := NewBuilder(1)
	a, err := builder.Build(models.Rectangle(10, 10, 20, 4), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	b, err := builder.Build(models.Rectangle(40, 10, 4, 12), testShape)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	applier := NewApplier(3)
	last := 0
	applier.Progress = func(completed, total int, message string) {
		if completed != last+1 && completed != 1 {
			t.Errorf("Expected progress to advance by one, got %d after %d", completed, last)
		}
		last = completed
	}

	stack := createTestStack(testShape, 5, func(f, x, y int) float64 { return float64(f) })
	profiles, err := applier.ApplyAll([]models.WeightMap{a, b}, stack)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(profiles) != 2 || profiles[0].NumLines() != 20 || profiles[1].NumLines() != 12 {
		t.Fatalf("Unexpected profile shapes")
	}
	for _, p := range profiles {
		for l := range p.Values {
			for f, v := range p.Values[l] {
				if math.Abs(v-float64(f)) > tolerance {
					t.Errorf("Expected frame index %d as intensity, got %f", f, v)
				}
			}
		}
	}
	if last != 5 {
		t.Errorf("Expected final progress 5, got %d", last)
	}
}
