package visualization

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/diffusion"
	"channeldiffusion/pkg/weightmap"
)

// gradientStack builds frames whose intensity grows with x and frame index
func gradientStack(width, height, depth int) models.ImageStack {
	frames := make(models.ImageStack, depth)
	for z := range frames {
		frames[z] = models.NewFrame(width, height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				frames[z].Set(x, y, float64(x+z))
			}
		}
	}
	return frames
}

// TestNewViewer verifies that a new viewer picks up the stack dimensions
func TestNewViewer(t *testing.T) {
	viewer := NewViewer(gradientStack(10, 8, 3))

	if viewer.width != 10 {
		t.Errorf("Expected width %d, got %d", 10, viewer.width)
	}
	if viewer.height != 8 {
		t.Errorf("Expected height %d, got %d", 8, viewer.height)
	}
	if viewer.NumFrames() != 3 {
		t.Errorf("Expected %d frames, got %d", 3, viewer.NumFrames())
	}
}

// TestExtractFrame verifies frames are stretched onto the full grey range
func TestExtractFrame(t *testing.T) {
	viewer := NewViewer(gradientStack(10, 8, 3))

	img, err := viewer.ExtractFrame(1)
	if err != nil {
		t.Fatalf("Failed to extract frame: %v", err)
	}
	gray := img.(*image.Gray16)
	if gray.Gray16At(0, 0).Y != 0 || gray.Gray16At(9, 0).Y != 65535 {
		t.Errorf("Expected a stretched gradient, got %d..%d", gray.Gray16At(0, 0).Y, gray.Gray16At(9, 0).Y)
	}

	for _, index := range []int{-1, 3} {
		if _, err := viewer.ExtractFrame(index); err == nil {
			t.Errorf("Expected error for frame %d, got nil", index)
		}
	}
}

// TestExtractRegion verifies the crop covers the box and is scaled
func TestExtractRegion(t *testing.T) {
	viewer := NewViewer(gradientStack(20, 20, 1))

	img, err := viewer.ExtractRegion(0, models.Rectangle(2, 3, 4, 5), 3)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	if img.Bounds().Dx() != 15 || img.Bounds().Dy() != 18 {
		t.Errorf("Expected 15x18 region, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	if _, err := viewer.ExtractRegion(0, models.Rectangle(40, 40, 2, 2), 1); err == nil {
		t.Error("Expected error for a box outside the frame, got nil")
	}
}

// TestSaveFrameSequence verifies that every frame is written
func TestSaveFrameSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	outputDir := filepath.Join(t.TempDir(), "frames")
	viewer := NewViewer(gradientStack(5, 5, 3))
	if err := viewer.SaveFrameSequence(outputDir); err != nil {
		t.Fatalf("Failed to save frame sequence: %v", err)
	}

	for z := 0; z < 3; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%04d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected frame file does not exist: %s", filename)
		}
	}
}

// TestRenderPreview verifies the overlay size and that transects are coloured
func TestRenderPreview(t *testing.T) {
	frame := gradientStack(40, 40, 1)[0]
	shape := frame.Shape()
	wm, err := weightmap.NewBuilder(1).Preview(models.Rectangle(10, 10, 4, 20), shape, 3)
	if err != nil {
		t.Fatalf("Failed to build preview: %v", err)
	}

	img := RenderPreview(frame, []models.WeightMap{wm}, PreviewOptions{Scale: 2})
	if img.Bounds().Dx() != 80 || img.Bounds().Dy() != 80 {
		t.Fatalf("Expected 80x80 preview, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	mid := wm.Lines[1]
	x := int((mid.Start.X + mid.End.X + 1) / 2 * 2)
	y := int((mid.Start.Y + mid.End.Y + 1) / 2 * 2)
	c := img.NRGBAAt(x, y)
	if c.R == c.G && c.G == c.B {
		t.Errorf("Expected a coloured transect at (%d,%d), got grey %v", x, y, c)
	}
}

// TestRamp verifies the colour scale ends and NaN handling
func TestRamp(t *testing.T) {
	if Ramp(math.NaN()) != color.Black {
		t.Error("Expected NaN to render black")
	}

	lo := color.NRGBAModel.Convert(Ramp(-1)).(color.NRGBA)
	hi := color.NRGBAModel.Convert(Ramp(2)).(color.NRGBA)
	if lo != color.NRGBAModel.Convert(Ramp(0)).(color.NRGBA) {
		t.Error("Expected values below 0 to clamp")
	}
	if int(hi.R)+int(hi.G) <= int(lo.R)+int(lo.G) {
		t.Errorf("Expected the top of the scale to be brighter, got %v vs %v", hi, lo)
	}
}

// TestHeatmap verifies the heatmap is scaled per cell
func TestHeatmap(t *testing.T) {
	values := mat.NewDense(3, 4, []float64{
		1, 1, 1, 1,
		0.5, 0.6, 0.7, 0.8,
		0, 0, 0, math.NaN(),
	})
	img := Heatmap(values, 5)
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 15 {
		t.Fatalf("Expected 20x15 heatmap, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	r, g, b, _ := img.At(17, 12).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("Expected the NaN cell to be black, got %d %d %d", r, g, b)
	}
}

// TestRenderFitChart verifies a PNG is produced for a fitted front
func TestRenderFitChart(t *testing.T) {
	times := diffusion.Times(8, 2)
	var points []diffusion.HalfPoint
	for i, tm := range times {
		points = append(points, diffusion.HalfPoint{Time: tm, Length: diffusion.Model(tm, 2, 1) + 0.05*float64(i%2)})
	}
	result, err := diffusion.Fit(points, times)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	var buf bytes.Buffer
	if err := RenderFitChart(&buf, result); err != nil {
		t.Fatalf("Failed to render chart: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("Expected PNG output")
	}
}

// TestRenderProfileGrid verifies one panel per frame laid out in rows
func TestRenderProfileGrid(t *testing.T) {
	const lines, frames = 20, 5
	lengths := make([]float64, lines)
	values := mat.NewDense(lines, frames, nil)
	times := diffusion.Times(frames, 2)
	for l := range lengths {
		lengths[l] = float64(l)
		for f, tm := range times {
			if lengths[l] < diffusion.Model(tm, 2, 1) {
				values.Set(l, f, 1)
			}
		}
	}

	points, err := diffusion.HalfIntensityPoints(values, lengths, times)
	if err != nil {
		t.Fatalf("Failed to find half points: %v", err)
	}
	result, err := diffusion.Fit(points, times)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	img, err := RenderProfileGrid(values, lengths, result, 2)
	if err != nil {
		t.Fatalf("Failed to render grid: %v", err)
	}
	if img.Bounds().Dx() != 3*panelWidth || img.Bounds().Dy() != 2*panelHeight {
		t.Errorf("Expected a 3x2 grid of panels, got %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}

	if _, err := RenderProfileGrid(values, lengths[:3], result, 2); err == nil {
		t.Error("Expected an error for mismatched lengths")
	}
}
