// Package visualization renders frames, weight-map previews, intensity
// heatmaps and diffusion fits as images.
package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/disintegration/imaging"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/stack"
)

// Viewer gives image access to the frames of a stack.
type Viewer struct {
	// stack holds the prepared frames, already rotated and skipped
	stack models.ImageStack

	width  int
	height int
}

// NewViewer creates a viewer over the given stack
func NewViewer(frames models.ImageStack) *Viewer {
	v := &Viewer{stack: frames}
	if len(frames) > 0 {
		v.width = frames[0].Width
		v.height = frames[0].Height
	}
	return v
}

// NumFrames returns the number of frames in the stack.
func (v *Viewer) NumFrames() int {
	return len(v.stack)
}

// ExtractFrame returns frame i stretched onto 16-bit grey.
func (v *Viewer) ExtractFrame(index int) (image.Image, error) {
	if index < 0 || index >= len(v.stack) {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", index, len(v.stack))
	}
	return stack.ToGray16(v.stack[index]), nil
}

// ExtractRegion crops the box's bounding rectangle out of frame i and
// scales it up by an integer factor.
func (v *Viewer) ExtractRegion(index int, box models.BoundingBox, scale int) (image.Image, error) {
	img, err := v.ExtractFrame(index)
	if err != nil {
		return nil, err
	}
	if scale < 1 {
		return nil, fmt.Errorf("scale must be at least 1")
	}

	rect := boxRect(box).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("box lies outside the %dx%d frame", v.width, v.height)
	}

	cropped := imaging.Crop(img, rect)
	if scale > 1 {
		cropped = imaging.Resize(cropped, rect.Dx()*scale, rect.Dy()*scale, imaging.NearestNeighbor)
	}
	return cropped, nil
}

// SaveImage writes img as PNG, creating the directory if needed.
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imgio.Save(filename, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// SaveFrameSequence writes every frame to outputDir as frame_NNNN.png.
func (v *Viewer) SaveFrameSequence(outputDir string) error {
	for i := range v.stack {
		img, err := v.ExtractFrame(i)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("frame_%04d.png", i))
		if err := SaveImage(img, filename); err != nil {
			return fmt.Errorf("failed to save frame %d: %w", i, err)
		}
	}
	return nil
}

// boxRect returns the pixel rectangle covering the box's corners.
func boxRect(box models.BoundingBox) image.Rectangle {
	minX, minY := box.Corners[0].X, box.Corners[0].Y
	maxX, maxY := minX, minY
	for _, c := range box.Corners[1:] {
		minX = min(minX, c.X)
		minY = min(minY, c.Y)
		maxX = max(maxX, c.X)
		maxY = max(maxY, c.Y)
	}
	return image.Rect(int(minX), int(minY), int(maxX)+1, int(maxY)+1)
}
