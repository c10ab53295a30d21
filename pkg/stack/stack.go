// Package stack loads time-lapse frames from disk into float64 image stacks.
package stack

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	"channeldiffusion/internal/models"
)

// Options control how frames are prepared after decoding.
type Options struct {
	// Angle rotates every frame counter-clockwise, in degrees
	Angle float64

	// Skip lists frame indices, counted before skipping, to drop
	Skip []int

	// Limit keeps at most this many frames when positive
	Limit int
}

var frameExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
}

// ListFrames returns the image files of dir ordered by the number embedded
// in their names.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no image files found in %s", dir)
	}

	sort.SliceStable(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(dir, f)
	}
	return paths, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// Load reads every frame of dir, drops skipped frames and rotates the rest.
// All frames must share one shape. Frames are one image file each;
// multi-page TIFF stacks must be split into per-frame files first, since
// only the first page of a TIFF is decoded.
func Load(dir string, opts Options) (models.ImageStack, error) {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%s is a single file, expected a directory with one image per frame", dir)
	}
	paths, err := ListFrames(dir)
	if err != nil {
		return nil, err
	}
	paths = Retain(paths, opts.Skip)
	if opts.Limit > 0 && len(paths) > opts.Limit {
		paths = paths[:opts.Limit]
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("every frame in %s was skipped", dir)
	}

	stack := make(models.ImageStack, 0, len(paths))
	for _, path := range paths {
		frame, err := LoadFrame(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %w", filepath.Base(path), err)
		}
		if len(stack) > 0 && frame.Shape() != stack[0].Shape() {
			return nil, fmt.Errorf("frame %s is %dx%d, expected %dx%d",
				filepath.Base(path), frame.Width, frame.Height, stack[0].Width, stack[0].Height)
		}
		if opts.Angle != 0 {
			frame = Rotate(frame, opts.Angle)
		}
		stack = append(stack, frame)
	}
	return stack, nil
}

// Retain drops the entries whose index appears in skip.
func Retain[T any](items []T, skip []int) []T {
	if len(skip) == 0 {
		return items
	}
	drop := make(map[int]bool, len(skip))
	for _, s := range skip {
		drop[s] = true
	}
	out := make([]T, 0, len(items))
	for i, item := range items {
		if !drop[i] {
			out = append(out, item)
		}
	}
	return out
}

// LoadFrame decodes a single image file.
func LoadFrame(path string) (models.Frame, error) {
	img, err := decode(path)
	if err != nil {
		return models.Frame{}, err
	}
	return FromImage(img), nil
}

func decode(path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return tiff.Decode(file)
	default:
		return imaging.Open(path)
	}
}

// FromImage converts img to a frame of raw intensities. 16-bit grey images
// keep their full range; everything else goes through the 16-bit grey model.
func FromImage(img image.Image) models.Frame {
	bounds := img.Bounds()
	frame := models.NewFrame(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < frame.Height; y++ {
			for x := 0; x < frame.Width; x++ {
				frame.Set(x, y, float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
	case *image.Gray:
		for y := 0; y < frame.Height; y++ {
			for x := 0; x < frame.Width; x++ {
				frame.Set(x, y, float64(src.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y))
			}
		}
	default:
		for y := 0; y < frame.Height; y++ {
			for x := 0; x < frame.Width; x++ {
				g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				frame.Set(x, y, float64(g.Y))
			}
		}
	}
	return frame
}

// ToGray16 rescales the frame's range onto 16-bit grey for display.
func ToGray16(frame models.Frame) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, frame.Width, frame.Height))
	if len(frame.Pix) == 0 {
		return img
	}

	lo, hi := frame.Pix[0], frame.Pix[0]
	for _, v := range frame.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}

	for y := 0; y < frame.Height; y++ {
		for x := 0; x < frame.Width; x++ {
			v := (frame.At(x, y) - lo) * scale
			img.SetGray16(x, y, color.Gray16{Y: uint16(v + 0.5)})
		}
	}
	return img
}
