// Package weightmap turns bounding boxes into weighted transects and
// reduces image stacks along them into intensity profiles.
package weightmap

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/geometry"
)

// ProgressFunc reports progress of a batch operation.
type ProgressFunc func(completed, total int, message string)

// Builder generates weight maps for bounding boxes.
type Builder struct {
	// LinesPerPixelLength is the transect density along the long axis
	LinesPerPixelLength float64

	// SamplesPerPixel is the sampling density along each transect
	SamplesPerPixel float64

	// Kernel spreads sub-pixel samples over integer pixels
	Kernel Kernel

	// Workers bounds the number of boxes built concurrently by BuildAll
	Workers int

	// Progress is called after each box when set
	Progress ProgressFunc
}

// NewBuilder returns a builder with unit sampling and bilinear weights.
func NewBuilder(linesPerPixelLength float64) *Builder {
	return &Builder{
		LinesPerPixelLength: linesPerPixelLength,
		SamplesPerPixel:     1,
		Kernel:              Bilinear,
		Workers:             runtime.NumCPU(),
	}
}

// LineCount returns the number of transects for an axis of the given length:
// round(length × density), at least one, and never more than the number of
// distinct integer positions along the axis.
func LineCount(axisLength, linesPerPixelLength float64) int {
	n := int(math.Round(axisLength * linesPerPixelLength))
	if n < 1 {
		n = 1
	}
	if limit := int(math.Floor(axisLength)) + 1; n > limit {
		n = limit
	}
	return n
}

// Build produces the weight map for one box.
func (b *Builder) Build(box models.BoundingBox, shape models.Shape) (models.WeightMap, error) {
	lpl := b.LinesPerPixelLength
	if !(lpl > 0) || math.IsInf(lpl, 0) {
		return models.WeightMap{}, fmt.Errorf("%w: lines per pixel length must be positive, got %v", ErrEmptyWeightMap, lpl)
	}

	q, err := geometry.Orient(box)
	if err != nil {
		return models.WeightMap{}, err
	}

	return b.buildLines(box, q, shape, LineCount(q.AxisLength(), lpl))
}

// Preview produces exactly n evenly spaced transects regardless of the
// configured density. It is meant for drawing a handful of lines over an
// image before committing to a full build.
func (b *Builder) Preview(box models.BoundingBox, shape models.Shape, n int) (models.WeightMap, error) {
	if n < 1 {
		return models.WeightMap{}, fmt.Errorf("%w: preview needs at least one line, got %d", ErrEmptyWeightMap, n)
	}

	q, err := geometry.Orient(box)
	if err != nil {
		return models.WeightMap{}, err
	}

	return b.buildLines(box, q, shape, n)
}

// BuildAll builds one weight map per box, in parallel, and returns them in
// box order. The first failing box aborts the run.
func (b *Builder) BuildAll(boxes geometry.BoxList, shape models.Shape) ([]models.WeightMap, error) {
	total := boxes.Len()
	if total == 0 {
		return nil, fmt.Errorf("%w: no bounding boxes", ErrEmptyWeightMap)
	}

	workers := b.Workers
	if workers < 1 {
		workers = 1
	}

	type buildResult struct {
		index int
		wm    models.WeightMap
		err   error
	}
	resultChan := make(chan buildResult, total)
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(index int, box models.BoundingBox) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			wm, err := b.Build(box, shape)
			resultChan <- buildResult{index: index, wm: wm, err: err}
		}(i, boxes.At(i))
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	maps := make([]models.WeightMap, total)
	errs := make([]error, total)
	completed := 0
	for res := range resultChan {
		completed++
		maps[res.index] = res.wm
		errs[res.index] = res.err
		if b.Progress != nil {
			b.Progress(completed, total, fmt.Sprintf("built weight map for box %d", res.index))
		}
	}

	// Report the leftmost failure so repeated runs give the same error
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
	}

	return maps, nil
}

func (b *Builder) buildLines(box models.BoundingBox, q geometry.Quad, shape models.Shape, n int) (models.WeightMap, error) {
	if shape.Width <= 0 || shape.Height <= 0 {
		return models.WeightMap{}, fmt.Errorf("%w: image shape %dx%d is empty", ErrShapeMismatch, shape.Width, shape.Height)
	}

	spp := b.SamplesPerPixel
	if spp == 0 {
		spp = 1
	}

	edges := q.Edges()
	lines := make([]models.Line, 0, n)

	for i := 0; i < n; i++ {
		t := axisParam(i, n)
		tr, err := geometry.SampleLine(q.Center(t), q.ShortDirection(t), edges, spp)
		if err != nil {
			return models.WeightMap{}, fmt.Errorf("line %d: %w", i, err)
		}

		acc := newAccumulator()
		for _, p := range tr.Points {
			b.Kernel.spread(p, acc)
		}
		if len(acc.pixels) == 0 {
			return models.WeightMap{}, fmt.Errorf("%w: line %d touches no pixels", ErrEmptyWeightMap, i)
		}

		for _, p := range acc.pixels {
			if !shape.Contains(p.X, p.Y) {
				return models.WeightMap{}, fmt.Errorf("%w: line %d references pixel (%d, %d) outside %dx%d image",
					ErrOutOfBoundsSample, i, p.X, p.Y, shape.Width, shape.Height)
			}
		}

		lines = append(lines, models.Line{
			Start:  tr.Start,
			End:    tr.End,
			Length: tr.Length,
			Pixels: acc.pixels,
		})
	}

	return models.WeightMap{
		Box:        box,
		Shape:      shape,
		Kernel:     b.Kernel.String(),
		AxisLength: q.AxisLength(),
		Lines:      lines,
	}, nil
}

// axisParam places n centres evenly from the start (t=0) to the end (t=1)
// of the long axis, both inclusive. A single line sits at the middle.
func axisParam(i, n int) float64 {
	if n == 1 {
		return 0.5
	}
	return float64(i) / float64(n-1)
}
