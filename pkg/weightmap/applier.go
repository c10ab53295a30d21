package weightmap

import (
	"fmt"
	"sync"

	"channeldiffusion/internal/models"
)

// Applier reduces image stacks along weight maps.
type Applier struct {
	// Workers bounds the number of frames reduced concurrently
	Workers int

	// Progress is called after each frame when set
	Progress ProgressFunc
}

// NewApplier returns an applier using the given number of workers.
func NewApplier(workers int) *Applier {
	if workers < 1 {
		workers = 1
	}
	return &Applier{Workers: workers}
}

// Apply reduces stack along wm on the calling goroutine.
func Apply(wm models.WeightMap, stack models.ImageStack) (models.IntensityProfile, error) {
	return NewApplier(1).Apply(wm, stack)
}

// Apply computes, for every line l and frame f, the weighted mean
//
//	I[l][f] = Σ w(p)·frame_f(p) / Σ w(p)
//
// over the pixels p of line l. The stack is never modified.
func (a *Applier) Apply(wm models.WeightMap, stack models.ImageStack) (models.IntensityProfile, error) {
	if err := validate(wm, stack); err != nil {
		return models.IntensityProfile{}, err
	}

	totals := make([]float64, len(wm.Lines))
	for l, line := range wm.Lines {
		totals[l] = line.TotalWeight()
	}

	values := make([][]float64, len(wm.Lines))
	for l := range values {
		values[l] = make([]float64, len(stack))
	}

	workers := a.Workers
	if workers < 1 {
		workers = 1
	}

	done := make(chan int, len(stack))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for f := range stack {
		wg.Add(1)
		sem <- struct{}{}
		go func(f int) {
			defer wg.Done()
			defer func() { <-sem }()

			frame := stack[f]
			for l, line := range wm.Lines {
				var sum float64
				for _, p := range line.Pixels {
					sum += p.Weight * frame.Pix[p.Y*frame.Width+p.X]
				}
				// Each goroutine owns column f
				values[l][f] = sum / totals[l]
			}
			done <- f
		}(f)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for f := range done {
		completed++
		if a.Progress != nil {
			a.Progress(completed, len(stack), fmt.Sprintf("reduced frame %d", f))
		}
	}

	middle, err := MiddleLineLength(wm.Box)
	if err != nil {
		return models.IntensityProfile{}, err
	}

	return models.IntensityProfile{
		Values:           values,
		Positions:        wm.Positions(),
		MiddleLineLength: middle,
	}, nil
}

// ApplyAll applies every weight map to the same stack, in order.
func (a *Applier) ApplyAll(maps []models.WeightMap, stack models.ImageStack) ([]models.IntensityProfile, error) {
	profiles := make([]models.IntensityProfile, len(maps))
	for i, wm := range maps {
		p, err := a.Apply(wm, stack)
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		profiles[i] = p
	}
	return profiles, nil
}

// validate checks frame shapes and that every weighted pixel is addressable,
// before any reduction starts.
func validate(wm models.WeightMap, stack models.ImageStack) error {
	if len(wm.Lines) == 0 {
		return fmt.Errorf("%w: weight map has no lines", ErrEmptyWeightMap)
	}
	if len(stack) == 0 {
		return fmt.Errorf("%w: image stack has no frames", ErrShapeMismatch)
	}

	for i, frame := range stack {
		if frame.Shape() != wm.Shape {
			return fmt.Errorf("%w: frame %d is %dx%d, weight map was built for %dx%d",
				ErrShapeMismatch, i, frame.Width, frame.Height, wm.Shape.Width, wm.Shape.Height)
		}
		if len(frame.Pix) != frame.Width*frame.Height {
			return fmt.Errorf("%w: frame %d holds %d values for %dx%d pixels",
				ErrShapeMismatch, i, len(frame.Pix), frame.Width, frame.Height)
		}
	}

	for l, line := range wm.Lines {
		if len(line.Pixels) == 0 {
			return fmt.Errorf("%w: line %d has no pixels", ErrEmptyWeightMap, l)
		}
		if line.TotalWeight() <= 0 {
			return fmt.Errorf("%w: line %d has no positive weight", ErrEmptyWeightMap, l)
		}
		for _, p := range line.Pixels {
			if !wm.Shape.Contains(p.X, p.Y) {
				return fmt.Errorf("%w: line %d references pixel (%d, %d) outside %dx%d frame",
					ErrOutOfBoundsSample, l, p.X, p.Y, wm.Shape.Width, wm.Shape.Height)
			}
		}
	}

	return nil
}
