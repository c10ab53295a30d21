package geometry

import (
	"fmt"
	"math"

	"channeldiffusion/internal/models"
)

// Transect is a sampled segment between two boundary crossings.
type Transect struct {
	Start  models.Point
	End    models.Point
	Length float64

	// Points run from Start to End inclusive
	Points []models.Point
}

// SampleLine walks from center along direction and its opposite until the
// boundary formed by edges is reached on each side, then returns evenly
// spaced points between the two crossings. Spacing never exceeds
// 1/samplesPerPixel pixels.
func SampleLine(center, direction models.Point, edges []Segment, samplesPerPixel float64) (Transect, error) {
	norm := math.Hypot(direction.X, direction.Y)
	if norm <= areaEpsilon {
		return Transect{}, fmt.Errorf("%w: transect direction has zero length", ErrDegenerateGeometry)
	}
	if !(samplesPerPixel > 0) || math.IsInf(samplesPerPixel, 0) {
		return Transect{}, fmt.Errorf("samples per pixel must be positive, got %v", samplesPerPixel)
	}
	u := direction.Scale(1 / norm)

	sPlus, okPlus := math.Inf(1), false
	sMinus, okMinus := math.Inf(-1), false
	onBoundary := false

	for _, e := range edges {
		s, ok := rayHit(center, u, e)
		if !ok {
			continue
		}
		switch {
		case s > snapEpsilon:
			if s < sPlus {
				sPlus, okPlus = s, true
			}
		case s < -snapEpsilon:
			if s > sMinus {
				sMinus, okMinus = s, true
			}
		default:
			onBoundary = true
		}
	}

	if !okPlus {
		if !onBoundary {
			return Transect{}, fmt.Errorf("%w: transect from (%.3f, %.3f) never leaves the box", ErrDegenerateGeometry, center.X, center.Y)
		}
		sPlus = 0
	}
	if !okMinus {
		if !onBoundary {
			return Transect{}, fmt.Errorf("%w: transect from (%.3f, %.3f) never leaves the box", ErrDegenerateGeometry, center.X, center.Y)
		}
		sMinus = 0
	}

	start := snapPoint(center.Add(u.Scale(sMinus)))
	end := snapPoint(center.Add(u.Scale(sPlus)))
	length := sPlus - sMinus

	steps := int(math.Ceil(length*samplesPerPixel - snapEpsilon))
	if steps < 1 {
		return Transect{
			Start:  start,
			End:    end,
			Length: length,
			Points: []models.Point{snapPoint(center.Add(u.Scale((sMinus + sPlus) / 2)))},
		}, nil
	}

	points := make([]models.Point, steps+1)
	for i := 0; i <= steps; i++ {
		points[i] = snapPoint(start.Lerp(end, float64(i)/float64(steps)))
	}
	points[0] = start
	points[steps] = end

	return Transect{Start: start, End: end, Length: length, Points: points}, nil
}

// rayHit intersects the ray origin+s*u with segment e and returns s.
// Parallel edges never hit.
func rayHit(origin, u models.Point, e Segment) (float64, bool) {
	edge := e.B.Sub(e.A)
	denom := cross(u, edge)
	if math.Abs(denom) <= crossEpsilon*math.Max(1, math.Hypot(edge.X, edge.Y)) {
		return 0, false
	}

	w := e.A.Sub(origin)
	s := cross(w, edge) / denom
	r := cross(w, u) / denom
	if r < -snapEpsilon || r > 1+snapEpsilon {
		return 0, false
	}
	return s, true
}

func snapPoint(p models.Point) models.Point {
	return models.Point{X: snap(p.X), Y: snap(p.Y)}
}

// snap removes floating-point noise around integer coordinates so that
// samples on pixel centres do not leak weight into a neighbouring pixel.
func snap(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < snapEpsilon {
		return r
	}
	return v
}
