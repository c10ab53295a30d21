// Package geometry locates the long and short axes of a user-drawn
// quadrilateral and samples transects across it.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"channeldiffusion/internal/models"
)

// ErrDegenerateGeometry is returned when a box has no usable area or its
// axes cannot be determined.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

const (
	areaEpsilon  = 1e-9
	crossEpsilon = 1e-12
	snapEpsilon  = 1e-9
)

// Segment is a straight edge between two points.
type Segment struct {
	A, B models.Point
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return distance(s.A, s.B)
}

// Midpoint returns the centre of the segment.
func (s Segment) Midpoint() models.Point {
	return s.A.Lerp(s.B, 0.5)
}

// Edges returns the four edges of the box in traversal order:
// c0→c1, c1→c2, c2→c3, c3→c0.
func Edges(box models.BoundingBox) [4]Segment {
	c := box.Corners
	return [4]Segment{
		{A: c[0], B: c[1]},
		{A: c[1], B: c[2]},
		{A: c[2], B: c[3]},
		{A: c[3], B: c[0]},
	}
}

// Area returns the signed shoelace area of the box. Counter-clockwise
// corners (in y-up coordinates) give a positive value.
func Area(box models.BoundingBox) float64 {
	var sum float64
	c := box.Corners
	for i := range c {
		j := (i + 1) % len(c)
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return sum / 2
}

// Validate checks that the box is a simple quadrilateral with non-zero area.
func Validate(box models.BoundingBox) error {
	for i, c := range box.Corners {
		if math.IsNaN(c.X) || math.IsNaN(c.Y) || math.IsInf(c.X, 0) || math.IsInf(c.Y, 0) {
			return fmt.Errorf("%w: corner %d is not finite (%v, %v)", ErrDegenerateGeometry, i, c.X, c.Y)
		}
	}

	if math.Abs(Area(box)) <= areaEpsilon {
		return fmt.Errorf("%w: box has zero area", ErrDegenerateGeometry)
	}

	// A bow-tie has opposite edges crossing each other
	e := Edges(box)
	if segmentsCross(e[0], e[2]) || segmentsCross(e[1], e[3]) {
		return fmt.Errorf("%w: box edges intersect", ErrDegenerateGeometry)
	}

	return nil
}

// Quad is a box rearranged around its channel. A0→A1 and B0→B1 are the
// long sides running in the same direction; A0–B0 closes the start end of
// the channel and A1–B1 the far end.
type Quad struct {
	A0, A1 models.Point
	B0, B1 models.Point
}

// Orient identifies the long sides of the box and orders them so that the
// long axis runs from its start end to its far end.
//
// The pair of opposite edges with the larger mean length are the channel
// walls; an exact tie picks c0→c1 / c2→c3, the first pair in traversal order.
// The axis starts at the end with the smaller y when the axis is mostly
// vertical, otherwise at the end with the smaller x.
func Orient(box models.BoundingBox) (Quad, error) {
	if err := Validate(box); err != nil {
		return Quad{}, err
	}

	c := box.Corners
	e := Edges(box)

	var q Quad
	if (e[0].Length()+e[2].Length())/2 >= (e[1].Length()+e[3].Length())/2 {
		q = Quad{A0: c[0], A1: c[1], B0: c[3], B1: c[2]}
	} else {
		q = Quad{A0: c[1], A1: c[2], B0: c[0], B1: c[3]}
	}

	d := q.AxisEnd().Sub(q.AxisStart())
	if math.Hypot(d.X, d.Y) <= areaEpsilon {
		return Quad{}, fmt.Errorf("%w: long axis has zero length", ErrDegenerateGeometry)
	}

	var flip bool
	if math.Abs(d.Y) >= math.Abs(d.X) {
		flip = d.Y < 0
	} else {
		flip = d.X < 0
	}
	if flip {
		q.A0, q.A1 = q.A1, q.A0
		q.B0, q.B1 = q.B1, q.B0
	}

	return q, nil
}

// LongAxisEndpoints returns the start and end of the box's long axis: the
// midpoints of the two short edges closing the channel.
func LongAxisEndpoints(box models.BoundingBox) (models.Point, models.Point, error) {
	q, err := Orient(box)
	if err != nil {
		return models.Point{}, models.Point{}, err
	}
	return q.AxisStart(), q.AxisEnd(), nil
}

// AxisStart returns the midpoint of the start short edge.
func (q Quad) AxisStart() models.Point {
	return q.A0.Lerp(q.B0, 0.5)
}

// AxisEnd returns the midpoint of the far short edge.
func (q Quad) AxisEnd() models.Point {
	return q.A1.Lerp(q.B1, 0.5)
}

// AxisLength returns the long-axis length in pixels.
func (q Quad) AxisLength() float64 {
	return distance(q.AxisStart(), q.AxisEnd())
}

// Center returns the point at parameter t ∈ [0, 1] along the long axis.
func (q Quad) Center(t float64) models.Point {
	return q.AxisStart().Lerp(q.AxisEnd(), t)
}

// ShortDirection interpolates the two short edge vectors (A→B) linearly by
// the position t along the long axis.
func (q Quad) ShortDirection(t float64) models.Point {
	return q.B0.Sub(q.A0).Lerp(q.B1.Sub(q.A1), t)
}

// Edges returns the boundary of the quad.
func (q Quad) Edges() []Segment {
	return []Segment{
		{A: q.A0, B: q.A1},
		{A: q.A1, B: q.B1},
		{A: q.B1, B: q.B0},
		{A: q.B0, B: q.A0},
	}
}

func distance(a, b models.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func cross(a, b models.Point) float64 {
	return a.X*b.Y - a.Y*b.X
}

// segmentsCross reports a proper crossing of two segments; touching
// endpoints do not count.
func segmentsCross(s, t Segment) bool {
	d1 := cross(s.B.Sub(s.A), t.A.Sub(s.A))
	d2 := cross(s.B.Sub(s.A), t.B.Sub(s.A))
	d3 := cross(t.B.Sub(t.A), s.A.Sub(t.A))
	d4 := cross(t.B.Sub(t.A), s.B.Sub(t.A))
	return ((d1 > crossEpsilon && d2 < -crossEpsilon) || (d1 < -crossEpsilon && d2 > crossEpsilon)) &&
		((d3 > crossEpsilon && d4 < -crossEpsilon) || (d3 < -crossEpsilon && d4 > crossEpsilon))
}
