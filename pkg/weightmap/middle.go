package weightmap

import (
	"fmt"

	"channeldiffusion/internal/models"
	"channeldiffusion/pkg/geometry"
)

// MiddleLineLength returns the pixel length of the transect through the
// middle of the box's long axis, sampled the same way Build samples lines.
func MiddleLineLength(box models.BoundingBox) (float64, error) {
	q, err := geometry.Orient(box)
	if err != nil {
		return 0, err
	}

	tr, err := geometry.SampleLine(q.Center(0.5), q.ShortDirection(0.5), q.Edges(), 1)
	if err != nil {
		return 0, err
	}
	return tr.Length, nil
}

// MiddleLineLengths computes MiddleLineLength for every box in order.
func MiddleLineLengths(boxes geometry.BoxList) ([]float64, error) {
	lengths := make([]float64, boxes.Len())
	for i := range lengths {
		l, err := MiddleLineLength(boxes.At(i))
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		lengths[i] = l
	}
	return lengths, nil
}
