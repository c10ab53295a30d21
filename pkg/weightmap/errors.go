package weightmap

import "errors"

var (
	// ErrEmptyWeightMap is returned when a box yields no transects or a
	// transect touches no pixels.
	ErrEmptyWeightMap = errors.New("empty weight map")

	// ErrOutOfBoundsSample is returned when a weighted pixel lies outside
	// the frame. Samples are never clamped.
	ErrOutOfBoundsSample = errors.New("sample out of bounds")

	// ErrShapeMismatch is returned when frame dimensions disagree with the
	// shape the weight map was built for.
	ErrShapeMismatch = errors.New("shape mismatch")
)
