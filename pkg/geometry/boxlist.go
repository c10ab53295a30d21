package geometry

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"channeldiffusion/internal/models"
)

// BoxList is a validated set of boxes ordered left to right by each box's
// leftmost corner. Line indices of weight maps are only comparable across
// runs under this ordering, so every list is sorted on construction and on
// decoding.
type BoxList struct {
	boxes []models.BoundingBox
}

// NewBoxList validates the boxes and sorts them left to right. Boxes with
// the same leftmost x keep their input order.
func NewBoxList(boxes ...models.BoundingBox) (BoxList, error) {
	sorted := make([]models.BoundingBox, len(boxes))
	copy(sorted, boxes)

	for i, box := range sorted {
		if err := Validate(box); err != nil {
			return BoxList{}, fmt.Errorf("box %d: %w", i, err)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Leftmost() < sorted[j].Leftmost()
	})

	return BoxList{boxes: sorted}, nil
}

// Len returns the number of boxes.
func (l BoxList) Len() int {
	return len(l.boxes)
}

// At returns the i-th box from the left.
func (l BoxList) At(i int) models.BoundingBox {
	return l.boxes[i]
}

// Boxes returns a copy of the ordered boxes.
func (l BoxList) Boxes() []models.BoundingBox {
	out := make([]models.BoundingBox, len(l.boxes))
	copy(out, l.boxes)
	return out
}

// MarshalYAML implements yaml.Marshaler.
func (l BoxList) MarshalYAML() (interface{}, error) {
	if l.boxes == nil {
		return []models.BoundingBox{}, nil
	}
	return l.boxes, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *BoxList) UnmarshalYAML(node *yaml.Node) error {
	var boxes []models.BoundingBox
	if err := node.Decode(&boxes); err != nil {
		return err
	}
	list, err := NewBoxList(boxes...)
	if err != nil {
		return err
	}
	*l = list
	return nil
}
