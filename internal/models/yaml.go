package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either {x: .., y: ..} or a two-element [x, y] pair.
func (p *Point) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var xy []float64
		if err := node.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return fmt.Errorf("line %d: point needs 2 coordinates, got %d", node.Line, len(xy))
		}
		p.X, p.Y = xy[0], xy[1]
		return nil
	}

	var raw struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.X, p.Y = raw.X, raw.Y
	return nil
}

// UnmarshalYAML accepts either {corners: [...]} or a bare list of corners
// and rejects anything other than exactly four points.
func (b *BoundingBox) UnmarshalYAML(node *yaml.Node) error {
	var corners []Point
	if node.Kind == yaml.SequenceNode {
		if err := node.Decode(&corners); err != nil {
			return err
		}
	} else {
		var raw struct {
			Corners []Point `yaml:"corners"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		corners = raw.Corners
	}

	if len(corners) != 4 {
		return fmt.Errorf("line %d: bounding box needs 4 corners, got %d", node.Line, len(corners))
	}
	copy(b.Corners[:], corners)
	return nil
}
