package spec

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Point is a screen location, either absolute pixels or percentages of
// the screen dimensions.
type Point struct {
	X       float64
	Y       float64
	Percent bool
}

// Resolve converts the point to absolute pixels for a screen size.
func (p Point) Resolve(width, height int) (int, int) {
	if !p.Percent {
		return int(p.X), int(p.Y)
	}
	return int(p.X / 100 * float64(width)), int(p.Y / 100 * float64(height))
}

func (p Point) String() string {
	if p.Percent {
		return fmt.Sprintf("[%.1f%%, %.1f%%]", p.X, p.Y)
	}
	return fmt.Sprintf("[%d, %d]", int(p.X), int(p.Y))
}

// Target is where a gesture lands: an element referenced by visible text
// (substring match, case-insensitive) or a fixed point.
type Target struct {
	Element string
	Point   *Point
}

// IsZero reports whether neither form is set.
func (t Target) IsZero() bool {
	return t.Element == "" && t.Point == nil
}

func (t Target) String() string {
	if t.Element != "" {
		return fmt.Sprintf("%q", t.Element)
	}
	if t.Point != nil {
		return t.Point.String()
	}
	return "<no target>"
}

// decodeTarget reads a target from its YAML forms: a scalar element text
// or a two-item sequence of coordinates.
func decodeTarget(node *yaml.Node) (Target, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return Target{}, fmt.Errorf("empty target")
		}
		return Target{Element: node.Value}, nil

	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return Target{}, fmt.Errorf("point must have exactly 2 coordinates, got %d", len(node.Content))
		}
		x, xPct, err := decodeCoord(node.Content[0].Value)
		if err != nil {
			return Target{}, err
		}
		y, yPct, err := decodeCoord(node.Content[1].Value)
		if err != nil {
			return Target{}, err
		}
		if xPct != yPct {
			return Target{}, fmt.Errorf("point mixes percent and pixel coordinates")
		}
		return Target{Point: &Point{X: x, Y: y, Percent: xPct}}, nil

	default:
		return Target{}, fmt.Errorf("target must be an element text or a coordinate pair")
	}
}

func decodeCoord(value string) (float64, bool, error) {
	if strings.HasSuffix(value, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid percent coordinate %q", value)
		}
		return f, true, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid coordinate %q", value)
	}
	return f, false, nil
}

// encodeTarget writes a target back in its shortest YAML form.
func encodeTarget(t Target) *yaml.Node {
	if t.Element != "" {
		return scalarNode(t.Element)
	}

	seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	if t.Point.Percent {
		seq.Content = []*yaml.Node{
			scalarNode(fmt.Sprintf("%.1f%%", t.Point.X)),
			scalarNode(fmt.Sprintf("%.1f%%", t.Point.Y)),
		}
	} else {
		seq.Content = []*yaml.Node{
			intNode(int(t.Point.X)),
			intNode(int(t.Point.Y)),
		}
	}
	return seq
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func intNode(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}
