package detect

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gamewatcher/watcher/internal/frame"
)

// Color is an opaque RGB border color.
type Color struct {
	R, G, B uint8
}

// ParseColor accepts "#RRGGBB" or "RRGGBB".
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("color %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// MustColor is ParseColor for constants.
func MustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// UnmarshalYAML accepts a hex string or an [r, g, b] sequence.
func (c *Color) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		parsed, err := ParseColor(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		*c = parsed
		return nil
	case yaml.SequenceNode:
		var rgb []uint8
		if err := n.Decode(&rgb); err != nil {
			return err
		}
		if len(rgb) != 3 {
			return fmt.Errorf("line %d: color needs 3 components, got %d", n.Line, len(rgb))
		}
		*c = Color{R: rgb[0], G: rgb[1], B: rgb[2]}
		return nil
	default:
		return fmt.Errorf("line %d: color must be a hex string or [r, g, b]", n.Line)
	}
}

// MarshalYAML writes the hex form.
func (c Color) MarshalYAML() (any, error) {
	return c.String(), nil
}

// matches reports whether r,g,b is within tol of any palette entry.
func matches(palette []Color, r, g, b uint8, tol int) bool {
	for _, c := range palette {
		if frame.Within(r, g, b, c.R, c.G, c.B, tol) {
			return true
		}
	}
	return false
}
