// Package color provides hex color parsing and the WCAG relative-luminance
// and contrast-ratio math used by the contrast check operation.
package color

import (
	"fmt"
	"math"
	"strings"

	"github.com/starford/dagaz/internal/apperr"
)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// ParseHex parses "#RGB", "#RRGGBB", "RGB" or "RRGGBB".
func ParseHex(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return RGB{}, fmt.Errorf("%w: invalid hex color %q", apperr.ErrInvalidArgument, s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(h, "%02x%02x%02x", &r, &g, &b); err != nil {
		return RGB{}, fmt.Errorf("%w: invalid hex color %q", apperr.ErrInvalidArgument, s)
	}
	return RGB{r, g, b}, nil
}

// Hex returns the "#RRGGBB" form.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Luminance returns the WCAG 2.x relative luminance in [0, 1].
func (c RGB) Luminance() float64 {
	return 0.2126*channel(c.R) + 0.7152*channel(c.G) + 0.0722*channel(c.B)
}

// ContrastRatio returns the WCAG contrast ratio between two colors,
// in [1, 21].
func ContrastRatio(a, b RGB) float64 {
	la, lb := a.Luminance(), b.Luminance()
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

// WCAG threshold constants for normal text.
const (
	RatioAA  = 4.5
	RatioAAA = 7.0
)

func channel(v uint8) float64 {
	s := float64(v) / 255
	if s <= 0.03928 {
		return s / 12.92
	}
	return math.Pow((s+0.055)/1.055, 2.4)
}
