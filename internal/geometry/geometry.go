// Package geometry resolves declarative position and size descriptors into
// absolute slide coordinates.
//
// All absolute values are in inches; the deck layer converts to EMU at the
// XML boundary. Four descriptor forms are supported: percentage of the
// slide dimension ("50%"), absolute inches ("2.5"), a named anchor plus
// offset, and a cell in an N-column grid.
package geometry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/dagaz/internal/apperr"
)

// DefaultGridColumns is the grid width used when a GridCell does not set one.
const DefaultGridColumns = 12

// Position describes where a shape goes. Exactly one form must be used:
// Left/Top, Anchor (+ offsets), or Grid.
type Position struct {
	Left    string    `json:"left,omitempty"`
	Top     string    `json:"top,omitempty"`
	Anchor  string    `json:"anchor,omitempty"`
	OffsetX float64   `json:"offset_x,omitempty"`
	OffsetY float64   `json:"offset_y,omitempty"`
	Grid    *GridCell `json:"grid,omitempty"`
}

// Size describes shape dimensions. "auto" for one dimension preserves the
// aspect ratio of an image; it is rejected for shapes without one.
type Size struct {
	Width  string `json:"width"`
	Height string `json:"height"`
}

// GridCell addresses a cell span in an N-column grid. RowHeight, when
// positive, sets the vertical pitch in inches; otherwise rows divide the
// slide height by Columns.
type GridCell struct {
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	Span      int     `json:"span"`
	Columns   int     `json:"columns,omitempty"`
	RowHeight float64 `json:"row_height,omitempty"`
}

// anchors maps the nine named anchor points to fractional slide coordinates.
var anchors = map[string][2]float64{
	"top_left":      {0, 0},
	"top_center":    {0.5, 0},
	"top_right":     {1, 0},
	"middle_left":   {0, 0.5},
	"center":        {0.5, 0.5},
	"middle_right":  {1, 0.5},
	"bottom_left":   {0, 1},
	"bottom_center": {0.5, 1},
	"bottom_right":  {1, 1},
}

// ResolvePosition converts p into absolute (left, top) inches on a slide
// of the given dimensions.
func ResolvePosition(p Position, slideW, slideH float64) (left, top float64, err error) {
	switch {
	case p.Grid != nil:
		if p.Left != "" || p.Top != "" || p.Anchor != "" {
			return 0, 0, fmt.Errorf("%w: grid position excludes left/top/anchor", apperr.ErrInvalidGeometry)
		}
		return resolveGrid(*p.Grid, slideW, slideH)

	case p.Anchor != "":
		if p.Left != "" || p.Top != "" {
			return 0, 0, fmt.Errorf("%w: anchor position excludes left/top", apperr.ErrInvalidGeometry)
		}
		frac, ok := anchors[p.Anchor]
		if !ok {
			return 0, 0, fmt.Errorf("%w: unknown anchor %q", apperr.ErrInvalidGeometry, p.Anchor)
		}
		return frac[0]*slideW + p.OffsetX, frac[1]*slideH + p.OffsetY, nil

	default:
		left, err = resolveScalar(p.Left, slideW)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: left: %v", apperr.ErrInvalidGeometry, err)
		}
		top, err = resolveScalar(p.Top, slideH)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: top: %v", apperr.ErrInvalidGeometry, err)
		}
		if left < 0 || top < 0 {
			return 0, 0, fmt.Errorf("%w: position (%g, %g) is negative", apperr.ErrInvalidGeometry, left, top)
		}
		return left, top, nil
	}
}

// ResolveSize converts s into absolute (width, height) inches. aspect is
// the intrinsic width/height ratio of an image, or 0 for shapes without
// one; "auto" on either dimension requires a positive aspect. Both results
// must come out positive.
func ResolveSize(s Size, slideW, slideH, aspect float64) (width, height float64, err error) {
	autoW := strings.EqualFold(s.Width, "auto")
	autoH := strings.EqualFold(s.Height, "auto")
	if autoW && autoH {
		return 0, 0, fmt.Errorf("%w: width and height cannot both be auto", apperr.ErrInvalidGeometry)
	}
	if (autoW || autoH) && aspect <= 0 {
		return 0, 0, fmt.Errorf("%w: auto size requires an image with a known aspect ratio", apperr.ErrInvalidGeometry)
	}

	if !autoW {
		if width, err = resolveScalar(s.Width, slideW); err != nil {
			return 0, 0, fmt.Errorf("%w: width: %v", apperr.ErrInvalidGeometry, err)
		}
	}
	if !autoH {
		if height, err = resolveScalar(s.Height, slideH); err != nil {
			return 0, 0, fmt.Errorf("%w: height: %v", apperr.ErrInvalidGeometry, err)
		}
	}
	if autoW {
		width = height * aspect
	}
	if autoH {
		height = width / aspect
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: size resolved to %gx%g, both must be positive", apperr.ErrInvalidGeometry, width, height)
	}
	return width, height, nil
}

// GridWidth returns the absolute width of a span in the cell's grid,
// letting a grid position double as a size hint.
func GridWidth(cell GridCell, slideW float64) (float64, error) {
	cols := cell.Columns
	if cols == 0 {
		cols = DefaultGridColumns
	}
	if cell.Span <= 0 || cell.Span > cols {
		return 0, fmt.Errorf("%w: grid span %d out of range 1..%d", apperr.ErrInvalidGeometry, cell.Span, cols)
	}
	return float64(cell.Span) / float64(cols) * slideW, nil
}

func resolveGrid(cell GridCell, slideW, slideH float64) (left, top float64, err error) {
	cols := cell.Columns
	if cols == 0 {
		cols = DefaultGridColumns
	}
	if cols < 1 {
		return 0, 0, fmt.Errorf("%w: grid columns %d", apperr.ErrInvalidGeometry, cols)
	}
	if cell.Col < 0 || cell.Col >= cols {
		return 0, 0, fmt.Errorf("%w: grid col %d out of range 0..%d", apperr.ErrInvalidGeometry, cell.Col, cols-1)
	}
	if cell.Row < 0 {
		return 0, 0, fmt.Errorf("%w: grid row %d is negative", apperr.ErrInvalidGeometry, cell.Row)
	}
	rowHeight := cell.RowHeight
	if rowHeight <= 0 {
		rowHeight = slideH / float64(cols)
	}
	left = float64(cell.Col) / float64(cols) * slideW
	top = float64(cell.Row) * rowHeight
	if top >= slideH {
		return 0, 0, fmt.Errorf("%w: grid row %d falls outside the slide", apperr.ErrInvalidGeometry, cell.Row)
	}
	return left, top, nil
}

// resolveScalar parses "N%" against dim, or a plain number as inches.
func resolveScalar(v string, dim float64) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("empty value")
	}
	if strings.HasSuffix(v, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("bad percentage %q", v)
		}
		return pct * dim / 100, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("bad value %q", v)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %q", v)
	}
	return n, nil
}
