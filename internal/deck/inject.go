package deck

import (
	"fmt"
	"math"
	"strconv"

	"github.com/starford/dagaz/internal/apperr"
)

// The format's integer alpha scale: 0 is invisible, alphaScale fully opaque.
const alphaScale = 100000

// colorElements are the children of a:solidFill that can carry an a:alpha.
var colorElements = []string{"a:srgbClr", "a:schemeClr", "a:sysClr", "a:prstClr", "a:hslClr", "a:scrgbClr"}

// OpacityResult reports which style targets an opacity injection reached.
// Applied false with a warning means the fill or line structure was absent
// and the injection was skipped, not that the operation failed.
type OpacityResult struct {
	FillApplied bool     `json:"fill_applied"`
	LineApplied bool     `json:"line_applied"`
	Warnings    []string `json:"warnings,omitempty"`
}

// SetOpacity writes the alpha channel of the shape's solid fill and line
// color. opacity must lie in [0.0, 1.0]; values >= 1.0 are a no-op since
// the format default is fully opaque. Missing fill/line structure degrades
// to a skip recorded in the result.
func SetOpacity(sh *Shape, opacity float64) (OpacityResult, error) {
	var res OpacityResult
	if opacity < 0 || opacity > 1 || math.IsNaN(opacity) {
		return res, fmt.Errorf("%w: opacity %g outside [0.0, 1.0]", apperr.ErrInvalidArgument, opacity)
	}
	if opacity >= 1 {
		res.Warnings = append(res.Warnings, "opacity 1.0 is the format default, nothing to inject")
		return res, nil
	}

	spPr := sh.propertiesNode()
	if spPr == nil {
		res.Warnings = append(res.Warnings, "shape has no properties element, opacity skipped")
		return res, nil
	}
	val := strconv.Itoa(int(math.Round(opacity * alphaScale)))

	if fill := spPr.Find("a:solidFill"); fill != nil && setAlpha(fill, val) {
		res.FillApplied = true
	} else {
		res.Warnings = append(res.Warnings, "no solid fill color on shape, fill opacity skipped")
	}

	if ln := spPr.Find("a:ln"); ln != nil {
		if fill := ln.Find("a:solidFill"); fill != nil && setAlpha(fill, val) {
			res.LineApplied = true
		}
	}
	if !res.LineApplied {
		res.Warnings = append(res.Warnings, "no solid line color on shape, line opacity skipped")
	}
	return res, nil
}

// FillAlpha reads the stored integer alpha of the shape's solid fill.
// ok is false when the fill or alpha element is absent (format default,
// fully opaque).
func FillAlpha(sh *Shape) (val int, ok bool) {
	spPr := sh.propertiesNode()
	if spPr == nil {
		return 0, false
	}
	fill := spPr.Find("a:solidFill")
	if fill == nil {
		return 0, false
	}
	for _, name := range colorElements {
		if clr := fill.Find(name); clr != nil {
			if alpha := clr.Find("a:alpha"); alpha != nil {
				v, err := strconv.Atoi(alpha.Attr("val"))
				return v, err == nil
			}
		}
	}
	return 0, false
}

// setAlpha writes an a:alpha child on the first color element of fill.
func setAlpha(fill *Node, val string) bool {
	for _, name := range colorElements {
		if clr := fill.Find(name); clr != nil {
			alpha := clr.Find("a:alpha")
			if alpha == nil {
				// alpha must precede color transforms; first child is safe
				// for the elements this engine writes.
				alpha = &Node{Name: "a:alpha"}
				clr.InsertAt(0, alpha)
			}
			alpha.SetAttr("val", val)
			return true
		}
	}
	return false
}

// SetFillColor gives the shape a solid fill of the given RGB hex
// ("RRGGBB", no hash). Any existing fill color is replaced; an existing
// alpha on the old color is dropped with it.
func SetFillColor(sh *Shape, hexRGB string) error {
	spPr := sh.propertiesNode()
	if spPr == nil {
		return fmt.Errorf("%w: shape has no properties element", apperr.ErrInternalXML)
	}
	fill := spPr.Find("a:solidFill")
	if fill == nil {
		fill = &Node{Name: "a:solidFill"}
		// solidFill must follow the geometry elements; append keeps it
		// after a:xfrm and a:prstGeom.
		spPr.Children = append(spPr.Children, fill)
	}
	fill.Children = nil
	clr := &Node{Name: "a:srgbClr"}
	clr.SetAttr("val", hexRGB)
	fill.Children = append(fill.Children, clr)
	return nil
}

// ZOrderOp is one of the four stacking moves.
type ZOrderOp string

const (
	BringToFront ZOrderOp = "bring_to_front"
	SendToBack   ZOrderOp = "send_to_back"
	BringForward ZOrderOp = "bring_forward"
	SendBackward ZOrderOp = "send_backward"
)

// StalenessWarning is attached to every structural-mutation result.
const StalenessWarning = "shape indices changed; re-query the slide before reusing cached indices"

// SetZOrder moves the shape at shapeIndex within its slide's paint order
// and returns its new index. The node never moves before the spTree header
// children; moves at the extremes clamp and succeed idempotently.
func SetZOrder(s *Slide, shapeIndex int, op ZOrderOp) (int, error) {
	sh, err := s.Shape(shapeIndex)
	if err != nil {
		return 0, err
	}
	tree := s.spTree
	pos := tree.Index(sh.node)
	floor := shapeFloor(tree)

	switch op {
	case BringToFront:
		tree.RemoveAt(pos)
		tree.Children = append(tree.Children, sh.node)
	case SendToBack:
		tree.RemoveAt(pos)
		tree.InsertAt(floor, sh.node)
	case BringForward:
		if pos < len(tree.Children)-1 {
			tree.Children[pos], tree.Children[pos+1] = tree.Children[pos+1], tree.Children[pos]
		}
	case SendBackward:
		if pos > floor {
			tree.Children[pos], tree.Children[pos-1] = tree.Children[pos-1], tree.Children[pos]
		}
	default:
		return 0, fmt.Errorf("%w: unknown z-order op %q", apperr.ErrInvalidArgument, op)
	}

	for i, cur := range s.Shapes() {
		if cur.node == sh.node {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: shape lost during reorder", apperr.ErrInternalXML)
}

// shapeFloor returns the child index right after the leading non-shape
// header children (p:nvGrpSpPr and p:grpSpPr).
func shapeFloor(tree *Node) int {
	for i, c := range tree.Children {
		if shapeElements[c.Name] {
			return i
		}
	}
	return len(tree.Children)
}
