package deck

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/starford/dagaz/internal/apperr"
)

// shapeElements are the spTree child names that count as shapes; the two
// header children (p:nvGrpSpPr, p:grpSpPr) never do.
var shapeElements = map[string]bool{
	"p:sp":           true,
	"p:pic":          true,
	"p:graphicFrame": true,
	"p:grpSp":        true,
	"p:cxnSp":        true,
}

// Slide is a view over one slide part. It stays valid for the lifetime of
// the owning Document; shape indices obtained from it do not.
type Slide struct {
	doc    *Document
	part   string
	root   *Node
	spTree *Node
}

// Part returns the slide's part name.
func (s *Slide) Part() string { return s.part }

// Shapes returns the slide's shapes in paint order (front-most last).
func (s *Slide) Shapes() []*Shape {
	var out []*Shape
	for _, c := range s.spTree.Children {
		if shapeElements[c.Name] {
			out = append(out, &Shape{slide: s, node: c})
		}
	}
	return out
}

// Shape returns the shape at index i within the slide's current ordering.
func (s *Slide) Shape(i int) (*Shape, error) {
	shapes := s.Shapes()
	if i < 0 || i >= len(shapes) {
		return nil, fmt.Errorf("%w: index %d, slide has %d shapes", apperr.ErrShapeNotFound, i, len(shapes))
	}
	return shapes[i], nil
}

// RemoveShape deletes the shape at index i from the slide tree.
func (s *Slide) RemoveShape(i int) error {
	sh, err := s.Shape(i)
	if err != nil {
		return err
	}
	s.spTree.RemoveAt(s.spTree.Index(sh.node))
	return nil
}

// AddTextBox appends a new text box shape at the given EMU geometry and
// returns it. The new shape paints on top of existing ones.
func (s *Slide) AddTextBox(name string, leftEMU, topEMU, widthEMU, heightEMU int64, text string) *Shape {
	id := s.nextShapeID()
	sp := &Node{Name: "p:sp"}

	nv := sp.FindOrCreate("p:nvSpPr")
	cNvPr := nv.FindOrCreate("p:cNvPr")
	cNvPr.SetAttr("id", strconv.Itoa(id))
	cNvPr.SetAttr("name", name)
	nv.FindOrCreate("p:cNvSpPr").SetAttr("txBox", "1")
	nv.FindOrCreate("p:nvPr")

	spPr := sp.FindOrCreate("p:spPr")
	setXfrm(spPr, leftEMU, topEMU, widthEMU, heightEMU)
	geom := spPr.FindOrCreate("a:prstGeom")
	geom.SetAttr("prst", "rect")
	geom.FindOrCreate("a:avLst")

	tx := sp.FindOrCreate("p:txBody")
	bodyPr := tx.FindOrCreate("a:bodyPr")
	bodyPr.SetAttr("wrap", "square")
	tx.FindOrCreate("a:lstStyle")
	para := tx.FindOrCreate("a:p")
	run := para.FindOrCreate("a:r")
	run.FindOrCreate("a:rPr").SetAttr("lang", "en-US")
	run.FindOrCreate("a:t").Text = text

	s.spTree.Children = append(s.spTree.Children, sp)
	return &Shape{slide: s, node: sp}
}

// LayoutPart returns the part name of the slide's layout, or "".
func (s *Slide) LayoutPart() string {
	rels, err := s.doc.relationships(relsPartFor(s.part))
	if err != nil {
		return ""
	}
	for _, r := range rels {
		if r.Type == relTypeLayout {
			return resolveTarget(path.Dir(s.part), r.Target)
		}
	}
	return ""
}

// LayoutName returns the display name of the slide's layout, or "".
func (s *Slide) LayoutName() string {
	if p := s.LayoutPart(); p != "" {
		return s.doc.LayoutName(p)
	}
	return ""
}

// Text returns all text-run content of the slide, one paragraph per line.
func (s *Slide) Text() string {
	var parts []string
	s.spTree.Walk(func(n *Node) {
		if n.Name == "a:t" && n.Text != "" {
			parts = append(parts, n.Text)
		}
	})
	return strings.Join(parts, "\n")
}

// ReplaceText substitutes old with new in every text run of the slide and
// returns the number of runs changed.
func (s *Slide) ReplaceText(old, new string) int {
	changed := 0
	s.spTree.Walk(func(n *Node) {
		if n.Name == "a:t" && strings.Contains(n.Text, old) {
			n.Text = strings.ReplaceAll(n.Text, old, new)
			changed++
		}
	})
	return changed
}

// NotesText returns the slide's notes text, or "".
func (s *Slide) NotesText() string {
	rels, err := s.doc.relationships(relsPartFor(s.part))
	if err != nil {
		return ""
	}
	for _, r := range rels {
		if r.Type != relTypeNotes {
			continue
		}
		tree, err := s.doc.pkg.Tree(resolveTarget(path.Dir(s.part), r.Target))
		if err != nil {
			return ""
		}
		var parts []string
		tree.Walk(func(n *Node) {
			if n.Name == "a:t" && n.Text != "" {
				parts = append(parts, n.Text)
			}
		})
		return strings.Join(parts, "\n")
	}
	return ""
}

// nextShapeID returns 1 + the highest p:cNvPr id on the slide.
func (s *Slide) nextShapeID() int {
	max := 1
	s.spTree.Walk(func(n *Node) {
		if n.Name == "p:cNvPr" {
			if id, err := strconv.Atoi(n.Attr("id")); err == nil && id > max {
				max = id
			}
		}
	})
	return max + 1
}

// Shape is a view over one shape node. Its index within the slide is not
// part of its state; query the slide when one is needed.
type Shape struct {
	slide *Slide
	node  *Node
}

// Name returns the shape's display name from p:cNvPr.
func (sh *Shape) Name() string {
	var name string
	sh.node.Walk(func(n *Node) {
		if name == "" && n.Name == "p:cNvPr" {
			name = n.Attr("name")
		}
	})
	return name
}

// Kind returns the shape's element kind ("p:sp", "p:pic", ...).
func (sh *Shape) Kind() string { return sh.node.Name }

// IsPlaceholder reports whether the shape carries a p:ph element.
func (sh *Shape) IsPlaceholder() bool {
	return sh.placeholderNode() != nil
}

// PlaceholderType returns the p:ph type attribute ("body" when absent,
// matching the format default), or "" for non-placeholders.
func (sh *Shape) PlaceholderType() string {
	ph := sh.placeholderNode()
	if ph == nil {
		return ""
	}
	if t := ph.Attr("type"); t != "" {
		return t
	}
	return "body"
}

// PlaceholderIndex returns the p:ph idx attribute (0 when absent).
func (sh *Shape) PlaceholderIndex() int {
	ph := sh.placeholderNode()
	if ph == nil {
		return 0
	}
	idx, _ := strconv.Atoi(ph.Attr("idx"))
	return idx
}

func (sh *Shape) placeholderNode() *Node {
	var ph *Node
	sh.node.Walk(func(n *Node) {
		if ph == nil && n.Name == "p:ph" {
			ph = n
		}
	})
	return ph
}

// Geometry returns (left, top, width, height) in EMU. ok is false when the
// shape has no explicit a:xfrm (placeholder inheriting from its layout).
func (sh *Shape) Geometry() (left, top, width, height int64, ok bool) {
	xfrm := sh.xfrm()
	if xfrm == nil {
		return 0, 0, 0, 0, false
	}
	off, ext := xfrm.Find("a:off"), xfrm.Find("a:ext")
	if off == nil || ext == nil {
		return 0, 0, 0, 0, false
	}
	return parseEMU(off.Attr("x")), parseEMU(off.Attr("y")),
		parseEMU(ext.Attr("cx")), parseEMU(ext.Attr("cy")), true
}

// SetGeometry writes an explicit a:xfrm with the given EMU values.
func (sh *Shape) SetGeometry(left, top, width, height int64) error {
	spPr := sh.propertiesNode()
	if spPr == nil {
		return fmt.Errorf("%w: shape %s has no properties element", apperr.ErrInternalXML, sh.node.Name)
	}
	setXfrm(spPr, left, top, width, height)
	return nil
}

// Text returns the shape's text-run content.
func (sh *Shape) Text() string {
	var parts []string
	sh.node.Walk(func(n *Node) {
		if n.Name == "a:t" && n.Text != "" {
			parts = append(parts, n.Text)
		}
	})
	return strings.Join(parts, "\n")
}

// propertiesNode returns the shape's spPr-equivalent child.
func (sh *Shape) propertiesNode() *Node {
	for _, name := range []string{"p:spPr", "p:grpSpPr"} {
		if n := sh.node.Find(name); n != nil {
			return n
		}
	}
	return nil
}

func (sh *Shape) xfrm() *Node {
	spPr := sh.propertiesNode()
	if spPr == nil {
		return nil
	}
	return spPr.Find("a:xfrm")
}

// setXfrm finds or creates a:xfrm/a:off+a:ext under spPr and writes the
// geometry. The xfrm element must come first among spPr children.
func setXfrm(spPr *Node, left, top, width, height int64) {
	xfrm := spPr.Find("a:xfrm")
	if xfrm == nil {
		xfrm = &Node{Name: "a:xfrm"}
		spPr.InsertAt(0, xfrm)
	}
	off := xfrm.FindOrCreate("a:off")
	off.SetAttr("x", strconv.FormatInt(left, 10))
	off.SetAttr("y", strconv.FormatInt(top, 10))
	ext := xfrm.FindOrCreate("a:ext")
	ext.SetAttr("cx", strconv.FormatInt(width, 10))
	ext.SetAttr("cy", strconv.FormatInt(height, 10))
}
