package deck

import (
	"fmt"
	"path"
	"strings"

	"github.com/starford/dagaz/internal/apperr"
)

// Part names and relationship types the document model navigates.
const (
	presPart      = "ppt/presentation.xml"
	presRelsPart  = "ppt/_rels/presentation.xml.rels"
	contentTypes  = "[Content_Types].xml"
	relTypeSlide  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relTypeLayout = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	relTypeNotes  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	ctSlide       = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
)

// Document is the in-memory representation of one opened package.
// It is exclusively owned by one session at a time; the file lock that
// enforces this lives above the deck layer.
type Document struct {
	pkg        *Package
	presTree   *Node
	slideParts []string // slide part names in sldIdLst order
	widthEMU   int64
	heightEMU  int64
}

// OpenDocument opens the package at path and indexes its slides.
func OpenDocument(filePath string) (*Document, error) {
	pkg, err := OpenPackage(filePath)
	if err != nil {
		return nil, err
	}
	return newDocument(pkg)
}

func newDocument(pkg *Package) (*Document, error) {
	d := &Document{pkg: pkg}

	tree, err := pkg.Tree(presPart)
	if err != nil {
		return nil, fmt.Errorf("%w: presentation part: %v", apperr.ErrDocumentLoad, err)
	}
	d.presTree = tree

	sz := tree.Find("p:sldSz")
	if sz == nil {
		return nil, fmt.Errorf("%w: presentation has no p:sldSz", apperr.ErrDocumentLoad)
	}
	d.widthEMU = parseEMU(sz.Attr("cx"))
	d.heightEMU = parseEMU(sz.Attr("cy"))
	if d.widthEMU <= 0 || d.heightEMU <= 0 {
		return nil, fmt.Errorf("%w: invalid slide size %s x %s", apperr.ErrDocumentLoad, sz.Attr("cx"), sz.Attr("cy"))
	}

	if err := d.reindexSlides(); err != nil {
		return nil, err
	}
	return d, nil
}

// reindexSlides rebuilds slideParts from sldIdLst + presentation rels.
func (d *Document) reindexSlides() error {
	rels, err := d.relationships(presRelsPart)
	if err != nil {
		return fmt.Errorf("%w: presentation rels: %v", apperr.ErrDocumentLoad, err)
	}
	byID := make(map[string]string)
	for _, r := range rels {
		if r.Type == relTypeSlide {
			byID[r.ID] = resolveTarget("ppt", r.Target)
		}
	}

	d.slideParts = d.slideParts[:0]
	if lst := d.presTree.Find("p:sldIdLst"); lst != nil {
		for _, id := range lst.FindAll("p:sldId") {
			part, ok := byID[id.Attr("r:id")]
			if !ok {
				return fmt.Errorf("%w: sldId %s has no slide relationship", apperr.ErrDocumentLoad, id.Attr("r:id"))
			}
			d.slideParts = append(d.slideParts, part)
		}
	}
	return nil
}

// relationship is one entry of a .rels part.
type relationship struct {
	ID     string
	Type   string
	Target string
}

func (d *Document) relationships(relsPart string) ([]relationship, error) {
	if !d.pkg.Has(relsPart) {
		return nil, nil
	}
	tree, err := d.pkg.Tree(relsPart)
	if err != nil {
		return nil, err
	}
	var out []relationship
	for _, r := range tree.FindAll("Relationship") {
		out = append(out, relationship{
			ID:     r.Attr("Id"),
			Type:   r.Attr("Type"),
			Target: r.Attr("Target"),
		})
	}
	return out, nil
}

// resolveTarget resolves a relationship target against the source part's
// directory ("../slideLayouts/x.xml" relative to "ppt/slides").
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

// relsPartFor returns the .rels part name for a given part.
func relsPartFor(part string) string {
	return path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
}

// SlideCount returns the number of slides.
func (d *Document) SlideCount() int { return len(d.slideParts) }

// SlideWidth and SlideHeight return the slide dimensions in EMU.
func (d *Document) SlideWidth() int64  { return d.widthEMU }
func (d *Document) SlideHeight() int64 { return d.heightEMU }

// Slide returns the slide at index i (position-dependent identity).
func (d *Document) Slide(i int) (*Slide, error) {
	if i < 0 || i >= len(d.slideParts) {
		return nil, fmt.Errorf("%w: index %d, document has %d slides", apperr.ErrSlideNotFound, i, len(d.slideParts))
	}
	part := d.slideParts[i]
	root, err := d.pkg.Tree(part)
	if err != nil {
		return nil, err
	}
	spTree := root.FindPath("p:cSld", "p:spTree")
	if spTree == nil {
		return nil, fmt.Errorf("%w: slide %s has no p:spTree", apperr.ErrInternalXML, part)
	}
	return &Slide{doc: d, part: part, root: root, spTree: spTree}, nil
}

// DeleteSlide removes the slide at index i: its sldId entry, its
// relationship, its content-type override, and the part itself.
func (d *Document) DeleteSlide(i int) error {
	if i < 0 || i >= len(d.slideParts) {
		return fmt.Errorf("%w: index %d, document has %d slides", apperr.ErrSlideNotFound, i, len(d.slideParts))
	}
	part := d.slideParts[i]

	lst := d.presTree.Find("p:sldIdLst")
	if lst == nil {
		return fmt.Errorf("%w: presentation has no p:sldIdLst", apperr.ErrInternalXML)
	}
	ids := lst.FindAll("p:sldId")
	if i >= len(ids) {
		return fmt.Errorf("%w: sldIdLst shorter than slide list", apperr.ErrInternalXML)
	}
	rID := ids[i].Attr("r:id")
	lst.RemoveAt(lst.Index(ids[i]))

	relsTree, err := d.pkg.Tree(presRelsPart)
	if err != nil {
		return err
	}
	for _, r := range relsTree.FindAll("Relationship") {
		if r.Attr("Id") == rID {
			relsTree.RemoveAt(relsTree.Index(r))
			break
		}
	}

	if ct, err := d.pkg.Tree(contentTypes); err == nil {
		for _, o := range ct.FindAll("Override") {
			if o.Attr("PartName") == "/"+part {
				ct.RemoveAt(ct.Index(o))
				break
			}
		}
	}

	d.pkg.Remove(part)
	d.pkg.Remove(relsPartFor(part))

	return d.reindexSlides()
}

// LayoutParts returns the slide layout part names present in the package,
// in archive order.
func (d *Document) LayoutParts() []string {
	var out []string
	for _, name := range d.pkg.names {
		if strings.HasPrefix(name, "ppt/slideLayouts/") && strings.HasSuffix(name, ".xml") &&
			!strings.Contains(name, "_rels") {
			out = append(out, name)
		}
	}
	return out
}

// LayoutName returns the display name of a layout part ("" on damage).
func (d *Document) LayoutName(layoutPart string) string {
	tree, err := d.pkg.Tree(layoutPart)
	if err != nil {
		return ""
	}
	if c := tree.Find("p:cSld"); c != nil {
		return c.Attr("name")
	}
	return ""
}

// Save persists the whole package back to the file it was opened from.
func (d *Document) Save() error {
	return d.pkg.Save(d.pkg.Path())
}

// SaveAs persists the whole package to a different path.
func (d *Document) SaveAs(path string) error {
	return d.pkg.Save(path)
}

// Package exposes the underlying package for the probe's layout walk.
func (d *Document) Package() *Package { return d.pkg }

// PartNames returns every part name in archive order.
func (d *Document) PartNames() []string {
	return append([]string(nil), d.pkg.names...)
}

func parseEMU(s string) int64 {
	var v int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	return v
}
