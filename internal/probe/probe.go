// Package probe inspects the layouts and placeholders a document offers.
//
// Shallow mode reads static layout metadata. Deep mode additionally
// instantiates one transient slide per layout to measure the real
// placeholder geometry through the layout/master inheritance chain, then
// discards the slide unsaved. Deep mode runs under a wall-clock budget and
// degrades to partial results instead of failing on exhaustion.
package probe

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/geometry"
)

// Defaults for the deep-mode budget and the open retry policy.
const (
	DefaultBudget  = 15 * time.Second
	DefaultRetries = 2
	retryBackoff   = 100 * time.Millisecond
)

// PlaceholderInfo describes one placeholder of a layout. Geometry is in
// inches and only filled by deep mode; HasGeometry is false when the
// inheritance chain could not resolve a position.
type PlaceholderInfo struct {
	Type        string  `json:"type"`
	Idx         int     `json:"idx"`
	Name        string  `json:"name"`
	Left        float64 `json:"left,omitempty"`
	Top         float64 `json:"top,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	HasGeometry bool    `json:"has_geometry"`
}

// LayoutInfo describes one slide layout.
type LayoutInfo struct {
	Part         string            `json:"part"`
	Name         string            `json:"name"`
	Placeholders []PlaceholderInfo `json:"placeholders"`
}

// Result is what a probe returns. LayoutsAnalyzed < LayoutsTotal together
// with a warning means the budget ran out; Fallback means deep mode could
// not run and shallow data is served instead.
type Result struct {
	Deep            bool         `json:"deep"`
	Layouts         []LayoutInfo `json:"layouts"`
	LayoutsTotal    int          `json:"layouts_total"`
	LayoutsAnalyzed int          `json:"layouts_analyzed"`
	Fallback        bool         `json:"probe_fallback"`
	Warnings        []string     `json:"warnings"`
}

// Prober carries the probe policy knobs.
type Prober struct {
	Budget  time.Duration
	Retries int

	now func() time.Time // test seam
}

// New creates a Prober with defaults filled in.
func New(budget time.Duration, retries int) *Prober {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Prober{Budget: budget, Retries: retries, now: time.Now}
}

// OpenWithRetry opens a document, retrying I/O-class failures with
// exponential backoff. Unparseable packages are not retried: a corrupt
// archive does not fix itself.
func (p *Prober) OpenWithRetry(ctx context.Context, path string) (*deck.Document, error) {
	backoff := retryBackoff
	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", apperr.ErrDocumentLoad, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		doc, err := deck.OpenDocument(path)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if errors.Is(err, apperr.ErrInternalXML) || errors.Is(err, zip.ErrFormat) {
			break
		}
	}
	return nil, lastErr
}

// Run probes doc. With deep false it returns the shallow result directly.
// With deep true it measures placeholder geometry per layout until the
// budget runs out, falling back to shallow data (Fallback=true) when the
// master chain needed for measurement is unreadable.
func (p *Prober) Run(ctx context.Context, doc *deck.Document, deep bool) (*Result, error) {
	layouts := doc.LayoutParts()
	res := &Result{
		Deep:         deep,
		LayoutsTotal: len(layouts),
		Warnings:     []string{},
	}
	if !deep {
		for _, part := range layouts {
			info, err := shallowLayout(doc, part)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("layout %s unreadable: %v", part, err))
				continue
			}
			res.Layouts = append(res.Layouts, info)
			res.LayoutsAnalyzed++
		}
		return res, nil
	}

	masters, err := masterPlaceholders(doc)
	if err != nil {
		// Deep measurement is impossible without the master chain; serve
		// the shallow result marked as a fallback.
		shallow, serr := p.Run(ctx, doc, false)
		if serr != nil {
			return nil, serr
		}
		shallow.Fallback = true
		shallow.Warnings = append(shallow.Warnings, fmt.Sprintf("deep probe unavailable: %v", err))
		return shallow, nil
	}

	now := p.now
	if now == nil {
		now = time.Now
	}
	start := now()
	for _, part := range layouts {
		if now().Sub(start) > p.Budget {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("probe budget %s exhausted after %d of %d layouts; result is partial",
					p.Budget, res.LayoutsAnalyzed, res.LayoutsTotal))
			break
		}
		select {
		case <-ctx.Done():
			res.Warnings = append(res.Warnings, fmt.Sprintf("probe cancelled after %d of %d layouts", res.LayoutsAnalyzed, res.LayoutsTotal))
			return res, nil
		default:
		}

		info, err := deepLayout(doc, part, masters)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("layout %s: %v", part, err))
			continue
		}
		res.Layouts = append(res.Layouts, info)
		res.LayoutsAnalyzed++
	}
	return res, nil
}

// shallowLayout lists a layout's placeholders without geometry.
func shallowLayout(doc *deck.Document, part string) (LayoutInfo, error) {
	info := LayoutInfo{Part: part, Name: doc.LayoutName(part)}
	phs, err := layoutPlaceholders(doc, part)
	if err != nil {
		return info, err
	}
	for _, ph := range phs {
		info.Placeholders = append(info.Placeholders, PlaceholderInfo{
			Type: ph.phType, Idx: ph.idx, Name: ph.name,
		})
	}
	return info, nil
}

// deepLayout instantiates a transient slide for the layout: each layout
// placeholder is cloned, geometry resolved from the placeholder itself or
// the matching master placeholder, measured, and the clone dropped.
func deepLayout(doc *deck.Document, part string, masters []placeholder) (LayoutInfo, error) {
	info := LayoutInfo{Part: part, Name: doc.LayoutName(part)}
	phs, err := layoutPlaceholders(doc, part)
	if err != nil {
		return info, err
	}
	for _, ph := range phs {
		transient := ph.node.Clone() // the whole transient slide is this clone set; never attached to the package
		pi := PlaceholderInfo{Type: ph.phType, Idx: ph.idx, Name: ph.name}
		geom := nodeGeometry(transient)
		if geom == nil {
			if m := matchMaster(masters, ph); m != nil {
				geom = nodeGeometry(m.node)
			}
		}
		if geom != nil {
			pi.Left = geometry.EMUToInch(geom[0])
			pi.Top = geometry.EMUToInch(geom[1])
			pi.Width = geometry.EMUToInch(geom[2])
			pi.Height = geometry.EMUToInch(geom[3])
			pi.HasGeometry = true
		}
		info.Placeholders = append(info.Placeholders, pi)
	}
	return info, nil
}

// placeholder is one p:sp carrying a p:ph, as found in a layout or master.
type placeholder struct {
	node   *deck.Node
	phType string
	idx    int
	name   string
}

func layoutPlaceholders(doc *deck.Document, part string) ([]placeholder, error) {
	return partPlaceholders(doc, part)
}

// masterPlaceholders collects placeholders from every slide master.
func masterPlaceholders(doc *deck.Document) ([]placeholder, error) {
	var out []placeholder
	found := false
	for _, name := range doc.PartNames() {
		if !isMasterPart(name) {
			continue
		}
		found = true
		phs, err := partPlaceholders(doc, name)
		if err != nil {
			return nil, err
		}
		out = append(out, phs...)
	}
	if !found {
		return nil, fmt.Errorf("%w: no slide master part", apperr.ErrInternalXML)
	}
	return out, nil
}

func partPlaceholders(doc *deck.Document, part string) ([]placeholder, error) {
	tree, err := doc.Package().Tree(part)
	if err != nil {
		return nil, err
	}
	spTree := tree.FindPath("p:cSld", "p:spTree")
	if spTree == nil {
		return nil, fmt.Errorf("%w: %s has no p:spTree", apperr.ErrInternalXML, part)
	}
	var out []placeholder
	for _, sp := range spTree.FindAll("p:sp") {
		ph := sp.FindPath("p:nvSpPr", "p:nvPr", "p:ph")
		if ph == nil {
			continue
		}
		p := placeholder{node: sp, phType: ph.Attr("type")}
		if p.phType == "" {
			p.phType = "body"
		}
		p.idx, _ = strconv.Atoi(ph.Attr("idx"))
		if cNvPr := sp.FindPath("p:nvSpPr", "p:cNvPr"); cNvPr != nil {
			p.name = cNvPr.Attr("name")
		}
		out = append(out, p)
	}
	return out, nil
}

// matchMaster finds the master placeholder a layout placeholder inherits
// from: exact type+idx first, then type alone, treating the title
// variants as one family.
func matchMaster(masters []placeholder, ph placeholder) *placeholder {
	want := ph.phType
	if want == "ctrTitle" {
		want = "title"
	}
	for i := range masters {
		if masters[i].phType == want && masters[i].idx == ph.idx {
			return &masters[i]
		}
	}
	for i := range masters {
		if masters[i].phType == want {
			return &masters[i]
		}
	}
	return nil
}

// nodeGeometry reads [left, top, width, height] EMU from a shape node's
// explicit a:xfrm, or nil.
func nodeGeometry(sp *deck.Node) *[4]int64 {
	xfrm := sp.FindPath("p:spPr", "a:xfrm")
	if xfrm == nil {
		return nil
	}
	off, ext := xfrm.Find("a:off"), xfrm.Find("a:ext")
	if off == nil || ext == nil {
		return nil
	}
	g := [4]int64{
		emuAttr(off, "x"), emuAttr(off, "y"),
		emuAttr(ext, "cx"), emuAttr(ext, "cy"),
	}
	return &g
}

func emuAttr(n *deck.Node, attr string) int64 {
	v, _ := strconv.ParseInt(n.Attr(attr), 10, 64)
	return v
}

func isMasterPart(name string) bool {
	return strings.HasPrefix(name, "ppt/slideMasters/") &&
		strings.HasSuffix(name, ".xml") && !strings.Contains(name, "_rels")
}
