// Package deck implements the presentation package codec and the XML-level
// feature injection the higher-level operations are built on.
//
// Parts are modelled as a generic element tree with explicit find-or-create
// navigation. The rest of the engine goes through Document/Slide/Shape
// accessors and never touches raw nodes.
package deck

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Attr is a single XML attribute with its prefixed name.
type Attr struct {
	Name  string
	Value string
}

// Node is one element in a parsed part. Name keeps the canonical prefix
// form ("p:sp", "a:off"). Text holds character data for leaf elements.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	Text     string
	// XMLNS is the default namespace of an unprefixed root element
	// (relationships, content types); re-declared on serialization.
	XMLNS string
	// NSDecls maps prefix to namespace URI for namespaces outside the
	// canonical table (markup-compatibility content, vendor extensions).
	// Set on the root by ParseTree and re-declared on serialization so
	// foreign subtrees survive a round trip untouched.
	NSDecls map[string]string
}

// Namespace URLs for the parts the engine touches, with their canonical
// prefixes.
const (
	nsPresentationML = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsDrawingML      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsOfficeDocRels  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsRelationships  = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsContentTypes   = "http://schemas.openxmlformats.org/package/2006/content-types"
)

var nsPrefix = map[string]string{
	nsPresentationML: "p",
	nsDrawingML:      "a",
	nsOfficeDocRels:  "r",
	nsRelationships:  "",
	nsContentTypes:   "",
}

var prefixNS = map[string]string{
	"p": nsPresentationML,
	"a": nsDrawingML,
	"r": nsOfficeDocRels,
}

// ParseTree decodes an XML part into a Node tree.
func ParseTree(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *Node
	var stack []*Node
	ns := newNSTable()

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("deck: parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			// Declarations must be seen before the element and attribute
			// names on the same tag are qualified.
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" {
					ns.declare(a.Name.Local, a.Value)
				}
			}
			n := &Node{Name: ns.qualify(t.Name)}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: ns.qualify(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				root = n
				if !strings.Contains(n.Name, ":") && t.Name.Space != "" {
					n.XMLNS = t.Name.Space
				}
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				s := string(t)
				if strings.TrimSpace(s) != "" {
					stack[len(stack)-1].Text += s
				}
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("deck: empty xml part")
	}
	root.NSDecls = ns.decls()
	return root, nil
}

// nsTable resolves namespace URIs to prefixes for one parse. Canonical
// namespaces always use the table prefixes; foreign namespaces keep the
// prefix the document declared for them, or get a synthesized ns%d one
// when the decoder resolved a name whose declaration was never seen
// (default-namespace subtrees).
type nsTable struct {
	byURI map[string]string
	taken map[string]bool
	next  int
}

func newNSTable() *nsTable {
	return &nsTable{
		byURI: map[string]string{},
		taken: map[string]bool{"p": true, "a": true, "r": true, "xml": true, "xmlns": true},
	}
}

// declare records a prefix the document bound to a foreign namespace.
// First binding wins; a prefix clashing with the canonical table is
// skipped and the namespace falls through to a synthesized prefix.
func (t *nsTable) declare(prefix, uri string) {
	if prefix == "" || uri == "" {
		return
	}
	if _, known := nsPrefix[uri]; known {
		return
	}
	if _, seen := t.byURI[uri]; seen || t.taken[prefix] {
		return
	}
	t.byURI[uri] = prefix
	t.taken[prefix] = true
}

// qualify maps a namespace-resolved name back to prefixed form.
func (t *nsTable) qualify(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	if p, ok := nsPrefix[name.Space]; ok {
		if p == "" {
			return name.Local
		}
		return p + ":" + name.Local
	}
	p, ok := t.byURI[name.Space]
	if !ok {
		for {
			t.next++
			p = fmt.Sprintf("ns%d", t.next)
			if !t.taken[p] {
				break
			}
		}
		t.byURI[name.Space] = p
		t.taken[p] = true
	}
	return p + ":" + name.Local
}

// decls returns the prefix-to-URI map for the root node, nil when the
// part used only canonical namespaces.
func (t *nsTable) decls() map[string]string {
	if len(t.byURI) == 0 {
		return nil
	}
	out := make(map[string]string, len(t.byURI))
	for uri, p := range t.byURI {
		out[p] = uri
	}
	return out
}

// Serialize renders the tree back to a standalone XML part, declaring the
// namespaces used anywhere in the tree on the root element.
func (n *Node) Serialize() []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	used := map[string]bool{}
	collectPrefixes(n, used)
	var decls []string
	for p := range used {
		if ns, ok := prefixNS[p]; ok {
			decls = append(decls, fmt.Sprintf(` xmlns:%s="%s"`, p, ns))
		} else if uri, ok := n.NSDecls[p]; ok {
			decls = append(decls, fmt.Sprintf(` xmlns:%s="%s"`, p, uri))
		}
	}
	sort.Strings(decls)
	all := strings.Join(decls, "")
	if n.XMLNS != "" {
		all = fmt.Sprintf(` xmlns="%s"`, n.XMLNS) + all
	}
	n.write(&b, all)
	return b.Bytes()
}

func collectPrefixes(n *Node, used map[string]bool) {
	if i := strings.IndexByte(n.Name, ':'); i > 0 {
		used[n.Name[:i]] = true
	}
	for _, a := range n.Attrs {
		if i := strings.IndexByte(a.Name, ':'); i > 0 {
			used[a.Name[:i]] = true
		}
	}
	for _, c := range n.Children {
		collectPrefixes(c, used)
	}
}

func (n *Node) write(b *bytes.Buffer, rootDecls string) {
	b.WriteByte('<')
	b.WriteString(n.Name)
	b.WriteString(rootDecls)
	for _, a := range n.Attrs {
		fmt.Fprintf(b, ` %s="%s"`, a.Name, escapeAttr(a.Value))
	}
	if len(n.Children) == 0 && n.Text == "" {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	if n.Text != "" {
		_ = xml.EscapeText(b, []byte(n.Text))
	}
	for _, c := range n.Children {
		c.write(b, "")
	}
	b.WriteString("</" + n.Name + ">")
}

func escapeAttr(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// Attr returns the value of the named attribute, or "".
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// SetAttr sets or replaces an attribute.
func (n *Node) SetAttr(name, value string) {
	for i, a := range n.Attrs {
		if a.Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Find returns the first direct child with the given name, or nil.
func (n *Node) Find(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindAll returns all direct children with the given name.
func (n *Node) FindAll(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// FindPath walks Find through a sequence of names, nil if any hop misses.
func (n *Node) FindPath(names ...string) *Node {
	cur := n
	for _, name := range names {
		if cur = cur.Find(name); cur == nil {
			return nil
		}
	}
	return cur
}

// FindOrCreate returns the direct child with the given name, creating and
// appending it if absent.
func (n *Node) FindOrCreate(name string) *Node {
	if c := n.Find(name); c != nil {
		return c
	}
	c := &Node{Name: name}
	n.Children = append(n.Children, c)
	return c
}

// Index returns the position of child among n's children, or -1.
func (n *Node) Index(child *Node) int {
	for i, c := range n.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// RemoveAt removes the child at index i.
func (n *Node) RemoveAt(i int) {
	n.Children = append(n.Children[:i], n.Children[i+1:]...)
}

// InsertAt inserts child at index i, appending when i is past the end.
func (n *Node) InsertAt(i int, child *Node) {
	if i >= len(n.Children) {
		n.Children = append(n.Children, child)
		return
	}
	n.Children = append(n.Children[:i], append([]*Node{child}, n.Children[i:]...)...)
}

// Walk visits n and every descendant in document order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Clone returns a deep copy of the subtree.
func (n *Node) Clone() *Node {
	cp := &Node{Name: n.Name, Text: n.Text, XMLNS: n.XMLNS}
	if n.NSDecls != nil {
		cp.NSDecls = make(map[string]string, len(n.NSDecls))
		for p, uri := range n.NSDecls {
			cp.NSDecls[p] = uri
		}
	}
	cp.Attrs = append([]Attr(nil), n.Attrs...)
	for _, c := range n.Children {
		cp.Children = append(cp.Children, c.Clone())
	}
	return cp
}
