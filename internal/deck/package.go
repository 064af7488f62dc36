package deck

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/dagaz/internal/apperr"
)

// Package is one opened zip archive of XML parts. Parts are kept as raw
// bytes; a part is parsed into a tree on first access and re-serialized at
// save time if its tree was handed out (whole-part rewrite, matching the
// whole-file write model).
type Package struct {
	path  string
	names []string          // archive entry order
	parts map[string][]byte // raw bytes per part
	trees map[string]*Node  // parsed parts, treated as dirty on save
}

// OpenPackage reads the archive at path into memory.
func OpenPackage(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		// Keep the zip error in the chain so callers can tell a malformed
		// archive from a transient read failure.
		return nil, fmt.Errorf("%w: open %s: %w", apperr.ErrDocumentLoad, path, err)
	}
	defer zr.Close()

	p := &Package{
		path:  path,
		parts: make(map[string][]byte),
		trees: make(map[string]*Node),
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: read part %s: %v", apperr.ErrDocumentLoad, f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("%w: read part %s: %v", apperr.ErrDocumentLoad, f.Name, err)
		}
		rc.Close()
		p.names = append(p.names, f.Name)
		p.parts[f.Name] = buf.Bytes()
	}
	if len(p.names) == 0 {
		return nil, fmt.Errorf("%w: %s has no parts", apperr.ErrDocumentLoad, path)
	}
	return p, nil
}

// Path returns the file the package was opened from.
func (p *Package) Path() string { return p.path }

// Has reports whether the package contains a part.
func (p *Package) Has(name string) bool {
	_, ok := p.parts[name]
	return ok
}

// Raw returns the raw bytes of a part.
func (p *Package) Raw(name string) ([]byte, error) {
	data, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing part %s", apperr.ErrInternalXML, name)
	}
	return data, nil
}

// Tree returns the parsed element tree of a part. The tree is shared and
// cached; mutations through it are persisted on the next Save.
func (p *Package) Tree(name string) (*Node, error) {
	if t, ok := p.trees[name]; ok {
		return t, nil
	}
	data, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing part %s", apperr.ErrInternalXML, name)
	}
	t, err := ParseTree(data)
	if err != nil {
		return nil, fmt.Errorf("%w: part %s: %v", apperr.ErrInternalXML, name, err)
	}
	p.trees[name] = t
	return t, nil
}

// PutTree adds or replaces a part with a tree, appending a new entry to
// the archive order when the part is new.
func (p *Package) PutTree(name string, t *Node) {
	if _, ok := p.parts[name]; !ok {
		p.names = append(p.names, name)
		p.parts[name] = nil
	}
	p.trees[name] = t
}

// Remove deletes a part from the package.
func (p *Package) Remove(name string) {
	delete(p.parts, name)
	delete(p.trees, name)
	for i, n := range p.names {
		if n == name {
			p.names = append(p.names[:i], p.names[i+1:]...)
			return
		}
	}
}

// Save rewrites the whole archive to path via a temp file and rename.
func (p *Package) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".dagaz-tmp-*")
	if err != nil {
		return fmt.Errorf("deck: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	for _, name := range p.names {
		data := p.parts[name]
		if t, ok := p.trees[name]; ok {
			data = t.Serialize()
		}
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("deck: create zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("deck: write zip entry %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("deck: finalize zip: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("deck: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("deck: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("deck: rename: %w", err)
	}
	success = true
	return nil
}
