// Package pathguard validates and normalizes deck file paths before any
// file system operation touches them.
package pathguard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/dagaz/internal/apperr"
)

// DefaultExtensions is the extension whitelist applied when none is given.
var DefaultExtensions = []string{".pptx", ".potx"}

// Guard validates paths against an extension whitelist and, optionally,
// confines them to a base directory.
type Guard struct {
	base       string // absolute base directory, empty = unconfined
	extensions []string
}

// New creates a Guard. If base is non-empty it must be an existing
// directory; every validated path must then resolve inside it.
func New(base string, extensions []string) (*Guard, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	g := &Guard{extensions: extensions}
	if base != "" {
		abs, err := filepath.Abs(base)
		if err != nil {
			return nil, fmt.Errorf("pathguard: resolve base: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("pathguard: stat base: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("pathguard: base is not a directory: %s", abs)
		}
		g.base = abs
	}
	return g, nil
}

// Base returns the confinement directory, or empty if unconfined.
func (g *Guard) Base() string { return g.base }

// Resolve validates path and returns its absolute form. The file itself
// need not exist; its parent directory must.
func (g *Guard) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", apperr.ErrPathValidation)
	}
	if !g.allowedExt(path) {
		return "", fmt.Errorf("%w: extension of %q not in %v", apperr.ErrPathValidation, path, g.extensions)
	}
	abs := path
	if !filepath.IsAbs(abs) {
		if g.base == "" {
			var err error
			if abs, err = filepath.Abs(path); err != nil {
				return "", fmt.Errorf("%w: %v", apperr.ErrPathValidation, err)
			}
		} else {
			abs = filepath.Join(g.base, path)
		}
	}
	abs = filepath.Clean(abs)
	if g.base != "" && !strings.HasPrefix(abs, g.base+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes base directory", apperr.ErrPathValidation, path)
	}
	parent := filepath.Dir(abs)
	info, err := os.Stat(parent)
	if err != nil {
		return "", fmt.Errorf("%w: parent directory of %q: %v", apperr.ErrPathValidation, path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: parent of %q is not a directory", apperr.ErrPathValidation, path)
	}
	return abs, nil
}

// ResolveExisting is Resolve plus a check that the file exists and is a
// regular file.
func (g *Guard) ResolveExisting(path string) (string, error) {
	abs, err := g.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %q does not exist", apperr.ErrPathValidation, path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", apperr.ErrPathValidation, path)
	}
	return abs, nil
}

// ResolveWritable is ResolveExisting plus a writability check on the file.
func (g *Guard) ResolveWritable(path string) (string, error) {
	abs, err := g.ResolveExisting(path)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY, 0)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not writable", apperr.ErrPathValidation, path)
	}
	_ = f.Close()
	return abs, nil
}

func (g *Guard) allowedExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range g.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
