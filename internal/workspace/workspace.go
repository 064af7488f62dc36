// Package workspace is the file-system view of the deck directory: it
// enumerates deck files and resolves relative paths through the path
// guard so nothing escapes the root.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/pathguard"
)

// DeckMeta is lightweight metadata for one deck file.
type DeckMeta struct {
	Path      string // relative to the workspace root, forward slashes
	Checksum  string
	Size      int64
	UpdatedAt time.Time
}

// Dir is a workspace rooted at one directory.
type Dir struct {
	root  string
	guard *pathguard.Guard
}

// New creates a workspace over an existing directory.
func New(root string) (*Dir, error) {
	guard, err := pathguard.New(root, nil)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &Dir{root: guard.Base(), guard: guard}, nil
}

// Root returns the absolute workspace root.
func (d *Dir) Root() string { return d.root }

// Guard returns the path guard confined to this workspace.
func (d *Dir) Guard() *pathguard.Guard { return d.guard }

// Abs resolves a workspace-relative deck path to an absolute one,
// rejecting traversal and bad extensions.
func (d *Dir) Abs(rel string) (string, error) {
	return d.guard.Resolve(rel)
}

// Rel converts an absolute path under the root back to the relative form
// used as the catalog key.
func (d *Dir) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(d.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("workspace: %s is outside the root", abs)
	}
	return filepath.ToSlash(rel), nil
}

// List walks the root and returns metadata for every deck file.
func (d *Dir) List() ([]DeckMeta, error) {
	var out []DeckMeta
	err := filepath.WalkDir(d.root, func(p string, ent fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ent.IsDir() || !isDeckFile(ent.Name()) {
			return nil
		}
		info, err := ent.Info()
		if err != nil {
			return err
		}
		cs, err := checksum.SumFile(p)
		if err != nil {
			return err
		}
		rel, err := d.Rel(p)
		if err != nil {
			return err
		}
		out = append(out, DeckMeta{
			Path:      rel,
			Checksum:  cs,
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: list: %w", err)
	}
	return out, nil
}

// IsDeckPath reports whether a path looks like a deck file, ignoring the
// temp files the save path leaves behind briefly.
func IsDeckPath(path string) bool {
	return isDeckFile(filepath.Base(path))
}

func isDeckFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".pptx" || ext == ".potx"
}

// Stat returns metadata for a single deck file by relative path.
func (d *Dir) Stat(rel string) (DeckMeta, error) {
	abs, err := d.Abs(rel)
	if err != nil {
		return DeckMeta{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return DeckMeta{}, fmt.Errorf("workspace: stat %s: %w", rel, err)
	}
	cs, err := checksum.SumFile(abs)
	if err != nil {
		return DeckMeta{}, err
	}
	return DeckMeta{Path: rel, Checksum: cs, Size: info.Size(), UpdatedAt: info.ModTime()}, nil
}
