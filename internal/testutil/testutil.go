// Package testutil provides shared test helpers for setting up
// workspaces, registries, and fixture decks.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dagaz/internal/catalog"
	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/workspace"
)

// TestDB creates a temporary SQLite registry that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dagaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory.
func TestWorkspace(t *testing.T) (string, *workspace.Dir) {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.New(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, ws
}

// FixtureDeck materializes a template deck with the given slide count
// inside dir and returns its absolute path.
func FixtureDeck(t *testing.T, dir, name string, slides int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := deck.CreateDeck(path, slides, 0, 0); err != nil {
		t.Fatal(err)
	}
	return path
}
