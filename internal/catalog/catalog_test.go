package catalog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/workspace"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeckRoundTrip(t *testing.T) {
	db := testDB(t)

	row := DeckRow{
		Path:       "reports/q3.pptx",
		Checksum:   "abc123",
		Version:    "deadbeefdeadbeef",
		SlideCount: 4,
		UpdatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := db.UpsertDeck(row); err != nil {
		t.Fatalf("UpsertDeck: %v", err)
	}

	got, err := db.GetDeck(row.Path)
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if got == nil {
		t.Fatal("GetDeck returned nil for registered deck")
	}
	if got.Checksum != row.Checksum || got.SlideCount != row.SlideCount || got.Version != row.Version {
		t.Errorf("got %+v, want %+v", got, row)
	}

	// Upsert replaces in place.
	row.Checksum = "def456"
	row.SlideCount = 5
	if err := db.UpsertDeck(row); err != nil {
		t.Fatalf("second UpsertDeck: %v", err)
	}
	got, err = db.GetDeck(row.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Checksum != "def456" || got.SlideCount != 5 {
		t.Errorf("upsert did not replace: %+v", got)
	}

	list, err := db.ListDecks()
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("list = %d rows, want 1", len(list))
	}

	if err := db.DeleteDeck(row.Path); err != nil {
		t.Fatalf("DeleteDeck: %v", err)
	}
	got, err = db.GetDeck(row.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("deck still registered after delete: %+v", got)
	}
}

func TestGetDeckUnknown(t *testing.T) {
	db := testDB(t)
	got, err := db.GetDeck("nope.pptx")
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestListDecksOrderedByPath(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"b.pptx", "a.pptx", "c/d.pptx"} {
		if err := db.UpsertDeck(DeckRow{Path: p, UpdatedAt: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := db.ListDecks()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.pptx", "b.pptx", "c/d.pptx"}
	for i, w := range want {
		if list[i].Path != w {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Path, w)
		}
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertDeck(DeckRow{Path: "a.pptx", Checksum: "x", UpdatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertDeck(DeckRow{Path: "b.pptx", Checksum: "y", UpdatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	cs, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 || cs["a.pptx"] != "x" || cs["b.pptx"] != "y" {
		t.Errorf("checksums = %v", cs)
	}
}

func TestAuditHistory(t *testing.T) {
	db := testDB(t)
	for i := 0; i < 5; i++ {
		err := db.RecordAudit(AuditEntry{
			Path:          "a.pptx",
			Op:            "add_text_box",
			VersionBefore: "v0",
			VersionAfter:  "v1",
			Generation:    uint64(i + 1),
		})
		if err != nil {
			t.Fatalf("RecordAudit: %v", err)
		}
	}
	if err := db.RecordAudit(AuditEntry{Path: "other.pptx", Op: "delete_slide"}); err != nil {
		t.Fatal(err)
	}

	hist, err := db.History("a.pptx", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("history = %d entries, want 3", len(hist))
	}
	// Newest first.
	if hist[0].Generation != 5 || hist[2].Generation != 3 {
		t.Errorf("history order: gen %d..%d, want 5..3", hist[0].Generation, hist[2].Generation)
	}
	if hist[0].At.IsZero() {
		t.Error("timestamp not defaulted")
	}

	// Out-of-range limits clamp to the default.
	hist, err = db.History("a.pptx", -1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 5 {
		t.Errorf("clamped history = %d entries, want 5", len(hist))
	}
}

func TestAuditSurvivesDeckDeletion(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertDeck(DeckRow{Path: "a.pptx", UpdatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordAudit(AuditEntry{Path: "a.pptx", Op: "delete_slide"}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteDeck("a.pptx"); err != nil {
		t.Fatal(err)
	}
	hist, err := db.History("a.pptx", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Errorf("history = %d entries after deck deletion, want 1", len(hist))
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	root := t.TempDir()
	ws, err := workspace.New(root)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"one.pptx", "sub/two.pptx"} {
		if err := deck.CreateDeck(filepath.Join(root, filepath.FromSlash(p)), 2, 0, 0); err != nil {
			t.Fatalf("CreateDeck %s: %v", p, err)
		}
	}
	// A stale entry whose file no longer exists.
	if err := db.UpsertDeck(DeckRow{Path: "gone.pptx", Checksum: "stale", UpdatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := Sync(db, ws, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	list, err := db.ListDecks()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("registry = %d rows, want 2", len(list))
	}
	if list[0].Path != "one.pptx" || list[1].Path != "sub/two.pptx" {
		t.Errorf("paths = %s, %s", list[0].Path, list[1].Path)
	}
	for _, row := range list {
		if row.SlideCount != 2 {
			t.Errorf("%s: slide count = %d, want 2", row.Path, row.SlideCount)
		}
		if row.Version == "" || row.Checksum == "" {
			t.Errorf("%s: fingerprints not recorded: %+v", row.Path, row)
		}
	}

	if got, _ := db.GetDeck("gone.pptx"); got != nil {
		t.Error("stale entry survived sync")
	}

	// Unchanged decks are skipped on a second pass; same registry after.
	if err := Sync(db, ws, quietLogger()); err != nil {
		t.Fatal(err)
	}
	again, err := db.ListDecks()
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 2 {
		t.Errorf("second sync registry = %d rows, want 2", len(again))
	}
}
