package deck

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dagaz/internal/apperr"
)

func newTestDoc(t *testing.T, slides int) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pptx")
	if err := CreateDeck(path, slides, 0, 0); err != nil {
		t.Fatalf("CreateDeck: %v", err)
	}
	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	return doc
}

func TestOpenDocument(t *testing.T) {
	doc := newTestDoc(t, 3)
	if got := doc.SlideCount(); got != 3 {
		t.Errorf("SlideCount = %d", got)
	}
	if doc.SlideWidth() != DefaultSlideWidthEMU {
		t.Errorf("SlideWidth = %d", doc.SlideWidth())
	}
	if doc.SlideHeight() != DefaultSlideHeightEMU {
		t.Errorf("SlideHeight = %d", doc.SlideHeight())
	}
}

func TestOpenDocumentMissing(t *testing.T) {
	_, err := OpenDocument(filepath.Join(t.TempDir(), "nope.pptx"))
	if !errors.Is(err, apperr.ErrDocumentLoad) {
		t.Fatalf("err = %v, want ErrDocumentLoad", err)
	}
}

func TestOpenDocumentCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pptx")
	if err := os.WriteFile(path, []byte("this is not a zip archive"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenDocument(path); !errors.Is(err, apperr.ErrDocumentLoad) {
		t.Fatalf("err = %v, want ErrDocumentLoad", err)
	}
}

func TestSlideLayouts(t *testing.T) {
	doc := newTestDoc(t, 2)

	layouts := doc.LayoutParts()
	if len(layouts) != 2 {
		t.Fatalf("layouts = %v", layouts)
	}

	s0, err := doc.Slide(0)
	if err != nil {
		t.Fatal(err)
	}
	if got := s0.LayoutName(); got != "Title Slide" {
		t.Errorf("slide 0 layout = %q", got)
	}
	s1, err := doc.Slide(1)
	if err != nil {
		t.Fatal(err)
	}
	if got := s1.LayoutName(); got != "Title and Content" {
		t.Errorf("slide 1 layout = %q", got)
	}
}

func TestSlideOutOfRange(t *testing.T) {
	doc := newTestDoc(t, 1)
	for _, i := range []int{-1, 1, 99} {
		if _, err := doc.Slide(i); !errors.Is(err, apperr.ErrSlideNotFound) {
			t.Errorf("Slide(%d): err = %v, want ErrSlideNotFound", i, err)
		}
	}
}

func TestDeleteSlide(t *testing.T) {
	doc := newTestDoc(t, 3)

	deletedPart := mustSlide(t, doc, 1).Part()
	if err := doc.DeleteSlide(1); err != nil {
		t.Fatalf("DeleteSlide: %v", err)
	}
	if got := doc.SlideCount(); got != 2 {
		t.Fatalf("SlideCount after delete = %d", got)
	}
	if doc.Package().Has(deletedPart) {
		t.Error("deleted slide part still in package")
	}

	// Remaining slides reindex contiguously.
	for i := 0; i < doc.SlideCount(); i++ {
		if _, err := doc.Slide(i); err != nil {
			t.Errorf("Slide(%d) after delete: %v", i, err)
		}
	}
}

func TestDeleteSlideOutOfRange(t *testing.T) {
	doc := newTestDoc(t, 1)
	if err := doc.DeleteSlide(5); !errors.Is(err, apperr.ErrSlideNotFound) {
		t.Fatalf("err = %v, want ErrSlideNotFound", err)
	}
}

func TestSaveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.pptx")
	if err := CreateDeck(path, 2, 0, 0); err != nil {
		t.Fatal(err)
	}
	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	slide := mustSlide(t, doc, 0)
	slide.AddTextBox("Box", 914400, 914400, 1828800, 914400, "persisted")
	if err := doc.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := mustSlide(t, again, 0).Text(); got != "persisted" {
		t.Errorf("text after reopen = %q", got)
	}
	if got := len(mustSlide(t, again, 0).Shapes()); got != 1 {
		t.Errorf("shapes after reopen = %d", got)
	}
}

func TestSaveAs(t *testing.T) {
	doc := newTestDoc(t, 1)
	dst := filepath.Join(t.TempDir(), "copy.pptx")
	if err := doc.SaveAs(dst); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	copied, err := OpenDocument(dst)
	if err != nil {
		t.Fatalf("open copy: %v", err)
	}
	if copied.SlideCount() != 1 {
		t.Errorf("copy SlideCount = %d", copied.SlideCount())
	}
}

func mustSlide(t *testing.T, doc *Document, i int) *Slide {
	t.Helper()
	s, err := doc.Slide(i)
	if err != nil {
		t.Fatal(err)
	}
	return s
}
