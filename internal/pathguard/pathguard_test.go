package pathguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dagaz/internal/apperr"
)

func TestResolveExtensionWhitelist(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		ok   bool
	}{
		{"deck.pptx", true},
		{"template.potx", true},
		{"DECK.PPTX", true},
		{"deck.ppt", false},
		{"deck.pptx.exe", false},
		{"deck", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := g.Resolve(tt.path)
		if tt.ok && err != nil {
			t.Errorf("Resolve(%q): %v", tt.path, err)
		}
		if !tt.ok && !errors.Is(err, apperr.ErrPathValidation) {
			t.Errorf("Resolve(%q): err = %v, want ErrPathValidation", tt.path, err)
		}
	}
}

func TestResolveConfinement(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	abs, err := g.Resolve("sub.pptx")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(abs) != dir {
		t.Errorf("resolved outside base: %s", abs)
	}

	for _, p := range []string{"../escape.pptx", "a/../../escape.pptx"} {
		if _, err := g.Resolve(p); !errors.Is(err, apperr.ErrPathValidation) {
			t.Errorf("Resolve(%q): err = %v, want ErrPathValidation", p, err)
		}
	}
}

func TestResolveMissingParent(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Resolve("no/such/dir/deck.pptx"); !errors.Is(err, apperr.ErrPathValidation) {
		t.Fatalf("err = %v, want ErrPathValidation", err)
	}
}

func TestResolveExisting(t *testing.T) {
	dir := t.TempDir()
	g, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := g.ResolveExisting("missing.pptx"); !errors.Is(err, apperr.ErrPathValidation) {
		t.Fatalf("err = %v, want ErrPathValidation", err)
	}

	path := filepath.Join(dir, "real.pptx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	abs, err := g.ResolveExisting("real.pptx")
	if err != nil {
		t.Fatalf("ResolveExisting: %v", err)
	}
	if abs != path {
		t.Errorf("abs = %s, want %s", abs, path)
	}
}

func TestResolveWritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file modes do not bind root")
	}
	dir := t.TempDir()
	g, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "ro.pptx")
	if err := os.WriteFile(path, []byte("x"), 0o444); err != nil {
		t.Fatal(err)
	}
	if _, err := g.ResolveWritable("ro.pptx"); !errors.Is(err, apperr.ErrPathValidation) {
		t.Fatalf("err = %v, want ErrPathValidation", err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := g.ResolveWritable("ro.pptx"); err != nil {
		t.Fatalf("ResolveWritable after chmod: %v", err)
	}
}

func TestNewBadBase(t *testing.T) {
	if _, err := New("/no/such/base/dir", nil); err == nil {
		t.Fatal("expected error for missing base")
	}
}

func TestUnconfinedGuard(t *testing.T) {
	g, err := New("", nil)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	abs, err := g.Resolve(filepath.Join(dir, "anywhere.pptx"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !filepath.IsAbs(abs) {
		t.Errorf("abs = %s", abs)
	}
}
