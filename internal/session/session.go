// Package session owns the lock and the opened document for the lifetime
// of one caller-visible operation sequence, and composes the geometry,
// injection, versioning, and approval components.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/approval"
	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/filelock"
	"github.com/starford/dagaz/internal/geometry"
	"github.com/starford/dagaz/internal/pathguard"
)

// State of a session. Terminal states release the lock exactly once.
type State string

const (
	StateOpen   State = "open"
	StateSaved  State = "saved"
	StateFailed State = "failed"
)

// DefaultLockTimeout bounds lock acquisition.
const DefaultLockTimeout = 10 * time.Second

// Options configures Open.
type Options struct {
	Guard       *pathguard.Guard
	Gate        *approval.Gate
	LockTimeout time.Duration
}

// Session is an exclusive handle on one document. Not safe for concurrent
// use; callers wanting parallelism run sessions on different documents.
type Session struct {
	path  string
	lock  *filelock.Lock
	doc   *deck.Document
	gate  *approval.Gate
	state State

	// generation increments on every structural mutation; shape and slide
	// indices observed under an older generation are stale.
	generation uint64
}

// Open validates the path, acquires the file lock, and loads the document.
// If the load fails after the lock was acquired, the lock is released
// before the error propagates.
func Open(ctx context.Context, path string, opts Options) (*Session, error) {
	guard := opts.Guard
	if guard == nil {
		var err error
		if guard, err = pathguard.New("", nil); err != nil {
			return nil, err
		}
	}
	abs, err := guard.ResolveWritable(path)
	if err != nil {
		return nil, err
	}

	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	lock, err := filelock.Acquire(ctx, abs, timeout)
	if err != nil {
		return nil, err
	}

	doc, err := deck.OpenDocument(abs)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	return &Session{
		path:       abs,
		lock:       lock,
		doc:        doc,
		gate:       opts.Gate,
		state:      StateOpen,
		generation: 1,
	}, nil
}

// Path returns the absolute document path.
func (s *Session) Path() string { return s.path }

// Document exposes the open document (used by the capability probe).
func (s *Session) Document() (*deck.Document, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	return s.doc, nil
}

// Generation returns the current structural generation. Indices returned
// by results tagged with an older generation must be re-queried.
func (s *Session) Generation() uint64 { return s.generation }

// Version computes the document's structural fingerprint.
func (s *Session) Version() (string, error) {
	if err := s.requireOpen(); err != nil {
		return "", err
	}
	return deck.Version(s.doc)
}

// Inspect summarizes the document without mutating it.
func (s *Session) Inspect() (*InspectResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	version, err := deck.Version(s.doc)
	if err != nil {
		return nil, err
	}
	res := &InspectResult{
		Path:        s.path,
		SlideWidth:  geometry.EMUToInch(s.doc.SlideWidth()),
		SlideHeight: geometry.EMUToInch(s.doc.SlideHeight()),
		Version:     version,
		Generation:  s.generation,
	}
	for i := 0; i < s.doc.SlideCount(); i++ {
		slide, err := s.doc.Slide(i)
		if err != nil {
			return nil, err
		}
		info := SlideInfo{Index: i, Layout: slide.LayoutName()}
		for j, sh := range slide.Shapes() {
			si := ShapeInfo{Index: j, Kind: sh.Kind(), Name: sh.Name()}
			if l, t, w, h, ok := sh.Geometry(); ok {
				si.Left = geometry.EMUToInch(l)
				si.Top = geometry.EMUToInch(t)
				si.Width = geometry.EMUToInch(w)
				si.Height = geometry.EMUToInch(h)
				si.HasGeometry = true
			}
			info.Shapes = append(info.Shapes, si)
		}
		res.Slides = append(res.Slides, info)
	}
	return res, nil
}

// AddTextBox resolves the position/size specs against the slide dimensions
// and appends a text box. fillHex, when non-empty, sets a solid fill
// ("RRGGBB"). Structural mutation: bumps the generation.
func (s *Session) AddTextBox(slideIndex int, pos geometry.Position, size geometry.Size, text, fillHex string) (*AddShapeResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	slide, err := s.doc.Slide(slideIndex)
	if err != nil {
		return nil, err
	}
	slideW := geometry.EMUToInch(s.doc.SlideWidth())
	slideH := geometry.EMUToInch(s.doc.SlideHeight())

	left, top, err := geometry.ResolvePosition(pos, slideW, slideH)
	if err != nil {
		return nil, err
	}
	width, height, err := geometry.ResolveSize(size, slideW, slideH, 0)
	if err != nil {
		return nil, err
	}

	sh := slide.AddTextBox(fmt.Sprintf("TextBox %d", len(slide.Shapes())+1),
		geometry.Inch(left), geometry.Inch(top), geometry.Inch(width), geometry.Inch(height), text)
	if fillHex != "" {
		if err := deck.SetFillColor(sh, fillHex); err != nil {
			return nil, err
		}
	}
	s.generation++

	res := &AddShapeResult{
		SlideIndex: slideIndex,
		ShapeIndex: len(slide.Shapes()) - 1,
		Left:       left, Top: top, Width: width, Height: height,
		Generation: s.generation,
		Warnings:   []string{deck.StalenessWarning},
	}
	return res, nil
}

// SetOpacity injects the alpha channel on a shape's fill and line colors.
// Non-structural: the generation does not move, but indices observed
// before the given generation are still rejected.
func (s *Session) SetOpacity(slideIndex, shapeIndex int, atGeneration uint64, opacity float64) (*OpacityResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if err := s.checkGeneration(atGeneration); err != nil {
		return nil, err
	}
	slide, err := s.doc.Slide(slideIndex)
	if err != nil {
		return nil, err
	}
	sh, err := slide.Shape(shapeIndex)
	if err != nil {
		return nil, err
	}
	inj, err := deck.SetOpacity(sh, opacity)
	if err != nil {
		return nil, err
	}
	return &OpacityResult{
		SlideIndex:  slideIndex,
		ShapeIndex:  shapeIndex,
		FillApplied: inj.FillApplied,
		LineApplied: inj.LineApplied,
		Generation:  s.generation,
		Warnings:    inj.Warnings,
	}, nil
}

// ReorderShape moves a shape in the slide's paint order. Structural:
// bumps the generation and the result always carries the staleness
// warning, even when the move clamped into a no-op.
func (s *Session) ReorderShape(slideIndex, shapeIndex int, atGeneration uint64, op deck.ZOrderOp) (*ReorderResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if err := s.checkGeneration(atGeneration); err != nil {
		return nil, err
	}
	slide, err := s.doc.Slide(slideIndex)
	if err != nil {
		return nil, err
	}
	newIndex, err := deck.SetZOrder(slide, shapeIndex, op)
	if err != nil {
		return nil, err
	}
	s.generation++
	return &ReorderResult{
		SlideIndex: slideIndex,
		OldIndex:   shapeIndex,
		NewIndex:   newIndex,
		Generation: s.generation,
		Warnings:   []string{deck.StalenessWarning},
	}, nil
}

// ReplaceText substitutes text on one slide, or on every slide when
// slideIndex is negative. The unscoped form is destructive and requires an
// approval token with the text:replace_all scope.
func (s *Session) ReplaceText(slideIndex int, old, new, token string) (*ReplaceTextResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if old == "" {
		return nil, fmt.Errorf("%w: empty search text", apperr.ErrInvalidArgument)
	}
	res := &ReplaceTextResult{Generation: s.generation}

	if slideIndex >= 0 {
		slide, err := s.doc.Slide(slideIndex)
		if err != nil {
			return nil, err
		}
		res.RunsChanged = slide.ReplaceText(old, new)
		res.SlidesTouched = 1
		return res, nil
	}

	if err := s.authorize(token, approval.ScopeReplaceAllText); err != nil {
		return nil, err
	}
	for i := 0; i < s.doc.SlideCount(); i++ {
		slide, err := s.doc.Slide(i)
		if err != nil {
			return nil, err
		}
		if n := slide.ReplaceText(old, new); n > 0 {
			res.RunsChanged += n
			res.SlidesTouched++
		}
	}
	return res, nil
}

// RemoveShape deletes a shape. Destructive: requires a token with the
// shapes:delete scope. Structural: bumps the generation.
func (s *Session) RemoveShape(slideIndex, shapeIndex int, atGeneration uint64, token string) (*RemoveResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if err := s.authorize(token, approval.ScopeRemoveShape); err != nil {
		return nil, err
	}
	if err := s.checkGeneration(atGeneration); err != nil {
		return nil, err
	}
	slide, err := s.doc.Slide(slideIndex)
	if err != nil {
		return nil, err
	}
	if err := slide.RemoveShape(shapeIndex); err != nil {
		return nil, err
	}
	s.generation++
	return &RemoveResult{
		SlideIndex: slideIndex,
		Removed:    shapeIndex,
		Generation: s.generation,
		Warnings:   []string{deck.StalenessWarning},
	}, nil
}

// DeleteSlide removes a slide and its package parts. Destructive: requires
// a token with the slides:delete scope. Structural: bumps the generation
// and invalidates all slide indices.
func (s *Session) DeleteSlide(slideIndex int, atGeneration uint64, token string) (*RemoveResult, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if err := s.authorize(token, approval.ScopeDeleteSlide); err != nil {
		return nil, err
	}
	if err := s.checkGeneration(atGeneration); err != nil {
		return nil, err
	}
	if err := s.doc.DeleteSlide(slideIndex); err != nil {
		return nil, err
	}
	s.generation++
	return &RemoveResult{
		SlideIndex: slideIndex,
		Removed:    slideIndex,
		Generation: s.generation,
		Warnings:   []string{deck.StalenessWarning},
	}, nil
}

// SaveAndClose persists the package and releases the lock. The session is
// terminal afterwards regardless of outcome.
func (s *Session) SaveAndClose() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	saveErr := s.doc.Save()
	releaseErr := s.lock.Release()
	if saveErr != nil {
		s.state = StateFailed
		return saveErr
	}
	if releaseErr != nil {
		s.state = StateFailed
		return releaseErr
	}
	s.state = StateSaved
	return nil
}

// Close abandons unsaved changes and releases the lock. Safe to defer
// alongside SaveAndClose; closing a terminal session is a no-op.
func (s *Session) Close() error {
	if s.state != StateOpen {
		return nil
	}
	s.state = StateFailed
	return s.lock.Release()
}

// StateNow returns the session state.
func (s *Session) StateNow() State { return s.state }

func (s *Session) requireOpen() error {
	if s.state != StateOpen {
		return fmt.Errorf("%w: session is %s", apperr.ErrInvalidArgument, s.state)
	}
	return nil
}

// checkGeneration rejects indices observed under an older generation.
// Zero skips the check for callers that just re-queried.
func (s *Session) checkGeneration(atGeneration uint64) error {
	if atGeneration != 0 && atGeneration != s.generation {
		return fmt.Errorf("%w: index observed at generation %d, document is at %d; re-query before retrying",
			apperr.ErrShapeNotFound, atGeneration, s.generation)
	}
	return nil
}

func (s *Session) authorize(token, scope string) error {
	if s.gate == nil {
		return fmt.Errorf("%w: no approval gate configured, destructive operations disabled", apperr.ErrPermission)
	}
	return s.gate.Authorize(token, scope)
}
