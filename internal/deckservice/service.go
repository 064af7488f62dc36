// Package deckservice coordinates workspace, catalog, and per-operation
// document sessions. Every mutating call opens a session, applies exactly
// one operation, saves, and releases the lock, so concurrent callers on
// different decks never contend.
package deckservice

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/approval"
	"github.com/starford/dagaz/internal/catalog"
	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/color"
	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/geometry"
	"github.com/starford/dagaz/internal/probe"
	"github.com/starford/dagaz/internal/session"
	"github.com/starford/dagaz/internal/workspace"
)

// Publisher receives deck change notifications. *sse.Broker satisfies it.
type Publisher interface {
	PublishDeckEvent(kind, path string)
}

// Service is the operation surface shared by the HTTP API and the MCP
// server.
type Service struct {
	ws     *workspace.Dir
	db     catalog.DeckCatalog
	prober *probe.Prober
	logger *slog.Logger

	secret      []byte
	gate        *approval.Gate
	lockTimeout time.Duration
	broker      Publisher
}

// Config carries service construction knobs.
type Config struct {
	ApprovalSecret []byte
	LockTimeout    time.Duration
	ProbeBudget    time.Duration
	ProbeRetries   int
	Broker         Publisher
}

// NewService creates a deck service. An empty approval secret disables
// destructive operations entirely.
func NewService(ws *workspace.Dir, db catalog.DeckCatalog, logger *slog.Logger, cfg Config) *Service {
	s := &Service{
		ws:          ws,
		db:          db,
		prober:      probe.New(cfg.ProbeBudget, cfg.ProbeRetries),
		logger:      logger,
		secret:      cfg.ApprovalSecret,
		lockTimeout: cfg.LockTimeout,
		broker:      cfg.Broker,
	}
	if len(cfg.ApprovalSecret) > 0 {
		s.gate = approval.NewGate(cfg.ApprovalSecret)
	}
	return s
}

// ListDecks returns the registry contents.
func (s *Service) ListDecks(_ context.Context) ([]catalog.DeckRow, error) {
	return s.db.ListDecks()
}

// History returns the recorded operations for one deck, newest first.
func (s *Service) History(_ context.Context, path string, limit int) ([]catalog.AuditEntry, error) {
	return s.db.History(path, limit)
}

// CreateDeck materializes a new deck from the built-in template and
// registers it.
func (s *Service) CreateDeck(ctx context.Context, path string, slides int) (*session.InspectResult, error) {
	abs, err := s.ws.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.ws.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, path)
	}
	if err := deck.CreateDeck(abs, slides, 0, 0); err != nil {
		return nil, err
	}

	var res *session.InspectResult
	err = s.withSession(ctx, path, "create_deck", fmt.Sprintf("slides=%d", slides), func(sess *session.Session) error {
		var inErr error
		res, inErr = sess.Inspect()
		return inErr
	})
	if err != nil {
		return nil, err
	}
	s.notify("created", path)
	return res, nil
}

// Inspect summarizes a deck without mutating it.
func (s *Service) Inspect(ctx context.Context, path string) (*session.InspectResult, error) {
	var res *session.InspectResult
	err := s.readOnly(ctx, path, func(sess *session.Session) error {
		var inErr error
		res, inErr = sess.Inspect()
		return inErr
	})
	return res, err
}

// Version returns a deck's structural fingerprint.
func (s *Service) Version(ctx context.Context, path string) (string, error) {
	var v string
	err := s.readOnly(ctx, path, func(sess *session.Session) error {
		var inErr error
		v, inErr = sess.Version()
		return inErr
	})
	return v, err
}

// Probe reports the deck's layout capabilities. Deep mode resolves
// placeholder inheritance under the prober's time budget; the lock is not
// taken since nothing mutates.
func (s *Service) Probe(ctx context.Context, path string, deep bool) (*probe.Result, error) {
	abs, err := s.ws.Guard().ResolveExisting(path)
	if err != nil {
		return nil, err
	}
	doc, err := s.prober.OpenWithRetry(ctx, abs)
	if err != nil {
		return nil, err
	}
	return s.prober.Run(ctx, doc, deep)
}

// AddTextBox adds a text box with declarative position and size specs.
func (s *Service) AddTextBox(ctx context.Context, path string, slideIndex int, pos geometry.Position, size geometry.Size, text, fillHex string) (*session.AddShapeResult, error) {
	var res *session.AddShapeResult
	err := s.withSession(ctx, path, "add_text_box", fmt.Sprintf("slide=%d", slideIndex), func(sess *session.Session) error {
		var opErr error
		res, opErr = sess.AddTextBox(slideIndex, pos, size, text, fillHex)
		return opErr
	})
	return res, err
}

// SetOpacity injects shape fill and line opacity.
func (s *Service) SetOpacity(ctx context.Context, path string, slideIndex, shapeIndex int, atGeneration uint64, opacity float64) (*session.OpacityResult, error) {
	var res *session.OpacityResult
	err := s.withSession(ctx, path, "set_opacity", fmt.Sprintf("slide=%d shape=%d", slideIndex, shapeIndex), func(sess *session.Session) error {
		var opErr error
		res, opErr = sess.SetOpacity(slideIndex, shapeIndex, atGeneration, opacity)
		return opErr
	})
	return res, err
}

// ReorderShape moves a shape in the paint order.
func (s *Service) ReorderShape(ctx context.Context, path string, slideIndex, shapeIndex int, atGeneration uint64, op deck.ZOrderOp) (*session.ReorderResult, error) {
	var res *session.ReorderResult
	err := s.withSession(ctx, path, "reorder_shape", fmt.Sprintf("slide=%d shape=%d op=%s", slideIndex, shapeIndex, op), func(sess *session.Session) error {
		var opErr error
		res, opErr = sess.ReorderShape(slideIndex, shapeIndex, atGeneration, op)
		return opErr
	})
	return res, err
}

// ReplaceText substitutes text on one slide, or deck-wide when slideIndex
// is negative (token required).
func (s *Service) ReplaceText(ctx context.Context, path string, slideIndex int, old, new, token string) (*session.ReplaceTextResult, error) {
	var res *session.ReplaceTextResult
	err := s.withSession(ctx, path, "replace_text", fmt.Sprintf("slide=%d", slideIndex), func(sess *session.Session) error {
		var opErr error
		res, opErr = sess.ReplaceText(slideIndex, old, new, token)
		return opErr
	})
	return res, err
}

// RemoveShape deletes a shape (token required).
func (s *Service) RemoveShape(ctx context.Context, path string, slideIndex, shapeIndex int, atGeneration uint64, token string) (*session.RemoveResult, error) {
	var res *session.RemoveResult
	err := s.withSession(ctx, path, "remove_shape", fmt.Sprintf("slide=%d shape=%d", slideIndex, shapeIndex), func(sess *session.Session) error {
		var opErr error
		res, opErr = sess.RemoveShape(slideIndex, shapeIndex, atGeneration, token)
		return opErr
	})
	return res, err
}

// DeleteSlide removes a slide and its package parts (token required).
func (s *Service) DeleteSlide(ctx context.Context, path string, slideIndex int, atGeneration uint64, token string) (*session.RemoveResult, error) {
	var res *session.RemoveResult
	err := s.withSession(ctx, path, "delete_slide", fmt.Sprintf("slide=%d", slideIndex), func(sess *session.Session) error {
		var opErr error
		res, opErr = sess.DeleteSlide(slideIndex, atGeneration, token)
		return opErr
	})
	return res, err
}

// ContrastResult reports a WCAG contrast check between two colors.
type ContrastResult struct {
	Foreground string  `json:"foreground"`
	Background string  `json:"background"`
	Ratio      float64 `json:"ratio"`
	PassesAA   bool    `json:"passes_aa"`
	PassesAAA  bool    `json:"passes_aaa"`
}

// CheckContrast computes the contrast ratio between two hex colors.
func (s *Service) CheckContrast(fgHex, bgHex string) (*ContrastResult, error) {
	fg, err := color.ParseHex(fgHex)
	if err != nil {
		return nil, err
	}
	bg, err := color.ParseHex(bgHex)
	if err != nil {
		return nil, err
	}
	ratio := color.ContrastRatio(fg, bg)
	return &ContrastResult{
		Foreground: fg.Hex(),
		Background: bg.Hex(),
		Ratio:      ratio,
		PassesAA:   ratio >= color.RatioAA,
		PassesAAA:  ratio >= color.RatioAAA,
	}, nil
}

// IssueApproval mints a signed single-use token for the given scopes.
// Disabled when no approval secret is configured.
func (s *Service) IssueApproval(scopes []string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", fmt.Errorf("%w: approval issuing disabled, no secret configured", apperr.ErrPermission)
	}
	if len(scopes) == 0 {
		return "", fmt.Errorf("%w: at least one scope required", apperr.ErrInvalidArgument)
	}
	for _, sc := range scopes {
		switch sc {
		case approval.ScopeDeleteSlide, approval.ScopeRemoveShape, approval.ScopeReplaceAllText:
		default:
			return "", fmt.Errorf("%w: unknown scope %q", apperr.ErrInvalidArgument, sc)
		}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	now := time.Now().UTC()
	return approval.Sign(s.secret, approval.Token{
		Scopes:    scopes,
		Issuer:    "dagaz",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Nonce:     hex.EncodeToString(nonce),
		SingleUse: true,
	}), nil
}

// withSession runs one mutating operation inside a fresh session, saves,
// records an audit entry, refreshes the registry, and notifies listeners.
func (s *Service) withSession(ctx context.Context, path, op, detail string, fn func(*session.Session) error) error {
	abs, err := s.ws.Abs(path)
	if err != nil {
		return err
	}
	sess, err := session.Open(ctx, abs, session.Options{
		Guard:       s.ws.Guard(),
		Gate:        s.gate,
		LockTimeout: s.lockTimeout,
	})
	if err != nil {
		return err
	}

	before, err := sess.Version()
	if err != nil {
		_ = sess.Close()
		return err
	}
	if err := fn(sess); err != nil {
		_ = sess.Close()
		return err
	}
	after, err := sess.Version()
	if err != nil {
		_ = sess.Close()
		return err
	}
	generation := sess.Generation()
	if err := sess.SaveAndClose(); err != nil {
		return err
	}

	if err := s.db.RecordAudit(catalog.AuditEntry{
		Path:          path,
		Op:            op,
		Detail:        detail,
		VersionBefore: before,
		VersionAfter:  after,
		Generation:    generation,
		At:            time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("audit: record failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.refreshRegistry(path, abs, after)
	if before != after {
		s.notify("updated", path)
	}
	return nil
}

// readOnly opens a session, runs fn, and abandons without saving.
func (s *Service) readOnly(ctx context.Context, path string, fn func(*session.Session) error) error {
	abs, err := s.ws.Guard().ResolveExisting(path)
	if err != nil {
		return err
	}
	sess, err := session.Open(ctx, abs, session.Options{
		Guard:       s.ws.Guard(),
		LockTimeout: s.lockTimeout,
	})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	return fn(sess)
}

func (s *Service) refreshRegistry(rel, abs, version string) {
	cs, err := checksum.SumFile(abs)
	if err != nil {
		s.logger.Warn("catalog: checksum failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	row := catalog.DeckRow{Path: rel, Checksum: cs, Version: version, UpdatedAt: time.Now().UTC()}
	if doc, err := deck.OpenDocument(abs); err == nil {
		row.SlideCount = doc.SlideCount()
	}
	if err := s.db.UpsertDeck(row); err != nil {
		s.logger.Warn("catalog: upsert failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
}

func (s *Service) notify(kind, path string) {
	if s.broker != nil {
		s.broker.PublishDeckEvent(kind, path)
	}
}
