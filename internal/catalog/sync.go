package catalog

import (
	"log/slog"

	"github.com/starford/dagaz/internal/deck"
	"github.com/starford/dagaz/internal/workspace"
)

// Sync walks the workspace and brings the registry up to date:
//   - new or changed decks are fingerprinted and upserted
//   - decks removed from disk are deleted from the registry
func Sync(db DeckCatalog, ws *workspace.Dir, logger *slog.Logger) error {
	metas, err := ws.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}
		if err := registerDeck(db, ws, m); err != nil {
			logger.Warn("sync: register failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: registered", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteDeck(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// registerDeck fingerprints one deck and upserts it. A deck that fails to
// open still gets an entry so the registry reflects the file's presence.
func registerDeck(db DeckCatalog, ws *workspace.Dir, m workspace.DeckMeta) error {
	row := DeckRow{
		Path:      m.Path,
		Checksum:  m.Checksum,
		UpdatedAt: m.UpdatedAt,
	}
	abs, err := ws.Abs(m.Path)
	if err != nil {
		return err
	}
	if doc, err := deck.OpenDocument(abs); err == nil {
		row.SlideCount = doc.SlideCount()
		if v, verr := deck.Version(doc); verr == nil {
			row.Version = v
		}
	}
	return db.UpsertDeck(row)
}
