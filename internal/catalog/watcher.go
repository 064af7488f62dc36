package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dagaz/internal/workspace"
)

// EventCallback is called after a watcher-driven registry change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the workspace root and keeps the
// registry current until ctx is cancelled, so decks edited outside the
// engine (or saved by another process) stay registered with a fresh
// version fingerprint. Rewrites are debounced: the engine's own save is a
// temp-file rename that lands as a burst of events.
func Watch(ctx context.Context, db DeckCatalog, ws *workspace.Dir, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, ws.Root()); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", ws.Root()))

	// pending paths are re-registered after a quiet period.
	pending := make(map[string]struct{})
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if flushTimer == nil {
			flushTimer = time.NewTimer(200 * time.Millisecond)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for rel := range pending {
				delete(pending, rel)
				m, statErr := ws.Stat(rel)
				if statErr != nil {
					// Gone between the event and the flush.
					if delErr := db.DeleteDeck(rel); delErr == nil && cb != nil {
						cb("deleted", rel)
					}
					continue
				}
				kind := "updated"
				if existing, getErr := db.GetDeck(rel); getErr == nil && existing == nil {
					kind = "created"
				}
				if err := registerDeck(db, ws, m); err != nil {
					logger.Warn("watcher: register failed", slog.String("path", rel), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: registered", slog.String("path", rel))
				if cb != nil {
					cb(kind, rel)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name

			// New directories join the watch list.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}

			if !workspace.IsDeckPath(absPath) {
				continue
			}
			rel, relErr := ws.Rel(absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				schedule(rel)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if delErr := db.DeleteDeck(rel); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				if cb != nil {
					cb("deleted", rel)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
