package catalog

import (
	"database/sql"
	"fmt"
	"time"
)

// DeckRow is one registry entry.
type DeckRow struct {
	Path       string    `json:"path"`
	Checksum   string    `json:"checksum"`
	Version    string    `json:"version"`
	SlideCount int       `json:"slide_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuditEntry is one recorded structural operation.
type AuditEntry struct {
	ID            int64     `json:"id"`
	Path          string    `json:"path"`
	Op            string    `json:"op"`
	Detail        string    `json:"detail,omitempty"`
	VersionBefore string    `json:"version_before"`
	VersionAfter  string    `json:"version_after"`
	Generation    uint64    `json:"generation"`
	At            time.Time `json:"at"`
}

// UpsertDeck inserts or replaces a registry entry.
func (db *DB) UpsertDeck(row DeckRow) error {
	_, err := db.conn.Exec(`
		INSERT INTO decks (path, checksum, version, slide_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum    = excluded.checksum,
			version     = excluded.version,
			slide_count = excluded.slide_count,
			updated_at  = excluded.updated_at
	`, row.Path, row.Checksum, row.Version, row.SlideCount, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: upsert deck: %w", err)
	}
	return nil
}

// DeleteDeck removes a registry entry. Audit history stays.
func (db *DB) DeleteDeck(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM decks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete deck: %w", err)
	}
	return nil
}

// GetDeck returns one entry, or nil when not registered.
func (db *DB) GetDeck(path string) (*DeckRow, error) {
	row := db.conn.QueryRow(`SELECT path, checksum, version, slide_count, updated_at FROM decks WHERE path = ?`, path)
	var d DeckRow
	if err := row.Scan(&d.Path, &d.Checksum, &d.Version, &d.SlideCount, &d.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: get deck: %w", err)
	}
	return &d, nil
}

// ListDecks returns all registry entries ordered by path.
func (db *DB) ListDecks() ([]DeckRow, error) {
	rows, err := db.conn.Query(`SELECT path, checksum, version, slide_count, updated_at FROM decks ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list decks: %w", err)
	}
	defer rows.Close()
	var out []DeckRow
	for rows.Next() {
		var d DeckRow
		if err := rows.Scan(&d.Path, &d.Checksum, &d.Version, &d.SlideCount, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every registered deck.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM decks`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// RecordAudit appends one operation record.
func (db *DB) RecordAudit(e AuditEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO audit (path, op, detail, version_before, version_after, generation, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Path, e.Op, e.Detail, e.VersionBefore, e.VersionAfter, e.Generation, at)
	if err != nil {
		return fmt.Errorf("catalog: record audit: %w", err)
	}
	return nil
}

// History returns the most recent audit entries for a deck, newest first.
func (db *DB) History(path string, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, path, op, detail, version_before, version_after, generation, at
		FROM audit WHERE path = ? ORDER BY id DESC LIMIT ?
	`, path, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: history: %w", err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Path, &e.Op, &e.Detail, &e.VersionBefore, &e.VersionAfter, &e.Generation, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
