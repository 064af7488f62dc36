// Package catalog provides the SQLite-backed registry of decks in the
// workspace plus the audit log of structural operations.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS decks (
	path        TEXT PRIMARY KEY,
	checksum    TEXT NOT NULL DEFAULT '',
	version     TEXT NOT NULL DEFAULT '',
	slide_count INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	path           TEXT NOT NULL,
	op             TEXT NOT NULL,
	detail         TEXT NOT NULL DEFAULT '',
	version_before TEXT NOT NULL DEFAULT '',
	version_after  TEXT NOT NULL DEFAULT '',
	generation     INTEGER NOT NULL DEFAULT 0,
	at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_path ON audit(path);
`

// DeckCatalog is the interface the service and API layers depend on;
// *DB is the SQLite implementation.
type DeckCatalog interface {
	UpsertDeck(row DeckRow) error
	DeleteDeck(path string) error
	GetDeck(path string) (*DeckRow, error)
	ListDecks() ([]DeckRow, error)
	AllChecksums() (map[string]string, error)
	RecordAudit(e AuditEntry) error
	History(path string, limit int) ([]AuditEntry, error)
	Close() error
}

var _ DeckCatalog = (*DB)(nil)

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
