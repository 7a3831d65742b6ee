package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const busyTimeoutMs = 10_000

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	doc          TEXT    NOT NULL,
	changes      INTEGER NOT NULL,
	committed_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS commits_doc ON commits(doc, id);

CREATE TABLE IF NOT EXISTS scopes (
	doc        TEXT    NOT NULL,
	scope      INTEGER NOT NULL,
	kind       TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	commit_id  INTEGER NOT NULL REFERENCES commits(id),
	PRIMARY KEY (doc, scope, kind)
);
`

// openDB opens an SQLite database with WAL journaling, a busy timeout and
// foreign keys, then applies the schema.
func openDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return db, nil
}

// isBusy reports whether err is an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
