// Package store keeps full-text entries of every site in one SQLite FTS5
// database, shared by the indexer command and the HTTP server.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema creates the entries table and its FTS5 shadow. Sites are rebuilt
// one at a time, so tables are kept and a site's rows are replaced instead.
const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	kind TEXT NOT NULL,
	docname TEXT NOT NULL,
	title TEXT NOT NULL,
	anchor TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	breadcrumb TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS entries_site ON entries(site);

CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
	title, breadcrumb, content,
	content='entries',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
	INSERT INTO entries_fts(rowid, title, breadcrumb, content)
	VALUES (new.rowid, new.title, new.breadcrumb, new.content);
END;

CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
	INSERT INTO entries_fts(entries_fts, rowid, title, breadcrumb, content)
	VALUES ('delete', old.rowid, old.title, old.breadcrumb, old.content);
END;

CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
	INSERT INTO entries_fts(entries_fts, rowid, title, breadcrumb, content)
	VALUES ('delete', old.rowid, old.title, old.breadcrumb, old.content);
	INSERT INTO entries_fts(rowid, title, breadcrumb, content)
	VALUES (new.rowid, new.title, new.breadcrumb, new.content);
END;
`

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open search db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}
