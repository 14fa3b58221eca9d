package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/sphinxdocs/search-mcp/internal/indexing"
)

// SQLiteIndexer writes the entries of each site, one site per transaction.
type SQLiteIndexer struct {
	mu         sync.Mutex
	db         *sql.DB
	insertStmt *sql.Stmt
}

func NewSQLiteIndexer(path string) (*SQLiteIndexer, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO entries (id, site, kind, docname, title, anchor, url, breadcrumb, type, content) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &SQLiteIndexer{
		db:         db,
		insertStmt: stmt,
	}, nil
}

// ReplaceSite swaps the entries of site for entries in one transaction:
// searchers see either the old set or the new one, and a failed insert
// leaves the old set in place.
func (s *SQLiteIndexer) ReplaceSite(ctx context.Context, site string, entries []indexing.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE site = ?`, site); err != nil {
		return fmt.Errorf("delete site %s: %w", site, err)
	}
	stmt := tx.StmtContext(ctx, s.insertStmt)
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.Site, e.Kind, e.DocName, e.Title, e.Anchor, e.URL, e.Breadcrumb, e.Type, e.Content); err != nil {
			return fmt.Errorf("index entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit site %s: %w", site, err)
	}
	return nil
}

func (s *SQLiteIndexer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.insertStmt.Close()
	return s.db.Close()
}
