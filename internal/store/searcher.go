package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type Result struct {
	ID         string `json:"id"`
	Site       string `json:"site"`
	Kind       string `json:"kind"`
	DocName    string `json:"docname"`
	Title      string `json:"title"`
	Anchor     string `json:"anchor,omitempty"`
	URL        string `json:"url"`
	Breadcrumb string `json:"breadcrumb,omitempty"`
	Type       string `json:"type,omitempty"`
}

type SearchResponse struct {
	Total   uint64   `json:"total"`
	Results []Result `json:"results"`
}

// Filter narrows a search to one site and/or one entry kind. Empty fields
// match everything.
type Filter struct {
	Site string
	Kind string
}

type SQLiteSearcher struct {
	db *sql.DB
}

func NewSQLiteSearcher(path string) (*SQLiteSearcher, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSearcher{db: db}, nil
}

func (s *SQLiteSearcher) Close() error {
	return s.db.Close()
}

func (s *SQLiteSearcher) Search(ctx context.Context, queryString string, filter Filter, limit int, offset int) (SearchResponse, error) {
	queryString = sanitizeQuery(queryString)
	if queryString == "" {
		return SearchResponse{Results: []Result{}}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT e.id, e.site, e.kind, e.docname, e.title, e.anchor, e.url, e.breadcrumb, e.type, COUNT(*) OVER() AS total
		 FROM entries_fts f
		 JOIN entries e ON e.rowid = f.rowid
		 WHERE entries_fts MATCH ?`
	args := []any{queryString}

	if filter.Site != "" {
		query += ` AND e.site = ?`
		args = append(args, filter.Site)
	}
	if filter.Kind != "" {
		query += ` AND e.kind = ?`
		args = append(args, filter.Kind)
	}

	query += ` ORDER BY f.rank, e.id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var resp SearchResponse
	resp.Results = make([]Result, 0)

	for rows.Next() {
		var r Result
		var total uint64
		if err := rows.Scan(&r.ID, &r.Site, &r.Kind, &r.DocName, &r.Title, &r.Anchor, &r.URL, &r.Breadcrumb, &r.Type, &total); err != nil {
			return SearchResponse{}, fmt.Errorf("scan result: %w", err)
		}
		resp.Total = total
		resp.Results = append(resp.Results, r)
	}
	if err := rows.Err(); err != nil {
		return SearchResponse{}, fmt.Errorf("iterate results: %w", err)
	}

	return resp, nil
}

// CountSite returns how many entries site has.
func (s *SQLiteSearcher) CountSite(ctx context.Context, site string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE site = ?`, site).Scan(&n); err != nil {
		return 0, fmt.Errorf("count site %s: %w", site, err)
	}
	return n, nil
}

// sanitizeQuery turns free text into an FTS5 query of quoted prefix terms,
// dropping operators and punctuation FTS5 would reject.
func sanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	q = strings.TrimSpace(b.String())
	if q == "" {
		return ""
	}

	terms := strings.Fields(q)
	for i, t := range terms {
		upper := strings.ToUpper(t)
		if upper == "AND" || upper == "OR" || upper == "NOT" || upper == "NEAR" {
			terms[i] = ""
			continue
		}
		terms[i] = `"` + t + `"` + "*"
	}

	var filtered []string
	for _, t := range terms {
		if t != "" {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return ""
	}
	return strings.Join(filtered, " ")
}
