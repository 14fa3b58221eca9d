package tools

import (
	"fmt"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/sphinxdocs/search-mcp/internal/indexing"
)

// fakeIndex answers every search with its stored entries, scored in order.
type fakeIndex struct {
	entries     []indexing.Entry
	total       uint64
	searchError error
	closed      atomic.Bool
	lastRequest *bleve.SearchRequest
}

func newFakeIndex(total uint64, entries ...indexing.Entry) *fakeIndex {
	return &fakeIndex{entries: entries, total: total}
}

func (f *fakeIndex) Search(req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	if f.closed.Load() {
		return nil, fmt.Errorf("index closed")
	}
	if f.searchError != nil {
		return nil, f.searchError
	}
	f.lastRequest = req

	var hits search.DocumentMatchCollection
	for i, e := range f.entries {
		if i >= req.Size {
			break
		}
		hits = append(hits, &search.DocumentMatch{
			ID:    e.ID,
			Score: float64(len(f.entries) - i),
			Fields: map[string]interface{}{
				"site":    e.Site,
				"kind":    e.Kind,
				"docname": e.DocName,
				"title":   e.Title,
				"url":     e.URL,
				"content": e.Content,
			},
		})
	}
	return &bleve.SearchResult{Request: req, Hits: hits, Total: f.total}, nil
}

func (f *fakeIndex) DocCount() (uint64, error) {
	if f.closed.Load() {
		return 0, fmt.Errorf("index closed")
	}
	return uint64(len(f.entries)), nil
}

func (f *fakeIndex) Close() error {
	if f.closed.Swap(true) {
		return fmt.Errorf("already closed")
	}
	return nil
}
