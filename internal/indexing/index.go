package indexing

import "github.com/blevesearch/bleve/v2"

// Index is the part of a site's bleve index the searchers use. Tests
// substitute an in-memory fake.
type Index interface {
	Search(req *bleve.SearchRequest) (*bleve.SearchResult, error)
	DocCount() (uint64, error)
	Close() error
}

// siteIndex is a bleve index that lives in memory (dir == "") or on disk.
type siteIndex struct {
	bleve.Index
	dir string
}

func wrapIndex(index bleve.Index, dir string) Index {
	return &siteIndex{Index: index, dir: dir}
}

func (s *siteIndex) String() string {
	if s.dir == "" {
		return "memory"
	}
	return s.dir
}
