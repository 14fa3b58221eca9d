package indexing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
)

const (
	versionFileName     = ".index_version"
	fingerprintFileName = ".fingerprint"
	batchSize           = 100
)

// ErrStaleIndex is returned by OpenIndex when the on-disk index was written
// with another schema version.
var ErrStaleIndex = errors.New("index schema version mismatch")

// NewMapping returns the bleve mapping for Entry documents. Filter fields
// are keywords; title, breadcrumb and content go through the English
// analyzer.
func NewMapping() mapping.IndexMapping {
	keyword := bleve.NewKeywordFieldMapping()
	keyword.IncludeInAll = false

	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	stored := bleve.NewTextFieldMapping()
	stored.Index = false
	stored.IncludeInAll = false

	count := bleve.NewNumericFieldMapping()
	count.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	for _, field := range []string{"id", "site", "kind", "docname", "type"} {
		doc.AddFieldMappingsAt(field, keyword)
	}
	for _, field := range []string{"title", "breadcrumb", "content", "keywords"} {
		doc.AddFieldMappingsAt(field, text)
	}
	for _, field := range []string{"anchor", "url"} {
		doc.AddFieldMappingsAt(field, stored)
	}
	doc.AddFieldMappingsAt("token_count", count)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

func indexBatches(index bleve.Index, entries []Entry) error {
	batch := index.NewBatch()
	for i, entry := range entries {
		if err := batch.Index(entry.ID, entry); err != nil {
			return fmt.Errorf("failed to add entry %s to batch: %w", entry.ID, err)
		}

		// Submit batch every 100 documents
		if (i+1)%batchSize == 0 {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}

	// Submit remaining
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return nil
}

// NewMemIndex builds an in-memory index over entries.
func NewMemIndex(entries []Entry) (Index, error) {
	index, err := bleve.NewMemOnly(NewMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if err := indexBatches(index, entries); err != nil {
		index.Close()
		return nil, err
	}
	return wrapIndex(index, ""), nil
}

// WriteIndex builds an index over entries in a temp directory next to dir
// and renames it into place, so a reader never sees a half-built index. The
// schema version and fingerprint files are written beside dir afterwards.
func WriteIndex(dir string, entries []Entry, fingerprint string) error {
	tempDir := dir + ".tmp"

	// Clean up any leftover temp index from previous crash
	os.RemoveAll(tempDir)

	if err := os.MkdirAll(filepath.Dir(tempDir), 0755); err != nil {
		return fmt.Errorf("failed to create temp index directory: %w", err)
	}

	index, err := bleve.New(tempDir, NewMapping())
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	if err := indexBatches(index, entries); err != nil {
		index.Close()
		os.RemoveAll(tempDir)
		return err
	}
	if err := index.Close(); err != nil {
		os.RemoveAll(tempDir)
		return fmt.Errorf("failed to close temp index: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		os.RemoveAll(tempDir)
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tempDir, dir); err != nil {
		os.RemoveAll(tempDir)
		return fmt.Errorf("failed to rename temp index: %w", err)
	}

	if err := WriteVersion(dir); err != nil {
		return err
	}
	return writeFingerprint(dir, fingerprint)
}

// OpenIndex opens an index written by WriteIndex. It fails with
// ErrStaleIndex when the schema version file is missing or different.
func OpenIndex(dir string) (Index, error) {
	if v := ReadVersion(dir); v != IndexSchemaVersion {
		return nil, fmt.Errorf("%w (have: v%d, want: v%d)", ErrStaleIndex, v, IndexSchemaVersion)
	}
	index, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return wrapIndex(index, dir), nil
}

// ReadVersion returns the schema version recorded for the index at dir, or
// 0 when there is none.
func ReadVersion(dir string) int {
	data, err := os.ReadFile(filepath.Join(filepath.Dir(dir), versionFileName))
	if err != nil {
		return 0 // No version file = v0 (old format)
	}
	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return version
}

// WriteVersion records the current schema version for the index at dir.
func WriteVersion(dir string) error {
	path := filepath.Join(filepath.Dir(dir), versionFileName)
	if err := os.WriteFile(path, []byte(strconv.Itoa(IndexSchemaVersion)), 0644); err != nil {
		return fmt.Errorf("failed to write version file: %w", err)
	}
	return nil
}

// ReadFingerprint returns the fingerprint of the searchindex the index at
// dir was built from, or "" when unknown.
func ReadFingerprint(dir string) string {
	data, err := os.ReadFile(filepath.Join(filepath.Dir(dir), fingerprintFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func writeFingerprint(dir, fingerprint string) error {
	path := filepath.Join(filepath.Dir(dir), fingerprintFileName)
	if err := os.WriteFile(path, []byte(fingerprint), 0644); err != nil {
		return fmt.Errorf("failed to write fingerprint file: %w", err)
	}
	return nil
}

// Hit is one full-text match.
type Hit struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Search runs a match query against index. kinds, when not empty, keeps only
// entries of those kinds. It returns the hits and the total match count.
func Search(index Index, text string, limit int, kinds []string) ([]Hit, uint64, error) {
	var q bquery.Query = bleve.NewMatchQuery(text)
	if len(kinds) > 0 {
		filters := make([]bquery.Query, 0, len(kinds))
		for _, kind := range kinds {
			tq := bleve.NewTermQuery(kind)
			tq.SetField("kind")
			filters = append(filters, tq)
		}
		q = bleve.NewConjunctionQuery(q, bleve.NewDisjunctionQuery(filters...))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := index.Search(req)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{Entry: entryFromFields(h.ID, h.Fields), Score: h.Score})
	}
	return hits, res.Total, nil
}

func entryFromFields(id string, fields map[string]interface{}) Entry {
	str := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	e := Entry{
		ID:         id,
		Site:       str("site"),
		Kind:       str("kind"),
		DocName:    str("docname"),
		Title:      str("title"),
		Anchor:     str("anchor"),
		URL:        str("url"),
		Breadcrumb: str("breadcrumb"),
		Type:       str("type"),
		Content:    str("content"),
	}
	// A single stored value comes back as a plain string
	switch kw := fields["keywords"].(type) {
	case string:
		e.Keywords = []string{kw}
	case []interface{}:
		e.Keywords = make([]string, 0, len(kw))
		for _, k := range kw {
			if s, ok := k.(string); ok {
				e.Keywords = append(e.Keywords, s)
			}
		}
	}
	if tokenCount, ok := fields["token_count"].(float64); ok {
		e.TokenCount = int(tokenCount)
	}
	return e
}
