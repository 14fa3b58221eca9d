package indexing

// Entry is one document of the secondary full-text index: a section title,
// an index entry, a documented object or a chunk of page text.
type Entry struct {
	ID         string   `json:"id"`
	Site       string   `json:"site"`
	Kind       string   `json:"kind"` // title, index, object or text
	DocName    string   `json:"docname"`
	Title      string   `json:"title"`
	Anchor     string   `json:"anchor,omitempty"`
	URL        string   `json:"url,omitempty"`
	Breadcrumb string   `json:"breadcrumb,omitempty"` // "Page title > Section"
	Type       string   `json:"type,omitempty"`       // object type label, e.g. "Python method"
	Content    string   `json:"content"`
	Keywords   []string `json:"keywords,omitempty"`
	TokenCount int      `json:"token_count,omitempty"` // Estimated token count for monitoring
}

// Entry kinds.
const (
	KindTitle  = "title"
	KindIndex  = "index"
	KindObject = "object"
	KindText   = "text"
)

// Chunking strategy constants
const (
	// TargetChunkTokens is the optimal chunk size (~2000 chars)
	TargetChunkTokens = 500

	// MaxChunkTokens is the maximum before subdividing (~3200 chars)
	MaxChunkTokens = 800

	// OverlapTokens is the overlap between consecutive chunks (~400 chars)
	OverlapTokens = 100

	// CharsPerToken is the approximation for token estimation
	CharsPerToken = 4

	// IndexSchemaVersion increments when the entry layout or mapping changes
	// v1: titles, index entries, objects and page text chunks
	IndexSchemaVersion = 1
)
