package indexing

import (
	"fmt"
	"sort"

	"github.com/sphinxdocs/search-mcp/internal/query"
	"github.com/sphinxdocs/search-mcp/internal/searchindex"
)

// BuildEntries flattens a parsed index into full-text entries: every section
// title, index entry and object, plus text chunks for each document whose
// source text is present in texts (keyed by document number). Entry IDs are
// stable for a given index, so rebuilding an unchanged site yields the same
// documents.
func BuildEntries(ix *searchindex.Index, site string, links query.LinkBuilder, texts map[int]string) []Entry {
	var entries []Entry
	next := func(kind string) string {
		return fmt.Sprintf("%s/%s/%d", site, kind, len(entries))
	}
	add := func(e Entry, pageTitle string) {
		e.Site = site
		e.URL = links.URL(e.DocName, e.Anchor)
		EnrichMetadata(&e, pageTitle)
		entries = append(entries, e)
	}

	for _, title := range sortedKeys(ix.AllTitles) {
		for _, ref := range ix.AllTitles[title] {
			e := Entry{ID: next(KindTitle), Kind: KindTitle, DocName: ix.DocName(ref.Doc), Title: title, Content: title}
			if anchor := ref.AnchorOrEmpty(); anchor != "" {
				e.Anchor = "#" + anchor
			}
			add(e, ix.Title(ref.Doc))
		}
	}

	for _, name := range sortedKeys(ix.IndexEntries) {
		for _, ref := range ix.IndexEntries[name] {
			e := Entry{ID: next(KindIndex), Kind: KindIndex, DocName: ix.DocName(ref.Doc), Title: name, Content: name}
			if ref.Anchor != "" {
				e.Anchor = "#" + ref.Anchor
			}
			add(e, ix.Title(ref.Doc))
		}
	}

	for _, obj := range ix.AllObjects() {
		label := ix.ObjectTypeLabel(obj.TypeIdx)
		add(Entry{
			ID:      next(KindObject),
			Kind:    KindObject,
			DocName: ix.DocName(obj.Doc),
			Title:   obj.FullName,
			Anchor:  "#" + ix.ObjectAnchor(obj),
			Type:    label,
			Content: obj.FullName + " " + label,
		}, ix.Title(obj.Doc))
	}

	for _, doc := range ix.Documents() {
		text, ok := texts[doc.ID]
		if !ok {
			continue
		}
		base := Entry{
			ID:      fmt.Sprintf("%s/%s/%s", site, KindText, doc.Name),
			Site:    site,
			DocName: doc.Name,
			URL:     links.URL(doc.Name, ""),
		}
		entries = append(entries, ChunkPage(base, doc.Title, text)...)
	}
	return entries
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
