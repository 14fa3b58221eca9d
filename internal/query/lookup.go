package query

import "strings"

// ObjectMatch is a documented object resolved by name.
type ObjectMatch struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Label    string `json:"label"`
	DocName  string `json:"docname"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
	Anchor   string `json:"anchor"`
	URL      string `json:"url"`
	Priority int    `json:"priority"`
}

// LookupObject resolves name, case-insensitively, against full dotted object
// names. When nothing matches the full name, objects whose last dotted
// component equals name are returned instead.
func (s *Searcher) LookupObject(name string) []ObjectMatch {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return nil
	}

	var exact, short []ObjectMatch
	for _, fo := range s.objects {
		switch {
		case fo.fullNameLower == want:
			exact = append(exact, s.objectMatch(fo))
		case fo.lastLower == want:
			short = append(short, s.objectMatch(fo))
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return short
}

func (s *Searcher) objectMatch(fo flatObject) ObjectMatch {
	anchor := "#" + s.ix.ObjectAnchor(fo.NamedObject)
	return ObjectMatch{
		Name:     fo.FullName,
		Type:     s.ix.ObjectTypeName(fo.TypeIdx),
		Label:    s.ix.ObjectTypeLabel(fo.TypeIdx),
		DocName:  s.ix.DocName(fo.Doc),
		Filename: s.ix.Filename(fo.Doc),
		Title:    s.ix.Title(fo.Doc),
		Anchor:   anchor,
		URL:      s.links.URL(s.ix.DocName(fo.Doc), anchor),
		Priority: fo.Prio,
	}
}
