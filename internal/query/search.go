package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sphinxdocs/search-mcp/internal/searchindex"
)

// Kind says which part of the index produced a result.
type Kind string

const (
	KindTitle  Kind = "title"
	KindIndex  Kind = "index"
	KindObject Kind = "object"
	KindText   Kind = "text"
)

// ParseKinds maps kind names, case-insensitively, to Kinds. Blank names are
// skipped; an unknown name is an error.
func ParseKinds(names []string) ([]Kind, error) {
	out := make([]Kind, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		switch Kind(name) {
		case "":
		case KindTitle, KindIndex, KindObject, KindText:
			out = append(out, Kind(name))
		default:
			return nil, fmt.Errorf("unknown result kind %q (want title, index, object or text)", name)
		}
	}
	return out, nil
}

// Result is one ranked hit.
type Result struct {
	DocName     string `json:"docname"`
	Filename    string `json:"filename"`
	Title       string `json:"title"`
	Anchor      string `json:"anchor,omitempty"`
	Description string `json:"description,omitempty"`
	Score       int    `json:"score"`
	Kind        Kind   `json:"kind"`
	URL         string `json:"url"`
	Summary     string `json:"summary,omitempty"`

	doc       int
	secondary bool
}

// Options narrows a search.
type Options struct {
	// Limit caps the number of results; 0 means no limit.
	Limit int
	// Kinds restricts the result kinds; empty means all.
	Kinds []Kind
	// Summaries attaches a text snippet to each result when the searcher
	// has a TextFunc.
	Summaries bool
}

func (o Options) wants(k Kind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, want := range o.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// TextFunc returns the plain text of a document, used for summaries.
type TextFunc func(ctx context.Context, doc searchindex.Document) (string, error)

// Searcher ranks queries against one index. It is safe for concurrent use;
// the index must not be modified after New.
type Searcher struct {
	ix     *searchindex.Index
	scorer Scorer
	stem   func(string) string
	links  LinkBuilder
	text   TextFunc

	termKeys      []string
	titleTermKeys []string
	objects       []flatObject
}

type flatObject struct {
	searchindex.NamedObject
	fullNameLower string
	lastLower     string
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithScorer replaces the default weights.
func WithScorer(s Scorer) Option {
	return func(sr *Searcher) { sr.scorer = s }
}

// WithStemmer replaces the Porter stemmer.
func WithStemmer(stem func(string) string) Option {
	return func(sr *Searcher) { sr.stem = stem }
}

// WithLinks sets how result URLs are built.
func WithLinks(b LinkBuilder) Option {
	return func(sr *Searcher) { sr.links = b }
}

// WithText enables summaries.
func WithText(fn TextFunc) Option {
	return func(sr *Searcher) { sr.text = fn }
}

// New prepares a Searcher for ix.
func New(ix *searchindex.Index, opts ...Option) *Searcher {
	s := &Searcher{
		ix:     ix,
		scorer: DefaultScorer(),
		stem:   Stem,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.termKeys = sortedKeys(ix.Terms)
	s.titleTermKeys = sortedKeys(ix.TitleTerms)

	for _, obj := range ix.AllObjects() {
		lower := strings.ToLower(obj.FullName)
		parts := strings.Split(lower, ".")
		s.objects = append(s.objects, flatObject{
			NamedObject:   obj,
			fullNameLower: lower,
			lastLower:     parts[len(parts)-1],
		})
	}
	return s
}

// Index returns the index the searcher was built for.
func (s *Searcher) Index() *searchindex.Index {
	return s.ix
}

// Search runs a query and returns results best-first.
func (s *Searcher) Search(ctx context.Context, raw string, opts Options) ([]Result, error) {
	q := Parse(raw, s.stem)
	if q.Empty() {
		return []Result{}, nil
	}

	var primary, secondary []Result
	if opts.wants(KindTitle) {
		primary = append(primary, s.titleSearch(q)...)
	}
	if opts.wants(KindIndex) {
		for _, r := range s.indexEntrySearch(q) {
			if r.secondary {
				secondary = append(secondary, r)
			} else {
				primary = append(primary, r)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.wants(KindObject) {
		for _, term := range q.ObjectTerms {
			primary = append(primary, s.objectSearch(term, q.ObjectTerms)...)
		}
	}
	if opts.wants(KindText) {
		primary = append(primary, s.termsSearch(q)...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortResults(primary)
	sortResults(secondary)
	results := dedupe(append(primary, secondary...))

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	for i := range results {
		results[i].URL = s.links.URL(results[i].DocName, results[i].Anchor)
	}
	if opts.Summaries && s.text != nil {
		s.attachSummaries(ctx, results, q.HighlightTerms)
	}
	return results, nil
}

func (s *Searcher) result(doc int, title, anchor, descr string, score int, kind Kind) Result {
	return Result{
		DocName:     s.ix.DocName(doc),
		Filename:    s.ix.Filename(doc),
		Title:       title,
		Anchor:      anchor,
		Description: descr,
		Score:       score,
		Kind:        kind,
		doc:         doc,
	}
}

// titleSearch matches section titles containing the whole query. Short
// queries against long titles are ignored.
func (s *Searcher) titleSearch(q Query) []Result {
	if q.Raw == "" {
		return nil
	}
	qLen := utf8.RuneCountInString(q.Raw)

	var results []Result
	for _, title := range sortedKeys(s.ix.AllTitles) {
		titleLen := utf8.RuneCountInString(title)
		if !strings.Contains(strings.ToLower(strings.TrimSpace(title)), q.Raw) || float64(qLen) < float64(titleLen)/2 {
			continue
		}
		score := jsRound(float64(s.scorer.Title) * float64(qLen) / float64(titleLen))
		for _, ref := range s.ix.AllTitles[title] {
			docTitle := s.ix.Title(ref.Doc)
			display := title
			boost := 1
			if docTitle != title {
				display = docTitle + " > " + title
				boost = 0
			}
			anchor := ""
			if ref.Anchor != nil {
				anchor = "#" + *ref.Anchor
			}
			results = append(results, s.result(ref.Doc, display, anchor, "", score+boost, KindTitle))
		}
	}
	return results
}

// indexEntrySearch matches entries of index directives. Entries not marked
// as main are ranked after every other result.
func (s *Searcher) indexEntrySearch(q Query) []Result {
	if q.Raw == "" {
		return nil
	}
	qLen := utf8.RuneCountInString(q.Raw)

	var results []Result
	for _, entry := range sortedKeys(s.ix.IndexEntries) {
		entryLen := utf8.RuneCountInString(entry)
		if !strings.Contains(strings.ToLower(entry), q.Raw) || float64(qLen) < float64(entryLen)/2 {
			continue
		}
		score := jsRound(100 * float64(qLen) / float64(entryLen))
		for _, ref := range s.ix.IndexEntries[entry] {
			anchor := ""
			if ref.Anchor != "" {
				anchor = "#" + ref.Anchor
			}
			r := s.result(ref.Doc, s.ix.Title(ref.Doc), anchor, "", score, KindIndex)
			r.secondary = !ref.Main
			results = append(results, r)
		}
	}
	return results
}

// objectSearch matches documented objects whose full dotted name contains
// term. With several object terms, the others must all occur in the
// object's prefix, name, type label or page title.
func (s *Searcher) objectSearch(term string, objectTerms []string) []Result {
	var results []Result
	for _, fo := range s.objects {
		if !strings.Contains(fo.fullNameLower, term) {
			continue
		}

		score := 0
		switch {
		case fo.fullNameLower == term || fo.lastLower == term:
			score += s.scorer.ObjNameMatch
		case strings.Contains(fo.lastLower, term):
			score += s.scorer.ObjPartialMatch
		}

		label := s.ix.ObjectTypeLabel(fo.TypeIdx)
		title := s.ix.Title(fo.Doc)

		if len(objectTerms) > 1 {
			haystack := strings.ToLower(fo.Prefix + " " + fo.Name + " " + label + " " + title)
			missing := false
			for _, other := range objectTerms {
				if other != term && !strings.Contains(haystack, other) {
					missing = true
					break
				}
			}
			if missing {
				continue
			}
		}

		anchor := s.ix.ObjectAnchor(fo.NamedObject)
		score += s.scorer.objPrio(fo.Prio)
		results = append(results, s.result(fo.Doc, fo.FullName, "#"+anchor, label+", in "+title, score, KindObject))
	}
	return results
}

type termRecord struct {
	refs  searchindex.DocRefs
	score int
}

// termsSearch looks the stemmed words up in the full-text tables. A page
// must contain every word (words of two characters or less may be missing)
// and none of the excluded words; its score is its best word score.
func (s *Searcher) termsSearch(q Query) []Result {
	if len(q.SearchTerms) == 0 {
		return nil
	}

	scores := map[int]map[string]int{}
	words := map[int][]string{}
	var order []int

	for _, word := range q.SearchTerms {
		var records []termRecord
		if refs, ok := s.ix.Terms[word]; ok {
			records = append(records, termRecord{refs, s.scorer.Term})
		}
		if refs, ok := s.ix.TitleTerms[word]; ok {
			records = append(records, termRecord{refs, s.scorer.Title})
		}
		if utf8.RuneCountInString(word) > 2 {
			if _, ok := s.ix.Terms[word]; !ok {
				for _, term := range s.termKeys {
					if strings.Contains(term, word) {
						records = append(records, termRecord{s.ix.Terms[term], s.scorer.PartialTerm})
					}
				}
			}
			if _, ok := s.ix.TitleTerms[word]; !ok {
				for _, term := range s.titleTermKeys {
					if strings.Contains(term, word) {
						records = append(records, termRecord{s.ix.TitleTerms[term], s.scorer.PartialTitle})
					}
				}
			}
		}

		for _, rec := range records {
			for _, doc := range rec.refs.Docs {
				fileScores, ok := scores[doc]
				if !ok {
					fileScores = map[string]int{}
					scores[doc] = fileScores
					order = append(order, doc)
				}
				if prev, seen := fileScores[word]; !seen || rec.score > prev {
					fileScores[word] = rec.score
				}
				if !containsString(words[doc], word) {
					words[doc] = append(words[doc], word)
				}
			}
		}
	}

	longTerms := 0
	for _, term := range q.SearchTerms {
		if utf8.RuneCountInString(term) > 2 {
			longTerms++
		}
	}

	var results []Result
	for _, doc := range order {
		matched := words[doc]
		if len(matched) != len(q.SearchTerms) && len(matched) != longTerms {
			continue
		}
		if s.containsExcluded(doc, q.ExcludedTerms) {
			continue
		}

		best := math.MinInt
		for _, w := range matched {
			if sc := scores[doc][w]; sc > best {
				best = sc
			}
		}
		results = append(results, s.result(doc, s.ix.Title(doc), "", "", best, KindText))
	}
	return results
}

func (s *Searcher) containsExcluded(doc int, excluded []string) bool {
	for _, term := range excluded {
		if refs, ok := s.ix.Terms[term]; ok && refs.Contains(doc) {
			return true
		}
		if refs, ok := s.ix.TitleTerms[term]; ok && refs.Contains(doc) {
			return true
		}
	}
	return false
}

func (s *Searcher) attachSummaries(ctx context.Context, results []Result, highlight []string) {
	docs := s.ix.Documents()
	texts := map[int]string{}
	for i := range results {
		doc := results[i].doc
		if doc < 0 || doc >= len(docs) {
			continue
		}
		text, ok := texts[doc]
		if !ok {
			t, err := s.text(ctx, docs[doc])
			if err != nil {
				t = ""
			}
			texts[doc] = t
			text = t
		}
		results[i].Summary = Summarize(text, highlight)
	}
}

// sortResults orders by score, best first, then by title.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
	})
}

// dedupe keeps the first (best ranked) of results that point at the same
// place with the same text.
func dedupe(results []Result) []Result {
	type key struct {
		docname, title, anchor, descr, filename string
	}
	seen := make(map[key]bool, len(results))
	out := make([]Result, 0, len(results))
	for _, r := range results {
		k := key{r.DocName, r.Title, r.Anchor, r.Description, r.Filename}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

// jsRound rounds half up like JavaScript's Math.round.
func jsRound(x float64) int {
	return int(math.Floor(x + 0.5))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
