package query

import (
	"strings"
	"unicode"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
)

// Stopwords is Sphinx's English stopword list. These words are never looked
// up as search terms.
var Stopwords = map[string]bool{
	"a": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"but": true, "by": true, "for": true, "if": true, "in": true, "into": true,
	"is": true, "it": true, "near": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "such": true, "that": true, "the": true,
	"their": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "was": true, "will": true, "with": true,
}

// Query is a parsed search string.
type Query struct {
	// Raw is the trimmed, lowercased query, used for title and index
	// entry matching.
	Raw string
	// SearchTerms are stemmed words every text result must contain.
	SearchTerms []string
	// ExcludedTerms are stemmed words (written with a leading '-') no text
	// result may contain.
	ExcludedTerms []string
	// HighlightTerms are the unstemmed words used for summaries.
	HighlightTerms []string
	// ObjectTerms are the lowercased words matched against object names.
	// Stopwords are kept.
	ObjectTerms []string
}

// Empty reports whether the query has nothing to look up.
func (q Query) Empty() bool {
	return q.Raw == "" && len(q.ObjectTerms) == 0
}

// Stem reduces a lowercase word with the Porter stemmer, the algorithm
// Sphinx uses for English indexes.
func Stem(word string) string {
	return porterstemmer.StemString(word)
}

// Parse splits a query the way Sphinx's search page does. stem may be nil,
// in which case Stem is used.
func Parse(raw string, stem func(string) string) Query {
	if stem == nil {
		stem = Stem
	}

	q := Query{Raw: strings.ToLower(strings.TrimSpace(raw))}
	seenSearch := map[string]bool{}
	seenExcluded := map[string]bool{}
	seenHighlight := map[string]bool{}
	seenObject := map[string]bool{}

	for _, tok := range splitQuery(strings.TrimSpace(raw)) {
		lower := strings.ToLower(tok.word)

		if !tok.excluded && !seenObject[lower] {
			seenObject[lower] = true
			q.ObjectTerms = append(q.ObjectTerms, lower)
		}

		if Stopwords[lower] || isNumeric(lower) {
			continue
		}

		word := stem(lower)
		if tok.excluded {
			if !seenExcluded[word] {
				seenExcluded[word] = true
				q.ExcludedTerms = append(q.ExcludedTerms, word)
			}
			continue
		}
		if !seenSearch[word] {
			seenSearch[word] = true
			q.SearchTerms = append(q.SearchTerms, word)
		}
		if !seenHighlight[lower] {
			seenHighlight[lower] = true
			q.HighlightTerms = append(q.HighlightTerms, lower)
		}
	}
	return q
}

type token struct {
	word     string
	excluded bool
}

// splitQuery breaks s into runs of letters, digits and underscores. A '-'
// directly in front of a run (at the start or after a separator) marks the
// run as excluded.
func splitQuery(s string) []token {
	var tokens []token
	var current strings.Builder
	excludeNext := false
	prevWord := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, token{word: current.String(), excluded: excludeNext})
			current.Reset()
		}
		excludeNext = false
	}

	for _, r := range s {
		if isWordRune(r) {
			current.WriteRune(r)
			prevWord = true
			continue
		}
		flush()
		if r == '-' && !prevWord {
			excludeNext = true
		}
		prevWord = false
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_'
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
