package query

import (
	"strings"
	"unicode"
)

const (
	summaryContext = 120
	summaryLength  = 240
)

// Summarize cuts a snippet of text around the highlight words, as Sphinx
// does under each search result. The window starts 120 characters before
// the match of the last highlight word that occurs and spans 240
// characters; "..." marks each side that was cut. Text without any match is
// summarised from its start.
func Summarize(text string, highlight []string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	runes := []rune(text)
	lower := lowerRunes(runes)

	position := -1
	for _, word := range highlight {
		if word == "" {
			continue
		}
		if i := runeIndex(lower, lowerRunes([]rune(word))); i >= 0 {
			position = i
		}
	}

	start := 0
	if position > summaryContext {
		start = position - summaryContext
	}
	end := start + summaryLength
	if end > len(runes) {
		end = len(runes)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString("...")
	}
	return b.String()
}

func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i <= len(haystack)-len(needle); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// lowerRunes lowercases rune by rune so positions stay aligned with the
// original text.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}
