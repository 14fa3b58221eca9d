package indexing

import (
	"regexp"
	"strings"
	"unicode"
)

var markdownLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\([^\)]+\)`)

// rstRoleRegex matches interpreted text with a role, e.g. :class:`Fst`.
var rstRoleRegex = regexp.MustCompile("(?::[a-z]+)+:`([^`<]+?)(?:\\s*<[^>]*>)?`")

// StripMarkdownLinks removes markdown link syntax, keeping only the text
// Example: "[Text](url)" -> "Text"
func StripMarkdownLinks(text string) string {
	return markdownLinkRegex.ReplaceAllString(text, "$1")
}

// StripRoles replaces reStructuredText roles with their text
// Example: ":py:class:`Fst <fst_runtime.fst.Fst>`" -> "Fst"
func StripRoles(text string) string {
	return rstRoleRegex.ReplaceAllString(text, "$1")
}

// EstimateTokens estimates the token count for a text string
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

var keywordStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"it": true, "be": true, "with": true, "from": true, "that": true,
	"this": true, "are": true, "not": true, "can": true,
}

// ExtractKeywords extracts up to 10 significant words from the title and the
// start of the content, in order of appearance.
func ExtractKeywords(title, content string) []string {
	words := strings.Fields(strings.ToLower(title))

	contentPreview := content
	if len(content) > 200 {
		contentPreview = content[:200]
	}
	words = append(words, strings.Fields(strings.ToLower(contentPreview))...)

	seen := make(map[string]bool)
	keywords := make([]string, 0, 10)
	for _, word := range words {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if len([]rune(word)) <= 2 || keywordStopWords[word] || seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == 10 {
			break
		}
	}
	return keywords
}

// CreateAnchor turns a section title into the id docutils would give it:
// lowercase ASCII letters and digits, other runs collapsed to '-'.
// Example: "Module contents" -> "module-contents"
func CreateAnchor(text string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// EnrichMetadata adds breadcrumb, keywords and token count to an entry.
func EnrichMetadata(entry *Entry, pageTitle string) {
	switch {
	case pageTitle == "" || entry.Title == "":
		entry.Breadcrumb = pageTitle + entry.Title
	case entry.Title == pageTitle:
		entry.Breadcrumb = pageTitle
	default:
		entry.Breadcrumb = pageTitle + " > " + entry.Title
	}

	entry.Keywords = ExtractKeywords(entry.Title, entry.Content)
	entry.TokenCount = EstimateTokens(entry.Content)
}
