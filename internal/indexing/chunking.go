package indexing

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Section is a heading and the text under it.
type Section struct {
	Title string
	Body  string
}

const adornmentChars = "=-`:'\"~^_*+#<>."

// isAdornment reports whether line is a reStructuredText section underline:
// a single punctuation character repeated at least four times.
func isAdornment(line string) bool {
	line = strings.TrimRight(line, " \t")
	if utf8.RuneCountInString(line) < 4 {
		return false
	}
	c := line[0]
	if !strings.ContainsRune(adornmentChars, rune(c)) {
		return false
	}
	for i := 1; i < len(line); i++ {
		if line[i] != c {
			return false
		}
	}
	return true
}

// markdownHeading returns the text of an ATX heading ("## Title").
func markdownHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(trimmed[level:], "# ")), true
}

func cleanTitle(title string) string {
	return strings.TrimSpace(StripMarkdownLinks(StripRoles(title)))
}

// SplitSections cuts the source text of a page at its headings. Both
// reStructuredText headings (title with an underline and optional overline)
// and markdown ATX headings are recognised; lines inside fenced code blocks
// are never taken as headings. Text before the first heading becomes a
// section with an empty title.
func SplitSections(text string) []Section {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var sections []Section
	var current Section
	var body []string
	started := false
	inFence := false

	flush := func() {
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if started || current.Body != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}
	open := func(title string) {
		flush()
		current = Section{Title: cleanTitle(title)}
		started = true
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			body = append(body, line)
			continue
		}
		if inFence {
			body = append(body, line)
			continue
		}

		// Overlined title: adornment, title, same adornment.
		if isAdornment(line) && i+2 < len(lines) && strings.TrimSpace(lines[i+1]) != "" &&
			strings.TrimRight(lines[i+2], " \t") == strings.TrimRight(line, " \t") {
			open(lines[i+1])
			i += 2
			continue
		}

		// Underlined title.
		if trimmed != "" && !isAdornment(line) && line[0] != ' ' && i+1 < len(lines) && isAdornment(lines[i+1]) &&
			utf8.RuneCountInString(strings.TrimSpace(lines[i+1])) >= utf8.RuneCountInString(trimmed) {
			open(trimmed)
			i++
			continue
		}

		if title, ok := markdownHeading(line); ok {
			open(title)
			continue
		}

		body = append(body, line)
	}
	flush()
	return sections
}

// ForceSplitText splits text by character count at word boundaries
func ForceSplitText(text string, maxChars, overlapChars int) []string {
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return []string{text}
	}
	if overlapChars >= maxChars {
		overlapChars = 0
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= maxChars {
			parts = append(parts, string(runes))
			break
		}

		// Look back for space or newline
		chunkSize := maxChars
		for i := chunkSize; i > chunkSize-100 && i > 0; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				chunkSize = i
				break
			}
		}
		parts = append(parts, string(runes[:chunkSize]))

		// Move forward with overlap
		next := chunkSize - overlapChars
		if next <= 0 {
			next = chunkSize
		}
		runes = runes[next:]
	}
	return parts
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// SubdivideChunk splits a large entry into smaller ones with overlap. Small
// entries are returned as-is with enriched metadata.
func SubdivideChunk(entry Entry, pageTitle string) []Entry {
	if EstimateTokens(entry.Content) <= MaxChunkTokens {
		EnrichMetadata(&entry, pageTitle)
		return []Entry{entry}
	}

	maxChars := MaxChunkTokens * CharsPerToken
	overlapChars := OverlapTokens * CharsPerToken

	// Split by paragraphs, or by sentences when there are none
	paragraphs := strings.Split(entry.Content, "\n\n")
	if len(paragraphs) <= 1 {
		paragraphs = strings.Split(entry.Content, ". ")
		for i := range paragraphs {
			if i < len(paragraphs)-1 {
				paragraphs[i] += "."
			}
		}
	}

	var pieces []string
	var current strings.Builder
	save := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		// A single oversized paragraph is force-split on its own
		if EstimateTokens(para) > MaxChunkTokens {
			save()
			pieces = append(pieces, ForceSplitText(para, maxChars, overlapChars)...)
			continue
		}

		if current.Len() > 0 && EstimateTokens(current.String()+"\n\n"+para) > TargetChunkTokens {
			save()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	save()

	subchunks := make([]Entry, 0, len(pieces))
	for i, piece := range pieces {
		content := piece
		if i > 0 {
			content = tail(pieces[i-1], overlapChars) + "\n\n" + piece
		}

		sub := entry
		sub.ID = fmt.Sprintf("%s_sub%d", entry.ID, i)
		sub.Content = content
		if i > 0 {
			sub.Title = fmt.Sprintf("%s (part %d)", entry.Title, i+1)
		}
		EnrichMetadata(&sub, pageTitle)
		subchunks = append(subchunks, sub)
	}
	return subchunks
}

// ChunkPage turns the source text of one page into text entries, one or more
// per section. base carries the fields shared by every entry (site, docname,
// page URL); each entry's ID, title, anchor and content are filled in here.
func ChunkPage(base Entry, pageTitle, text string) []Entry {
	var entries []Entry
	for i, section := range SplitSections(text) {
		if section.Body == "" {
			continue
		}

		entry := base
		entry.Kind = KindText
		entry.ID = fmt.Sprintf("%s_%d", base.ID, i)
		entry.Title = section.Title
		entry.Anchor = ""
		if entry.Title == "" || entry.Title == pageTitle {
			entry.Title = pageTitle
		} else {
			entry.Anchor = "#" + CreateAnchor(section.Title)
		}
		entry.URL = base.URL + entry.Anchor
		entry.Content = StripRoles(section.Body)

		entries = append(entries, SubdivideChunk(entry, pageTitle)...)
	}
	return entries
}
