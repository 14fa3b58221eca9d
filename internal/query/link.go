package query

import "strings"

// Builders understood by LinkBuilder.
const (
	BuilderHTML    = "html"
	BuilderDirHTML = "dirhtml"
)

// LinkBuilder turns a docname and anchor into a page URL, following the
// URL layout of Sphinx's html and dirhtml builders.
type LinkBuilder struct {
	// URLRoot is prepended to every link, e.g. "https://docs.example.org/".
	URLRoot string
	// FileSuffix is the page suffix of the html builder. Defaults to ".html".
	FileSuffix string
	// Builder is BuilderHTML (default) or BuilderDirHTML.
	Builder string
}

// URL returns the link for docname; anchor is "" or starts with '#'.
func (b LinkBuilder) URL(docname, anchor string) string {
	root := b.URLRoot
	if root != "" && !strings.HasSuffix(root, "/") {
		root += "/"
	}

	if b.Builder == BuilderDirHTML {
		dirname := docname + "/"
		switch {
		case dirname == "index/":
			dirname = ""
		case strings.HasSuffix(dirname, "/index/"):
			dirname = strings.TrimSuffix(dirname, "index/")
		}
		return root + dirname + anchor
	}

	suffix := b.FileSuffix
	if suffix == "" {
		suffix = ".html"
	}
	return root + docname + suffix + anchor
}
