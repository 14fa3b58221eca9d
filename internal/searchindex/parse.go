package searchindex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// FileName is the name Sphinx gives the index in the HTML output root.
	FileName = "searchindex.js"

	jsPrefix = "Search.setIndex("
	jsSuffix = ")"
)

var (
	// ErrMalformed is returned when a payload is neither a Search.setIndex
	// call nor a bare JSON object, or when its JSON does not decode.
	ErrMalformed = errors.New("malformed search index")
)

// Unwrap strips the Search.setIndex(...) call around the payload and
// returns the JSON object inside. Bare JSON objects are returned as-is.
func Unwrap(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))

	if bytes.HasPrefix(trimmed, []byte(jsPrefix)) {
		body := bytes.TrimPrefix(trimmed, []byte(jsPrefix))
		body = bytes.TrimSpace(bytes.TrimSuffix(body, []byte(";")))
		if !bytes.HasSuffix(body, []byte(jsSuffix)) {
			return nil, fmt.Errorf("%w: unterminated Search.setIndex call", ErrMalformed)
		}
		body = bytes.TrimSpace(bytes.TrimSuffix(body, []byte(jsSuffix)))
		if !bytes.HasPrefix(body, []byte("{")) {
			return nil, fmt.Errorf("%w: Search.setIndex argument is not an object", ErrMalformed)
		}
		return body, nil
	}

	if bytes.HasPrefix(trimmed, []byte("{")) {
		return trimmed, nil
	}
	return nil, fmt.Errorf("%w: expected Search.setIndex(...) or a JSON object", ErrMalformed)
}

// Parse decodes a searchindex.js payload.
func Parse(data []byte) (*Index, error) {
	body, err := Unwrap(data)
	if err != nil {
		return nil, err
	}

	var ix Index
	if err := json.Unmarshal(body, &ix); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ix.normalize()
	return &ix, nil
}

// Load reads and parses a search index. path may name the file itself or a
// Sphinx HTML output directory containing searchindex.js.
func Load(path string) (*Index, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search index: %w", err)
	}
	ix, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ix, nil
}

// renderJSON encodes the payload with Python's default json.dumps
// separators (", " and ": "), as Sphinx writes it.
func renderJSON(ix *Index) ([]byte, error) {
	ix.normalize()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ix); err != nil {
		return nil, fmt.Errorf("failed to encode search index: %w", err)
	}
	return spaceSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Render returns the index as Sphinx writes it: Search.setIndex({...}).
func Render(ix *Index) ([]byte, error) {
	body, err := renderJSON(ix)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(jsPrefix)+len(jsSuffix))
	out = append(out, jsPrefix...)
	out = append(out, body...)
	out = append(out, jsSuffix...)
	return out, nil
}

// WriteFile renders ix to path, writing through a temp file so readers never
// observe a partial index.
func WriteFile(path string, ix *Index) error {
	data, err := Render(ix)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write search index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace search index: %w", err)
	}
	return nil
}

// spaceSeparators turns compact JSON into json.dumps' default layout: a
// space after every ',' and ':' outside string literals, and non-ASCII runes
// inside them escaped as \uXXXX (surrogate pairs above U+FFFF).
func spaceSeparators(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/4)
	inString := false
	escaped := false
	for i := 0; i < len(compact); {
		c := compact[i]
		if inString && c >= utf8.RuneSelf {
			r, size := utf8.DecodeRune(compact[i:])
			if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
				out = fmt.Appendf(out, "\\u%04x\\u%04x", r1, r2)
			} else {
				out = fmt.Appendf(out, "\\u%04x", r)
			}
			i += size
			continue
		}
		out = append(out, c)
		i++
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',', ':':
			out = append(out, ' ')
		}
	}
	return out
}
