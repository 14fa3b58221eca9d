package searchindex

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://sphinx-search-mcp.invalid/schema/searchindex.json"

// knownKeys are the top-level keys Sphinx writes. Anything else is dropped
// on render.
var knownKeys = map[string]bool{
	"alltitles":    true,
	"docnames":     true,
	"envversion":   true,
	"filenames":    true,
	"indexentries": true,
	"objects":      true,
	"objnames":     true,
	"objtypes":     true,
	"terms":        true,
	"titles":       true,
	"titleterms":   true,
}

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func indexSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			compileErr = fmt.Errorf("embedded schema is invalid: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateSchema checks the raw payload (JS wrapper or bare JSON) against
// the embedded JSON Schema. It reports shape problems only; cross-reference
// checks are Validate's job.
func ValidateSchema(data []byte) Report {
	r := newReport()

	body, err := Unwrap(data)
	if err != nil {
		r.fail("$", CodeInvalidJSON, "%v", err)
		r.summarize()
		return r
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		r.fail("$", CodeInvalidJSON, "invalid JSON: %v", err)
		r.summarize()
		return r
	}

	schema, err := indexSchema()
	if err != nil {
		r.fail("$", CodeSchema, "%v", err)
		r.summarize()
		return r
	}

	if err := schema.Validate(instance); err != nil {
		r.Valid = false
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			r.Errors = append(r.Errors, flattenSchemaErrors(validationErr)...)
		} else {
			r.Errors = append(r.Errors, Issue{Path: "$", Message: err.Error(), Code: CodeSchema, Severity: SeverityError})
		}
	}

	var top map[string]json.RawMessage
	if json.Unmarshal(body, &top) == nil {
		for _, key := range sortedKeys(top) {
			if !knownKeys[key] {
				r.warn("$"+member(key), CodeUnknownKey, "unknown key %q is ignored", key)
			}
		}
	}

	r.summarize()
	return r
}

// ValidateAll runs the schema check and, when the payload parses, the
// cross-reference check, returning one merged report.
func ValidateAll(data []byte) (Report, *Index) {
	r := ValidateSchema(data)
	ix, err := Parse(data)
	if err != nil {
		if r.Valid {
			r.fail("$", CodeInvalidJSON, "%v", err)
			r.summarize()
		}
		return r, nil
	}
	r.Merge(Validate(ix))
	return r, ix
}

// flattenSchemaErrors converts a jsonschema error tree into leaf issues.
func flattenSchemaErrors(validationErr *jsonschema.ValidationError) []Issue {
	if len(validationErr.Causes) > 0 {
		var issues []Issue
		for _, cause := range validationErr.Causes {
			issues = append(issues, flattenSchemaErrors(cause)...)
		}
		return issues
	}

	path := "$"
	if len(validationErr.InstanceLocation) > 0 {
		path = "$." + strings.Join(validationErr.InstanceLocation, ".")
	}
	return []Issue{{
		Path:     path,
		Message:  validationErr.Error(),
		Code:     CodeSchema,
		Severity: SeverityError,
	}}
}
