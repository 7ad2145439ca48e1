// Package extract turns free-form generative model output into structured
// values.
//
// Models wrap JSON in prose, code fences, or both, and sometimes answer in
// plain text instead. Locate finds the JSON-shaped span by bracket seeking;
// it does not repair truncated or invalid JSON. A response with no opening
// bracket at all is reported as *model.NoStructureFoundError so callers can
// tell a refusal apart from a broken payload (*model.MalformedOutputError).
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hurttlocker/gremio/internal/model"
)

// fenceRE matches code fence markers with an optional language tag.
var fenceRE = regexp.MustCompile("```[A-Za-z0-9_+-]*")

// StripFences removes every code fence marker from text.
func StripFences(text string) string {
	return fenceRE.ReplaceAllString(strings.TrimSpace(text), "")
}

// Locate returns the JSON-shaped span of text: from the first '{' or '['
// (whichever comes first) to the last '}' or ']' (whichever comes last).
func Locate(text string) (string, error) {
	cleaned := StripFences(text)

	start := -1
	curly := strings.Index(cleaned, "{")
	square := strings.Index(cleaned, "[")
	switch {
	case curly >= 0 && (square < 0 || curly < square):
		start = curly
	case square >= 0:
		start = square
	}
	if start < 0 {
		return "", &model.NoStructureFoundError{Response: text}
	}

	span := cleaned[start:]
	end := strings.LastIndex(span, "}")
	if sq := strings.LastIndex(span, "]"); sq > end {
		end = sq
	}
	if end >= 0 {
		span = span[:end+1]
	}
	return span, nil
}

// ExtractJSON locates and parses the structured value inside text. Objects
// come back as map[string]any, arrays as []any.
func ExtractJSON(text string) (any, error) {
	var v any
	if err := Decode(text, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode locates the structured value inside text and unmarshals it into v.
func Decode(text string, v any) error {
	span, err := Locate(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return &model.MalformedOutputError{Fragment: span, Err: err}
	}
	return nil
}
