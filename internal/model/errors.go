package model

import (
	"fmt"
	"strings"
)

// NoStructureFoundError means the model answered in prose: no '{' or '['
// appears anywhere in the response. Usually a refusal or a clarification
// request.
type NoStructureFoundError struct {
	Response string
}

func (e *NoStructureFoundError) Error() string {
	return fmt.Sprintf("model response contains no JSON structure: %q", truncate(e.Response, 120))
}

// MalformedOutputError means a structure was located but is not valid for
// its target (syntax error, truncated JSON, wrong field types).
type MalformedOutputError struct {
	Fragment string
	Err      error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %v (fragment: %s)", e.Err, truncate(e.Fragment, 200))
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// IncompleteEntityError means the parsed payload lacks required identity
// fields.
type IncompleteEntityError struct {
	Missing []string
}

func (e *IncompleteEntityError) Error() string {
	return "incomplete entity: missing " + strings.Join(e.Missing, ", ")
}

// UpstreamError wraps a transport or service failure of a collaborator
// (generative text service, remote store).
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// MergeConflictError is reserved. Merges are deterministic and always
// succeed, so nothing returns it today.
type MergeConflictError struct {
	Slug   string
	Reason string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict on %s: %s", e.Slug, e.Reason)
}

// AnalysisFailedError carries the failure the model reported through the
// explicit "error" result tag.
type AnalysisFailedError struct {
	Message string
}

func (e *AnalysisFailedError) Error() string {
	if e.Message == "" {
		return "analysis failed: model reported an error"
	}
	return "analysis failed: " + e.Message
}

// truncate keeps the first maxLen characters of s.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
