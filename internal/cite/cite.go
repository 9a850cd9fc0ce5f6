// Package cite implements the path:start-end citation micro-language.
// Citations are the only externally visible wire format: downstream audit
// tooling extracts them from report text with a regex, so Format and Parse
// must be exact inverses.
package cite

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Citation is a parsed path:start-end reference. Lines are 1-indexed and
// the range is inclusive.
type Citation struct {
	Path  string
	Start int
	End   int
}

// FormatError reports a malformed citation string. It is never silently
// corrected; callers decide whether to drop or surface the citation.
type FormatError struct {
	Raw    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid citation %q: %s", e.Raw, e.Reason)
}

// Resolution failures, distinguishable via errors.Is.
var (
	// ErrUnknownFile means the cited path is not in the store.
	ErrUnknownFile = errors.New("citation references unknown file")
	// ErrUnknownRange means the file exists but no chunk covers the range.
	ErrUnknownRange = errors.New("citation range not covered by any chunk")
)

// Parse parses a citation of the form path:start-end.
func Parse(raw string) (Citation, error) {
	colon := strings.LastIndex(raw, ":")
	if colon < 0 {
		return Citation{}, &FormatError{Raw: raw, Reason: "missing ':'"}
	}
	path, span := raw[:colon], raw[colon+1:]
	if path == "" {
		return Citation{}, &FormatError{Raw: raw, Reason: "empty path"}
	}
	if strings.Contains(path, ":") {
		return Citation{}, &FormatError{Raw: raw, Reason: "path contains ':'"}
	}
	dash := strings.Index(span, "-")
	if dash < 0 {
		return Citation{}, &FormatError{Raw: raw, Reason: "missing '-' in line range"}
	}
	start, err := strconv.Atoi(span[:dash])
	if err != nil {
		return Citation{}, &FormatError{Raw: raw, Reason: "start line is not a number"}
	}
	end, err := strconv.Atoi(span[dash+1:])
	if err != nil {
		return Citation{}, &FormatError{Raw: raw, Reason: "end line is not a number"}
	}
	if start < 1 || end < 1 {
		return Citation{}, &FormatError{Raw: raw, Reason: "line numbers must be positive"}
	}
	if start > end {
		return Citation{}, &FormatError{Raw: raw, Reason: "start line after end line"}
	}
	return Citation{Path: path, Start: start, End: end}, nil
}

// Format renders a citation as path:start-end. Format is the exact
// inverse of Parse for every valid citation.
func Format(path string, start, end int) string {
	return fmt.Sprintf("%s:%d-%d", path, start, end)
}

// String implements fmt.Stringer using the wire format.
func (c Citation) String() string {
	return Format(c.Path, c.Start, c.End)
}

// ChunkLookup is the slice of the store the resolver needs.
type ChunkLookup interface {
	FileIDByPath(path string) (int64, bool, error)
	ChunkCoveringRange(fileID int64, start, end int) (chunkID int64, text string, ok bool, err error)
}

// Resolved is the chunk a citation points at.
type Resolved struct {
	Citation Citation
	FileID   int64
	ChunkID  int64
	Text     string
}

// Resolve looks up the cited file and the first chunk covering the cited
// range. The two failure modes are distinct: ErrUnknownFile when the path
// is not stored, ErrUnknownRange when no chunk spans the lines.
func Resolve(raw string, lookup ChunkLookup) (Resolved, error) {
	c, err := Parse(raw)
	if err != nil {
		return Resolved{}, err
	}
	fileID, ok, err := lookup.FileIDByPath(c.Path)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolve %q: %w", raw, err)
	}
	if !ok {
		return Resolved{}, fmt.Errorf("resolve %q: %w", raw, ErrUnknownFile)
	}
	chunkID, text, ok, err := lookup.ChunkCoveringRange(fileID, c.Start, c.End)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolve %q: %w", raw, err)
	}
	if !ok {
		return Resolved{}, fmt.Errorf("resolve %q: %w", raw, ErrUnknownRange)
	}
	return Resolved{Citation: c, FileID: fileID, ChunkID: chunkID, Text: text}, nil
}
