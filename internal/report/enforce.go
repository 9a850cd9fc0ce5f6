// Package report drafts, repairs and gates cited reports.
package report

import (
	"fmt"
	"regexp"
	"strings"

	"scribe/internal/cite"
	"scribe/internal/retrieval"
	"scribe/internal/store"
)

var citationRe = regexp.MustCompile(`\[([^\]]+)\]`)

// EnforceCitations post-processes a draft line by line. Header and
// blank lines pass through. Lines without a bracketed citation get one
// appended from a retrieval query on the line itself, falling back to
// the first stored chunk. Lines with citations keep only the tokens
// that parse and, when an allowed set is supplied, are in it.
func EnforceCitations(draft string, st *store.Store, engine *retrieval.Engine, topic string, allowed map[string]bool) (string, error) {
	var out []string
	for _, line := range strings.Split(draft, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			out = append(out, line)
			continue
		}

		tokens := citationRe.FindAllStringSubmatch(stripped, -1)
		if len(tokens) == 0 {
			patched, err := appendCitation(line, stripped, st, engine, topic, allowed)
			if err != nil {
				return "", err
			}
			out = append(out, patched)
			continue
		}

		kept := line
		for _, m := range tokens {
			raw := m[1]
			if _, err := cite.Parse(raw); err == nil {
				if len(allowed) == 0 || allowed[raw] {
					continue
				}
			}
			kept = strings.ReplaceAll(kept, "["+raw+"]", "")
		}
		out = append(out, strings.TrimRight(kept, " "))
	}
	return strings.Join(out, "\n"), nil
}

// appendCitation finds a citation for an uncited line. The line is
// kept verbatim when no eligible chunk exists.
func appendCitation(line, stripped string, st *store.Store, engine *retrieval.Engine, topic string, allowed map[string]bool) (string, error) {
	query := stripped
	if query == "" {
		query = topic
	}
	bundle, err := engine.Retrieve(query, 3)
	if err != nil {
		return "", err
	}
	for _, c := range bundle.Chunks {
		ref, ok, err := chunkCitation(st, c)
		if err != nil {
			return "", err
		}
		if ok && (len(allowed) == 0 || allowed[ref]) {
			return fmt.Sprintf("%s [%s]", line, ref), nil
		}
	}
	if first, ok, err := st.FirstChunk(); err != nil {
		return "", err
	} else if ok {
		ref, found, err := chunkCitation(st, first)
		if err != nil {
			return "", err
		}
		if found && (len(allowed) == 0 || allowed[ref]) {
			return fmt.Sprintf("%s [%s]", line, ref), nil
		}
	}
	return line, nil
}

func chunkCitation(st *store.Store, c store.ChunkRecord) (string, bool, error) {
	file, ok, err := st.FileByID(c.FileID)
	if err != nil || !ok {
		return "", false, err
	}
	return cite.Format(file.Path, c.StartLine, c.EndLine), true, nil
}

// ValidateReportCitations resolves every bracketed citation in the
// report against the store. A failure here after enforcement means
// the report carries an unverifiable citation and the run must stop.
func ValidateReportCitations(report string, st *store.Store) error {
	for _, line := range strings.Split(report, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			continue
		}
		for _, m := range citationRe.FindAllStringSubmatch(stripped, -1) {
			if _, err := cite.Resolve(m[1], st); err != nil {
				return fmt.Errorf("report citation %q: %w", m[1], err)
			}
		}
	}
	return nil
}
