// Package claims turns drafted prose into discrete claims and grades
// each one against stored evidence.
package claims

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"scribe/internal/cite"
	"scribe/internal/llm"
	"scribe/internal/retrieval"
	"scribe/internal/store"
)

// fallbackLimit bounds the retrieval query run for claims whose own
// citations do not resolve.
const fallbackLimit = 5

// Extract pulls candidate claims from a drafted report. A line
// qualifies if it is non-blank, not a header, and either bulleted or
// at least five words long. Bracketed tokens are kept as citations
// only when they parse.
func Extract(reportText string, reportVersion int64) []store.ClaimRecord {
	var claims []store.ClaimRecord
	for _, line := range strings.Split(reportText, "\n") {
		text := strings.TrimSpace(line)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if !strings.HasPrefix(text, "- ") && len(strings.Fields(text)) < 5 {
			continue
		}
		claims = append(claims, store.ClaimRecord{
			ReportVersion: reportVersion,
			Text:          text,
			CitationRefs:  citationTokens(text),
			Status:        store.StatusMissing,
			Severity:      store.SeverityMedium,
			Rationale:     "not checked",
		})
	}
	return claims
}

// citationTokens extracts the valid [path:start-end] tokens of a line.
func citationTokens(text string) []string {
	var refs []string
	for _, field := range strings.Fields(text) {
		if !strings.HasPrefix(field, "[") || !strings.HasSuffix(field, "]") {
			continue
		}
		raw := strings.Trim(field, "[]")
		if _, err := cite.Parse(raw); err != nil {
			continue
		}
		refs = append(refs, raw)
	}
	return refs
}

// Checker verifies claims against the store, using retrieval to repair
// claims whose citations do not resolve.
type Checker struct {
	store  *store.Store
	engine *retrieval.Engine
	grader llm.Grader
	log    *zap.Logger
}

// NewChecker wires a checker.
func NewChecker(st *store.Store, engine *retrieval.Engine, grader llm.Grader, log *zap.Logger) *Checker {
	return &Checker{store: st, engine: engine, grader: grader, log: log}
}

// Check verifies each claim in place. Citations in the disallowed set
// are discarded before resolution. Grading short-circuits on the first
// supported or contradicted verdict; a grading failure degrades that
// citation to uncertain rather than aborting.
func (ck *Checker) Check(ctx context.Context, claims []store.ClaimRecord, disallowed map[string]bool) ([]store.ClaimRecord, error) {
	checked := make([]store.ClaimRecord, 0, len(claims))
	for _, claim := range claims {
		verdict := ""
		rationale := "no supporting chunk found"
		var kept []string

		for _, ref := range claim.CitationRefs {
			if disallowed[ref] {
				continue
			}
			resolved, err := cite.Resolve(ref, ck.store)
			if err != nil {
				if errors.Is(err, cite.ErrUnknownFile) || errors.Is(err, cite.ErrUnknownRange) {
					continue
				}
				var ferr *cite.FormatError
				if errors.As(err, &ferr) {
					continue
				}
				return nil, err
			}
			kept = append(kept, ref)
			if verdict == llm.VerdictSupported || verdict == llm.VerdictContradicted {
				continue
			}
			status, why := ck.grade(ctx, claim.Text, resolved.Text)
			if status == llm.VerdictSupported || status == llm.VerdictContradicted {
				verdict = status
				rationale = fmt.Sprintf("graded %s for %s: %s", status, ref, why)
			} else if verdict == "" {
				verdict = llm.VerdictUncertain
				rationale = why
			}
		}

		// No resolvable citation: retrieve evidence from the claim's
		// own text and accumulate any citation so discovered.
		if len(kept) == 0 {
			bundle, err := ck.engine.Retrieve(claim.Text, fallbackLimit)
			if err != nil {
				return nil, err
			}
			for _, c := range bundle.Chunks {
				status, why := ck.grade(ctx, claim.Text, c.Text)
				if status != llm.VerdictSupported && status != llm.VerdictContradicted {
					continue
				}
				file, ok, err := ck.store.FileByID(c.FileID)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				ref := cite.Format(file.Path, c.StartLine, c.EndLine)
				kept = append(kept, ref)
				verdict = status
				rationale = fmt.Sprintf("graded %s via retrieved chunk %s: %s", status, ref, why)
				break
			}
		}

		claim.CitationRefs = kept
		switch verdict {
		case llm.VerdictSupported:
			claim.Status = store.StatusSupported
			claim.Severity = store.SeverityLow
		case llm.VerdictContradicted:
			claim.Status = store.StatusContradicted
			claim.Severity = store.SeverityHigh
		case llm.VerdictUncertain:
			claim.Status = store.StatusUncertain
			claim.Severity = store.SeverityMedium
		default:
			claim.Status = store.StatusMissing
			claim.Severity = store.SeverityHigh
			rationale = "no supporting chunk found after repair"
		}
		claim.Rationale = rationale
		checked = append(checked, claim)
	}
	return checked, nil
}

// grade wraps the collaborator, degrading failures to uncertain.
func (ck *Checker) grade(ctx context.Context, claimText, evidence string) (string, string) {
	g, err := ck.grader.Grade(ctx, claimText, evidence)
	if err != nil {
		ck.log.Warn("grading failed", zap.Error(err))
		return llm.VerdictUncertain, "grading unavailable"
	}
	return g.Status, g.Rationale
}
