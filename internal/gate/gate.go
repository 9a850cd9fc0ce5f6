// Package gate scores a verification iteration and decides whether
// the report is accepted or needs another revision pass.
package gate

import (
	"fmt"
	"sort"

	"scribe/internal/store"
)

// Gate holds the five stop/continue thresholds.
type Gate struct {
	MinSupportRate  float64
	MinCoverage     float64
	MinCitationRate float64
	MaxHighIssues   int
	MaxMediumIssues int
}

// Default returns the thresholds used when no config overrides them.
func Default() Gate {
	return Gate{
		MinSupportRate:  0.8,
		MinCoverage:     0.8,
		MinCitationRate: 0.8,
		MaxHighIssues:   0,
		MaxMediumIssues: 5,
	}
}

// Coverage relates supported claims to the expected item count.
type Coverage struct {
	Expected  int
	Supported int
}

// Score is always within [0, 1], including when Expected is zero.
func (c Coverage) Score() float64 {
	if c.Expected <= 0 {
		return 1.0
	}
	s := float64(c.Supported) / float64(c.Expected)
	if s > 1.0 {
		return 1.0
	}
	return s
}

// Assess counts supported claims against an expected item count,
// typically the number of ingested files.
func Assess(claims []store.ClaimRecord, expected int) Coverage {
	supported := 0
	for _, c := range claims {
		if c.Status == store.StatusSupported {
			supported++
		}
	}
	return Coverage{Expected: expected, Supported: supported}
}

// Issue is one actionable problem found in an iteration.
type Issue struct {
	Severity    store.Severity
	Description string
	FixHint     string
}

// Metrics are the per-iteration scores the gate evaluates.
type Metrics struct {
	Coverage         float64
	SupportRate      float64
	CitationRate     float64
	IssuesHigh       int
	IssuesMed        int
	IssuesLow        int
	MissingCitations int
}

// Score computes the iteration metrics from the checked claims.
func Score(claims []store.ClaimRecord, coverage Coverage) Metrics {
	m := Metrics{Coverage: coverage.Score()}
	total := len(claims)
	if total == 0 {
		return m
	}
	supported, cited := 0, 0
	for _, c := range claims {
		if c.Status == store.StatusSupported {
			supported++
		}
		if len(c.CitationRefs) > 0 {
			cited++
		} else {
			m.MissingCitations++
		}
		switch c.Severity {
		case store.SeverityHigh:
			m.IssuesHigh++
		case store.SeverityMedium:
			m.IssuesMed++
		case store.SeverityLow:
			m.IssuesLow++
		}
	}
	m.SupportRate = float64(supported) / float64(total)
	m.CitationRate = float64(cited) / float64(total)
	return m
}

// Issues lists the iteration's problems: one missing-coverage issue
// when coverage is incomplete, one unresolved-claim issue per claim
// not in the supported state, high severity first.
func Issues(coverage Coverage, claims []store.ClaimRecord) []Issue {
	var issues []Issue
	if coverage.Score() < 1.0 {
		issues = append(issues, Issue{
			Severity:    store.SeverityMedium,
			Description: fmt.Sprintf("coverage incomplete: %d of %d expected items supported", coverage.Supported, coverage.Expected),
			FixHint:     "add claims with citations covering the remaining items",
		})
	}
	for _, c := range claims {
		if c.Status == store.StatusSupported {
			continue
		}
		sev := store.SeverityMedium
		if c.Severity == store.SeverityHigh {
			sev = store.SeverityHigh
		}
		issues = append(issues, Issue{
			Severity:    sev,
			Description: fmt.Sprintf("claim unresolved: %s", c.Text),
			FixHint:     "find supporting evidence or revise the claim",
		})
	}
	rank := map[store.Severity]int{store.SeverityHigh: 0, store.SeverityMedium: 1, store.SeverityLow: 2}
	sort.SliceStable(issues, func(i, j int) bool {
		return rank[issues[i].Severity] < rank[issues[j].Severity]
	})
	return issues
}

// ShouldContinue reports whether another revision pass is needed. The
// gate passes, and iteration stops, only when every threshold is met.
func (g Gate) ShouldContinue(m Metrics) bool {
	passed := m.SupportRate >= g.MinSupportRate &&
		m.Coverage >= g.MinCoverage &&
		m.CitationRate >= g.MinCitationRate &&
		m.IssuesHigh <= g.MaxHighIssues &&
		m.IssuesMed <= g.MaxMediumIssues
	return !passed
}
