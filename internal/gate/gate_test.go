package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"scribe/internal/store"
)

func claim(status store.ClaimStatus, severity store.Severity, refs ...string) store.ClaimRecord {
	return store.ClaimRecord{Text: "the pipeline stores chunks", Status: status, Severity: severity, CitationRefs: refs}
}

func TestCoverageScoreBounds(t *testing.T) {
	t.Run("zero expected is full coverage", func(t *testing.T) {
		assert.Equal(t, 1.0, Coverage{Expected: 0, Supported: 0}.Score())
	})
	t.Run("clamped at one", func(t *testing.T) {
		assert.Equal(t, 1.0, Coverage{Expected: 2, Supported: 5}.Score())
	})
	t.Run("fractional", func(t *testing.T) {
		assert.InDelta(t, 0.5, Coverage{Expected: 4, Supported: 2}.Score(), 1e-9)
	})
}

func TestAssessCountsSupported(t *testing.T) {
	cls := []store.ClaimRecord{
		claim(store.StatusSupported, store.SeverityLow, "a.go:1-2"),
		claim(store.StatusMissing, store.SeverityHigh),
		claim(store.StatusSupported, store.SeverityLow, "a.go:3-4"),
	}
	cov := Assess(cls, 4)
	assert.Equal(t, 4, cov.Expected)
	assert.Equal(t, 2, cov.Supported)
}

func TestScoreMetrics(t *testing.T) {
	cls := []store.ClaimRecord{
		claim(store.StatusSupported, store.SeverityLow, "a.go:1-2"),
		claim(store.StatusUncertain, store.SeverityMedium, "a.go:3-4"),
		claim(store.StatusMissing, store.SeverityHigh),
	}
	m := Score(cls, Coverage{Expected: 3, Supported: 1})

	assert.InDelta(t, 1.0/3.0, m.SupportRate, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.CitationRate, 1e-9)
	assert.Equal(t, 1, m.MissingCitations)
	assert.Equal(t, 1, m.IssuesHigh)
	assert.Equal(t, 1, m.IssuesMed)
	assert.Equal(t, 1, m.IssuesLow)
}

func TestScoreNoClaims(t *testing.T) {
	m := Score(nil, Coverage{Expected: 0})
	assert.Equal(t, 1.0, m.Coverage)
	assert.Equal(t, 0.0, m.SupportRate)
	assert.Equal(t, 0.0, m.CitationRate)
}

func TestIssuesOrderedHighFirst(t *testing.T) {
	cls := []store.ClaimRecord{
		claim(store.StatusUncertain, store.SeverityMedium, "a.go:1-2"),
		claim(store.StatusMissing, store.SeverityHigh),
		claim(store.StatusSupported, store.SeverityLow, "a.go:3-4"),
	}
	issues := Issues(Coverage{Expected: 4, Supported: 1}, cls)

	// one coverage gap plus two unresolved claims
	assert.Len(t, issues, 3)
	assert.Equal(t, store.SeverityHigh, issues[0].Severity)
	for _, is := range issues[1:] {
		assert.Equal(t, store.SeverityMedium, is.Severity)
	}
}

func TestIssuesNoneWhenFullyCovered(t *testing.T) {
	cls := []store.ClaimRecord{claim(store.StatusSupported, store.SeverityLow, "a.go:1-2")}
	issues := Issues(Coverage{Expected: 1, Supported: 1}, cls)
	assert.Empty(t, issues)
}

func TestGatePassesWhenAllThresholdsMet(t *testing.T) {
	g := Gate{
		MinSupportRate:  0.5,
		MinCoverage:     0.5,
		MinCitationRate: 0.5,
		MaxHighIssues:   0,
		MaxMediumIssues: 1,
	}
	cls := []store.ClaimRecord{claim(store.StatusSupported, store.SeverityLow, "a.go:1-2")}
	m := Score(cls, Assess(cls, 1))

	assert.False(t, g.ShouldContinue(m), "gate should pass and stop iterating")
}

func TestGateContinuesOnAnyMiss(t *testing.T) {
	g := Default()

	t.Run("low support rate", func(t *testing.T) {
		cls := []store.ClaimRecord{
			claim(store.StatusSupported, store.SeverityLow, "a.go:1-2"),
			claim(store.StatusMissing, store.SeverityHigh),
		}
		m := Score(cls, Assess(cls, 1))
		assert.True(t, g.ShouldContinue(m))
	})

	t.Run("high issue over budget", func(t *testing.T) {
		cls := []store.ClaimRecord{
			claim(store.StatusSupported, store.SeverityLow, "a.go:1-2"),
			claim(store.StatusContradicted, store.SeverityHigh, "a.go:3-4"),
		}
		m := Score(cls, Assess(cls, 1))
		assert.True(t, g.ShouldContinue(m))
	})
}
