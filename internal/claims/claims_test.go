package claims

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scribe/internal/llm"
	"scribe/internal/retrieval"
	"scribe/internal/store"
)

func TestExtract(t *testing.T) {
	report := `# Findings

- Parses input [bad]
Short line.
The store persists chunks in SQLite tables. [lib/core.py:10-25]

## Details
- short bullet
`
	cls := Extract(report, 7)
	require.Len(t, cls, 3)

	t.Run("malformed token discarded", func(t *testing.T) {
		assert.Equal(t, "- Parses input [bad]", cls[0].Text)
		assert.Empty(t, cls[0].CitationRefs)
		assert.Equal(t, store.StatusMissing, cls[0].Status)
	})

	t.Run("valid token kept", func(t *testing.T) {
		assert.Equal(t, []string{"lib/core.py:10-25"}, cls[1].CitationRefs)
	})

	t.Run("bullets qualify regardless of length", func(t *testing.T) {
		assert.Equal(t, "- short bullet", cls[2].Text)
	})

	for _, c := range cls {
		assert.Equal(t, int64(7), c.ReportVersion)
	}
}

type fakeGrader struct {
	status string
	err    error
	calls  int
}

func (g *fakeGrader) Grade(ctx context.Context, claim, evidence string) (llm.Grade, error) {
	g.calls++
	if g.err != nil {
		return llm.Grade{}, g.err
	}
	return llm.Grade{Status: g.status, Rationale: "because"}, nil
}

func newChecker(t *testing.T, grader llm.Grader) (*Checker, *store.Store) {
	t.Helper()
	st, err := store.Open("", store.Options{EmbeddingDim: 8})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	engine := retrieval.New(st, nil, zap.NewNop())
	return NewChecker(st, engine, grader, zap.NewNop()), st
}

func seedChunk(t *testing.T, st *store.Store) {
	t.Helper()
	fid, err := st.UpsertFile(store.FileRecord{Path: "lib/core.py", Hash: "h", Lang: "python", Size: 10, MTime: time.Now(), Parsed: true})
	require.NoError(t, err)
	_, err = st.AddChunks([]store.ChunkRecord{{
		FileID: fid, StartLine: 10, EndLine: 25, Kind: "function",
		Text: "def run(): pass  # parser setup routine initializes tables", Hash: "c",
	}})
	require.NoError(t, err)
}

func claimWith(refs ...string) store.ClaimRecord {
	return store.ClaimRecord{
		ReportVersion: 1,
		Text:          "The store persists chunks in SQLite tables.",
		CitationRefs:  refs,
		Status:        store.StatusMissing,
		Severity:      store.SeverityMedium,
	}
}

func TestCheckSupportedClaim(t *testing.T) {
	grader := &fakeGrader{status: llm.VerdictSupported}
	ck, st := newChecker(t, grader)
	seedChunk(t, st)

	out, err := ck.Check(context.Background(), []store.ClaimRecord{claimWith("lib/core.py:10-25")}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, store.StatusSupported, out[0].Status)
	assert.Equal(t, store.SeverityLow, out[0].Severity)
	assert.Equal(t, []string{"lib/core.py:10-25"}, out[0].CitationRefs)
	assert.Equal(t, 1, grader.calls, "grading short-circuits on the first verdict")
}

func TestCheckContradictedClaim(t *testing.T) {
	grader := &fakeGrader{status: llm.VerdictContradicted}
	ck, st := newChecker(t, grader)
	seedChunk(t, st)

	out, err := ck.Check(context.Background(), []store.ClaimRecord{claimWith("lib/core.py:10-25")}, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusContradicted, out[0].Status)
	assert.Equal(t, store.SeverityHigh, out[0].Severity)
}

func TestCheckGradingFailureDegradesToUncertain(t *testing.T) {
	grader := &fakeGrader{err: errors.New("timeout")}
	ck, st := newChecker(t, grader)
	seedChunk(t, st)

	out, err := ck.Check(context.Background(), []store.ClaimRecord{claimWith("lib/core.py:10-25")}, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUncertain, out[0].Status)
	assert.Equal(t, store.SeverityMedium, out[0].Severity)
	assert.Equal(t, []string{"lib/core.py:10-25"}, out[0].CitationRefs, "the citation still resolves")
}

func TestCheckUnresolvableCitationGoesMissing(t *testing.T) {
	grader := &fakeGrader{status: llm.VerdictSupported}
	ck, _ := newChecker(t, grader)

	out, err := ck.Check(context.Background(), []store.ClaimRecord{claimWith("ghost.py:1-2")}, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusMissing, out[0].Status)
	assert.Equal(t, store.SeverityHigh, out[0].Severity)
	assert.Empty(t, out[0].CitationRefs)
}

func TestCheckDisallowedCitationDiscarded(t *testing.T) {
	grader := &fakeGrader{status: llm.VerdictContradicted}
	ck, st := newChecker(t, grader)
	seedChunk(t, st)

	out, err := ck.Check(
		context.Background(),
		[]store.ClaimRecord{claimWith("lib/core.py:10-25")},
		map[string]bool{"lib/core.py:10-25": true},
	)
	require.NoError(t, err)
	assert.NotContains(t, out[0].CitationRefs, "lib/core.py:10-25")
}

func TestCheckRepairsViaRetrieval(t *testing.T) {
	grader := &fakeGrader{status: llm.VerdictSupported}
	ck, st := newChecker(t, grader)
	seedChunk(t, st)

	claim := store.ClaimRecord{
		ReportVersion: 1,
		Text:          "parser setup routine initializes tables",
		Status:        store.StatusMissing,
		Severity:      store.SeverityMedium,
	}
	out, err := ck.Check(context.Background(), []store.ClaimRecord{claim}, nil)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSupported, out[0].Status)
	assert.Equal(t, []string{"lib/core.py:10-25"}, out[0].CitationRefs,
		"the discovered citation is accumulated back onto the claim")
}
