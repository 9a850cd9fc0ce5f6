package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scribe/internal/retrieval"
	"scribe/internal/store"
)

func seedStore(t *testing.T) (*store.Store, *retrieval.Engine) {
	t.Helper()
	st, err := store.Open("", store.Options{EmbeddingDim: 8})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fid, err := st.UpsertFile(store.FileRecord{Path: "math.go", Hash: "h", Lang: "go", Size: 10, MTime: time.Now(), Parsed: true})
	require.NoError(t, err)
	_, err = st.AddChunks([]store.ChunkRecord{{
		FileID: fid, StartLine: 1, EndLine: 3, Kind: "function",
		Text: "func Add(a, b int) int { return a + b }", Hash: "c",
	}})
	require.NoError(t, err)

	return st, retrieval.New(st, nil, zap.NewNop())
}

func TestEnforceAppendsCitationToUncitedLines(t *testing.T) {
	st, engine := seedStore(t)

	draft := "# Report\n\nThe Add function sums two integers."
	out, err := EnforceCitations(draft, st, engine, "math", nil)
	require.NoError(t, err)

	assert.Contains(t, out, "The Add function sums two integers. [math.go:1-3]")
	assert.Contains(t, out, "# Report", "headers pass through untouched")
}

func TestEnforceDropsInvalidTokens(t *testing.T) {
	st, engine := seedStore(t)

	draft := "Good line cites evidence here. [math.go:1-3] [bad]"
	out, err := EnforceCitations(draft, st, engine, "math", nil)
	require.NoError(t, err)

	assert.Contains(t, out, "[math.go:1-3]")
	assert.NotContains(t, out, "[bad]")
}

func TestEnforceHonorsAllowedSet(t *testing.T) {
	st, engine := seedStore(t)

	draft := "This line cites something else entirely. [math.go:1-3]"
	out, err := EnforceCitations(draft, st, engine, "math", map[string]bool{"other.go:1-2": true})
	require.NoError(t, err)
	assert.NotContains(t, out, "[math.go:1-3]", "citations outside the allowed set are stripped")

	out, err = EnforceCitations(draft, st, engine, "math", map[string]bool{"math.go:1-3": true})
	require.NoError(t, err)
	assert.Contains(t, out, "[math.go:1-3]")
}

func TestEnforcedReportAlwaysValidates(t *testing.T) {
	st, engine := seedStore(t)

	draft := "# Report\n\nThe Add function sums two integers.\n\nAnother uncited statement about the code base.\nBad token line here indeed. [nope]\n"
	out, err := EnforceCitations(draft, st, engine, "math", nil)
	require.NoError(t, err)

	assert.NoError(t, ValidateReportCitations(out, st),
		"validation must never fail after successful enforcement")
}

func TestValidateRejectsUnknownCitations(t *testing.T) {
	st, _ := seedStore(t)

	err := ValidateReportCitations("Line with a ghost citation. [ghost.go:1-2]", st)
	require.Error(t, err)

	err = ValidateReportCitations("Range nobody covers in math. [math.go:50-60]", st)
	require.Error(t, err)
}
