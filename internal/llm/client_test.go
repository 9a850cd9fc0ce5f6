package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	reply    string
	err      error
	messages []Message
}

func (f *fakeChat) Generate(ctx context.Context, messages []Message) (string, error) {
	f.messages = messages
	return f.reply, f.err
}

func TestSummarizeTruncatesInput(t *testing.T) {
	chat := &fakeChat{reply: "short summary"}
	c := NewClient(chat)

	long := strings.Repeat("x", summaryInputLimit*2)
	result, err := c.Summarize(context.Background(), long, "condense this")
	require.NoError(t, err)
	assert.Equal(t, "short summary", result.Text)
	assert.InDelta(t, 0.7, result.Confidence, 1e-9)

	require.Len(t, chat.messages, 1)
	assert.LessOrEqual(t, len(chat.messages[0].Content), summaryInputLimit+len("condense this")+2)
}

func TestDraftSetsSystemPrompt(t *testing.T) {
	chat := &fakeChat{reply: "# Report\n\nBody."}
	c := NewClient(chat)

	out, err := c.Draft(context.Background(), "describe the parser", []string{"[a.go:1-2]\nfunc A() {}"})
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nBody.", out)

	require.Len(t, chat.messages, 2)
	assert.Equal(t, "system", chat.messages[0].Role)
	assert.Contains(t, chat.messages[0].Content, "path:start-end")
	assert.Contains(t, chat.messages[1].Content, "describe the parser")
	assert.Contains(t, chat.messages[1].Content, "func A() {}")
}

func TestDraftPropagatesErrors(t *testing.T) {
	chat := &fakeChat{err: errors.New("connection refused")}
	c := NewClient(chat)

	_, err := c.Draft(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft report")
}

func TestGradeVerdicts(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"supported", "Supported. The evidence matches the claim.", VerdictSupported},
		{"contradicted", "Contradicted: the code does the opposite.", VerdictContradicted},
		{"contradicted wins over supported", "Not supported, in fact contradicted.", VerdictContradicted},
		{"unsupported is not a verdict", "The claim is unsupported by the evidence.", VerdictUncertain},
		{"neither", "Unclear from the evidence.", VerdictUncertain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(&fakeChat{reply: tc.reply})
			g, err := c.Grade(context.Background(), "the parser stores chunks", "func store() {}")
			require.NoError(t, err)
			assert.Equal(t, tc.want, g.Status)
			assert.Equal(t, tc.reply, g.Rationale)
		})
	}
}

func TestGradePropagatesTransportError(t *testing.T) {
	c := NewClient(&fakeChat{err: errors.New("boom")})
	_, err := c.Grade(context.Background(), "claim", "evidence")
	require.Error(t, err)
}
