package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// reportSystemPrompt constrains the drafter to cite every claim.
const reportSystemPrompt = "Write a concise technical report. Every claim or paragraph must include a citation " +
	"in the format path:start-end. Do not invent citations; only cite evidence you have."

// summaryInputLimit bounds how much text is sent per summarization call.
const summaryInputLimit = 6000

// Per-role deadlines. Drafting produces whole reports and gets the
// longest window; grading returns one verdict per call, so a stuck
// grader degrades to uncertain quickly instead of stalling a whole
// verification pass.
const (
	draftTimeout     = 5 * time.Minute
	summarizeTimeout = 2 * time.Minute
	gradeTimeout     = 90 * time.Second
)

// SummaryResult is the output of a summarization call.
type SummaryResult struct {
	Text       string
	Confidence float64
	Citations  []string
}

// Generator produces a completion for a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Summarizer condenses text under caller-supplied instructions.
type Summarizer interface {
	Summarize(ctx context.Context, text, instructions string) (SummaryResult, error)
}

// Drafter writes a report from a prompt and supporting summaries.
type Drafter interface {
	Draft(ctx context.Context, prompt string, summaries []string) (string, error)
}

// Grade verdicts.
const (
	VerdictSupported    = "supported"
	VerdictContradicted = "contradicted"
	VerdictUncertain    = "uncertain"
)

// Grade is the grader's judgment of a claim against evidence.
type Grade struct {
	Status    string
	Rationale string
}

// Grader judges whether evidence supports a claim.
type Grader interface {
	Grade(ctx context.Context, claim, evidence string) (Grade, error)
}

// Client implements the summarizer, drafter and grader roles over a
// chat backend, applying each role's timeout.
type Client struct {
	chat Generator
}

// NewClient wraps a chat backend.
func NewClient(chat Generator) *Client {
	return &Client{chat: chat}
}

// Summarize condenses text, truncating oversized input first.
func (c *Client) Summarize(ctx context.Context, text, instructions string) (SummaryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()
	if len(text) > summaryInputLimit {
		text = text[:summaryInputLimit]
	}
	out, err := c.chat.Generate(ctx, []Message{
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", instructions, text)},
	})
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarize: %w", err)
	}
	return SummaryResult{Text: out, Confidence: 0.7}, nil
}

// gradeInstructions asks for a verdict keyword plus a rationale.
const gradeInstructions = "State if the evidence supports the claim. " +
	"Respond with 'supported' or 'contradicted' and a short rationale."

// Verdict keywords must appear as whole words. "unsupported" names
// neither verdict.
var (
	supportedRe    = regexp.MustCompile(`\bsupported\b`)
	contradictedRe = regexp.MustCompile(`\bcontradicted\b`)
)

// Grade judges a claim against evidence. The verdict is read from the
// response text; an answer naming neither verdict is uncertain.
func (c *Client) Grade(ctx context.Context, claim, evidence string) (Grade, error) {
	ctx, cancel := context.WithTimeout(ctx, gradeTimeout)
	defer cancel()
	text := fmt.Sprintf("Claim: %s\n\nEvidence:\n%s", claim, evidence)
	if len(text) > summaryInputLimit {
		text = text[:summaryInputLimit]
	}
	out, err := c.chat.Generate(ctx, []Message{
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", gradeInstructions, text)},
	})
	if err != nil {
		return Grade{}, fmt.Errorf("grade claim: %w", err)
	}
	lower := strings.ToLower(out)
	status := VerdictUncertain
	switch {
	case contradictedRe.MatchString(lower):
		status = VerdictContradicted
	case supportedRe.MatchString(lower):
		status = VerdictSupported
	}
	return Grade{Status: status, Rationale: out}, nil
}

// Draft generates a report from the prompt and evidence summaries.
func (c *Client) Draft(ctx context.Context, prompt string, summaries []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, draftTimeout)
	defer cancel()
	content := "Summaries:"
	for _, s := range summaries {
		content += "\n\n" + s
	}
	out, err := c.chat.Generate(ctx, []Message{
		{Role: "system", Content: reportSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("%s\n\n%s", prompt, content)},
	})
	if err != nil {
		return "", fmt.Errorf("draft report: %w", err)
	}
	return out, nil
}
