package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"scribe/internal/claims"
	"scribe/internal/gate"
	"scribe/internal/ingest"
	"scribe/internal/llm"
	"scribe/internal/retrieval"
	"scribe/internal/store"
)

// Pipeline states, logged as each transition happens.
type State string

const (
	StateIngesting State = "INGESTING"
	StateDrafting  State = "DRAFTING"
	StateEnforcing State = "ENFORCING_CITATIONS"
	StateVerifying State = "VERIFYING"
	StateScoring   State = "SCORING"
	StateRevising  State = "REVISING"
	StateDone      State = "DONE"
)

// ErrNoEvidence means retrieval produced nothing for the prompt; a
// report cannot be drafted without evidence.
var ErrNoEvidence = errors.New("no retrievable evidence for prompt")

// GateError reports a run that exhausted its iteration budget without
// passing the gate. The last computed metrics ride along so callers
// can report how close the run got.
type GateError struct {
	Iterations int
	Metrics    gate.Metrics
}

func (e *GateError) Error() string {
	return fmt.Sprintf(
		"gate not satisfied after %d iterations: coverage=%.2f support=%.2f citations=%.2f issues high=%d med=%d",
		e.Iterations, e.Metrics.Coverage, e.Metrics.SupportRate, e.Metrics.CitationRate,
		e.Metrics.IssuesHigh, e.Metrics.IssuesMed,
	)
}

// Orchestrator owns one store for the duration of a run and drives
// ingest, draft, enforce, verify, score and gate until the report is
// accepted or the iteration budget runs out.
type Orchestrator struct {
	store      *store.Store
	ingest     *ingest.Pipeline
	engine     *retrieval.Engine
	summarizer *Summarizer
	drafter    llm.Drafter
	checker    *claims.Checker
	gate       gate.Gate
	maxIters   int
	log        *zap.Logger
}

// NewOrchestrator wires a run. maxIters <= 0 selects the default of 3
// drafting attempts.
func NewOrchestrator(
	st *store.Store,
	ing *ingest.Pipeline,
	engine *retrieval.Engine,
	summarizer *Summarizer,
	drafter llm.Drafter,
	checker *claims.Checker,
	g gate.Gate,
	maxIters int,
	log *zap.Logger,
) *Orchestrator {
	if maxIters <= 0 {
		maxIters = 3
	}
	return &Orchestrator{
		store:      st,
		ingest:     ing,
		engine:     engine,
		summarizer: summarizer,
		drafter:    drafter,
		checker:    checker,
		gate:       g,
		maxIters:   maxIters,
		log:        log,
	}
}

// Run executes the full pipeline for one prompt against one tree.
func (o *Orchestrator) Run(ctx context.Context, root, prompt string) (string, store.ReportVersionRecord, error) {
	o.transition(StateIngesting)
	stats, err := o.ingest.Run(ctx, root)
	if err != nil {
		return "", store.ReportVersionRecord{}, fmt.Errorf("ingest: %w", err)
	}
	o.log.Info("ingest complete",
		zap.Int("files", stats.FilesIngested),
		zap.Int("chunks", stats.ChunksTotal),
		zap.Int("symbols", stats.SymbolsTotal),
		zap.Int("edges", stats.EdgesTotal))

	fileSummaries, err := o.summarizer.SummarizeAllFiles(ctx)
	if err != nil {
		return "", store.ReportVersionRecord{}, err
	}
	if _, err := o.summarizer.SummarizeModule(ctx, root, fileSummaries); err != nil {
		o.log.Warn("module summary failed", zap.Error(err))
	}

	rv := store.ReportVersionRecord{}
	rv.ID, err = o.store.AddReportVersion(rv)
	if err != nil {
		return "", store.ReportVersionRecord{}, err
	}

	expected, err := o.store.FileCount()
	if err != nil {
		return "", store.ReportVersionRecord{}, err
	}

	var reportMD string
	var lastMetrics gate.Metrics
	revisionNote := ""

	for iter := 1; iter <= o.maxIters; iter++ {
		// The loop is cancellable between iterations.
		if err := ctx.Err(); err != nil {
			return reportMD, rv, err
		}

		o.transition(StateDrafting)
		bundle, err := o.engine.Retrieve(prompt, 20)
		if err != nil {
			return reportMD, rv, err
		}
		if bundle.Empty() {
			return reportMD, rv, ErrNoEvidence
		}
		o.logRetrieval(rv.ID, iter, prompt, bundle)

		allowed, blocks, err := o.evidence(bundle)
		if err != nil {
			return reportMD, rv, err
		}
		draft, err := o.drafter.Draft(ctx, prompt+revisionNote, blocks)
		if err != nil {
			return reportMD, rv, fmt.Errorf("draft: %w", err)
		}

		o.transition(StateEnforcing)
		reportMD, err = EnforceCitations(draft, o.store, o.engine, prompt, allowed)
		if err != nil {
			return reportMD, rv, err
		}
		if err := ValidateReportCitations(reportMD, o.store); err != nil {
			return reportMD, rv, fmt.Errorf("enforced report failed validation: %w", err)
		}

		o.transition(StateVerifying)
		extracted := claims.Extract(reportMD, rv.ID)
		checked, err := o.checker.Check(ctx, extracted, nil)
		if err != nil {
			return reportMD, rv, err
		}
		if _, err := o.store.ReplaceClaims(rv.ID, checked); err != nil {
			return reportMD, rv, err
		}

		o.transition(StateScoring)
		cov := gate.Assess(checked, expected)
		metrics := gate.Score(checked, cov)
		issues := gate.Issues(cov, checked)
		lastMetrics = metrics

		rv.Content = reportMD
		rv.CoverageScore = metrics.Coverage
		rv.CitationScore = metrics.CitationRate
		rv.IssuesHigh = metrics.IssuesHigh
		rv.IssuesMed = metrics.IssuesMed
		rv.IssuesLow = metrics.IssuesLow
		if err := o.store.UpdateReportVersion(rv); err != nil {
			return reportMD, rv, err
		}
		if err := o.audit(rv.ID, iter, metrics, issues); err != nil {
			return reportMD, rv, err
		}

		if !o.gate.ShouldContinue(metrics) {
			o.transition(StateDone)
			return reportMD, rv, nil
		}

		o.transition(StateRevising)
		revisionNote = revisionPrompt(issues)
		o.log.Info("gate not satisfied, revising",
			zap.Int("iteration", iter),
			zap.Float64("coverage", metrics.Coverage),
			zap.Float64("support_rate", metrics.SupportRate))
	}

	return reportMD, rv, &GateError{Iterations: o.maxIters, Metrics: lastMetrics}
}

func (o *Orchestrator) transition(s State) {
	o.log.Debug("state transition", zap.String("state", string(s)))
}

// evidence harvests the allowed citation set and the drafter's
// evidence blocks from a bundle.
func (o *Orchestrator) evidence(bundle *retrieval.Bundle) (map[string]bool, []string, error) {
	allowed := make(map[string]bool)
	var blocks []string
	for _, c := range bundle.Chunks {
		ref, ok, err := chunkCitation(o.store, c)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		allowed[ref] = true
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", ref, c.Text))
	}
	for _, s := range bundle.Summaries {
		blocks = append(blocks, s.Text)
		for _, m := range citationRe.FindAllStringSubmatch(s.Text, -1) {
			allowed[m[1]] = true
		}
	}
	return allowed, blocks, nil
}

func (o *Orchestrator) logRetrieval(reportVersion int64, iteration int, prompt string, bundle *retrieval.Bundle) {
	chunkIDs := make([]int64, len(bundle.Chunks))
	for i, c := range bundle.Chunks {
		chunkIDs[i] = c.ID
	}
	symbolIDs := make([]int64, len(bundle.Symbols))
	for i, s := range bundle.Symbols {
		symbolIDs[i] = s.ID
	}
	if err := o.store.LogRetrievalEvent(reportVersion, iteration, prompt, chunkIDs, symbolIDs); err != nil {
		o.log.Warn("retrieval audit log failed", zap.Error(err))
	}
}

func (o *Orchestrator) audit(reportVersion int64, iteration int, m gate.Metrics, issues []gate.Issue) error {
	if err := o.store.LogIterationStatus(store.IterationStatus{
		ReportVersion:    reportVersion,
		Iteration:        iteration,
		Coverage:         m.Coverage,
		SupportRate:      m.SupportRate,
		CitationRate:     m.CitationRate,
		IssuesHigh:       m.IssuesHigh,
		IssuesMed:        m.IssuesMed,
		IssuesLow:        m.IssuesLow,
		MissingCitations: m.MissingCitations,
	}); err != nil {
		return err
	}
	records := make([]store.IterationIssue, len(issues))
	for i, issue := range issues {
		records[i] = store.IterationIssue{
			ReportVersion: reportVersion,
			Iteration:     iteration,
			Severity:      issue.Severity,
			Description:   issue.Description,
			FixHint:       issue.FixHint,
		}
	}
	return o.store.LogIterationIssues(records)
}

// revisionPrompt turns the top issues into guidance appended to the
// original brief on the next drafting pass.
func revisionPrompt(issues []gate.Issue) string {
	if len(issues) == 0 {
		return ""
	}
	limit := len(issues)
	if limit > 5 {
		limit = 5
	}
	var b strings.Builder
	b.WriteString("\n\nAddress these issues from the previous draft:")
	for _, issue := range issues[:limit] {
		fmt.Fprintf(&b, "\n- (%s) %s (%s)", issue.Severity, issue.Description, issue.FixHint)
	}
	return b.String()
}
