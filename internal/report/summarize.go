package report

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"scribe/internal/cite"
	"scribe/internal/llm"
	"scribe/internal/store"
)

const (
	fileSummaryInstructions   = "Summarize this source file concisely for a technical report."
	moduleSummaryInstructions = "Combine these file summaries into one concise module overview."
)

// Summarizer builds the file and module summary layer that retrieval
// and drafting draw evidence from. Every summary carries at least one
// citation so downstream text stays grounded.
type Summarizer struct {
	store *store.Store
	llm   llm.Summarizer
	log   *zap.Logger
}

// NewSummarizer wires a summarizer.
func NewSummarizer(st *store.Store, s llm.Summarizer, log *zap.Logger) *Summarizer {
	return &Summarizer{store: st, llm: s, log: log}
}

// SummarizeFile summarizes one file's chunks and stores the result at
// the file level, suffixed with a citation to the file's first chunk.
func (s *Summarizer) SummarizeFile(ctx context.Context, fileID int64) (store.SummaryRecord, error) {
	file, ok, err := s.store.FileByID(fileID)
	if err != nil {
		return store.SummaryRecord{}, err
	}
	if !ok {
		return store.SummaryRecord{}, fmt.Errorf("summarize file: id %d not found", fileID)
	}
	chunks, err := s.store.ChunksForFile(fileID)
	if err != nil {
		return store.SummaryRecord{}, err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	result, err := s.llm.Summarize(ctx, fmt.Sprintf("File %s:\n%s", file.Path, strings.Join(texts, "\n")), fileSummaryInstructions)
	if err != nil {
		return store.SummaryRecord{}, fmt.Errorf("summarize %s: %w", file.Path, err)
	}

	text := collapse(result.Text)
	if len(chunks) > 0 {
		text += fmt.Sprintf(" [%s]", cite.Format(file.Path, chunks[0].StartLine, chunks[0].EndLine))
	}
	rec := store.SummaryRecord{
		Level:      store.LevelFile,
		TargetID:   fileID,
		Text:       text,
		Confidence: result.Confidence,
	}
	rec.ID, err = s.store.AddSummary(rec)
	if err != nil {
		return store.SummaryRecord{}, err
	}
	return rec, nil
}

// SummarizeAllFiles summarizes every parsed file.
func (s *Summarizer) SummarizeAllFiles(ctx context.Context) ([]store.SummaryRecord, error) {
	files, err := s.store.Files()
	if err != nil {
		return nil, err
	}
	var summaries []store.SummaryRecord
	for _, f := range files {
		if !f.Parsed {
			continue
		}
		rec, err := s.SummarizeFile(ctx, f.ID)
		if err != nil {
			s.log.Warn("file summary failed", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		summaries = append(summaries, rec)
	}
	return summaries, nil
}

// SummarizeModule aggregates file summaries into a module-level
// summary, carrying forward up to three child citations.
func (s *Summarizer) SummarizeModule(ctx context.Context, modulePath string, fileSummaries []store.SummaryRecord) (store.SummaryRecord, error) {
	texts := make([]string, len(fileSummaries))
	for i, fs := range fileSummaries {
		texts[i] = fs.Text
	}
	result, err := s.llm.Summarize(ctx, fmt.Sprintf("Module %s file summaries:\n%s", modulePath, strings.Join(texts, "\n")), moduleSummaryInstructions)
	if err != nil {
		return store.SummaryRecord{}, fmt.Errorf("summarize module %s: %w", modulePath, err)
	}

	text := collapse(result.Text)
	for _, ref := range childCitations(fileSummaries, 3) {
		text += fmt.Sprintf(" [%s]", ref)
	}

	name := path.Base(modulePath)
	pkgID, err := s.store.AddPackage(modulePath, name)
	if err != nil {
		return store.SummaryRecord{}, err
	}
	modID, err := s.store.AddModule(modulePath, name, pkgID)
	if err != nil {
		return store.SummaryRecord{}, err
	}
	for _, fs := range fileSummaries {
		if fs.Level == store.LevelFile {
			if err := s.store.LinkFileToModule(modID, fs.TargetID); err != nil {
				return store.SummaryRecord{}, err
			}
		}
	}

	rec := store.SummaryRecord{
		Level:      store.LevelModule,
		TargetID:   modID,
		Text:       text,
		Confidence: result.Confidence,
	}
	rec.ID, err = s.store.AddSummary(rec)
	if err != nil {
		return store.SummaryRecord{}, err
	}
	return rec, nil
}

// childCitations collects up to max valid citation tokens from the
// child summaries.
func childCitations(summaries []store.SummaryRecord, max int) []string {
	var refs []string
	for _, s := range summaries {
		for _, field := range strings.Fields(s.Text) {
			if !strings.HasPrefix(field, "[") || !strings.HasSuffix(field, "]") {
				continue
			}
			raw := strings.Trim(field, "[]")
			if _, err := cite.Parse(raw); err != nil {
				continue
			}
			refs = append(refs, raw)
			if len(refs) == max {
				return refs
			}
		}
	}
	return refs
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
