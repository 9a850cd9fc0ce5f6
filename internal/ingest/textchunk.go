package ingest

import (
	"strings"

	"scribe/internal/parser"
)

// chunkText splits prose into paragraph chunks on blank lines. Text
// with no blank lines becomes a single block chunk.
func chunkText(text string) []parser.Chunk {
	lines := strings.Split(text, "\n")
	total := len(lines)
	if total == 0 || (total == 1 && lines[0] == "") {
		return nil
	}

	hasBlank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			hasBlank = true
			break
		}
	}
	if !hasBlank {
		return []parser.Chunk{{StartLine: 1, EndLine: total, Kind: "block", Text: text}}
	}

	var chunks []parser.Chunk
	var buf []string
	currentStart := 1
	for idx, line := range lines {
		lineNo := idx + 1
		if strings.TrimSpace(line) == "" {
			if len(buf) > 0 {
				chunks = append(chunks, parser.Chunk{
					StartLine: currentStart,
					EndLine:   lineNo - 1,
					Kind:      "paragraph",
					Text:      strings.Join(buf, "\n"),
				})
				buf = nil
			}
			currentStart = lineNo + 1
		} else {
			if len(buf) == 0 {
				currentStart = lineNo
			}
			buf = append(buf, line)
		}
	}
	if len(buf) > 0 {
		chunks = append(chunks, parser.Chunk{
			StartLine: currentStart,
			EndLine:   total,
			Kind:      "paragraph",
			Text:      strings.Join(buf, "\n"),
		})
	}
	return chunks
}

// wholeFileChunk wraps the entire file in one block chunk. Used when a
// parsed file yields no function or class nodes.
func wholeFileChunk(text string) []parser.Chunk {
	lines := strings.Split(text, "\n")
	total := len(lines)
	if total == 0 {
		total = 1
	}
	return []parser.Chunk{{StartLine: 1, EndLine: total, Kind: "block", Text: text}}
}
