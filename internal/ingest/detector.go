// Package ingest turns uploaded documents into retrievable chunks:
// type detection, profile-driven chunking, proposition and triple
// extraction, embedding, and the bounded worker pool that runs it all.
package ingest

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/academe-ai/academe/internal/store"
)

// codeExtensions maps file extensions straight to the code profile.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".cpp": true, ".h": true, ".rs": true, ".rb": true,
	".sql": true, ".sh": true,
}

var (
	chapterRe    = regexp.MustCompile(`(?im)^\s*(?:chapter|unit|lesson)\s+\d+`)
	exerciseRe   = regexp.MustCompile(`(?i)\b(?:exercises?|problem set|review questions)\b`)
	abstractRe   = regexp.MustCompile(`(?im)^\s*abstract\s*$`)
	referencesRe = regexp.MustCompile(`(?im)^\s*(?:references|bibliography)\s*$`)
	citationRe   = regexp.MustCompile(`\b(?:et al\.|\[\d+\]|\(\d{4}\))`)
	codeLineRe   = regexp.MustCompile(`(?m)^\s*(?:func |def |class |import |#include|package |const |var |return |if .*[{:]\s*$)`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*[-*•]\s+\S`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
)

// DetectDocType classifies a document by scoring structural signals in
// its content. The extension short-circuits for source files; otherwise
// the highest-scoring type wins, falling back to general.
func DetectDocType(sourcePath, content string) store.DocType {
	if ext := strings.ToLower(filepath.Ext(sourcePath)); codeExtensions[ext] {
		return store.DocTypeCode
	}

	sample := content
	if len(sample) > 32*1024 {
		sample = sample[:32*1024]
	}
	lines := strings.Split(sample, "\n")

	scores := map[store.DocType]int{}

	// Textbook: chapter structure, exercises, long prose.
	scores[store.DocTypeTextbook] += 3 * len(chapterRe.FindAllString(sample, 4))
	if exerciseRe.MatchString(sample) {
		scores[store.DocTypeTextbook] += 2
	}

	// Paper: abstract, references, citation density.
	if abstractRe.MatchString(sample) {
		scores[store.DocTypePaper] += 3
	}
	if referencesRe.MatchString(sample) {
		scores[store.DocTypePaper] += 2
	}
	citations := len(citationRe.FindAllString(sample, 10))
	if citations >= 3 {
		scores[store.DocTypePaper] += 2
	}

	// Code: density of code-shaped lines.
	codeLines := len(codeLineRe.FindAllString(sample, -1))
	if len(lines) > 0 && codeLines*5 >= len(lines) {
		scores[store.DocTypeCode] += 4
	}

	// Notes: bullets, headings, short lines.
	bullets := len(bulletRe.FindAllString(sample, -1))
	if len(lines) > 0 && bullets*4 >= len(lines) {
		scores[store.DocTypeNotes] += 3
	}
	if headingRe.FindAllString(sample, -1) != nil && avgLineLength(lines) < 60 {
		scores[store.DocTypeNotes] += 2
	}

	best := store.DocTypeGeneral
	bestScore := 1 // require at least 2 points to leave general
	for _, dt := range []store.DocType{store.DocTypeTextbook, store.DocTypePaper, store.DocTypeCode, store.DocTypeNotes} {
		if scores[dt] > bestScore {
			best = dt
			bestScore = scores[dt]
		}
	}
	return best
}

func avgLineLength(lines []string) int {
	if len(lines) == 0 {
		return 0
	}
	total := 0
	count := 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		total += len(l)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / count
}
