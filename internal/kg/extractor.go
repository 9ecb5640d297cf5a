// Package kg extracts knowledge-graph triples from chunks and answers
// relational queries by traversing the per-user graph.
package kg

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/academe-ai/academe/internal/llm"
	"github.com/academe-ai/academe/internal/store"
)

const (
	// maxTriplesPerChunk bounds what one extraction call may return.
	maxTriplesPerChunk = 8

	// fallbackConfidence marks triples produced by the pattern
	// fallback, which is noisier than LLM extraction.
	fallbackConfidence = 0.6

	llmConfidence = 0.9
)

const extractPrompt = `Extract factual relationships from the text below as triples.
Output one triple per line in exactly this format:
subject | predicate | object

Rules:
- 3 to 8 triples, only relationships stated in the text
- keep subjects and objects short (1-4 words)
- use simple predicates like "is a", "uses", "has", "causes", "part of"
- no numbering, no commentary

Text:
%s

Triples:`

// Fallback patterns for when the LLM is unavailable. Each maps a
// copula-style sentence shape to a fixed predicate.
var fallbackPatterns = []struct {
	re        *regexp.Regexp
	predicate string
}{
	{regexp.MustCompile(`(?i)\b([A-Z][\w\- ]{1,40}?)\s+(?:is|are)\s+(?:a|an)\s+([\w\- ]{2,40})`), "is_a"},
	{regexp.MustCompile(`(?i)\b([A-Z][\w\- ]{1,40}?)\s+(?:uses|use)\s+([\w\- ]{2,40})`), "uses"},
	{regexp.MustCompile(`(?i)\b([A-Z][\w\- ]{1,40}?)\s+(?:has|have)\s+([\w\- ]{2,40})`), "has"},
}

// Extractor pulls triples out of chunk text.
type Extractor struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewExtractor creates a triple extractor. A nil client forces the
// pattern fallback.
func NewExtractor(client llm.Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{llm: client, logger: logger}
}

// Extract returns the triples found in a chunk. LLM extraction is
// attempted first; pattern matching covers LLM failure so ingestion
// never blocks on the model.
func (e *Extractor) Extract(ctx context.Context, chunk store.Chunk) []store.Triple {
	if e.llm != nil {
		triples, err := e.extractLLM(ctx, chunk)
		if err == nil && len(triples) > 0 {
			return triples
		}
		if err != nil {
			e.logger.Debug("kg_llm_extract_failed",
				"chunk_id", chunk.ID,
				"error", err)
		}
	}
	return e.extractPatterns(chunk)
}

func (e *Extractor) extractLLM(ctx context.Context, chunk store.Chunk) ([]store.Triple, error) {
	resp, err := e.llm.Complete(ctx, fmt.Sprintf(extractPrompt, chunk.Content))
	if err != nil {
		return nil, err
	}

	var triples []store.Triple
	for _, line := range strings.Split(resp, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		subject := normalizeEntity(parts[0])
		predicate := normalizeEntity(parts[1])
		object := normalizeEntity(parts[2])
		if subject == "" || predicate == "" || object == "" {
			continue
		}
		triples = append(triples, store.Triple{
			UserID:     chunk.UserID,
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Subject:    subject,
			Predicate:  predicate,
			Object:     object,
			Confidence: llmConfidence,
		})
		if len(triples) >= maxTriplesPerChunk {
			break
		}
	}
	return triples, nil
}

func (e *Extractor) extractPatterns(chunk store.Chunk) []store.Triple {
	var triples []store.Triple
	seen := make(map[string]bool)

	for _, p := range fallbackPatterns {
		for _, m := range p.re.FindAllStringSubmatch(chunk.Content, -1) {
			subject := normalizeEntity(m[1])
			object := normalizeEntity(m[2])
			if subject == "" || object == "" || subject == object {
				continue
			}
			key := subject + "|" + p.predicate + "|" + object
			if seen[key] {
				continue
			}
			seen[key] = true
			triples = append(triples, store.Triple{
				UserID:     chunk.UserID,
				ChunkID:    chunk.ID,
				DocumentID: chunk.DocumentID,
				Subject:    subject,
				Predicate:  p.predicate,
				Object:     object,
				Confidence: fallbackConfidence,
			})
			if len(triples) >= maxTriplesPerChunk {
				return triples
			}
		}
	}
	return triples
}

// normalizeEntity lowercases and collapses whitespace so "B-Tree" and
// "b-tree" resolve to the same graph node.
func normalizeEntity(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'.,;:`)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
