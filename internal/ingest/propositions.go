package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/academe-ai/academe/internal/llm"
	"github.com/academe-ai/academe/internal/store"
)

const (
	// minPropositionLen drops fragments too short to stand alone.
	minPropositionLen = 25
	// minPropositionWords drops headings and list stubs.
	minPropositionWords = 4
	// maxPropositionsPerChunk bounds LLM output per chunk.
	maxPropositionsPerChunk = 7
)

const propositionPrompt = `Break the text below into standalone factual statements.
Each statement must be a complete sentence that makes sense without the
surrounding text. Output a numbered list, one statement per line, at
most %d statements. No commentary.

Text:
%s

Statements:`

// PropositionExtractor derives atomic statements from chunks. The
// statements are stored alongside chunks as answer evidence.
type PropositionExtractor struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewPropositionExtractor creates an extractor. A nil client forces
// the sentence-split fallback.
func NewPropositionExtractor(client llm.Client, logger *slog.Logger) *PropositionExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PropositionExtractor{llm: client, logger: logger}
}

// Extract returns propositions for a chunk. LLM decomposition first,
// plain sentence splitting when the model fails or returns nothing.
func (p *PropositionExtractor) Extract(ctx context.Context, chunk store.Chunk) []*store.Proposition {
	var statements []string
	if p.llm != nil {
		resp, err := p.llm.Complete(ctx,
			fmt.Sprintf(propositionPrompt, maxPropositionsPerChunk, chunk.Content))
		if err != nil {
			p.logger.Debug("proposition_llm_failed",
				"chunk_id", chunk.ID,
				"error", err)
		} else {
			statements = filterStatements(llm.ParseList(resp))
		}
	}
	if len(statements) == 0 {
		statements = filterStatements(splitSentences(chunk.Content))
	}
	if len(statements) > maxPropositionsPerChunk {
		statements = statements[:maxPropositionsPerChunk]
	}

	props := make([]*store.Proposition, 0, len(statements))
	for _, s := range statements {
		props = append(props, &store.Proposition{
			ID:         uuid.NewString(),
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			UserID:     chunk.UserID,
			Content:    s,
		})
	}
	return props
}

// filterStatements keeps only statements substantial enough to stand
// alone.
func filterStatements(items []string) []string {
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if len(s) < minPropositionLen {
			continue
		}
		if len(strings.Fields(s)) < minPropositionWords {
			continue
		}
		out = append(out, s)
	}
	return out
}

// splitSentences is the naive fallback: period-delimited sentences.
func splitSentences(text string) []string {
	var out []string
	for _, s := range strings.Split(text, ". ") {
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, ".")
		if s != "" {
			out = append(out, s+".")
		}
	}
	return out
}
