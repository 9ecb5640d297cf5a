package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/academe-ai/academe/internal/llm"
)

// Decomposition bounds: fewer than 2 sub-queries is not a
// decomposition, more than 4 burns retrieval budget for no gain.
const (
	minSubQueries = 2
	maxSubQueries = 4
)

// Self-RAG verdicts.
const (
	verdictSufficient   = "SUFFICIENT"
	verdictInsufficient = "INSUFFICIENT"
	verdictReformulate  = "REFORMULATE"
)

// transformer wraps the query-side LLM operations. Every method
// degrades to a safe default when the model fails, so the answer path
// never hard-fails on a transformation.
type transformer struct {
	llm    llm.Client
	logger *slog.Logger
}

// rewrite clarifies the query for retrieval, resolving pronouns
// against the conversation hint when one is given. Returns the
// original and false when the model fails or echoes the input.
func (t *transformer) rewrite(ctx context.Context, query, hint string) (string, bool) {
	if t.llm == nil {
		return query, false
	}
	resp, err := t.llm.Complete(ctx, fmt.Sprintf(rewritePrompt, hintBlock(hint), query))
	if err != nil {
		t.logger.Debug("rewrite_failed", "error", err)
		return query, false
	}
	rewritten := firstLine(resp)
	if rewritten == "" || strings.EqualFold(rewritten, query) {
		return query, false
	}
	return rewritten, true
}

// decompose splits a complex question into sub-questions. Single-word
// queries, questions with no complexity cues, and SIMPLE verdicts
// return nil.
func (t *transformer) decompose(ctx context.Context, query string) []string {
	if t.llm == nil || len(strings.Fields(query)) < 2 || !needsDecomposition(query) {
		return nil
	}
	resp, err := t.llm.Complete(ctx, fmt.Sprintf(decomposePrompt, query))
	if err != nil {
		t.logger.Debug("decompose_failed", "error", err)
		return nil
	}
	if llm.FirstToken(resp) == "SIMPLE" {
		return nil
	}
	subs := llm.ParseList(resp)
	if len(subs) < minSubQueries {
		return nil
	}
	if len(subs) > maxSubQueries {
		subs = subs[:maxSubQueries]
	}
	return subs
}

// coordinationCues are surface markers of a multi-part or comparison
// question.
var coordinationCues = []string{
	" and ", " vs ", " vs. ", " versus ", "compared to", "difference between",
}

// longQueryChars is the length past which a non-definition question is
// worth offering to the decomposition model.
const longQueryChars = 200

// needsDecomposition gates the decomposition model call on cheap
// surface cues, so simple questions never pay for the extra call.
func needsDecomposition(query string) bool {
	lower := strings.ToLower(query)
	if strings.Count(lower, "?") > 1 {
		return true
	}
	for _, cue := range coordinationCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	if len(query) <= longQueryChars {
		return false
	}
	for _, prefix := range []string{"what is ", "what are ", "define ", "definition of "} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// hintBlock renders the optional conversation context for the rewrite
// prompt.
func hintBlock(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	return "\nConversation so far:\n" + hint + "\n"
}

// variants produces up to total query phrasings, the original always
// first. Model failure returns just the original.
func (t *transformer) variants(ctx context.Context, query string, total int) []string {
	out := []string{query}
	if t.llm == nil || total <= 1 {
		return out
	}
	resp, err := t.llm.Complete(ctx, fmt.Sprintf(multiQueryPrompt, total-1, query))
	if err != nil {
		t.logger.Debug("multi_query_failed", "error", err)
		return out
	}
	for _, v := range llm.ParseList(resp) {
		if strings.EqualFold(v, query) {
			continue
		}
		out = append(out, v)
		if len(out) >= total {
			break
		}
	}
	return out
}

// assess returns the self-RAG verdict for retrieved material.
// Unparseable responses count as sufficient so a flaky model never
// loops retrieval.
func (t *transformer) assess(ctx context.Context, query, material string) string {
	if t.llm == nil || material == "" {
		return verdictSufficient
	}
	resp, err := t.llm.Complete(ctx, fmt.Sprintf(sufficiencyPrompt, query, material))
	if err != nil {
		t.logger.Debug("sufficiency_check_failed", "error", err)
		return verdictSufficient
	}
	switch llm.FirstToken(resp) {
	case verdictInsufficient:
		return verdictInsufficient
	case verdictReformulate:
		return verdictReformulate
	default:
		return verdictSufficient
	}
}

// reformulate rephrases the query after a REFORMULATE verdict.
func (t *transformer) reformulate(ctx context.Context, query string) string {
	resp, err := t.llm.Complete(ctx, fmt.Sprintf(reformulatePrompt, query))
	if err != nil {
		t.logger.Debug("reformulate_failed", "error", err)
		return query
	}
	if r := firstLine(resp); r != "" {
		return r
	}
	return query
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
