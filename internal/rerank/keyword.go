package rerank

import (
	"context"
	"strings"

	"github.com/academe-ai/academe/internal/lexical"
)

// Scoring increments for the keyword fallback.
const (
	perTermBoost  = 0.05
	sectionBoost  = 0.10
	maxTotalScore = 1.0
)

// KeywordReranker scores candidates by query-term overlap on top of
// their fused retrieval score. It is the degraded path when the
// cross-encoder is unreachable: cheap, deterministic, no dependencies.
type KeywordReranker struct{}

// Compile-time interface check.
var _ Reranker = (*KeywordReranker)(nil)

// NewKeywordReranker creates the fallback reranker.
func NewKeywordReranker() *KeywordReranker {
	return &KeywordReranker{}
}

// Rerank boosts each candidate's base score by term overlap
// (+0.05 per distinct matched query term, +0.1 for a section title
// match), capped at 1.0.
func (r *KeywordReranker) Rerank(ctx context.Context, query string, docs []Document) ([]Score, error) {
	queryTerms := lexical.Tokenize(query)
	queryLower := strings.ToLower(query)

	scores := make([]Score, len(docs))
	for i, d := range docs {
		score := d.BaseScore

		textLower := strings.ToLower(d.Text)
		for _, term := range queryTerms {
			if strings.Contains(textLower, term) {
				score += perTermBoost
			}
		}

		if d.Section != "" && strings.Contains(queryLower, strings.ToLower(d.Section)) {
			score += sectionBoost
		}

		if score > maxTotalScore {
			score = maxTotalScore
		}
		scores[i] = Score{ID: d.ID, Score: score}
	}

	sortScoresDesc(scores)
	return scores, nil
}

// Available always returns true.
func (r *KeywordReranker) Available(ctx context.Context) bool { return true }

// Close is a no-op.
func (r *KeywordReranker) Close() error { return nil }
