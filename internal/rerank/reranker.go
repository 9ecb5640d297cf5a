// Package rerank rescores retrieval candidates against the query.
// The primary implementation calls an HTTP cross-encoder service; a
// keyword-overlap scorer serves as the offline fallback.
package rerank

import (
	"context"
	"sort"
)

// Document is a rerank candidate.
type Document struct {
	ID      string
	Text    string
	Section string
	// BaseScore is the fused retrieval score, used by the keyword
	// fallback as its starting point.
	BaseScore float64
}

// Score is a reranked candidate score.
type Score struct {
	ID    string
	Score float64
}

// Reranker rescores candidates for a query, best first.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []Document) ([]Score, error)
	Available(ctx context.Context) bool
	Close() error
}

// NoOpReranker preserves retrieval order with synthetic decreasing
// scores. Used when reranking is disabled.
type NoOpReranker struct{}

// Compile-time interface check.
var _ Reranker = (*NoOpReranker)(nil)

// NewNoOpReranker creates a pass-through reranker.
func NewNoOpReranker() *NoOpReranker {
	return &NoOpReranker{}
}

// Rerank returns the input order with decreasing scores.
func (r *NoOpReranker) Rerank(ctx context.Context, query string, docs []Document) ([]Score, error) {
	scores := make([]Score, len(docs))
	for i, d := range docs {
		scores[i] = Score{ID: d.ID, Score: 1.0 - float64(i)*0.01}
	}
	return scores, nil
}

// Available always returns true.
func (r *NoOpReranker) Available(ctx context.Context) bool { return true }

// Close is a no-op.
func (r *NoOpReranker) Close() error { return nil }

// sortScoresDesc orders scores best first, stable on ties.
func sortScoresDesc(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
}
