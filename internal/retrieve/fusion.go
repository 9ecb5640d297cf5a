package retrieve

import (
	"sort"

	"github.com/academe-ai/academe/internal/lexical"
	"github.com/academe-ai/academe/internal/vector"
)

// demotionFactor scales down candidates from documents with repeated
// negative feedback.
const demotionFactor = 0.5

// Candidate is a scored retrieval result before chunk hydration.
type Candidate struct {
	ChunkID      string
	Score        float64 // fused, in [0,1]
	LexicalScore float64 // normalized per-list
	VectorScore  float64
	MatchedTerms []string
}

// minMaxNormalize rescales scores to [0,1] within one result list.
// A single-element or constant list maps to 1.0: it is the best that
// path produced.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// fuse combines normalized lexical and vector results into one ranked
// candidate list. Chunks found by only one path score zero on the
// other.
func fuse(lexResults []*lexical.Result, vecResults []*vector.Result, w Weights) []*Candidate {
	byID := make(map[string]*Candidate)

	lexScores := make([]float64, len(lexResults))
	for i, r := range lexResults {
		lexScores[i] = r.Score
	}
	for i, norm := range minMaxNormalize(lexScores) {
		r := lexResults[i]
		byID[r.ChunkID] = &Candidate{
			ChunkID:      r.ChunkID,
			LexicalScore: norm,
			MatchedTerms: r.MatchedTerms,
		}
	}

	vecScores := make([]float64, len(vecResults))
	for i, r := range vecResults {
		vecScores[i] = r.Score
	}
	for i, norm := range minMaxNormalize(vecScores) {
		r := vecResults[i]
		c, ok := byID[r.ChunkID]
		if !ok {
			c = &Candidate{ChunkID: r.ChunkID}
			byID[r.ChunkID] = c
		}
		c.VectorScore = norm
	}

	candidates := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		c.Score = w.Lexical*c.LexicalScore + w.Vector*c.VectorScore
		candidates = append(candidates, c)
	}
	sortCandidates(candidates)
	return candidates
}

// demote halves the score of candidates whose document drew repeated
// negative feedback, then re-sorts.
func demote(candidates []*Candidate, negativeDocs map[string]int, docOf func(chunkID string) string) {
	if len(negativeDocs) == 0 {
		return
	}
	for _, c := range candidates {
		if _, bad := negativeDocs[docOf(c.ChunkID)]; bad {
			c.Score *= demotionFactor
		}
	}
	sortCandidates(candidates)
}

// mergeByMaxScore unions candidate lists from query variants, keeping
// each chunk's best score. The merged list feeds one rerank pass.
func mergeByMaxScore(lists ...[]*Candidate) []*Candidate {
	byID := make(map[string]*Candidate)
	for _, list := range lists {
		for _, c := range list {
			if existing, ok := byID[c.ChunkID]; !ok || c.Score > existing.Score {
				byID[c.ChunkID] = c
			}
		}
	}
	merged := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, c)
	}
	sortCandidates(merged)
	return merged
}

func sortCandidates(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})
}
