package lexical

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/academe-ai/academe/internal/store"
)

// Result is one BM25 search hit.
type Result struct {
	ChunkID string
	// Score is the raw BM25 score. Fusion normalizes per result list.
	Score        float64
	MatchedTerms []string
}

// indexedChunk is the document shape stored in bleve. Propositions
// carry the atomic statements extracted from the chunk, so a query can
// hit a chunk through a phrasing the raw text never uses.
type indexedChunk struct {
	Content      string `json:"content"`
	Section      string `json:"section"`
	Propositions string `json:"propositions"`
}

// userIndex is one user's in-memory BM25 index, built against a specific
// document set version.
type userIndex struct {
	mu      sync.RWMutex
	index   bleve.Index
	version int64
	count   int
	closed  bool
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(StudyAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": StudyTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			StudyStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = StudyAnalyzerName
	return indexMapping, nil
}

// newUserIndex builds an in-memory index over the given chunks.
// props maps chunk IDs to the joined text of their propositions.
func newUserIndex(chunks []*store.Chunk, props map[string]string, version int64) (*userIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, err
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory index: %w", err)
	}

	batch := idx.NewBatch()
	for _, c := range chunks {
		doc := indexedChunk{Content: c.Content, Section: c.SectionTitle, Propositions: props[c.ID]}
		if err := batch.Index(c.ID, doc); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index chunk %s: %w", c.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute index batch: %w", err)
	}

	return &userIndex{index: idx, version: version, count: len(chunks)}, nil
}

// search returns up to limit hits scored by BM25.
func (u *userIndex) search(ctx context.Context, queryStr string, limit int) ([]*Result, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*Result{}, nil
	}

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField("content")
	propQuery := bleve.NewMatchQuery(queryStr)
	propQuery.SetField("propositions")

	searchRequest := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(contentQuery, propQuery))
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true

	result, err := u.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]*Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &Result{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}
	return results, nil
}

func (u *userIndex) close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	return u.index.Close()
}

// extractMatchedTerms pulls the matched query terms from hit locations.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	if len(hit.Locations) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var terms []string
	for _, fieldLocations := range hit.Locations {
		for term := range fieldLocations {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}
	return terms
}
