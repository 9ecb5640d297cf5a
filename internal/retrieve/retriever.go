package retrieve

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/embed"
	acerrors "github.com/academe-ai/academe/internal/errors"
	"github.com/academe-ai/academe/internal/kg"
	"github.com/academe-ai/academe/internal/lexical"
	"github.com/academe-ai/academe/internal/rerank"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/vector"
)

// minNegativesForDemotion is how many negative ratings a document
// needs before its chunks are demoted.
const minNegativesForDemotion = 2

// lexicalSearcher is the slice of the lexical manager the retriever
// uses.
type lexicalSearcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]*lexical.Result, error)
}

// vectorSearcher is the slice of the vector index the retriever uses.
type vectorSearcher interface {
	Search(ctx context.Context, userID string, query []float32, k int) ([]*vector.Result, error)
}

// ScoredChunk is a hydrated retrieval result.
type ScoredChunk struct {
	Chunk        *store.Chunk
	Score        float64
	LexicalScore float64
	VectorScore  float64
	RerankScore  float64
	MatchedTerms []string
}

// Result is the retrieval output for one query.
type Result struct {
	Chunks    []*ScoredChunk
	QueryType QueryType
	// KGContext is a formatted relationship block, empty when the
	// graph had nothing relevant.
	KGContext string
	// Degraded is set when one retrieval path or the reranker failed
	// and a fallback served the query.
	Degraded bool
}

// Options tunes a single retrieval call.
type Options struct {
	TopK       int
	CandidateK int
	// QueryType overrides classification when non-empty.
	QueryType QueryType
	// SkipExpansion disables neighbor/parent context expansion, used
	// for sub-query retrieval where the orchestrator merges first.
	SkipExpansion bool
}

// Retriever runs hybrid retrieval over one user's corpus.
type Retriever struct {
	cfg        config.RetrievalConfig
	chunks     store.ChunkStore
	lexical    lexicalSearcher
	vectors    vectorSearcher
	embedder   embed.Embedder
	rerankers  []rerank.Reranker
	classifier *Classifier
	logger     *slog.Logger
}

// NewRetriever creates a retriever. Rerankers are tried in order until
// one succeeds; pass the HTTP cross-encoder first and the keyword
// fallback last.
func NewRetriever(cfg config.RetrievalConfig, chunks store.ChunkStore, lex lexicalSearcher,
	vectors vectorSearcher, embedder embed.Embedder, rerankers []rerank.Reranker,
	classifier *Classifier, logger *slog.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.CandidateK <= 0 {
		cfg.CandidateK = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.LexicalWeight == 0 && cfg.VectorWeight == 0 {
		cfg.LexicalWeight, cfg.VectorWeight = 0.3, 0.7
	}
	if len(rerankers) == 0 {
		rerankers = []rerank.Reranker{rerank.NewNoOpReranker()}
	}
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		cfg:        cfg,
		chunks:     chunks,
		lexical:    lex,
		vectors:    vectors,
		embedder:   embedder,
		rerankers:  rerankers,
		classifier: classifier,
		logger:     logger,
	}
}

// Retrieve answers one query with the top chunks, expanded context,
// and graph relationships.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, opts Options) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, acerrors.New(acerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	topK := opts.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	candidateK := opts.CandidateK
	if candidateK <= 0 {
		candidateK = r.cfg.CandidateK
	}
	if candidateK < topK {
		candidateK = topK
	}

	candidates, queryType, degraded, err := r.candidates(ctx, userID, query, candidateK, opts.QueryType)
	if err != nil {
		return nil, err
	}

	scored, err := r.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}

	scored, rerankDegraded := r.rerank(ctx, query, scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}

	result := &Result{
		Chunks:    scored,
		QueryType: queryType,
		Degraded:  degraded || rerankDegraded,
	}

	if !opts.SkipExpansion {
		r.expand(ctx, userID, query, result)
	}

	r.logger.Debug("retrieval_complete",
		"user_id", userID,
		"query_type", queryType,
		"candidates", len(candidates),
		"returned", len(result.Chunks),
		"degraded", result.Degraded)
	return result, nil
}

// RetrieveMerged runs the candidate stage for several query variants
// concurrently, unions the fused pools by best score, and reranks the
// merged pool once against the primary query. Variants never rerank on
// their own: a chunk the primary query would rank highly survives even
// when the variant that found it ranked it low.
func (r *Retriever) RetrieveMerged(ctx context.Context, userID string, queries []string, opts Options) (*Result, error) {
	if len(queries) == 0 {
		return nil, acerrors.New(acerrors.ErrCodeQueryEmpty, "no queries given", nil)
	}
	primary := queries[0]
	if strings.TrimSpace(primary) == "" {
		return nil, acerrors.New(acerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	topK := opts.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	candidateK := opts.CandidateK
	if candidateK <= 0 {
		candidateK = r.cfg.CandidateK
	}
	if candidateK < topK {
		candidateK = topK
	}

	// Variants are rephrasings of the same question; one classification
	// of the primary covers them all.
	queryType := opts.QueryType
	if queryType == "" {
		queryType = r.classifier.Classify(ctx, primary)
	}

	lists := make([][]*Candidate, len(queries))
	degs := make([]bool, len(queries))
	errs := make([]error, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			lists[i], _, degs[i], errs[i] = r.candidates(gctx, userID, q, candidateK, queryType)
			return nil
		})
	}
	_ = g.Wait()

	var pools [][]*Candidate
	degraded := false
	for i := range queries {
		if errs[i] != nil {
			r.logger.Debug("variant_retrieval_failed", "query", queries[i], "error", errs[i])
			continue
		}
		pools = append(pools, lists[i])
		degraded = degraded || degs[i]
	}
	if len(pools) == 0 {
		return nil, acerrors.RetrievalUnavailableError("all query variants failed", nil)
	}

	merged := mergeByMaxScore(pools...)
	scored, err := r.hydrate(ctx, merged)
	if err != nil {
		return nil, err
	}
	scored, rerankDegraded := r.rerank(ctx, primary, scored)
	if len(scored) > topK {
		scored = scored[:topK]
	}

	result := &Result{
		Chunks:    scored,
		QueryType: queryType,
		Degraded:  degraded || rerankDegraded,
	}
	if !opts.SkipExpansion {
		r.expand(ctx, userID, primary, result)
	}
	return result, nil
}

// candidates runs classification, hybrid search, feedback demotion,
// and threshold filtering for one query, stopping before the rerank
// stage so callers can merge pools from several variants first.
func (r *Retriever) candidates(ctx context.Context, userID, query string, candidateK int, queryType QueryType) ([]*Candidate, QueryType, bool, error) {
	if queryType == "" {
		queryType = r.classifier.Classify(ctx, query)
	}
	weights := r.weightsFor(queryType)

	candidates, degraded, err := r.searchBoth(ctx, userID, query, candidateK, weights)
	if err != nil {
		return nil, queryType, false, err
	}

	r.demoteNegative(ctx, userID, candidates)

	candidates = thresholdFilter(candidates, r.cfg.ScoreThreshold)
	if len(candidates) > candidateK {
		candidates = candidates[:candidateK]
	}
	return candidates, queryType, degraded, nil
}

func (r *Retriever) weightsFor(qt QueryType) Weights {
	if qt == QueryGeneral {
		// The configured base split applies to unclassified queries.
		return Weights{Lexical: r.cfg.LexicalWeight, Vector: r.cfg.VectorWeight}
	}
	return WeightsFor(qt)
}

// searchBoth runs the lexical and vector paths concurrently. One path
// failing degrades the result; both failing is an error.
func (r *Retriever) searchBoth(ctx context.Context, userID, query string, k int, w Weights) ([]*Candidate, bool, error) {
	var lexResults []*lexical.Result
	var vecResults []*vector.Result
	var lexErr, vecErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexResults, lexErr = r.lexical.Search(gctx, userID, query, k)
		return nil
	})
	g.Go(func() error {
		// Queries get the same enrichment prefix as chunk text so
		// their embeddings live in the same distribution, just with
		// no title or section to fill in.
		queryVec, err := r.embedder.Embed(gctx, enrichQuery(query))
		if err != nil {
			vecErr = err
			return nil
		}
		vecResults, vecErr = r.vectors.Search(gctx, userID, queryVec, k)
		return nil
	})
	_ = g.Wait()

	if lexErr != nil && vecErr != nil {
		r.logger.Warn("retrieval_both_paths_failed",
			"user_id", userID, "lexical_error", lexErr, "vector_error", vecErr)
		return nil, false, acerrors.RetrievalUnavailableError("both retrieval paths failed", nil)
	}
	degraded := lexErr != nil || vecErr != nil
	if lexErr != nil {
		r.logger.Warn("lexical_path_failed", "user_id", userID, "error", lexErr)
	}
	if vecErr != nil {
		r.logger.Warn("vector_path_failed", "user_id", userID, "error", vecErr)
	}

	return fuse(lexResults, vecResults, w), degraded, nil
}

func (r *Retriever) demoteNegative(ctx context.Context, userID string, candidates []*Candidate) {
	negative, err := r.chunks.NegativeDocumentIDs(ctx, userID, minNegativesForDemotion)
	if err != nil {
		r.logger.Debug("negative_feedback_lookup_failed", "error", err)
		return
	}
	demote(candidates, negative, docIDOfChunk)
}

// enrichQuery mirrors the chunk embedding prefix with empty metadata.
// The full "Document: ... | Section: ..." shape is kept so query
// embeddings stay in the same distribution as chunk embeddings.
func enrichQuery(query string) string {
	return "Document:  | Section: \n\n" + query
}

// docIDOfChunk recovers the document ID from a "{docID}_{position}"
// chunk ID.
func docIDOfChunk(chunkID string) string {
	if i := strings.LastIndex(chunkID, "_"); i > 0 {
		return chunkID[:i]
	}
	return chunkID
}

func thresholdFilter(candidates []*Candidate, threshold float64) []*Candidate {
	if threshold <= 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// hydrate loads chunk rows for candidates, dropping any that vanished
// since indexing.
func (r *Retriever) hydrate(ctx context.Context, candidates []*Candidate) ([]*ScoredChunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
	}
	rows, err := r.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Chunk, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	scored := make([]*ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		row, ok := byID[c.ChunkID]
		if !ok {
			continue
		}
		scored = append(scored, &ScoredChunk{
			Chunk:        row,
			Score:        c.Score,
			LexicalScore: c.LexicalScore,
			VectorScore:  c.VectorScore,
			MatchedTerms: c.MatchedTerms,
		})
	}
	return scored, nil
}

// rerank reorders hydrated chunks using the first reranker that
// succeeds. Every reranker failing falls back to fused order and
// marks the result degraded.
func (r *Retriever) rerank(ctx context.Context, query string, scored []*ScoredChunk) ([]*ScoredChunk, bool) {
	if len(scored) == 0 {
		return scored, false
	}
	docs := make([]rerank.Document, len(scored))
	byID := make(map[string]*ScoredChunk, len(scored))
	for i, sc := range scored {
		docs[i] = rerank.Document{
			ID:        sc.Chunk.ID,
			Text:      sc.Chunk.Content,
			Section:   sc.Chunk.SectionTitle,
			BaseScore: sc.Score,
		}
		byID[sc.Chunk.ID] = sc
	}

	for i, reranker := range r.rerankers {
		scores, err := reranker.Rerank(ctx, query, docs)
		if err != nil {
			r.logger.Debug("reranker_failed", "attempt", i, "error", err)
			continue
		}
		out := make([]*ScoredChunk, 0, len(scores))
		for _, s := range scores {
			if sc, ok := byID[s.ID]; ok {
				sc.RerankScore = s.Score
				out = append(out, sc)
			}
		}
		// A fallback reranker serving the query counts as degraded.
		return out, i > 0
	}

	r.logger.Warn("all_rerankers_failed", "candidates", len(scored))
	return scored, true
}

// expand attaches neighbor/parent context and knowledge-graph
// relationships. The two run concurrently; failures only log, context
// expansion is best effort.
func (r *Retriever) expand(ctx context.Context, userID, query string, result *Result) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.expandNeighbors(gctx, result)
		return nil
	})
	g.Go(func() error {
		graph, err := kg.BuildGraph(gctx, r.chunks, userID)
		if err != nil {
			r.logger.Debug("kg_build_failed", "error", err)
			return nil
		}
		result.KGContext = kg.FormatContext(graph.Traverse(query))
		return nil
	})
	_ = g.Wait()
}

// expandNeighbors widens each top chunk to its parent when one
// exists, otherwise splices in the adjacent chunks. Duplicate content
// across expansions is dropped.
func (r *Retriever) expandNeighbors(ctx context.Context, result *Result) {
	seen := make(map[string]bool, len(result.Chunks))
	for _, sc := range result.Chunks {
		seen[sc.Chunk.ID] = true
	}

	for _, sc := range result.Chunks {
		if sc.Chunk.ParentID != "" {
			parent, err := r.chunks.GetParent(ctx, sc.Chunk.ID)
			if err == nil && parent != nil && !seen[parent.ID] {
				seen[parent.ID] = true
				sc.Chunk = mergedChunk(sc.Chunk, parent.Content)
			}
			continue
		}

		prev, next, err := r.chunks.GetAdjacent(ctx, sc.Chunk.ID)
		if err != nil {
			continue
		}
		var parts []string
		if prev != nil && !seen[prev.ID] {
			seen[prev.ID] = true
			parts = append(parts, prev.Content)
		}
		parts = append(parts, sc.Chunk.Content)
		if next != nil && !seen[next.ID] {
			seen[next.ID] = true
			parts = append(parts, next.Content)
		}
		if len(parts) > 1 {
			sc.Chunk = mergedChunk(sc.Chunk, strings.Join(parts, "\n\n"))
		}
	}
}

// mergedChunk returns a copy of the chunk with widened content, so
// expansion never mutates rows shared with other results.
func mergedChunk(c *store.Chunk, content string) *store.Chunk {
	merged := *c
	merged.Content = content
	merged.CharCount = len(content)
	return &merged
}
