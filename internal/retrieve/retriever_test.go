package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/embed"
	acerrors "github.com/academe-ai/academe/internal/errors"
	"github.com/academe-ai/academe/internal/lexical"
	"github.com/academe-ai/academe/internal/rerank"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/vector"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}
func (f *fakeLLM) Available(ctx context.Context) bool { return true }
func (f *fakeLLM) Close() error                       { return nil }

type fakeLex struct {
	results []*lexical.Result
	err     error
}

func (f *fakeLex) Search(ctx context.Context, userID, query string, limit int) ([]*lexical.Result, error) {
	return f.results, f.err
}

type fakeVec struct {
	results []*vector.Result
	err     error
}

func (f *fakeVec) Search(ctx context.Context, userID string, query []float32, k int) ([]*vector.Result, error) {
	return f.results, f.err
}

// scriptedReranker scores documents per query and records the queries
// it was asked to rank for.
type scriptedReranker struct {
	mu      sync.Mutex
	scores  map[string]map[string]float64
	queries []string
}

func (s *scriptedReranker) Rerank(ctx context.Context, query string, docs []rerank.Document) ([]rerank.Score, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	out := make([]rerank.Score, len(docs))
	for i, d := range docs {
		out[i] = rerank.Score{ID: d.ID, Score: s.scores[query][d.ID]}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
func (s *scriptedReranker) Available(ctx context.Context) bool { return true }
func (s *scriptedReranker) Close() error                       { return nil }

type failingReranker struct{ calls int }

func (f *failingReranker) Rerank(ctx context.Context, q string, d []rerank.Document) ([]rerank.Score, error) {
	f.calls++
	return nil, errors.New("reranker down")
}
func (f *failingReranker) Available(ctx context.Context) bool { return false }
func (f *failingReranker) Close() error                       { return nil }

// seedChunks writes a ready document with n sequential chunks and
// returns the store.
func seedChunks(t *testing.T, userID, docID string, n int) store.ChunkStore {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	doc := &store.Document{ID: docID, UserID: userID, Title: "Databases", DocType: store.DocTypeGeneral, Status: store.StatusPending}
	require.NoError(t, s.SaveDocument(ctx, doc))

	chunks := make([]*store.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, &store.Chunk{
			ID:           fmt.Sprintf("%s_%d", docID, i),
			DocumentID:   docID,
			UserID:       userID,
			Position:     i,
			Content:      fmt.Sprintf("chunk %d discusses b-tree indexes", i),
			SectionTitle: "Indexing",
			CharCount:    30,
		})
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))
	require.NoError(t, s.UpdateDocumentStatus(ctx, docID, store.StatusReady, ""))
	return s
}

func newTestRetriever(chunks store.ChunkStore, lex lexicalSearcher, vec vectorSearcher,
	rerankers ...rerank.Reranker) *Retriever {
	return NewRetriever(config.RetrievalConfig{
		TopK: 2, CandidateK: 10, LexicalWeight: 0.3, VectorWeight: 0.7, ScoreThreshold: 0.2,
	}, chunks, lex, vec, embed.NewStaticEmbedder(), rerankers, nil, nil)
}

func TestRetrieveFusesAndRanks(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 3)
	lex := &fakeLex{results: []*lexical.Result{
		{ChunkID: "doc1_0", Score: 8},
		{ChunkID: "doc1_1", Score: 2},
	}}
	vec := &fakeVec{results: []*vector.Result{
		{ChunkID: "doc1_1", Score: 0.95},
		{ChunkID: "doc1_2", Score: 0.80},
	}}

	r := newTestRetriever(chunks, lex, vec, rerank.NewNoOpReranker())
	res, err := r.Retrieve(context.Background(), "u1", "tell me about b-tree layout", Options{})
	require.NoError(t, err)

	require.Len(t, res.Chunks, 2)
	// doc1_1: lex 0.0 + vec 1.0 -> 0.7; doc1_0: lex 1.0 -> 0.3.
	assert.Equal(t, "doc1_1", res.Chunks[0].Chunk.ID)
	assert.False(t, res.Degraded)
	assert.Equal(t, QueryGeneral, res.QueryType)

	// Adjacent-chunk expansion widened the flat chunks.
	assert.Contains(t, res.Chunks[0].Chunk.Content, "chunk 0")
	assert.Contains(t, res.Chunks[0].Chunk.Content, "chunk 2")
}

func TestRetrieveDegradesWhenOnePathFails(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 2)
	lex := &fakeLex{results: []*lexical.Result{{ChunkID: "doc1_0", Score: 5}}}
	vec := &fakeVec{err: errors.New("index unavailable")}

	r := newTestRetriever(chunks, lex, vec, rerank.NewNoOpReranker())
	res, err := r.Retrieve(context.Background(), "u1", "b-tree", Options{})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "doc1_0", res.Chunks[0].Chunk.ID)
}

func TestRetrieveFailsWhenBothPathsFail(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 1)
	lex := &fakeLex{err: errors.New("bleve exploded")}
	vec := &fakeVec{err: errors.New("hnsw exploded")}

	r := newTestRetriever(chunks, lex, vec)
	_, err := r.Retrieve(context.Background(), "u1", "b-tree", Options{})
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeRetrievalUnavailable, acerrors.GetCode(err))
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 1)
	r := newTestRetriever(chunks, &fakeLex{}, &fakeVec{})

	_, err := r.Retrieve(context.Background(), "u1", "   ", Options{})
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeQueryEmpty, acerrors.GetCode(err))
}

func TestRetrieveRerankerFallbackMarksDegraded(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 2)
	lex := &fakeLex{results: []*lexical.Result{{ChunkID: "doc1_0", Score: 5}, {ChunkID: "doc1_1", Score: 3}}}
	vec := &fakeVec{results: []*vector.Result{{ChunkID: "doc1_0", Score: 0.9}}}

	failing := &failingReranker{}
	r := newTestRetriever(chunks, lex, vec, failing, rerank.NewKeywordReranker())
	res, err := r.Retrieve(context.Background(), "u1", "b-tree indexes", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, failing.calls)
	assert.True(t, res.Degraded)
	require.NotEmpty(t, res.Chunks)
	assert.Greater(t, res.Chunks[0].RerankScore, 0.0)
}

func TestRetrieveDemotesNegativeFeedbackDocs(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 2)
	ctx := context.Background()

	// Second ready document that drew repeated negative feedback.
	doc2 := &store.Document{ID: "doc2", UserID: "u1", Title: "Bad Notes", DocType: store.DocTypeGeneral, Status: store.StatusPending}
	require.NoError(t, chunks.SaveDocument(ctx, doc2))
	require.NoError(t, chunks.SaveChunks(ctx, []*store.Chunk{{
		ID: "doc2_0", DocumentID: "doc2", UserID: "u1", Position: 0,
		Content: "misleading explanation of b-trees", CharCount: 33,
	}}))
	require.NoError(t, chunks.UpdateDocumentStatus(ctx, "doc2", store.StatusReady, ""))
	for i := 0; i < 2; i++ {
		require.NoError(t, chunks.SaveFeedback(ctx, &store.Feedback{
			ID: fmt.Sprintf("fb%d", i), UserID: "u1", Query: "q", Rating: -1,
			DocumentIDs: []string{"doc2"},
		}))
	}

	lex := &fakeLex{results: []*lexical.Result{
		{ChunkID: "doc2_0", Score: 10},
		{ChunkID: "doc1_0", Score: 9},
		{ChunkID: "doc1_1", Score: 1},
	}}
	vec := &fakeVec{results: []*vector.Result{
		{ChunkID: "doc2_0", Score: 0.9},
		{ChunkID: "doc1_0", Score: 0.85},
		{ChunkID: "doc1_1", Score: 0.1},
	}}

	r := newTestRetriever(chunks, lex, vec, rerank.NewNoOpReranker())
	res, err := r.Retrieve(ctx, "u1", "b-tree", Options{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	// Without demotion doc2_0 would rank first on raw scores.
	assert.Equal(t, "doc1_0", res.Chunks[0].Chunk.ID)
}

func TestRetrieveMergedUnionsVariants(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 3)
	lex := &fakeLex{results: []*lexical.Result{
		{ChunkID: "doc1_0", Score: 5},
		{ChunkID: "doc1_1", Score: 4},
		{ChunkID: "doc1_2", Score: 3},
	}}
	vec := &fakeVec{results: []*vector.Result{{ChunkID: "doc1_0", Score: 0.9}}}

	r := newTestRetriever(chunks, lex, vec, rerank.NewNoOpReranker())
	res, err := r.RetrieveMerged(context.Background(), "u1",
		[]string{"b-tree structure", "index layout"}, Options{TopK: 3, SkipExpansion: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Chunks)
	assert.LessOrEqual(t, len(res.Chunks), 3)
}

func TestRetrieveMergedReranksOnceAgainstPrimary(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 3)
	lex := &fakeLex{results: []*lexical.Result{
		{ChunkID: "doc1_0", Score: 5},
		{ChunkID: "doc1_1", Score: 3},
		{ChunkID: "doc1_2", Score: 1},
	}}
	vec := &fakeVec{results: []*vector.Result{
		{ChunkID: "doc1_0", Score: 0.9},
		{ChunkID: "doc1_1", Score: 0.5},
		{ChunkID: "doc1_2", Score: 0.1},
	}}

	// The variant would rank doc1_1 last; the primary ranks it first.
	reranker := &scriptedReranker{scores: map[string]map[string]float64{
		"primary phrasing":   {"doc1_0": 0.2, "doc1_1": 0.95},
		"alternate phrasing": {"doc1_0": 0.9, "doc1_1": 0.1},
	}}

	r := newTestRetriever(chunks, lex, vec, reranker)
	res, err := r.RetrieveMerged(context.Background(), "u1",
		[]string{"primary phrasing", "alternate phrasing"},
		Options{TopK: 1, SkipExpansion: true})
	require.NoError(t, err)

	// One rerank of the merged pool, judged by the primary query. A
	// per-variant rerank would have cut doc1_1 before the primary ever
	// saw it.
	require.Equal(t, []string{"primary phrasing"}, reranker.queries)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "doc1_1", res.Chunks[0].Chunk.ID)
	assert.False(t, res.Degraded)
}

// barrierLex only answers once every expected caller has arrived, so a
// sequential caller deadlocks against it until the retrieval timeout.
type barrierLex struct {
	gate    *sync.WaitGroup
	ready   chan struct{}
	results []*lexical.Result
}

func (b *barrierLex) Search(ctx context.Context, userID, query string, limit int) ([]*lexical.Result, error) {
	b.gate.Done()
	select {
	case <-b.ready:
		return b.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRetrieveMergedRunsVariantsConcurrently(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 2)

	var gate sync.WaitGroup
	gate.Add(2)
	ready := make(chan struct{})
	go func() {
		gate.Wait()
		close(ready)
	}()
	lex := &barrierLex{
		gate:    &gate,
		ready:   ready,
		results: []*lexical.Result{{ChunkID: "doc1_0", Score: 5}},
	}
	vec := &fakeVec{results: []*vector.Result{{ChunkID: "doc1_0", Score: 0.9}}}

	start := time.Now()
	r := newTestRetriever(chunks, lex, vec, rerank.NewNoOpReranker())
	res, err := r.RetrieveMerged(context.Background(), "u1",
		[]string{"b-tree structure", "index layout"},
		Options{TopK: 2, SkipExpansion: true})
	require.NoError(t, err)

	// Both lexical searches were in flight at once, so neither timed
	// out and nothing fell back to the vector-only path.
	assert.False(t, res.Degraded)
	assert.NotEmpty(t, res.Chunks)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRetrieveSubstitutesParentForChildChunk(t *testing.T) {
	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	doc := &store.Document{ID: "doc1", UserID: "u1", Title: "Databases", DocType: store.DocTypeGeneral, Status: store.StatusPending}
	require.NoError(t, s.SaveDocument(ctx, doc))
	parentContent := "Full section: b-trees split full nodes on insert and merge sparse nodes on delete."
	require.NoError(t, s.SaveChunks(ctx, []*store.Chunk{
		{
			ID: "doc1_p0", DocumentID: "doc1", UserID: "u1", Position: 100,
			Content: parentContent, IsParent: true, CharCount: len(parentContent),
		},
		{
			ID: "doc1_0", DocumentID: "doc1", UserID: "u1", Position: 0,
			Content: "b-trees split full nodes", ParentID: "doc1_p0", CharCount: 24,
		},
	}))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "doc1", store.StatusReady, ""))

	lex := &fakeLex{results: []*lexical.Result{{ChunkID: "doc1_0", Score: 5}}}
	vec := &fakeVec{results: []*vector.Result{{ChunkID: "doc1_0", Score: 0.9}}}

	r := newTestRetriever(s, lex, vec, rerank.NewNoOpReranker())
	res, err := r.Retrieve(ctx, "u1", "how do b-trees rebalance", Options{})
	require.NoError(t, err)

	// Expansion swaps the narrow child for its parent's full section.
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "doc1_0", res.Chunks[0].Chunk.ID)
	assert.Equal(t, parentContent, res.Chunks[0].Chunk.Content)
}

func TestEnrichQueryMirrorsChunkPrefix(t *testing.T) {
	// Same prefix shape as enriched chunk text, with the metadata
	// slots left empty.
	assert.Equal(t, "Document:  | Section: \n\nb-tree splits", enrichQuery("b-tree splits"))
}

func TestRetrieveIncludesKGContext(t *testing.T) {
	chunks := seedChunks(t, "u1", "doc1", 1)
	ctx := context.Background()
	require.NoError(t, chunks.SaveTriples(ctx, []*store.Triple{{
		ID: "t1", ChunkID: "doc1_0", DocumentID: "doc1", UserID: "u1",
		Subject: "b-tree", Predicate: "is a", Object: "balanced tree", Confidence: 0.9,
	}}))

	lex := &fakeLex{results: []*lexical.Result{{ChunkID: "doc1_0", Score: 5}}}
	vec := &fakeVec{results: []*vector.Result{{ChunkID: "doc1_0", Score: 0.9}}}

	r := newTestRetriever(chunks, lex, vec, rerank.NewNoOpReranker())
	res, err := r.Retrieve(ctx, "u1", "b-tree", Options{})
	require.NoError(t, err)
	assert.Contains(t, res.KGContext, "b-tree is a balanced tree")
}
