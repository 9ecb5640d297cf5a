package lexical

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academe-ai/academe/internal/store"
)

func seedStore(t *testing.T, contents map[string][]string) store.ChunkStore {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	for userID, texts := range contents {
		docID := "doc-" + userID
		require.NoError(t, s.SaveDocument(ctx, &store.Document{
			ID: docID, UserID: userID, Title: "Notes", DocType: store.DocTypeNotes,
			Status: store.StatusPending,
		}))
		chunks := make([]*store.Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = &store.Chunk{
				ID:         fmt.Sprintf("%s_%d", docID, i),
				DocumentID: docID,
				UserID:     userID,
				Position:   i,
				Content:    text,
			}
		}
		require.NoError(t, s.SaveChunks(ctx, chunks))
		require.NoError(t, s.UpdateDocumentStatus(ctx, docID, store.StatusReady, ""))
	}
	return s
}

func TestSearchFindsKeywordMatches(t *testing.T) {
	s := seedStore(t, map[string][]string{
		"u1": {
			"B-tree indexes speed up range queries in relational databases.",
			"Hash indexes support only equality lookups.",
			"Normalization reduces data redundancy.",
		},
	})
	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	results, err := m.Search(context.Background(), "u1", "B-tree indexes", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-u1_0", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.NotEmpty(t, results[0].MatchedTerms)
}

func TestSearchFindsPropositionMatches(t *testing.T) {
	s := seedStore(t, map[string][]string{
		"u1": {
			"The buffer pool keeps hot pages resident between queries.",
			"Write-ahead logging records changes before they reach disk.",
		},
	})
	ctx := context.Background()
	// Phrasing that never appears in the chunk text itself.
	require.NoError(t, s.SavePropositions(ctx, []*store.Proposition{{
		ID: "p1", ChunkID: "doc-u1_0", DocumentID: "doc-u1", UserID: "u1",
		Content: "Caching frequently accessed data avoids repeated reads.",
	}}))

	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	results, err := m.Search(ctx, "u1", "caching frequently accessed data", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-u1_0", results[0].ChunkID)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	s := seedStore(t, map[string][]string{"u1": {"some content here"}})
	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	results, err := m.Search(context.Background(), "u1", "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUserIsolation(t *testing.T) {
	s := seedStore(t, map[string][]string{
		"u1": {"quantum entanglement in photon pairs"},
		"u2": {"quantum chromodynamics and gluons"},
	})
	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	results, err := m.Search(context.Background(), "u1", "quantum", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-u1_0", results[0].ChunkID)
}

func TestRebuildOnVersionChange(t *testing.T) {
	s := seedStore(t, map[string][]string{"u1": {"photosynthesis converts light"}})
	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()

	results, err := m.Search(ctx, "u1", "photosynthesis", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, m.IndexedChunks("u1"))

	// New ready document bumps the version; next search sees the new chunk
	require.NoError(t, s.SaveDocument(ctx, &store.Document{
		ID: "doc2", UserID: "u1", Title: "More", DocType: store.DocTypeNotes,
		Status: store.StatusPending,
	}))
	require.NoError(t, s.SaveChunks(ctx, []*store.Chunk{{
		ID: "doc2_0", DocumentID: "doc2", UserID: "u1", Position: 0,
		Content: "chlorophyll absorbs photons during photosynthesis",
	}}))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "doc2", store.StatusReady, ""))

	results, err = m.Search(ctx, "u1", "photosynthesis", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, m.IndexedChunks("u1"))
}

func TestLRUEvictionAcrossUsers(t *testing.T) {
	s := seedStore(t, map[string][]string{
		"u1": {"alpha content"},
		"u2": {"beta content"},
		"u3": {"gamma content"},
	})
	m, err := NewManager(s, WithMaxIndexes(2))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	for _, u := range []string{"u1", "u2", "u3"} {
		_, err := m.Search(ctx, u, "content", 10)
		require.NoError(t, err)
	}

	// u1 was least recently used and should be evicted
	assert.Equal(t, -1, m.IndexedChunks("u1"))
	assert.NotEqual(t, -1, m.IndexedChunks("u3"))

	// Evicted index is rebuilt transparently
	results, err := m.Search(ctx, "u1", "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestConcurrentSearchesShareRebuild(t *testing.T) {
	s := seedStore(t, map[string][]string{"u1": {"mitochondria produce ATP"}})
	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := m.Search(context.Background(), "u1", "mitochondria", 5)
			assert.NoError(t, err)
			assert.Len(t, results, 1)
		}()
	}
	wg.Wait()
}

func TestInvalidateDropsIndex(t *testing.T) {
	s := seedStore(t, map[string][]string{"u1": {"osmosis moves water"}})
	m, err := NewManager(s)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Search(context.Background(), "u1", "osmosis", 5)
	require.NoError(t, err)
	require.NotEqual(t, -1, m.IndexedChunks("u1"))

	m.Invalidate("u1")
	assert.Equal(t, -1, m.IndexedChunks("u1"))
}
