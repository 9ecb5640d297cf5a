package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDoc(id, userID string) *Document {
	return &Document{
		ID:      id,
		UserID:  userID,
		Title:   "Intro to Databases",
		DocType: DocTypeTextbook,
		Status:  StatusPending,
	}
}

func testChunks(docID, userID string, n int) []*Chunk {
	chunks := make([]*Chunk, n)
	for i := 0; i < n; i++ {
		chunks[i] = &Chunk{
			ID:           chunkID(docID, i),
			DocumentID:   docID,
			UserID:       userID,
			Position:     i,
			Content:      "chunk content " + string(rune('a'+i)),
			SectionTitle: "Section 1",
		}
	}
	return chunks
}

func chunkID(docID string, pos int) string {
	return docID + "_" + string(rune('0'+pos))
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("d1", "u1")
	require.NoError(t, s.SaveDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, DocTypeTextbook, got.DocType)

	require.NoError(t, s.UpdateDocumentStatus(ctx, "d1", StatusProcessing, ""))
	got, err = s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)

	require.NoError(t, s.UpdateDocumentStatus(ctx, "d1", StatusFailed, "embedder unavailable"))
	got, err = s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "embedder unavailable", got.FailureReason)
}

func TestGetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeDocumentNotFound, acerrors.GetCode(err))
}

func TestReadyBumpsDocSetVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v0, err := s.DocSetVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v0)

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "d1", StatusReady, ""))

	v1, err := s.DocSetVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	// Failing a document does not bump the version
	require.NoError(t, s.SaveDocument(ctx, testDoc("d2", "u1")))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "d2", StatusFailed, "oops"))
	v2, err := s.DocSetVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v2)
}

func TestChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("d1", "u1")
	require.NoError(t, s.SaveDocument(ctx, doc))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d1", "u1", 3)))

	got, err := s.GetChunk(ctx, chunkID("d1", 1))
	require.NoError(t, err)
	assert.Equal(t, "d1", got.DocumentID)
	assert.Equal(t, 1, got.Position)
	assert.Equal(t, "Intro to Databases", got.DocTitle)
	assert.Greater(t, got.CharCount, 0)
}

func TestGetChunksPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d1", "u1", 3)))

	ids := []string{chunkID("d1", 2), chunkID("d1", 0), "missing"}
	got, err := s.GetChunks(ctx, ids)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Position)
	assert.Equal(t, 0, got[1].Position)
}

func TestGetAdjacent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d1", "u1", 3)))

	prev, next, err := s.GetAdjacent(ctx, chunkID("d1", 1))
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, 0, prev.Position)
	assert.Equal(t, 2, next.Position)

	// Boundaries
	prev, next, err = s.GetAdjacent(ctx, chunkID("d1", 0))
	require.NoError(t, err)
	assert.Nil(t, prev)
	require.NotNil(t, next)

	prev, next, err = s.GetAdjacent(ctx, chunkID("d1", 2))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Nil(t, next)
}

func TestGetParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	parent := &Chunk{
		ID: "d1_p0", DocumentID: "d1", UserID: "u1", Position: 100,
		Content: "parent content", IsParent: true,
	}
	child := &Chunk{
		ID: "d1_0", DocumentID: "d1", UserID: "u1", Position: 0,
		Content: "child content", ParentID: "d1_p0",
	}
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{parent, child}))

	got, err := s.GetParent(ctx, "d1_0")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "d1_p0", got.ID)
	assert.True(t, got.IsParent)

	// Chunk without a parent
	orphan := &Chunk{ID: "d1_1", DocumentID: "d1", UserID: "u1", Position: 1, Content: "x"}
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{orphan}))
	got, err = s.GetParent(ctx, "d1_1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListChunksByUserOnlyReadyNonParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ready := testDoc("d1", "u1")
	require.NoError(t, s.SaveDocument(ctx, ready))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d1", "u1", 2)))
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{{
		ID: "d1_p0", DocumentID: "d1", UserID: "u1", Position: 100,
		Content: "parent", IsParent: true,
	}}))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "d1", StatusReady, ""))

	pending := testDoc("d2", "u1")
	require.NoError(t, s.SaveDocument(ctx, pending))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d2", "u1", 2)))

	chunks, err := s.ListChunksByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, "d1", c.DocumentID)
		assert.False(t, c.IsParent)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d1", "u1", 2)))
	require.NoError(t, s.SavePropositions(ctx, []*Proposition{
		{ID: "p1", ChunkID: chunkID("d1", 0), DocumentID: "d1", UserID: "u1", Content: "fact"},
	}))
	require.NoError(t, s.SaveTriples(ctx, []*Triple{
		{ID: "t1", ChunkID: chunkID("d1", 0), DocumentID: "d1", UserID: "u1",
			Subject: "sql", Predicate: "is_a", Object: "language", Confidence: 0.9},
	}))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "d1", StatusReady, ""))

	v1, _ := s.DocSetVersion(ctx, "u1")

	chunkIDs, err := s.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, chunkIDs, 2)

	_, err = s.GetDocument(ctx, "d1")
	require.Error(t, err)

	props, err := s.PropositionsByChunk(ctx, chunkID("d1", 0))
	require.NoError(t, err)
	assert.Empty(t, props)

	triples, err := s.TriplesByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, triples)

	v2, _ := s.DocSetVersion(ctx, "u1")
	assert.Equal(t, v1+1, v2)
}

func TestSaveTriplesDeduplicatesPerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Triple{ID: "t1", ChunkID: "d1_0", DocumentID: "d1", UserID: "u1",
		Subject: "b-tree", Predicate: "is_a", Object: "index", Confidence: 0.9}
	require.NoError(t, s.SaveTriples(ctx, []*Triple{first}))

	// The same fact restated in another document of the same user is
	// dropped; another user's identical fact is independent.
	dup := &Triple{ID: "t2", ChunkID: "d2_0", DocumentID: "d2", UserID: "u1",
		Subject: "b-tree", Predicate: "is_a", Object: "index", Confidence: 0.7}
	other := &Triple{ID: "t3", ChunkID: "d3_0", DocumentID: "d3", UserID: "u2",
		Subject: "b-tree", Predicate: "is_a", Object: "index", Confidence: 0.8}
	require.NoError(t, s.SaveTriples(ctx, []*Triple{dup, other}))

	mine, err := s.TriplesByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "t1", mine[0].ID)

	theirs, err := s.TriplesByUser(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestDeleteDerivedKeepsDocumentRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	require.NoError(t, s.SaveChunks(ctx, testChunks("d1", "u1", 2)))
	require.NoError(t, s.SavePropositions(ctx, []*Proposition{
		{ID: "p1", ChunkID: chunkID("d1", 0), DocumentID: "d1", UserID: "u1", Content: "fact"},
	}))
	require.NoError(t, s.SaveTriples(ctx, []*Triple{
		{ID: "t1", ChunkID: chunkID("d1", 0), DocumentID: "d1", UserID: "u1",
			Subject: "sql", Predicate: "is_a", Object: "language", Confidence: 0.9},
	}))

	require.NoError(t, s.DeleteDerived(ctx, "d1"))

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, doc.Status)

	_, err = s.GetChunk(ctx, chunkID("d1", 0))
	require.Error(t, err)

	props, err := s.PropositionsByChunk(ctx, chunkID("d1", 0))
	require.NoError(t, err)
	assert.Empty(t, props)

	triples, err := s.TriplesByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, triples)
}

func TestFeedbackStatsAndWeakDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))

	feedback := []*Feedback{
		{ID: "f1", UserID: "u1", Query: "q1", Rating: 1, DocumentIDs: []string{"d1"}},
		{ID: "f2", UserID: "u1", Query: "q2", Rating: -1, DocumentIDs: []string{"d1"}},
		{ID: "f3", UserID: "u1", Query: "q3", Rating: -1, DocumentIDs: []string{"d1", "d2"}},
		{ID: "f4", UserID: "u2", Query: "q4", Rating: -1, DocumentIDs: []string{"d1"}},
	}
	for _, fb := range feedback {
		require.NoError(t, s.SaveFeedback(ctx, fb))
	}

	stats, err := s.GetFeedbackStats(ctx, "u1", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Positive)
	assert.Equal(t, 2, stats.Negative)
	assert.InDelta(t, 1.0/3.0, stats.SatisfactionRate, 0.001)

	weak, err := s.WeakDocuments(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, weak, 1)
	assert.Equal(t, "d1", weak[0].DocumentID)
	assert.Equal(t, 2, weak[0].NegativeCount)
	assert.Equal(t, "Intro to Databases", weak[0].Title)

	neg, err := s.NegativeDocumentIDs(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, neg["d1"])
	assert.Equal(t, 1, neg["d2"])
}

func TestReapStuck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "u1")))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "d1", StatusProcessing, ""))

	// Cutoff in the future: everything processing is stuck
	ids, err := s.ReapStuck(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, []string{"d1"}, ids)

	doc, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, doc.Status)
	assert.Equal(t, "processing timed out", doc.FailureReason)

	// Cutoff in the past: nothing to reap
	require.NoError(t, s.SaveDocument(ctx, testDoc("d2", "u1")))
	require.NoError(t, s.UpdateDocumentStatus(ctx, "d2", StatusProcessing, ""))
	ids, err = s.ReapStuck(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDirLock(t *testing.T) {
	dir := t.TempDir()

	l1, err := AcquireDirLock(dir)
	require.NoError(t, err)

	_, err = AcquireDirLock(dir)
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeStoreLocked, acerrors.GetCode(err))

	require.NoError(t, l1.Release())

	l2, err := AcquireDirLock(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
