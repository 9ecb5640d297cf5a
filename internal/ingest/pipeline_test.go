package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/embed"
	acerrors "github.com/academe-ai/academe/internal/errors"
	"github.com/academe-ai/academe/internal/kg"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/vector"
)

type fakeInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type ingestEnv struct {
	service *Service
	chunks  store.ChunkStore
	vectors vector.Index
	lex     *fakeInvalidator
}

func newIngestEnv(t *testing.T, cfg config.IngestConfig) *ingestEnv {
	t.Helper()
	chunks, err := store.NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunks.Close() })

	embedder := embed.NewStaticEmbedder()
	vectors := vector.NewHNSWIndex(vector.DefaultConfig(embedder.Dimensions()))
	lex := &fakeInvalidator{}

	svc := NewService(cfg, chunks, vectors, embedder, lex, nil)
	return &ingestEnv{service: svc, chunks: chunks, vectors: vectors, lex: lex}
}

// waitForStatus polls until the document leaves pending/processing.
func waitForStatus(t *testing.T, chunks store.ChunkStore, docID string) *store.Document {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := chunks.GetDocument(context.Background(), docID)
		require.NoError(t, err)
		if doc.Status == store.StatusReady || doc.Status == store.StatusFailed {
			return doc
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("document never finished processing")
	return nil
}

func TestUploadProcessesToReady(t *testing.T) {
	env := newIngestEnv(t, config.IngestConfig{Workers: 2, QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.service.Start(ctx)
	defer env.service.Stop()

	content := strings.Repeat("Indexes accelerate lookups at the cost of writes. ", 60)
	docID, err := env.service.Upload(ctx, "u1", "DB Notes", "", content)
	require.NoError(t, err)

	doc := waitForStatus(t, env.chunks, docID)
	assert.Equal(t, store.StatusReady, doc.Status)

	// Chunks persisted and vectors indexed.
	chunks, err := env.chunks.ListChunksByUser(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, len(chunks), env.vectors.Count("u1"))

	// Lexical index invalidated for the owner.
	assert.Greater(t, env.lex.count(), 0)

	// Doc set version advanced.
	version, err := env.chunks.DocSetVersion(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestUploadRejectsEmptyAndOversized(t *testing.T) {
	env := newIngestEnv(t, config.IngestConfig{})

	_, err := env.service.Upload(context.Background(), "u1", "t", "", "   ")
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeInvalidInput, acerrors.GetCode(err))

	env.service.maxDocBytes = 10
	_, err = env.service.Upload(context.Background(), "u1", "t", "", "well over ten bytes of content")
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeDocumentTooLarge, acerrors.GetCode(err))
}

func TestUploadBusyWhenQueueFull(t *testing.T) {
	// No workers started: the queue only drains on Start.
	env := newIngestEnv(t, config.IngestConfig{Workers: 1, QueueSize: 1})

	_, err := env.service.Upload(context.Background(), "u1", "a", "", "first document content")
	require.NoError(t, err)

	docID, err := env.service.Upload(context.Background(), "u1", "b", "", "second document content")
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeIngestBusy, acerrors.GetCode(err))
	assert.Empty(t, docID)
}

func TestDeleteRemovesChunksAndVectors(t *testing.T) {
	env := newIngestEnv(t, config.IngestConfig{Workers: 1, QueueSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.service.Start(ctx)
	defer env.service.Stop()

	content := strings.Repeat("Normalization reduces redundancy in relational schemas. ", 40)
	docID, err := env.service.Upload(ctx, "u1", "Normalization", "", content)
	require.NoError(t, err)
	waitForStatus(t, env.chunks, docID)
	require.Greater(t, env.vectors.Count("u1"), 0)

	require.NoError(t, env.service.Delete(ctx, docID))

	assert.Equal(t, 0, env.vectors.Count("u1"))
	_, err = env.chunks.GetDocument(ctx, docID)
	assert.Equal(t, acerrors.ErrCodeDocumentNotFound, acerrors.GetCode(err))
}

func TestProcessExtractsPropositionsAndTriples(t *testing.T) {
	env := newIngestEnv(t, config.IngestConfig{
		Workers: 1, QueueSize: 4, Propositions: true, KnowledgeGraph: true,
	})
	// Rebuild service with extractors wired; nil LLM clients force the
	// deterministic fallbacks.
	env.service = NewService(
		config.IngestConfig{Workers: 1, QueueSize: 4, Propositions: true, KnowledgeGraph: true},
		env.chunks, env.vectors, embed.NewStaticEmbedder(), env.lex, nil,
		WithPropositionExtractor(NewPropositionExtractor(nil, nil)),
		WithTripleExtractor(kg.NewExtractor(nil, nil)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.service.Start(ctx)
	defer env.service.Stop()

	docID, err := env.service.Upload(ctx, "u1", "Facts", "",
		"A B-Tree is a balanced search structure that databases rely on for indexes.")
	require.NoError(t, err)
	doc := waitForStatus(t, env.chunks, docID)
	require.Equal(t, store.StatusReady, doc.Status)

	chunks, err := env.chunks.ListChunksByUser(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	props, err := env.chunks.PropositionsByChunk(ctx, chunks[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, props)
}

type failingEmbedder struct{ embed.Embedder }

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding backend down")
}

func TestFailedIngestRollsBackChunkRows(t *testing.T) {
	env := newIngestEnv(t, config.IngestConfig{Workers: 1, QueueSize: 4})
	env.service = NewService(config.IngestConfig{Workers: 1, QueueSize: 4},
		env.chunks, env.vectors, &failingEmbedder{embed.NewStaticEmbedder()}, env.lex, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.service.Start(ctx)
	defer env.service.Stop()

	content := strings.Repeat("Transactions preserve atomicity across failures. ", 40)
	docID, err := env.service.Upload(ctx, "u1", "Tx Notes", "", content)
	require.NoError(t, err)

	doc := waitForStatus(t, env.chunks, docID)
	assert.Equal(t, store.StatusFailed, doc.Status)
	assert.NotEmpty(t, doc.FailureReason)

	// Neither chunk rows nor vectors survive the failure.
	rows, err := env.chunks.GetChunks(ctx, []string{docID + "_0"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 0, env.vectors.Count("u1"))
}

func TestEnrichForEmbedding(t *testing.T) {
	c := &store.Chunk{Content: "body", DocTitle: "Book", SectionTitle: "Trees"}
	assert.Equal(t, "Document: Book | Section: Trees\n\nbody", EnrichForEmbedding(c))

	c.SectionTitle = ""
	assert.Equal(t, "Document: Book\n\nbody", EnrichForEmbedding(c))

	c.DocTitle = ""
	assert.Equal(t, "body", EnrichForEmbedding(c))
}

func TestReaperFailsStuckDocuments(t *testing.T) {
	env := newIngestEnv(t, config.IngestConfig{})
	ctx := context.Background()

	doc := &store.Document{ID: "stuck", UserID: "u1", Title: "t", DocType: store.DocTypeGeneral, Status: store.StatusPending}
	require.NoError(t, env.chunks.SaveDocument(ctx, doc))
	require.NoError(t, env.chunks.UpdateDocumentStatus(ctx, "stuck", store.StatusProcessing, ""))

	ids, err := env.chunks.ReapStuck(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Contains(t, ids, "stuck")

	got, err := env.chunks.GetDocument(ctx, "stuck")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
}
