package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/embed"
	acerrors "github.com/academe-ai/academe/internal/errors"
	"github.com/academe-ai/academe/internal/kg"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/vector"
)

// lexicalInvalidator is the slice of the lexical manager the pipeline
// needs: dropping a user's index after their document set changes.
type lexicalInvalidator interface {
	Invalidate(userID string)
}

// job is one queued ingestion unit.
type job struct {
	docID   string
	content string
}

// Service runs the ingestion pipeline: a bounded queue feeding a fixed
// worker pool, with a reaper for documents stuck in processing.
type Service struct {
	cfg          config.IngestConfig
	maxDocBytes  int64
	chunks       store.ChunkStore
	vectors      vector.Index
	embedder     embed.Embedder
	lexical      lexicalInvalidator
	propositions *PropositionExtractor
	triples      *kg.Extractor
	logger       *slog.Logger

	queue   chan job
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// Option configures the service.
type Option func(*Service)

// WithPropositionExtractor enables proposition extraction.
func WithPropositionExtractor(p *PropositionExtractor) Option {
	return func(s *Service) { s.propositions = p }
}

// WithTripleExtractor enables knowledge-graph extraction.
func WithTripleExtractor(e *kg.Extractor) Option {
	return func(s *Service) { s.triples = e }
}

// WithMaxDocumentBytes overrides the upload size limit.
func WithMaxDocumentBytes(n int64) Option {
	return func(s *Service) { s.maxDocBytes = n }
}

// NewService creates the ingestion service. Call Start before
// submitting uploads.
func NewService(cfg config.IngestConfig, chunks store.ChunkStore, vectors vector.Index,
	embedder embed.Embedder, lex lexicalInvalidator, logger *slog.Logger, opts ...Option) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.EmbedBatchBytes <= 0 {
		cfg.EmbedBatchBytes = 64 * 1024
	}
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:         cfg,
		maxDocBytes: 20 * 1024 * 1024,
		chunks:      chunks,
		vectors:     vectors,
		embedder:    embedder,
		lexical:     lex,
		logger:      logger,
		queue:       make(chan job, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool and the stuck-document reaper. The
// context bounds the lifetime of both.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	s.wg.Add(1)
	go s.reaper(ctx)
}

// Stop drains the queue and waits for in-flight jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

// Upload registers a document and queues it for processing. Returns
// the document ID immediately; processing is asynchronous. A full
// queue rejects the upload rather than blocking the caller.
func (s *Service) Upload(ctx context.Context, userID, title, sourcePath, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", acerrors.InputError("document content is empty", nil)
	}
	if int64(len(content)) > s.maxDocBytes {
		return "", acerrors.New(acerrors.ErrCodeDocumentTooLarge,
			fmt.Sprintf("document is %d bytes, limit is %d", len(content), s.maxDocBytes), nil)
	}
	if userID == "" {
		return "", acerrors.InputError("user ID is required", nil)
	}
	if title == "" {
		title = "Untitled"
	}

	doc := &store.Document{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		SourcePath: sourcePath,
		DocType:    DetectDocType(sourcePath, content),
		Status:     store.StatusPending,
		SizeBytes:  int64(len(content)),
	}
	if err := s.chunks.SaveDocument(ctx, doc); err != nil {
		return "", err
	}

	select {
	case s.queue <- job{docID: doc.ID, content: content}:
	default:
		// Leave the document failed rather than pending forever.
		_ = s.chunks.UpdateDocumentStatus(ctx, doc.ID, store.StatusFailed, "ingestion queue full")
		return "", acerrors.BusyError("ingestion queue is full, retry shortly")
	}

	s.logger.Info("document_queued",
		"doc_id", doc.ID,
		"user_id", userID,
		"doc_type", doc.DocType,
		"size_bytes", doc.SizeBytes)
	return doc.ID, nil
}

// Status returns the document's current lifecycle state.
func (s *Service) Status(ctx context.Context, docID string) (*store.Document, error) {
	return s.chunks.GetDocument(ctx, docID)
}

// Delete removes a document, its chunks, and their vectors, then
// invalidates the owner's lexical index.
func (s *Service) Delete(ctx context.Context, docID string) error {
	doc, err := s.chunks.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	chunkIDs, err := s.chunks.DeleteDocument(ctx, docID)
	if err != nil {
		return err
	}
	if len(chunkIDs) > 0 {
		if err := s.vectors.Delete(ctx, doc.UserID, chunkIDs); err != nil {
			s.logger.Warn("vector_delete_failed", "doc_id", docID, "error", err)
		}
	}
	if s.lexical != nil {
		s.lexical.Invalidate(doc.UserID)
	}
	s.logger.Info("document_deleted", "doc_id", docID, "chunks", len(chunkIDs))
	return nil
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.queue:
			if !ok {
				return
			}
			s.process(ctx, j)
		}
	}
}

// process runs the full pipeline for one document. Any failure marks
// the document failed and rolls back its vectors.
func (s *Service) process(ctx context.Context, j job) {
	start := time.Now()
	if err := s.chunks.UpdateDocumentStatus(ctx, j.docID, store.StatusProcessing, ""); err != nil {
		s.logger.Error("ingest_status_update_failed", "doc_id", j.docID, "error", err)
		return
	}

	doc, err := s.chunks.GetDocument(ctx, j.docID)
	if err != nil {
		s.fail(ctx, j.docID, nil, err)
		return
	}

	chunks := ChunkDocument(doc, j.content)
	if len(chunks) == 0 {
		s.fail(ctx, j.docID, nil, acerrors.InputError("document produced no chunks", nil))
		return
	}
	if err := s.chunks.SaveChunks(ctx, chunks); err != nil {
		s.fail(ctx, j.docID, nil, err)
		return
	}

	children := make([]*store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !c.IsParent {
			children = append(children, c)
		}
	}

	embedded, err := s.embedChunks(ctx, doc.UserID, children)
	if err != nil {
		s.fail(ctx, j.docID, embedded, err)
		return
	}

	if s.propositions != nil && s.cfg.Propositions {
		s.extractPropositions(ctx, children)
	}
	if s.triples != nil && s.cfg.KnowledgeGraph {
		s.extractTriples(ctx, children)
	}

	if err := s.chunks.UpdateDocumentStatus(ctx, j.docID, store.StatusReady, ""); err != nil {
		s.fail(ctx, j.docID, embedded, err)
		return
	}
	if s.lexical != nil {
		s.lexical.Invalidate(doc.UserID)
	}

	s.logger.Info("document_ready",
		"doc_id", j.docID,
		"user_id", doc.UserID,
		"chunks", len(children),
		"duration_ms", time.Since(start).Milliseconds())
}

// embedChunks embeds children in byte-bounded batches and upserts the
// vectors. Returns the IDs already upserted so failures can roll back.
func (s *Service) embedChunks(ctx context.Context, userID string, children []*store.Chunk) ([]string, error) {
	var done []string
	var batch []*store.Chunk
	batchBytes := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = EnrichForEmbedding(c)
			ids[i] = c.ID
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if err := s.vectors.Upsert(ctx, userID, ids, vectors); err != nil {
			return err
		}
		done = append(done, ids...)
		batch = nil
		batchBytes = 0
		return nil
	}

	for _, c := range children {
		if batchBytes > 0 && batchBytes+len(c.Content) > s.cfg.EmbedBatchBytes {
			if err := flush(); err != nil {
				return done, err
			}
		}
		batch = append(batch, c)
		batchBytes += len(c.Content)
	}
	if err := flush(); err != nil {
		return done, err
	}
	return done, nil
}

func (s *Service) extractPropositions(ctx context.Context, children []*store.Chunk) {
	var props []*store.Proposition
	for _, c := range children {
		props = append(props, s.propositions.Extract(ctx, *c)...)
	}
	if len(props) == 0 {
		return
	}
	if err := s.chunks.SavePropositions(ctx, props); err != nil {
		s.logger.Warn("proposition_save_failed", "error", err)
	}
}

func (s *Service) extractTriples(ctx context.Context, children []*store.Chunk) {
	var triples []*store.Triple
	for _, c := range children {
		for _, t := range s.triples.Extract(ctx, *c) {
			t.ID = uuid.NewString()
			tc := t
			triples = append(triples, &tc)
		}
	}
	if len(triples) == 0 {
		return
	}
	if err := s.chunks.SaveTriples(ctx, triples); err != nil {
		s.logger.Warn("triple_save_failed", "error", err)
	}
}

// fail marks the document failed and removes everything derived from
// it: upserted vectors plus any chunk, proposition, and triple rows,
// so partial documents never surface in retrieval.
func (s *Service) fail(ctx context.Context, docID string, upserted []string, cause error) {
	s.logger.Error("document_failed", "doc_id", docID, "error", cause)
	if len(upserted) > 0 {
		doc, err := s.chunks.GetDocument(ctx, docID)
		if err == nil {
			if derr := s.vectors.Delete(ctx, doc.UserID, upserted); derr != nil {
				s.logger.Warn("vector_rollback_failed", "doc_id", docID, "error", derr)
			}
		}
	}
	if err := s.chunks.DeleteDerived(ctx, docID); err != nil {
		s.logger.Warn("chunk_rollback_failed", "doc_id", docID, "error", err)
	}
	if err := s.chunks.UpdateDocumentStatus(ctx, docID, store.StatusFailed, cause.Error()); err != nil {
		s.logger.Error("ingest_status_update_failed", "doc_id", docID, "error", err)
	}
}

// reaper periodically fails documents stuck in processing, e.g. after
// a crashed worker or an earlier unclean shutdown.
func (s *Service) reaper(ctx context.Context) {
	defer s.wg.Done()
	interval := s.cfg.StuckTimeout / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.StuckTimeout)
			ids, err := s.chunks.ReapStuck(ctx, cutoff)
			if err != nil {
				s.logger.Warn("reap_stuck_failed", "error", err)
				continue
			}
			for _, id := range ids {
				s.logger.Warn("document_reaped", "doc_id", id)
			}
		}
	}
}

// EnrichForEmbedding prefixes chunk content with its document and
// section context so the embedding captures where the text lives.
func EnrichForEmbedding(c *store.Chunk) string {
	switch {
	case c.DocTitle != "" && c.SectionTitle != "":
		return fmt.Sprintf("Document: %s | Section: %s\n\n%s", c.DocTitle, c.SectionTitle, c.Content)
	case c.DocTitle != "":
		return fmt.Sprintf("Document: %s\n\n%s", c.DocTitle, c.Content)
	default:
		return c.Content
	}
}
