package cmd

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/academe-ai/academe/internal/answer"
	"github.com/academe-ai/academe/internal/cache"
	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/embed"
	"github.com/academe-ai/academe/internal/ingest"
	"github.com/academe-ai/academe/internal/kg"
	"github.com/academe-ai/academe/internal/lexical"
	"github.com/academe-ai/academe/internal/llm"
	"github.com/academe-ai/academe/internal/rerank"
	"github.com/academe-ai/academe/internal/retrieve"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/telemetry"
	"github.com/academe-ai/academe/internal/vector"
)

// app holds the wired application components. Build it once per
// command invocation and Close it when done.
type app struct {
	cfg          *config.Config
	lock         *store.DirLock
	store        *store.SQLiteStore
	vectors      *vector.HNSWIndex
	embedder     embed.Embedder
	llm          llm.Client
	lexical      *lexical.Manager
	retriever    *retrieve.Retriever
	orchestrator *answer.Orchestrator
	ingest       *ingest.Service
	metrics      *telemetry.Metrics
	logger       *slog.Logger
}

// buildApp wires the full stack from configuration. Vector snapshots
// from previous runs are restored from the data directory.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// One process per data directory: the in-memory vector and lexical
	// indexes cannot be shared.
	lock, err := store.AcquireDirLock(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Storage.DataDir)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	embedder := embed.New(ctx, cfg.Embedding, logger)

	vectors := vector.NewHNSWIndex(vector.DefaultConfig(embedder.Dimensions()))
	if err := vectors.LoadDir(vectorsDir(cfg)); err != nil {
		logger.Warn("vector_snapshot_load_failed", slog.String("error", err.Error()))
	}

	llmClient := newLLMClient(cfg.LLM)

	lex, err := lexical.NewManager(st,
		lexical.WithMaxIndexes(cfg.Retrieval.MaxLexicalIndexes),
		lexical.WithLogger(logger))
	if err != nil {
		_ = st.Close()
		_ = embedder.Close()
		_ = llmClient.Close()
		_ = lock.Release()
		return nil, err
	}

	var rerankers []rerank.Reranker
	if cfg.Rerank.Enabled {
		if cfg.Rerank.Endpoint != "" {
			rerankers = append(rerankers, rerank.NewHTTPReranker(rerank.HTTPConfig{
				Endpoint: cfg.Rerank.Endpoint,
				Timeout:  cfg.Rerank.Timeout,
			}))
		}
		rerankers = append(rerankers, rerank.NewKeywordReranker())
	}

	classifier := retrieve.NewClassifier(llmClient)
	retriever := retrieve.NewRetriever(cfg.Retrieval, st, lex, vectors, embedder,
		rerankers, classifier, logger)

	var responseCache *cache.SemanticCache
	if cfg.Cache.Enabled {
		responseCache = cache.New(cache.Config{
			Capacity:            cfg.Cache.Capacity,
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
			TTL:                 cfg.Cache.TTL,
		})
	}

	orchestrator := answer.NewOrchestrator(cfg.Answer, cfg.Retrieval.TopK, st,
		retriever, llmClient, embedder, responseCache, logger)

	ingestOpts := []ingest.Option{
		ingest.WithMaxDocumentBytes(cfg.Storage.MaxDocumentBytes),
	}
	if cfg.Ingest.Propositions {
		ingestOpts = append(ingestOpts,
			ingest.WithPropositionExtractor(ingest.NewPropositionExtractor(llmClient, logger)))
	}
	if cfg.Ingest.KnowledgeGraph {
		ingestOpts = append(ingestOpts,
			ingest.WithTripleExtractor(kg.NewExtractor(llmClient, logger)))
	}
	ingestSvc := ingest.NewService(cfg.Ingest, st, vectors, embedder, lex, logger, ingestOpts...)

	return &app{
		cfg:          cfg,
		lock:         lock,
		store:        st,
		vectors:      vectors,
		embedder:     embedder,
		llm:          llmClient,
		lexical:      lex,
		retriever:    retriever,
		orchestrator: orchestrator,
		ingest:       ingestSvc,
		metrics:      telemetry.New(telemetry.Config{}),
		logger:       logger,
	}, nil
}

// newLLMClient builds the gated generation client.
func newLLMClient(cfg config.LLMConfig) llm.Client {
	oc := llm.DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		oc.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	if cfg.Timeout > 0 {
		oc.Timeout = cfg.Timeout
	}
	return llm.NewGated(llm.NewOllamaClient(oc), cfg.MaxConcurrent)
}

func vectorsDir(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, "vectors")
}

// snapshotVectors persists the in-memory vector graphs.
func (a *app) snapshotVectors() {
	if err := a.vectors.SaveDir(vectorsDir(a.cfg)); err != nil {
		a.logger.Warn("vector_snapshot_save_failed", slog.String("error", err.Error()))
	}
}

// Close snapshots vectors and releases all resources, the data
// directory lock last.
func (a *app) Close() error {
	a.snapshotVectors()
	_ = a.lexical.Close()
	_ = a.embedder.Close()
	_ = a.llm.Close()
	err := a.store.Close()
	if a.lock != nil {
		_ = a.lock.Release()
	}
	return err
}
