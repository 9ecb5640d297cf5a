// Package config loads and validates Academe configuration.
//
// Configuration hierarchy (later overrides earlier):
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (~/.academe/config.yaml or --config path)
//  3. Environment variables (ACADEME_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete Academe configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Ingest    IngestConfig    `yaml:"ingest" json:"ingest"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Rerank    RerankConfig    `yaml:"rerank" json:"rerank"`
	Answer    AnswerConfig    `yaml:"answer" json:"answer"`
	Watcher   WatcherConfig   `yaml:"watcher" json:"watcher"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// StorageConfig configures the on-disk data directory.
type StorageConfig struct {
	// DataDir holds the SQLite database and the directory lock.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// MaxDocumentBytes rejects uploads larger than this (default: 20MB).
	MaxDocumentBytes int64 `yaml:"max_document_bytes" json:"max_document_bytes"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Workers is the size of the ingestion worker pool.
	Workers int `yaml:"workers" json:"workers"`
	// QueueSize bounds pending ingestion jobs; submissions beyond it are
	// rejected with Busy.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// EmbedBatchBytes caps the byte size of one embedding batch.
	EmbedBatchBytes int `yaml:"embed_batch_bytes" json:"embed_batch_bytes"`
	// Propositions enables LLM proposition extraction for dense chunks.
	Propositions bool `yaml:"propositions" json:"propositions"`
	// KnowledgeGraph enables LLM triple extraction.
	KnowledgeGraph bool `yaml:"knowledge_graph" json:"knowledge_graph"`
	// StuckTimeout marks processing documents failed after this duration.
	StuckTimeout time.Duration `yaml:"stuck_timeout" json:"stuck_timeout"`
}

// RetrievalConfig configures hybrid retrieval.
type RetrievalConfig struct {
	// TopK is the number of chunks returned to the orchestrator.
	TopK int `yaml:"top_k" json:"top_k"`
	// CandidateK is the per-signal candidate list size before fusion.
	CandidateK int `yaml:"candidate_k" json:"candidate_k"`
	// LexicalWeight and VectorWeight are the default fusion weights.
	// They must sum to 1.0. Query-type overrides are fixed in code.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	// ScoreThreshold drops fused results below this score.
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold"`
	// Timeout bounds one retrieval pass.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxLexicalIndexes bounds resident per-user lexical indexes (LRU).
	MaxLexicalIndexes int `yaml:"max_lexical_indexes" json:"max_lexical_indexes"`
}

// CacheConfig configures the semantic response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Capacity is the per-user entry limit; oldest entries are evicted.
	Capacity int `yaml:"capacity" json:"capacity"`
	// SimilarityThreshold is the minimum cosine similarity for a hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	// TTL expires entries regardless of doc set version.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama" or "static". Empty auto-detects: Ollama, then static.
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// LLMConfig configures the generation model client.
type LLMConfig struct {
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	// MaxConcurrent bounds in-flight LLM calls; beyond it callers get
	// Overloaded.
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent"`
}

// RerankConfig configures the cross-encoder reranker.
type RerankConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Endpoint is a TEI-style /rerank HTTP service. Empty disables the
	// remote reranker and uses keyword-overlap scoring.
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// AnswerConfig configures the answer orchestrator.
type AnswerConfig struct {
	// Timeout bounds one Answer call end to end.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// MaxSelfRAGIterations caps retrieve-assess-reformulate loops.
	MaxSelfRAGIterations int `yaml:"max_self_rag_iterations" json:"max_self_rag_iterations"`
	// MultiQueryVariants is the number of query phrasings searched (incl. original).
	MultiQueryVariants int `yaml:"multi_query_variants" json:"multi_query_variants"`
	// Decompose enables complex-question decomposition.
	Decompose bool `yaml:"decompose" json:"decompose"`
}

// WatcherConfig configures the uploads drop-box watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir is the watched directory; files dropped here are ingested for
	// the user named by the first path segment.
	Dir      string        `yaml:"dir" json:"dir"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir:          defaultDataDir(),
			MaxDocumentBytes: 20 * 1024 * 1024,
		},
		Ingest: IngestConfig{
			Workers:         4,
			QueueSize:       32,
			EmbedBatchBytes: 64 * 1024,
			Propositions:    true,
			KnowledgeGraph:  true,
			StuckTimeout:    10 * time.Minute,
		},
		Retrieval: RetrievalConfig{
			TopK:              5,
			CandidateK:        20,
			LexicalWeight:     0.3,
			VectorWeight:      0.7,
			ScoreThreshold:    0.2,
			Timeout:           5 * time.Second,
			MaxLexicalIndexes: 64,
		},
		Cache: CacheConfig{
			Enabled:             true,
			Capacity:            256,
			SimilarityThreshold: 0.95,
			TTL:                 time.Hour,
		},
		Embedding: EmbeddingConfig{
			Provider:   "", // auto-detect: Ollama, then static fallback
			Model:      "nomic-embed-text",
			Dimensions: 768,
			BatchSize:  32,
			OllamaHost: "", // empty uses http://localhost:11434
			CacheSize:  1000,
		},
		LLM: LLMConfig{
			Model:         "llama3.2",
			OllamaHost:    "",
			Timeout:       60 * time.Second,
			MaxConcurrent: 8,
		},
		Rerank: RerankConfig{
			Enabled:  true,
			Endpoint: "",
			Timeout:  3 * time.Second,
		},
		Answer: AnswerConfig{
			Timeout:              30 * time.Second,
			MaxSelfRAGIterations: 2,
			MultiQueryVariants:   3,
			Decompose:            true,
		},
		Watcher: WatcherConfig{
			Enabled:  false,
			Dir:      "",
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:     "info",
			FilePath:  "",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// defaultDataDir returns the default data directory (~/.academe/data).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".academe", "data")
	}
	return filepath.Join(home, ".academe", "data")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".academe", "config.yaml")
	}
	return filepath.Join(home, ".academe", "config.yaml")
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	sum := c.Retrieval.LexicalWeight + c.Retrieval.VectorWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("retrieval weights must sum to 1.0, got %.3f", sum)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.CandidateK < c.Retrieval.TopK {
		return fmt.Errorf("retrieval.candidate_k (%d) must be >= top_k (%d)",
			c.Retrieval.CandidateK, c.Retrieval.TopK)
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in [0,1], got %.3f",
			c.Cache.SimilarityThreshold)
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	}
	if c.Answer.MaxSelfRAGIterations < 0 {
		return fmt.Errorf("answer.max_self_rag_iterations must be >= 0, got %d",
			c.Answer.MaxSelfRAGIterations)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	return nil
}
