package embed

import (
	"context"
	"log/slog"

	"github.com/academe-ai/academe/internal/config"
)

// New builds the embedder stack from configuration: provider selection,
// then an LRU cache wrapper.
//
// Provider "" auto-detects: Ollama when reachable, static otherwise.
// The static fallback keeps ingestion and retrieval functional offline
// at reduced semantic quality.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) Embedder {
	var inner Embedder

	switch cfg.Provider {
	case "static":
		inner = NewStaticEmbedder()
	case "ollama":
		inner = newOllamaFromConfig(cfg)
	default:
		ollama := newOllamaFromConfig(cfg)
		if ollama.Available(ctx) {
			inner = ollama
		} else {
			logger.Warn("embedder_fallback",
				slog.String("reason", "ollama unreachable"),
				slog.String("provider", "static"))
			_ = ollama.Close()
			inner = NewStaticEmbedder()
		}
	}

	logger.Info("embedder_ready",
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))

	return NewCachedEmbedder(inner, cfg.CacheSize)
}

func newOllamaFromConfig(cfg config.EmbeddingConfig) *OllamaEmbedder {
	oc := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		oc.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		oc.Model = cfg.Model
	}
	if cfg.Dimensions > 0 {
		oc.Dimensions = cfg.Dimensions
	}
	return NewOllamaEmbedder(oc)
}
