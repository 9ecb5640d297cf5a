// Package embed generates text embeddings. The primary provider is
// Ollama; a deterministic hash-based embedder serves as the offline
// fallback so ingestion and retrieval keep working without a model.
package embed

import (
	"context"
	"math"
	"unicode/utf8"
)

// Dimensions of the default embedding space. Both the Ollama default
// model (nomic-embed-text) and the static fallback produce 768 dims, so
// either can back the same vector index.
const DefaultDimensions = 768

// MaxTextBytes caps embedding input. Longer inputs are truncated at a
// UTF-8 boundary rather than rejected.
const MaxTextBytes = 8 * 1024

// Embedder generates embeddings for text.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Available checks if the embedder is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// Truncate caps text at MaxTextBytes, cutting at a UTF-8 rune boundary
// so the result is always valid UTF-8.
func Truncate(text string) string {
	if len(text) <= MaxTextBytes {
		return text
	}
	cut := MaxTextBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// CosineSimilarity computes cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
