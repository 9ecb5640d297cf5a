package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// DefaultOllamaHost is the standard local Ollama endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int
	// Retry controls per-call retries. Zero value uses DefaultRetryConfig.
	Retry acerrors.RetryConfig
}

// DefaultOllamaConfig returns the standard configuration.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:       DefaultOllamaHost,
		Model:      "nomic-embed-text",
		Dimensions: DefaultDimensions,
		Retry:      acerrors.DefaultRetryConfig(),
	}
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig

	mu     sync.RWMutex
	closed bool
}

// Compile-time interface check.
var _ Embedder = (*OllamaEmbedder)(nil)

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama-backed embedder.
// No http.Client timeout is set; callers bound requests via context.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = acerrors.DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &OllamaEmbedder{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// Embed generates an embedding for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, acerrors.New(acerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected 1 embedding, got %d", len(vecs)), nil)
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts with retry.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = Truncate(t)
	}

	cfg := e.config.Retry
	cfg.OnlyRetryable = true
	return acerrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		return e.doEmbed(ctx, truncated)
	})
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	url := e.config.Host + "/api/embed"

	// Array input for batches, single string otherwise
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, acerrors.New(acerrors.ErrCodeRateLimited,
				"embedding service rate limited", nil)
		}
		return nil, acerrors.New(acerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var apiResult ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, acerrors.Wrap(acerrors.ErrCodeInvalidResponse, err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		return nil, acerrors.New(acerrors.ErrCodeInvalidResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(apiResult.Embeddings)), nil)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		if len(emb) != e.config.Dimensions {
			return nil, acerrors.New(acerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("model returned %d dimensions, expected %d", len(emb), e.config.Dimensions), nil)
		}
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

// mapTransportError classifies HTTP transport failures.
func mapTransportError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "Client.Timeout") {
		return acerrors.TimeoutError("embedding request timed out", err)
	}
	return acerrors.UnavailableError("embedding service unreachable", err)
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available checks if Ollama responds on the configured host.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if t, ok := e.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
