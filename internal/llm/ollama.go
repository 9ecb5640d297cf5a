package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// DefaultOllamaHost is the standard local Ollama endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures the Ollama generation client.
type OllamaConfig struct {
	Host    string
	Model   string
	Timeout time.Duration
	// Temperature for generation. Zero keeps the model default.
	Temperature float64
}

// DefaultOllamaConfig returns the standard configuration.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:    DefaultOllamaHost,
		Model:   "llama3.2",
		Timeout: 60 * time.Second,
	}
}

// OllamaClient calls Ollama's /api/generate endpoint.
// A circuit breaker fails fast after repeated backend failures instead
// of stacking timed-out requests.
type OllamaClient struct {
	client  *http.Client
	config  OllamaConfig
	breaker *acerrors.CircuitBreaker
}

// Compile-time interface check.
var _ Client = (*OllamaClient)(nil)

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates an Ollama-backed LLM client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &OllamaClient{
		client: &http.Client{Transport: transport},
		config: cfg,
		breaker: acerrors.NewCircuitBreaker("ollama-generate",
			acerrors.WithMaxFailures(5),
			acerrors.WithResetTimeout(30*time.Second)),
	}
}

// Complete returns the model's completion for the prompt.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := acerrors.CircuitExecuteWithResult(c.breaker,
		func() (string, error) {
			return c.doGenerate(ctx, prompt)
		},
		func() (string, error) {
			return "", acerrors.UnavailableError("llm circuit open", acerrors.ErrCircuitOpen)
		})
	return result, err
}

func (c *OllamaClient) doGenerate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Stream: false,
	}
	if c.config.Temperature > 0 {
		reqBody.Options = map[string]any{"temperature": c.config.Temperature}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "context deadline exceeded") {
			return "", acerrors.TimeoutError("llm request timed out", err)
		}
		return "", acerrors.UnavailableError("llm unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusTooManyRequests {
			return "", acerrors.New(acerrors.ErrCodeRateLimited, "llm rate limited", nil)
		}
		return "", acerrors.UnavailableError(
			fmt.Sprintf("llm returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var apiResult generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return "", acerrors.Wrap(acerrors.ErrCodeInvalidResponse, err)
	}
	return apiResult.Response, nil
}

// Available checks if Ollama responds on the configured host.
func (c *OllamaClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (c *OllamaClient) Close() error {
	if t, ok := c.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
