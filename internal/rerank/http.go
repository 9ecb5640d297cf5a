package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// HTTPConfig configures the cross-encoder client.
type HTTPConfig struct {
	// Endpoint is the base URL of a TEI-style reranking service
	// exposing POST /rerank.
	Endpoint string
	Timeout  time.Duration
}

// HTTPReranker calls a remote cross-encoder. Failures open a circuit
// breaker; callers fall back to the keyword reranker.
type HTTPReranker struct {
	client  *http.Client
	config  HTTPConfig
	breaker *acerrors.CircuitBreaker
}

// Compile-time interface check.
var _ Reranker = (*HTTPReranker)(nil)

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewHTTPReranker creates a cross-encoder client.
func NewHTTPReranker(cfg HTTPConfig) *HTTPReranker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &HTTPReranker{
		client: &http.Client{},
		config: cfg,
		breaker: acerrors.NewCircuitBreaker("reranker",
			acerrors.WithMaxFailures(3),
			acerrors.WithResetTimeout(30*time.Second)),
	}
}

// Rerank scores all candidates against the query in one call.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []Document) ([]Score, error) {
	if len(docs) == 0 {
		return []Score{}, nil
	}

	return acerrors.CircuitExecuteWithResult(r.breaker,
		func() ([]Score, error) {
			return r.doRerank(ctx, query, docs)
		},
		func() ([]Score, error) {
			return nil, acerrors.UnavailableError("reranker circuit open", acerrors.ErrCircuitOpen)
		})
}

func (r *HTTPReranker) doRerank(ctx context.Context, query string, docs []Document) ([]Score, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, acerrors.TimeoutError("rerank request timed out", err)
		}
		return nil, acerrors.UnavailableError("reranker unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, acerrors.UnavailableError(
			fmt.Sprintf("reranker returned status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, acerrors.Wrap(acerrors.ErrCodeInvalidResponse, err)
	}

	scores := make([]Score, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, acerrors.New(acerrors.ErrCodeInvalidResponse,
				fmt.Sprintf("rerank index %d out of range", res.Index), nil)
		}
		scores = append(scores, Score{ID: docs[res.Index].ID, Score: res.Score})
	}

	sortScoresDesc(scores)
	return scores, nil
}

// Available probes the service health endpoint.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
