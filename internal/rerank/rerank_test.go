package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

func TestNoOpPreservesOrder(t *testing.T) {
	r := NewNoOpReranker()
	docs := []Document{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	scores, err := r.Rerank(context.Background(), "q", docs)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "a", scores[0].ID)
	assert.Equal(t, "c", scores[2].ID)
	assert.Greater(t, scores[0].Score, scores[1].Score)
}

func TestKeywordRerankBoostsOverlap(t *testing.T) {
	r := NewKeywordReranker()
	docs := []Document{
		{ID: "miss", Text: "unrelated content entirely", BaseScore: 0.5},
		{ID: "hit", Text: "B-tree indexes support range queries", BaseScore: 0.5},
	}

	scores, err := r.Rerank(context.Background(), "range queries indexes", docs)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "hit", scores[0].ID)
	// 3 matched terms: 0.5 + 3*0.05
	assert.InDelta(t, 0.65, scores[0].Score, 0.001)
	assert.InDelta(t, 0.5, scores[1].Score, 0.001)
}

func TestKeywordRerankSectionBoostAndCap(t *testing.T) {
	r := NewKeywordReranker()
	docs := []Document{
		{ID: "c1", Text: "normalization normalization", Section: "Normalization", BaseScore: 0.95},
	}

	scores, err := r.Rerank(context.Background(), "explain normalization", docs)
	require.NoError(t, err)
	// 0.95 + 0.05 (term) + 0.1 (section) capped at 1.0
	assert.InDelta(t, 1.0, scores[0].Score, 0.001)
}

func TestHTTPRerankerScoresAndSorts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Texts, 2)
		_ = json.NewEncoder(w).Encode([]rerankResult{
			{Index: 0, Score: 0.2},
			{Index: 1, Score: 0.9},
		})
	}))
	defer server.Close()

	r := NewHTTPReranker(HTTPConfig{Endpoint: server.URL})
	defer r.Close()

	scores, err := r.Rerank(context.Background(), "q", []Document{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "b", scores[0].ID)
	assert.InDelta(t, 0.9, scores[0].Score, 0.001)
}

func TestHTTPRerankerRejectsBadIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]rerankResult{{Index: 5, Score: 0.9}})
	}))
	defer server.Close()

	r := NewHTTPReranker(HTTPConfig{Endpoint: server.URL})
	defer r.Close()

	_, err := r.Rerank(context.Background(), "q", []Document{{ID: "a", Text: "x"}})
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeInvalidResponse, acerrors.GetCode(err))
}

func TestHTTPRerankerCircuitOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := NewHTTPReranker(HTTPConfig{Endpoint: server.URL})
	defer r.Close()

	docs := []Document{{ID: "a", Text: "x"}}
	for i := 0; i < 3; i++ {
		_, err := r.Rerank(context.Background(), "q", docs)
		require.Error(t, err)
	}

	// Circuit open now
	_, err := r.Rerank(context.Background(), "q", docs)
	require.Error(t, err)
	assert.True(t, acerrors.IsRetryable(err))
}

func TestHTTPRerankerEmptyDocs(t *testing.T) {
	r := NewHTTPReranker(HTTPConfig{Endpoint: "http://127.0.0.1:1"})
	defer r.Close()

	scores, err := r.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}
