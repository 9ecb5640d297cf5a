package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.3, cfg.Retrieval.LexicalWeight)
	assert.Equal(t, 0.7, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 20, cfg.Retrieval.CandidateK)
	assert.Equal(t, 0.95, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 2, cfg.Answer.MaxSelfRAGIterations)
	assert.Equal(t, 30*time.Second, cfg.Answer.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Retrieval.Timeout)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.LexicalWeight = 0.5
	cfg.Retrieval.VectorWeight = 0.7

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestValidateRejectsBadTopK(t *testing.T) {
	cfg := NewConfig()
	cfg.Retrieval.TopK = 0
	require.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.Retrieval.CandidateK = 2 // < TopK
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Retrieval.VectorWeight)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
retrieval:
  top_k: 8
  candidate_k: 30
  lexical_weight: 0.4
  vector_weight: 0.6
cache:
  enabled: false
  capacity: 64
  similarity_threshold: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 0.4, cfg.Retrieval.LexicalWeight)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 64, cfg.Cache.Capacity)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
retrieval:
  lexical_weight: 0.9
  vector_weight: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ACADEME_TOP_K", "7")
	t.Setenv("ACADEME_OLLAMA_HOST", "http://remote:11434")
	t.Setenv("ACADEME_ANSWER_TIMEOUT", "45s")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
	assert.Equal(t, "http://remote:11434", cfg.LLM.OllamaHost)
	assert.Equal(t, "http://remote:11434", cfg.Embedding.OllamaHost)
	assert.Equal(t, 45*time.Second, cfg.Answer.Timeout)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := NewConfig()
	cfg.Retrieval.TopK = 9
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.TopK)
}
