package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academe-ai/academe/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Embedding.Provider = "static"
	return cfg
}

func ollamaStub(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		type model struct {
			Name string `json:"name"`
		}
		resp := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range models {
			resp.Models = append(resp.Models, model{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCheckWritePermissions(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg)

	result := c.CheckWritePermissions()
	assert.Equal(t, StatusPass, result.Status)
	assert.True(t, result.Required)
}

func TestCheckWritePermissionsCreatesDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DataDir = cfg.Storage.DataDir + "/nested/data"
	c := New(cfg)

	result := c.CheckWritePermissions()
	assert.Equal(t, StatusPass, result.Status)
}

func TestCheckDiskSpace(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg)

	result := c.CheckDiskSpace()
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "free")
}

func TestCheckEmbeddingStaticProvider(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg)

	result := c.CheckEmbedding(context.Background())
	assert.Equal(t, StatusPass, result.Status)
	assert.Contains(t, result.Message, "static")
}

func TestCheckEmbeddingOllamaDown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.OllamaHost = "http://127.0.0.1:1"
	c := New(cfg)

	result := c.CheckEmbedding(context.Background())
	assert.Equal(t, StatusWarn, result.Status)
	assert.False(t, result.IsCritical())
}

func TestCheckEmbeddingModelMissing(t *testing.T) {
	server := ollamaStub(t, "other-model:latest")

	cfg := testConfig(t)
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.OllamaHost = server.URL
	cfg.Embedding.Model = "nomic-embed-text"
	c := New(cfg)

	result := c.CheckEmbedding(context.Background())
	assert.Equal(t, StatusWarn, result.Status)
	assert.Contains(t, result.Message, "ollama pull")
}

func TestCheckLLMModelPresent(t *testing.T) {
	server := ollamaStub(t, "qwen3:4b")

	cfg := testConfig(t)
	cfg.LLM.OllamaHost = server.URL
	cfg.LLM.Model = "qwen3:4b"
	c := New(cfg)

	result := c.CheckLLM(context.Background())
	assert.Equal(t, StatusPass, result.Status)
}

func TestHasModel(t *testing.T) {
	tests := []struct {
		name   string
		models []string
		want   string
		expect bool
	}{
		{"exact match", []string{"qwen3:4b"}, "qwen3:4b", true},
		{"untagged matches any tag", []string{"qwen3:4b"}, "qwen3", true},
		{"tagged requires exact", []string{"qwen3:8b"}, "qwen3:4b", false},
		{"missing", []string{"llama3:8b"}, "qwen3", false},
		{"empty list", nil, "qwen3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, hasModel(tt.models, tt.want))
		})
	}
}

func TestSummaryStatus(t *testing.T) {
	c := New(testConfig(t))

	tests := []struct {
		name    string
		results []CheckResult
		want    string
	}{
		{
			name: "all pass",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusPass},
			},
			want: "ready",
		},
		{
			name: "optional failure warns",
			results: []CheckResult{
				{Status: StatusPass, Required: true},
				{Status: StatusFail, Required: false},
			},
			want: "ready_with_warnings",
		},
		{
			name: "required failure fails",
			results: []CheckResult{
				{Status: StatusFail, Required: true},
			},
			want: "failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SummaryStatus(tt.results))
			assert.Equal(t, tt.want == "failed", c.HasCriticalFailures(tt.results))
		})
	}
}

func TestRunAllAndPrint(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(t)
	cfg.LLM.OllamaHost = "http://127.0.0.1:1"
	c := New(cfg, WithOutput(&buf), WithVerbose(true))

	results := c.RunAll(context.Background())
	require.NotEmpty(t, results)
	c.PrintResults(results)

	out := buf.String()
	assert.Contains(t, out, "Academe Environment Check")
	assert.Contains(t, out, "data_dir")
	assert.Contains(t, out, "Status:")
}
