package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const probeTimeout = 3 * time.Second

// CheckEmbedding probes the embedding provider. Ollama being down is a
// warning, not a failure: the static provider takes over.
func (c *Checker) CheckEmbedding(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedding",
		Required: false,
	}

	if c.cfg.Embedding.Provider == "static" {
		result.Status = StatusPass
		result.Message = "static provider (no external dependency)"
		return result
	}

	models, err := listOllamaModels(ctx, c.cfg.Embedding.OllamaHost)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Ollama unreachable at %s, falling back to static embeddings", c.cfg.Embedding.OllamaHost)
		result.Details = err.Error()
		return result
	}

	if !hasModel(models, c.cfg.Embedding.Model) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model %q not pulled (run: ollama pull %s)",
			c.cfg.Embedding.Model, c.cfg.Embedding.Model)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("Ollama reachable, %s available", c.cfg.Embedding.Model)
	return result
}

// CheckLLM probes the generation model. Without it answers degrade to
// extractive mode, so this is a warning only.
func (c *Checker) CheckLLM(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "llm",
		Required: false,
	}

	models, err := listOllamaModels(ctx, c.cfg.LLM.OllamaHost)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("Ollama unreachable at %s, answers degrade to extractive mode", c.cfg.LLM.OllamaHost)
		result.Details = err.Error()
		return result
	}

	if !hasModel(models, c.cfg.LLM.Model) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("model %q not pulled (run: ollama pull %s)",
			c.cfg.LLM.Model, c.cfg.LLM.Model)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("Ollama reachable, %s available", c.cfg.LLM.Model)
	return result
}

// listOllamaModels fetches the model names known to an Ollama host.
func listOllamaModels(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// hasModel matches a configured model against Ollama's tag list.
// "qwen3:4b" matches "qwen3:4b"; "qwen3" matches any "qwen3:*" tag.
func hasModel(models []string, want string) bool {
	for _, m := range models {
		if m == want {
			return true
		}
		if !strings.Contains(want, ":") && strings.HasPrefix(m, want+":") {
			return true
		}
	}
	return false
}
