package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from the given path, falling back to defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No file is fine: defaults + env
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies ACADEME_* environment variables.
// Env vars have the highest priority in the configuration hierarchy.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACADEME_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("ACADEME_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ACADEME_OLLAMA_HOST"); v != "" {
		cfg.Embedding.OllamaHost = v
		cfg.LLM.OllamaHost = v
	}
	if v := os.Getenv("ACADEME_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ACADEME_EMBED_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("ACADEME_EMBED_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("ACADEME_RERANK_ENDPOINT"); v != "" {
		cfg.Rerank.Endpoint = v
	}
	if v, ok := envFloat("ACADEME_LEXICAL_WEIGHT"); ok {
		cfg.Retrieval.LexicalWeight = v
	}
	if v, ok := envFloat("ACADEME_VECTOR_WEIGHT"); ok {
		cfg.Retrieval.VectorWeight = v
	}
	if v, ok := envInt("ACADEME_TOP_K"); ok {
		cfg.Retrieval.TopK = v
	}
	if v, ok := envInt("ACADEME_INGEST_WORKERS"); ok {
		cfg.Ingest.Workers = v
	}
	if v, ok := envDuration("ACADEME_ANSWER_TIMEOUT"); ok {
		cfg.Answer.Timeout = v
	}
	if v, ok := envDuration("ACADEME_RETRIEVE_TIMEOUT"); ok {
		cfg.Retrieval.Timeout = v
	}
	if v := os.Getenv("ACADEME_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ACADEME_WATCH_DIR"); v != "" {
		cfg.Watcher.Enabled = true
		cfg.Watcher.Dir = v
	}
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Save writes the configuration to the given path in YAML format.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			return path[:i]
		}
	}
	return "."
}
