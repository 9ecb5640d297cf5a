// Package preflight verifies the environment before Academe starts:
// storage writability, disk space, and Ollama reachability. Failures of
// required checks should abort startup; optional checks degrade to
// fallbacks (static embeddings, extractive answers) and only warn.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/academe-ai/academe/internal/config"
)

// CheckStatus represents the result of a single check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the outcome of one check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs environment checks against a configuration.
type Checker struct {
	cfg     *config.Config
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose includes check details in the printed report.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the report writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a Checker for the given configuration.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:    cfg,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check and returns the results.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	var results []CheckResult

	results = append(results, c.CheckConfig())
	results = append(results, c.CheckWritePermissions())
	results = append(results, c.CheckDiskSpace())

	// Ollama checks are optional: embeddings fall back to static hashing
	// and answers degrade to extractive mode when the model is down.
	results = append(results, c.CheckEmbedding(ctx))
	results = append(results, c.CheckLLM(ctx))

	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus reduces the results to "ready", "ready_with_warnings",
// or "failed".
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes a human-readable report to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "Academe Environment Check")
	_, _ = fmt.Fprintln(c.output, "=========================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", c.SummaryStatus(results))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	if len(errors) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errors))
		for _, e := range errors {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}

// CheckConfig validates the loaded configuration.
func (c *Checker) CheckConfig() CheckResult {
	result := CheckResult{
		Name:     "config",
		Required: true,
	}
	if err := c.cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = "OK"
	return result
}

// CheckWritePermissions verifies the data directory is writable,
// creating it if needed.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{
		Name:     "data_dir",
		Required: true,
		Details:  c.cfg.Storage.DataDir,
	}

	if err := os.MkdirAll(c.cfg.Storage.DataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create: %v", err)
		return result
	}

	testFile := filepath.Join(c.cfg.Storage.DataDir, ".academe-preflight")
	f, err := os.Create(testFile)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(testFile)

	result.Status = StatusPass
	result.Message = "writable"
	return result
}
