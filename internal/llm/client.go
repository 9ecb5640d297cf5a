// Package llm provides the generation model client. The production
// implementation talks to Ollama; tests inject fakes.
package llm

import (
	"context"
	"regexp"
	"strings"
)

// Client generates text completions.
type Client interface {
	// Complete returns the model's completion for the prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Available checks if the model backend is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

var listItemPrefix = regexp.MustCompile(`^\s*(?:\d+[.)\-:]|[-*•])\s*`)

// ParseList extracts list items from a completion: numbered lines
// ("1. foo", "2) bar") or bulleted lines. Non-list lines are kept as
// items too, so models that skip numbering still parse.
func ParseList(response string) []string {
	var items []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = listItemPrefix.ReplaceAllString(line, "")
		line = strings.Trim(line, `"'`)
		line = strings.TrimSpace(line)
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}

// FirstToken returns the first whitespace-delimited token of the
// response, uppercased with surrounding punctuation removed. Used for
// single-word verdict prompts.
func FirstToken(response string) string {
	fields := strings.Fields(strings.TrimSpace(response))
	if len(fields) == 0 {
		return ""
	}
	token := strings.ToUpper(fields[0])
	return strings.Trim(token, `.,:;!"'`)
}
