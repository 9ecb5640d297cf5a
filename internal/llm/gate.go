package llm

import (
	"context"

	"golang.org/x/sync/semaphore"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// Gated bounds concurrent completions. When the gate is saturated,
// callers get an Overloaded error immediately instead of queueing,
// which keeps answer latency bounded under load.
type Gated struct {
	inner Client
	sem   *semaphore.Weighted
}

// Compile-time interface check.
var _ Client = (*Gated)(nil)

// NewGated wraps a client with a concurrency limit.
func NewGated(inner Client, maxConcurrent int) *Gated {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Gated{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Complete acquires a slot or fails fast with Overloaded.
func (g *Gated) Complete(ctx context.Context, prompt string) (string, error) {
	if !g.sem.TryAcquire(1) {
		return "", acerrors.OverloadedError("llm concurrency limit reached")
	}
	defer g.sem.Release(1)
	return g.inner.Complete(ctx, prompt)
}

// Available passes through to the inner client.
func (g *Gated) Available(ctx context.Context) bool {
	return g.inner.Available(ctx)
}

// Close closes the inner client.
func (g *Gated) Close() error {
	return g.inner.Close()
}
