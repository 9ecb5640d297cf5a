package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academe-ai/academe/internal/store"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) Available(ctx context.Context) bool { return true }
func (f *fakeLLM) Close() error                       { return nil }

func propChunk(content string) store.Chunk {
	return store.Chunk{ID: "d1_0", DocumentID: "d1", UserID: "u1", Content: content}
}

func TestPropositionsFromNumberedList(t *testing.T) {
	client := &fakeLLM{response: `1. B-trees keep their keys in sorted order.
2. Every leaf sits at the same depth in the tree.
3. short
4. Rebalancing happens on insert and delete operations.`}

	e := NewPropositionExtractor(client, nil)
	props := e.Extract(context.Background(), propChunk("irrelevant"))

	require.Len(t, props, 3, "the short item must be filtered out")
	assert.Equal(t, "B-trees keep their keys in sorted order.", props[0].Content)
	assert.Equal(t, "d1_0", props[0].ChunkID)
	assert.Equal(t, "d1", props[0].DocumentID)
	assert.Equal(t, "u1", props[0].UserID)
	assert.NotEmpty(t, props[0].ID)
}

func TestPropositionsSentenceFallbackOnError(t *testing.T) {
	client := &fakeLLM{err: errors.New("model down")}

	e := NewPropositionExtractor(client, nil)
	props := e.Extract(context.Background(),
		propChunk("B-trees keep keys sorted for efficient scans. Ok. Hash indexes answer equality lookups in constant time."))

	require.Len(t, props, 2, "fragments under the length floor are dropped")
	assert.Contains(t, props[0].Content, "B-trees keep keys sorted")
}

func TestPropositionsNilClientUsesFallback(t *testing.T) {
	e := NewPropositionExtractor(nil, nil)
	props := e.Extract(context.Background(),
		propChunk("Write-ahead logging makes crash recovery possible without data loss."))

	require.Len(t, props, 1)
}

func TestPropositionsCapped(t *testing.T) {
	var resp string
	for i := 0; i < 15; i++ {
		resp += "1. This statement is definitely long enough to keep around.\n"
	}
	client := &fakeLLM{response: resp}

	e := NewPropositionExtractor(client, nil)
	props := e.Extract(context.Background(), propChunk("x"))
	assert.Len(t, props, 7)
}

func TestPropositionLengthFloor(t *testing.T) {
	// 24 characters falls under the floor, 25 clears it.
	client := &fakeLLM{response: "1. Keys stay sorted in oak.\n2. Keys stay sorted in oaks.\n"}

	e := NewPropositionExtractor(client, nil)
	props := e.Extract(context.Background(), propChunk("x"))
	require.Len(t, props, 1)
	assert.Equal(t, "Keys stay sorted in oaks.", props[0].Content)
}
