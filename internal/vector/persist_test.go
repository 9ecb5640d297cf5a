package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, idx.Upsert(ctx, "alice",
		[]string{"doc1_0", "doc1_1"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
	require.NoError(t, idx.Upsert(ctx, "bob",
		[]string{"doc2_0"},
		[][]float32{{0, 0, 1, 0}}))
	require.NoError(t, idx.SaveDir(dir))

	restored := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, restored.LoadDir(dir))

	assert.Equal(t, 2, restored.Count("alice"))
	assert.Equal(t, 1, restored.Count("bob"))

	results, err := restored.Search(ctx, "alice", []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc1_0", results[0].ChunkID)

	// Namespaces stay isolated after restore.
	results, err = restored.Search(ctx, "bob", []float32{0, 0, 1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc2_0", results[0].ChunkID)
}

func TestLoadMissingDirIsFreshStart(t *testing.T) {
	idx := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, idx.LoadDir(t.TempDir()+"/nope"))
	assert.Equal(t, 0, idx.Count("alice"))
}

func TestSaveSkipsDeletedVectors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, idx.Upsert(ctx, "alice",
		[]string{"doc1_0", "doc1_1"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))
	require.NoError(t, idx.Delete(ctx, "alice", []string{"doc1_1"}))
	require.NoError(t, idx.SaveDir(dir))

	restored := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, restored.LoadDir(dir))
	assert.Equal(t, 1, restored.Count("alice"))

	results, err := restored.Search(ctx, "alice", []float32{0, 1, 0, 0}, 2)
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, "doc1_1", res.ChunkID)
	}
}

func TestSaveEscapesUserIDs(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, idx.Upsert(ctx, "user/with:odd chars",
		[]string{"c0"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, idx.SaveDir(dir))

	restored := NewHNSWIndex(DefaultConfig(4))
	require.NoError(t, restored.LoadDir(dir))
	assert.Equal(t, 1, restored.Count("user/with:odd chars"))
}
