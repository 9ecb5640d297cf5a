package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

func newTestIndex() *HNSWIndex {
	return NewHNSWIndex(DefaultConfig(4))
}

func TestUpsertAndSearch(t *testing.T) {
	x := newTestIndex()
	ctx := context.Background()

	err := x.Upsert(ctx, "u1",
		[]string{"c1", "c2", "c3"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0.9, 0.1, 0, 0},
		})
	require.NoError(t, err)

	results, err := x.Search(ctx, "u1", []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.Equal(t, "c3", results[1].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestScoreRange(t *testing.T) {
	x := newTestIndex()
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, "u1",
		[]string{"same", "opposite"},
		[][]float32{
			{1, 0, 0, 0},
			{-1, 0, 0, 0},
		}))

	results, err := x.Search(ctx, "u1", []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestUserIsolation(t *testing.T) {
	x := newTestIndex()
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, "u1", []string{"c1"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, x.Upsert(ctx, "u2", []string{"c2"}, [][]float32{{1, 0, 0, 0}}))

	results, err := x.Search(ctx, "u1", []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)

	assert.Equal(t, 1, x.Count("u1"))
	assert.Equal(t, 1, x.Count("u2"))
	assert.Equal(t, 0, x.Count("unknown"))
}

func TestSearchUnknownUser(t *testing.T) {
	x := newTestIndex()
	results, err := x.Search(context.Background(), "nobody", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteHidesVectors(t *testing.T) {
	x := newTestIndex()
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, "u1",
		[]string{"c1", "c2"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	require.NoError(t, x.Delete(ctx, "u1", []string{"c1"}))
	assert.Equal(t, 1, x.Count("u1"))

	results, err := x.Search(ctx, "u1", []float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ChunkID)
}

func TestUpsertReplacesVector(t *testing.T) {
	x := newTestIndex()
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, "u1", []string{"c1"}, [][]float32{{1, 0, 0, 0}}))
	require.NoError(t, x.Upsert(ctx, "u1", []string{"c1"}, [][]float32{{0, 1, 0, 0}}))

	assert.Equal(t, 1, x.Count("u1"))

	results, err := x.Search(ctx, "u1", []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
}

func TestDimensionMismatch(t *testing.T) {
	x := newTestIndex()
	ctx := context.Background()

	err := x.Upsert(ctx, "u1", []string{"c1"}, [][]float32{{1, 0}})
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeDimensionMismatch, acerrors.GetCode(err))

	_, err = x.Search(ctx, "u1", []float32{1, 0}, 5)
	require.Error(t, err)
	assert.Equal(t, acerrors.ErrCodeDimensionMismatch, acerrors.GetCode(err))
}
