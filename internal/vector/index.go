// Package vector provides per-user approximate nearest neighbor search
// over chunk embeddings using in-memory HNSW graphs.
package vector

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// Result is one vector search hit.
type Result struct {
	ChunkID string
	// Score is cosine similarity mapped to [0,1] via (1+cos)/2.
	Score float64
}

// Index is the vector index interface. All operations are scoped to a
// user namespace; one user's vectors are never visible to another.
type Index interface {
	Upsert(ctx context.Context, userID string, ids []string, vectors [][]float32) error
	Search(ctx context.Context, userID string, query []float32, k int) ([]*Result, error)
	Delete(ctx context.Context, userID string, ids []string) error
	Count(userID string) int
}

// Config holds HNSW graph parameters.
type Config struct {
	Dimensions int
	M          int
	EfSearch   int
}

// DefaultConfig returns the standard graph parameters.
func DefaultConfig(dimensions int) Config {
	return Config{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   20,
	}
}

// HNSWIndex implements Index with one HNSW graph per user.
type HNSWIndex struct {
	cfg Config

	mu    sync.RWMutex
	users map[string]*userGraph
}

// Compile-time interface check.
var _ Index = (*HNSWIndex)(nil)

// userGraph is a single user's graph with string<->uint64 ID mapping.
// Deleted vectors are lazily removed: the node stays in the graph but
// loses its ID mapping and is skipped in results.
type userGraph struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// NewHNSWIndex creates an empty per-user vector index.
func NewHNSWIndex(cfg Config) *HNSWIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWIndex{
		cfg:   cfg,
		users: make(map[string]*userGraph),
	}
}

func (x *HNSWIndex) forUser(userID string, create bool) *userGraph {
	x.mu.RLock()
	ug := x.users[userID]
	x.mu.RUnlock()
	if ug != nil || !create {
		return ug
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if ug = x.users[userID]; ug != nil {
		return ug
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = x.cfg.M
	graph.EfSearch = x.cfg.EfSearch
	graph.Ml = 0.25

	ug = &userGraph{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
	x.users[userID] = ug
	return ug
}

// Upsert adds or replaces vectors in the user's namespace.
func (x *HNSWIndex) Upsert(ctx context.Context, userID string, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	for _, v := range vectors {
		if len(v) != x.cfg.Dimensions {
			return acerrors.New(acerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", x.cfg.Dimensions, len(v)), nil)
		}
	}

	ug := x.forUser(userID, true)
	ug.mu.Lock()
	defer ug.mu.Unlock()

	for i, id := range ids {
		// Lazy deletion for replaced IDs: orphan the old node rather than
		// removing it from the graph.
		if oldKey, exists := ug.idMap[id]; exists {
			delete(ug.keyMap, oldKey)
			delete(ug.idMap, id)
		}

		key := ug.nextKey
		ug.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		ug.graph.Add(hnsw.MakeNode(key, vec))
		ug.idMap[id] = key
		ug.keyMap[key] = id
	}
	return nil
}

// Search returns up to k nearest chunks in the user's namespace.
// An unknown user yields an empty result, not an error.
func (x *HNSWIndex) Search(ctx context.Context, userID string, query []float32, k int) ([]*Result, error) {
	if len(query) != x.cfg.Dimensions {
		return nil, acerrors.New(acerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", x.cfg.Dimensions, len(query)), nil)
	}

	ug := x.forUser(userID, false)
	if ug == nil {
		return []*Result{}, nil
	}

	ug.mu.RLock()
	defer ug.mu.RUnlock()

	if ug.graph.Len() == 0 {
		return []*Result{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	// Over-fetch to compensate for lazily deleted nodes.
	fetch := k + (ug.graph.Len() - len(ug.idMap))
	nodes := ug.graph.Search(normalized, fetch)

	results := make([]*Result, 0, k)
	for _, node := range nodes {
		id, ok := ug.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		distance := ug.graph.Distance(normalized, node.Value)
		results = append(results, &Result{
			ChunkID: id,
			Score:   distanceToScore(float64(distance)),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Delete removes vectors from the user's namespace (lazy deletion).
func (x *HNSWIndex) Delete(ctx context.Context, userID string, ids []string) error {
	ug := x.forUser(userID, false)
	if ug == nil {
		return nil
	}

	ug.mu.Lock()
	defer ug.mu.Unlock()

	for _, id := range ids {
		if key, exists := ug.idMap[id]; exists {
			delete(ug.keyMap, key)
			delete(ug.idMap, id)
		}
	}
	return nil
}

// Count returns the number of live vectors for a user.
func (x *HNSWIndex) Count(userID string) int {
	ug := x.forUser(userID, false)
	if ug == nil {
		return 0
	}
	ug.mu.RLock()
	defer ug.mu.RUnlock()
	return len(ug.idMap)
}

// distanceToScore converts cosine distance (1-cos) to a [0,1] score.
// score = (1+cos)/2 = 1 - distance/2.
func distanceToScore(distance float64) float64 {
	score := 1.0 - distance/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= norm
	}
}
