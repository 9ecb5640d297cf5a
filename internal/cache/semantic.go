// Package cache implements the per-user semantic response cache.
// Entries are keyed by query embedding: a new query hits when its
// cosine similarity to a cached query meets the threshold AND the
// user's document set has not changed since the entry was stored.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/academe-ai/academe/internal/embed"
)

// CachedAnswer is the payload stored for a query.
type CachedAnswer struct {
	Answer      string
	ChunkIDs    []string
	DocumentIDs []string
}

// Config controls cache behavior.
type Config struct {
	// Capacity is the per-user entry limit; the oldest entry is evicted
	// when full.
	Capacity int
	// SimilarityThreshold is the minimum cosine similarity for a hit.
	SimilarityThreshold float64
	// TTL expires entries regardless of doc set version.
	TTL time.Duration
}

// DefaultConfig returns the standard cache configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:            256,
		SimilarityThreshold: 0.95,
		TTL:                 time.Hour,
	}
}

type entry struct {
	query     string
	embedding []float32
	version   int64
	answer    CachedAnswer
	createdAt time.Time
}

type userCache struct {
	// entries ordered oldest to newest
	entries []*entry
}

// SemanticCache is the per-user semantic response cache.
// Entries are immutable once stored.
type SemanticCache struct {
	cfg Config

	mu    sync.RWMutex
	users map[string]*userCache

	// now is injectable for TTL tests.
	now func() time.Time
}

// New creates a semantic cache.
func New(cfg Config) *SemanticCache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &SemanticCache{
		cfg:   cfg,
		users: make(map[string]*userCache),
		now:   time.Now,
	}
}

// Get returns the cached answer most similar to the query embedding,
// or false when no fresh entry meets the threshold. Entries stored
// under an older doc set version never hit.
func (c *SemanticCache) Get(ctx context.Context, userID string, embedding []float32, version int64) (*CachedAnswer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	uc, ok := c.users[userID]
	if !ok {
		return nil, false
	}

	cutoff := c.now().Add(-c.cfg.TTL)

	var best *entry
	var bestSim float64
	// Newest first so equal-similarity ties resolve to the most recent.
	for i := len(uc.entries) - 1; i >= 0; i-- {
		e := uc.entries[i]
		if e.version != version || e.createdAt.Before(cutoff) {
			continue
		}
		sim := embed.CosineSimilarity(embedding, e.embedding)
		if sim >= c.cfg.SimilarityThreshold && sim > bestSim {
			best = e
			bestSim = sim
		}
	}

	if best == nil {
		return nil, false
	}
	answer := best.answer
	return &answer, true
}

// Put stores an answer. Cancelled contexts are not written: the caller
// has already given up and the entry may be a partial result.
func (c *SemanticCache) Put(ctx context.Context, userID, query string, embedding []float32, version int64, answer CachedAnswer) {
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	uc, ok := c.users[userID]
	if !ok {
		uc = &userCache{}
		c.users[userID] = uc
	}

	// Drop expired entries while we hold the lock
	cutoff := c.now().Add(-c.cfg.TTL)
	live := uc.entries[:0]
	for _, e := range uc.entries {
		if !e.createdAt.Before(cutoff) {
			live = append(live, e)
		}
	}
	uc.entries = live

	if len(uc.entries) >= c.cfg.Capacity {
		// Evict oldest
		uc.entries = uc.entries[1:]
	}

	uc.entries = append(uc.entries, &entry{
		query:     query,
		embedding: embedding,
		version:   version,
		answer:    answer,
		createdAt: c.now(),
	})
}

// Len returns the number of live entries for a user.
func (c *SemanticCache) Len(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if uc, ok := c.users[userID]; ok {
		return len(uc.entries)
	}
	return 0
}

// PurgeUser drops all entries for a user.
func (c *SemanticCache) PurgeUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
}
