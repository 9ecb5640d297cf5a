package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/academe-ai/academe/internal/store"
)

// DefaultMaxIndexes bounds resident per-user indexes before LRU eviction.
const DefaultMaxIndexes = 64

// Manager owns the per-user lexical indexes. Indexes are built on first
// search for a user, rebuilt when the user's document set version moves,
// and evicted LRU across users to bound memory.
type Manager struct {
	chunks store.ChunkStore
	logger *slog.Logger

	// group collapses concurrent rebuilds of the same user's index.
	group singleflight.Group
	cache *lru.Cache[string, *userIndex]
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	maxIndexes int
	logger     *slog.Logger
}

// WithMaxIndexes sets the resident index limit.
func WithMaxIndexes(n int) ManagerOption {
	return func(o *managerOptions) {
		o.maxIndexes = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.logger = logger
	}
}

// NewManager creates a lexical index manager backed by the chunk store.
func NewManager(chunks store.ChunkStore, opts ...ManagerOption) (*Manager, error) {
	options := &managerOptions{
		maxIndexes: DefaultMaxIndexes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	cache, err := lru.NewWithEvict[string, *userIndex](options.maxIndexes,
		func(userID string, idx *userIndex) {
			_ = idx.close()
		})
	if err != nil {
		return nil, fmt.Errorf("create index cache: %w", err)
	}

	return &Manager{
		chunks: chunks,
		logger: options.logger,
		cache:  cache,
	}, nil
}

// Search runs a BM25 query against the user's index, building or
// rebuilding it first if it is missing or stale.
func (m *Manager) Search(ctx context.Context, userID, query string, limit int) ([]*Result, error) {
	idx, err := m.ensureIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	return idx.search(ctx, query, limit)
}

// IndexedChunks returns the chunk count of the user's resident index,
// or -1 when no index is resident.
func (m *Manager) IndexedChunks(userID string) int {
	if idx, ok := m.cache.Peek(userID); ok {
		return idx.count
	}
	return -1
}

// Invalidate drops the user's resident index. The next search rebuilds it.
func (m *Manager) Invalidate(userID string) {
	m.cache.Remove(userID)
}

// Close releases all resident indexes.
func (m *Manager) Close() error {
	m.cache.Purge()
	return nil
}

// ensureIndex returns a fresh index for the user, rebuilding via
// singleflight when the doc set version has moved.
func (m *Manager) ensureIndex(ctx context.Context, userID string) (*userIndex, error) {
	version, err := m.chunks.DocSetVersion(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("doc set version: %w", err)
	}

	if idx, ok := m.cache.Get(userID); ok && idx.version == version {
		return idx, nil
	}

	// Concurrent searches for the same user share one rebuild.
	v, err, _ := m.group.Do(userID, func() (interface{}, error) {
		// Re-check under the flight: another caller may have rebuilt.
		if idx, ok := m.cache.Get(userID); ok && idx.version == version {
			return idx, nil
		}
		return m.build(ctx, userID, version)
	})
	if err != nil {
		return nil, err
	}
	return v.(*userIndex), nil
}

func (m *Manager) build(ctx context.Context, userID string, version int64) (*userIndex, error) {
	chunks, err := m.chunks.ListChunksByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for index build: %w", err)
	}

	// Propositions are indexed alongside each chunk's raw text, so a
	// proposition-only phrasing still surfaces the chunk. A failed
	// lookup costs that chunk its propositions, nothing more.
	props := make(map[string]string)
	for _, c := range chunks {
		list, err := m.chunks.PropositionsByChunk(ctx, c.ID)
		if err != nil {
			m.logger.Debug("proposition_lookup_failed",
				slog.String("chunk_id", c.ID), slog.String("error", err.Error()))
			continue
		}
		if len(list) == 0 {
			continue
		}
		texts := make([]string, len(list))
		for i, p := range list {
			texts[i] = p.Content
		}
		props[c.ID] = strings.Join(texts, "\n")
	}

	idx, err := newUserIndex(chunks, props, version)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("lexical_index_built",
		slog.String("user_id", userID),
		slog.Int64("version", version),
		slog.Int("chunks", len(chunks)),
		slog.Int("chunks_with_propositions", len(props)))

	m.cache.Add(userID, idx)
	return idx, nil
}
