// Package telemetry collects local answer-quality metrics. Nothing
// leaves the machine; the stats surface reads snapshots of this data.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is an answer-latency histogram bucket.
type LatencyBucket string

const (
	BucketFast     LatencyBucket = "lt_500ms"
	BucketNormal   LatencyBucket = "lt_2s"
	BucketSlow     LatencyBucket = "lt_5s"
	BucketVerySlow LatencyBucket = "lt_15s"
	BucketTimeout  LatencyBucket = "ge_15s"
)

// LatencyToBucket maps a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < 500*time.Millisecond:
		return BucketFast
	case d < 2*time.Second:
		return BucketNormal
	case d < 5*time.Second:
		return BucketSlow
	case d < 15*time.Second:
		return BucketVerySlow
	default:
		return BucketTimeout
	}
}

// AnswerEvent records one completed (or failed) answer.
type AnswerEvent struct {
	UserID        string
	Query         string
	Strategy      string
	QueryType     string
	CacheHit      bool
	Degraded      bool
	LowConfidence bool
	Citations     int
	Latency       time.Duration
	Timestamp     time.Time
}

// TermCount pairs a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TotalAnswers         int64                   `json:"total_answers"`
	CacheHits            int64                   `json:"cache_hits"`
	Degraded             int64                   `json:"degraded"`
	LowConfidence        int64                   `json:"low_confidence"`
	StrategyCounts       map[string]int64        `json:"strategy_counts"`
	QueryTypeCounts      map[string]int64        `json:"query_type_counts"`
	LatencyDistribution  map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms             []TermCount             `json:"top_terms"`
	LowConfidenceQueries []string                `json:"low_confidence_queries"`
	ExactRepeatCount     int64                   `json:"exact_repeat_count"`
	Since                time.Time               `json:"since"`
}

// CacheHitRate returns cache hits as a fraction of all answers.
func (s *Snapshot) CacheHitRate() float64 {
	if s.TotalAnswers == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.TotalAnswers)
}

// ringBuffer is a fixed-capacity FIFO of recent values.
type ringBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

func (b *ringBuffer[T]) add(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// all returns items oldest first.
func (b *ringBuffer[T]) all() []T {
	out := make([]T, 0, b.size)
	if b.size < b.capacity {
		return append(out, b.items[:b.size]...)
	}
	out = append(out, b.items[b.head:]...)
	return append(out, b.items[:b.head]...)
}

// Config tunes the collector's capacities.
type Config struct {
	TopTermsCapacity      int
	LowConfidenceCapacity int
	RecentQueriesCapacity int
}

// DefaultConfig returns the standard capacities.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		LowConfidenceCapacity: 50,
		RecentQueriesCapacity: 500,
	}
}

// Metrics aggregates answer events in memory. Safe for concurrent
// use.
type Metrics struct {
	mu sync.RWMutex

	total         int64
	cacheHits     int64
	degraded      int64
	lowConfidence int64

	strategies     map[string]int64
	queryTypes     map[string]int64
	latencies      map[LatencyBucket]int64
	topTerms       *lru.Cache[string, int64]
	lowConfQueries *ringBuffer[string]
	recentQueries  *lru.Cache[string, struct{}]
	exactRepeats   int64

	startTime time.Time
}

// New creates a metrics collector.
func New(cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.LowConfidenceCapacity <= 0 {
		cfg.LowConfidenceCapacity = def.LowConfidenceCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	return &Metrics{
		strategies:     make(map[string]int64),
		queryTypes:     make(map[string]int64),
		latencies:      make(map[LatencyBucket]int64),
		topTerms:       topTerms,
		lowConfQueries: newRingBuffer[string](cfg.LowConfidenceCapacity),
		recentQueries:  recent,
		startTime:      time.Now(),
	}
}

// Record captures one answer event.
func (m *Metrics) Record(event AnswerEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if event.CacheHit {
		m.cacheHits++
	}
	if event.Degraded {
		m.degraded++
	}
	if event.LowConfidence {
		m.lowConfidence++
		m.lowConfQueries.add(event.Query)
	}
	if event.Strategy != "" {
		m.strategies[event.Strategy]++
	}
	if event.QueryType != "" {
		m.queryTypes[event.QueryType]++
	}
	m.latencies[LatencyToBucket(event.Latency)]++

	for _, term := range extractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	hash := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(hash); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(hash, struct{}{})
}

// Snapshot returns a copy of current aggregates.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	strategies := make(map[string]int64, len(m.strategies))
	for k, v := range m.strategies {
		strategies[k] = v
	}
	queryTypes := make(map[string]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		queryTypes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	return &Snapshot{
		TotalAnswers:         m.total,
		CacheHits:            m.cacheHits,
		Degraded:             m.degraded,
		LowConfidence:        m.lowConfidence,
		StrategyCounts:       strategies,
		QueryTypeCounts:      queryTypes,
		LatencyDistribution:  latencies,
		TopTerms:             topTerms,
		LowConfidenceQueries: m.lowConfQueries.all(),
		ExactRepeatCount:     m.exactRepeats,
		Since:                m.startTime,
	}
}

// extractTerms lowercases and keeps terms of length >= 3.
func extractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// hashQuery normalizes and hashes a query for repeat detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}
