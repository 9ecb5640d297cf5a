package kg

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/academe-ai/academe/internal/store"
)

const (
	// maxHops is the BFS depth from any matched entity.
	maxHops = 2
	// maxTriples caps the context contribution of the graph.
	maxTriples = 32
)

// edge is one direction of a triple in the adjacency list. Reverse
// edges carry a "~" predicate prefix so formatting can flip them back.
type edge struct {
	predicate string
	target    string
	triple    *store.Triple
}

// Graph is an in-memory bidirectional view of one user's triples.
type Graph struct {
	adjacency map[string][]edge
	entities  []string
}

// BuildGraph loads a user's triples into a traversable graph.
func BuildGraph(ctx context.Context, chunks store.ChunkStore, userID string) (*Graph, error) {
	triples, err := chunks.TriplesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewGraph(triples), nil
}

// NewGraph builds the adjacency structure from triples.
func NewGraph(triples []*store.Triple) *Graph {
	g := &Graph{adjacency: make(map[string][]edge)}
	for _, t := range triples {
		g.adjacency[t.Subject] = append(g.adjacency[t.Subject],
			edge{predicate: t.Predicate, target: t.Object, triple: t})
		g.adjacency[t.Object] = append(g.adjacency[t.Object],
			edge{predicate: "~" + t.Predicate, target: t.Subject, triple: t})
	}
	g.entities = make([]string, 0, len(g.adjacency))
	for e := range g.adjacency {
		g.entities = append(g.entities, e)
	}
	sort.Strings(g.entities)
	return g
}

// Size returns the number of distinct entities.
func (g *Graph) Size() int { return len(g.entities) }

// FindEntities returns graph entities mentioned in the query. An exact
// normalized match wins; otherwise substring containment in either
// direction counts, which catches plural and qualified forms.
func (g *Graph) FindEntities(query string) []string {
	queryNorm := normalizeEntity(query)
	if queryNorm == "" {
		return nil
	}

	var matches []string
	for _, entity := range g.entities {
		if entity == queryNorm ||
			strings.Contains(queryNorm, entity) ||
			strings.Contains(entity, queryNorm) {
			matches = append(matches, entity)
		}
	}
	return matches
}

// Traverse runs a breadth-first walk from the query's entities, up to
// maxHops out, and returns at most maxTriples distinct triples in
// discovery order. Direct relationships surface before 2-hop ones.
func (g *Graph) Traverse(query string) []*store.Triple {
	starts := g.FindEntities(query)
	if len(starts) == 0 {
		return nil
	}

	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var result []*store.Triple

	frontier := starts
	for _, s := range starts {
		visited[s] = true
	}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, entity := range frontier {
			for _, e := range g.adjacency[entity] {
				key := e.triple.Subject + "|" + e.triple.Predicate + "|" + e.triple.Object
				if !seen[key] {
					seen[key] = true
					result = append(result, e.triple)
					if len(result) >= maxTriples {
						return result
					}
				}
				if !visited[e.target] {
					visited[e.target] = true
					next = append(next, e.target)
				}
			}
		}
		frontier = next
	}
	return result
}

// FormatContext renders triples as a context block for the answer
// prompt. Empty input yields an empty string.
func FormatContext(triples []*store.Triple) string {
	if len(triples) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Knowledge Graph Relationships:\n")
	for _, t := range triples {
		fmt.Fprintf(&b, "- %s %s %s\n", t.Subject, humanPredicate(t.Predicate), t.Object)
	}
	return b.String()
}

// humanPredicate rewrites stored predicates for prose output.
func humanPredicate(p string) string {
	p = strings.TrimPrefix(p, "~")
	return strings.ReplaceAll(p, "_", " ")
}
