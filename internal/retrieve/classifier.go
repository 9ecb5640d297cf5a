// Package retrieve implements hybrid retrieval: BM25 and vector
// search fused per query type, feedback-aware demotion, reranking,
// and context expansion through chunk neighbors and the knowledge
// graph.
package retrieve

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/academe-ai/academe/internal/llm"
)

// QueryType drives the lexical/vector weight split.
type QueryType string

const (
	QueryDefinition QueryType = "definition"
	QueryComparison QueryType = "comparison"
	QueryProcedural QueryType = "procedural"
	QueryCode       QueryType = "code"
	QueryGeneral    QueryType = "general"
)

// Weights is a lexical/vector split. The two always sum to 1.
type Weights struct {
	Lexical float64
	Vector  float64
}

// typeWeights tunes fusion per query type. Definitions lean on exact
// terms, comparisons on semantics, code on literal identifiers.
var typeWeights = map[QueryType]Weights{
	QueryDefinition: {Lexical: 0.5, Vector: 0.5},
	QueryComparison: {Lexical: 0.2, Vector: 0.8},
	QueryProcedural: {Lexical: 0.4, Vector: 0.6},
	QueryCode:       {Lexical: 0.6, Vector: 0.4},
	QueryGeneral:    {Lexical: 0.3, Vector: 0.7},
}

// WeightsFor returns the fusion weights for a query type.
func WeightsFor(qt QueryType) Weights {
	if w, ok := typeWeights[qt]; ok {
		return w
	}
	return typeWeights[QueryGeneral]
}

// Classification patterns, checked in order. Comparison outranks
// definition so "what is the difference between X and Y" classifies
// as a comparison.
var (
	comparisonRe = regexp.MustCompile(`(?i)\b(?:vs\.?|versus|difference between|compare[ds]?(?: to| with)?|better than)\b`)
	definitionRe = regexp.MustCompile(`(?i)^(?:what (?:is|are)|define|definition of|meaning of|explain)\b`)
	proceduralRe = regexp.MustCompile(`(?i)^(?:how (?:to|do|does|can)|steps to|walk me through|procedure for)\b`)
	codeRe       = regexp.MustCompile(`(?i)\b(?:function|method|class|syntax|implement(?:ation)?|compile|runtime error|stack trace|api|snippet|regex|sql query)\b`)
)

const classifyPrompt = `Classify this study question into exactly one category.
Categories: definition, comparison, procedural, code, general.
Respond with the category word only.

Question: %s

Category:`

// Classifier assigns a query type, caching results per query string.
// Regex rules decide most queries; an optional LLM breaks ties for
// unmatched ones.
type Classifier struct {
	cache *lru.Cache[string, QueryType]
	llm   llm.Client
}

// NewClassifier creates a classifier. The LLM client may be nil, in
// which case unmatched queries classify as general.
func NewClassifier(client llm.Client) *Classifier {
	cache, _ := lru.New[string, QueryType](512)
	return &Classifier{cache: cache, llm: client}
}

// Classify returns the query's type.
func (c *Classifier) Classify(ctx context.Context, query string) QueryType {
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return QueryGeneral
	}
	if qt, ok := c.cache.Get(key); ok {
		return qt
	}

	qt := classifyByRules(key)
	if qt == QueryGeneral && c.llm != nil {
		if llmType, ok := c.classifyLLM(ctx, query); ok {
			qt = llmType
		}
	}
	c.cache.Add(key, qt)
	return qt
}

func classifyByRules(query string) QueryType {
	switch {
	case comparisonRe.MatchString(query):
		return QueryComparison
	case definitionRe.MatchString(query):
		return QueryDefinition
	case proceduralRe.MatchString(query):
		return QueryProcedural
	case codeRe.MatchString(query):
		return QueryCode
	default:
		return QueryGeneral
	}
}

func (c *Classifier) classifyLLM(ctx context.Context, query string) (QueryType, bool) {
	resp, err := c.llm.Complete(ctx, fmt.Sprintf(classifyPrompt, query))
	if err != nil {
		return QueryGeneral, false
	}
	switch strings.ToLower(llm.FirstToken(resp)) {
	case "definition":
		return QueryDefinition, true
	case "comparison":
		return QueryComparison, true
	case "procedural":
		return QueryProcedural, true
	case "code":
		return QueryCode, true
	case "general":
		return QueryGeneral, true
	default:
		return QueryGeneral, false
	}
}
