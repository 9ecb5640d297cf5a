// Package lexical provides per-user BM25 keyword search over chunk text.
// Indexes are built lazily from the chunk store, kept in memory, and
// rebuilt whenever the user's document set version changes.
package lexical

import (
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// StudyTokenizerName is the name of the prose tokenizer.
	StudyTokenizerName = "study_tokenizer"

	// StudyStopFilterName is the name of the stop word filter.
	StudyStopFilterName = "study_stop"

	// StudyAnalyzerName is the registered analyzer: unicode word
	// tokenization, lowercasing, stop word removal. No stemming, so
	// technical terms like "indexes" and "indices" stay distinct.
	StudyAnalyzerName = "study_analyzer"
)

const minTokenLength = 2

func init() {
	_ = registry.RegisterTokenizer(StudyTokenizerName, studyTokenizerConstructor)
	_ = registry.RegisterTokenFilter(StudyStopFilterName, studyStopFilterConstructor)
}

// defaultStopWords are common English function words excluded from the index.
var defaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"from", "has", "have", "in", "into", "is", "it", "its", "of", "on",
	"or", "that", "the", "their", "then", "there", "these", "this",
	"to", "was", "were", "which", "will", "with",
}

func buildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func studyTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &studyTokenizer{}, nil
}

// studyTokenizer splits input into runs of letters and digits.
type studyTokenizer struct{}

// Tokenize implements analysis.Tokenizer.
func (t *studyTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	result := make(analysis.TokenStream, 0, len(text)/6)

	pos := 1
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			result = appendToken(result, text, start, i, &pos)
			start = -1
		}
	}
	if start >= 0 {
		result = appendToken(result, text, start, len(text), &pos)
	}
	return result
}

func appendToken(stream analysis.TokenStream, text string, start, end int, pos *int) analysis.TokenStream {
	term := text[start:end]
	if len(term) < minTokenLength {
		return stream
	}
	stream = append(stream, &analysis.Token{
		Term:     []byte(term),
		Start:    start,
		End:      end,
		Position: *pos,
		Type:     analysis.AlphaNumeric,
	})
	*pos++
	return stream
}

func studyStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &studyStopFilter{stopWords: buildStopWordMap(defaultStopWords)}, nil
}

type studyStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *studyStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// Tokenize exposes the analyzer's tokenization for keyword-overlap scoring.
func Tokenize(text string) []string {
	tokenizer := &studyTokenizer{}
	stop := &studyStopFilter{stopWords: buildStopWordMap(defaultStopWords)}
	stream := stop.Filter(tokenizer.Tokenize([]byte(text)))

	terms := make([]string, 0, len(stream))
	for _, token := range stream {
		terms = append(terms, strings.ToLower(string(token.Term)))
	}
	return terms
}
