package answer

import (
	"fmt"
	"strings"

	"github.com/academe-ai/academe/internal/retrieve"
)

const rewritePrompt = `Rewrite this study question to be clearer and more specific
for searching course material. Resolve pronouns and vague references
using the conversation context when one is given. Keep the same
meaning. Respond with the rewritten question only.
%s
Question: %s

Rewritten:`

const decomposePrompt = `Decide if this question needs to be broken into sub-questions
to answer well. If it is a single focused question, respond with exactly
the word SIMPLE. Otherwise output 2 to 4 sub-questions as a numbered
list, one per line, nothing else.

Question: %s`

const multiQueryPrompt = `Generate %d alternative phrasings of this question that a
student might use to search their course material. Output a numbered
list, one phrasing per line, nothing else.

Question: %s`

const sufficiencyPrompt = `You are judging whether retrieved study material can answer a
question. Respond with exactly one word:
SUFFICIENT if the material answers the question,
INSUFFICIENT if the material is relevant but incomplete,
REFORMULATE if the material misses the question entirely.

Question: %s

Material:
%s

Verdict:`

const reformulatePrompt = `The search below returned material that missed the question.
Rephrase the question using different key terms so a search over course
material finds better passages. Respond with the rephrased question only.

Question: %s

Rephrased:`

const answerPrompt = `You are a study assistant. Answer the question using ONLY the
numbered sources below. Cite sources inline as [1], [2] after the
statements they support. If the sources do not fully answer the
question, say what is missing. Be concise and accurate.

%s%s
Question: %s

Answer:`

const answerRetryPrompt = `Answer the question using ONLY the numbered sources below.
STRICT FORMAT: plain prose with inline [n] citations, no preamble, no
headers, no repetition of the sources.

%s%s
Question: %s

Answer:`

const summaryPrompt = `Summarize the following study material in a few short
paragraphs a student could review before an exam. Cover the main
concepts and how they relate. Material:

%s

Summary:`

// formatSources renders retrieved chunks as a numbered source block.
func formatSources(chunks []*retrieve.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Sources:\n")
	for i, sc := range chunks {
		header := sc.Chunk.DocTitle
		if sc.Chunk.SectionTitle != "" {
			header += ", " + sc.Chunk.SectionTitle
		}
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, strings.TrimSpace(header), sc.Chunk.Content)
	}
	return b.String()
}

// formatKG renders the knowledge-graph block, empty-safe.
func formatKG(kgContext string) string {
	if kgContext == "" {
		return ""
	}
	return kgContext + "\n"
}
