// Package answer orchestrates question answering: cache probe, query
// transformation, retrieval, self-assessment, generation with
// citations, and feedback capture.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/academe-ai/academe/internal/cache"
	"github.com/academe-ai/academe/internal/config"
	"github.com/academe-ai/academe/internal/embed"
	acerrors "github.com/academe-ai/academe/internal/errors"
	"github.com/academe-ai/academe/internal/llm"
	"github.com/academe-ai/academe/internal/retrieve"
	"github.com/academe-ai/academe/internal/store"
)

// Strategy tags reported in diagnostics.
const (
	StrategyCache      = "cache"
	StrategySingle     = "single"
	StrategyMultiQuery = "multi_query"
	StrategyDecomposed = "decomposed"
)

// noMaterialAnswer is returned without a generation call when
// retrieval finds nothing above threshold.
const noMaterialAnswer = "I couldn't find anything relevant in your uploaded documents. " +
	"Try rephrasing the question or uploading the material it refers to."

// snippetLen bounds citation snippets.
const snippetLen = 200

// Citation points an answer statement back at its source chunk.
type Citation struct {
	Index      int    `json:"index"` // matches [n] markers in the text
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	DocTitle   string `json:"doc_title"`
	Section    string `json:"section,omitempty"`
	Snippet    string `json:"snippet"`
}

// Diagnostics explains how an answer was produced.
type Diagnostics struct {
	CacheHit          bool   `json:"cache_hit"`
	Strategy          string `json:"strategy"`
	QueryType         string `json:"query_type,omitempty"`
	Reformulated      int    `json:"reformulated"`
	Decomposed        int    `json:"decomposed"`
	SelfRAGIterations int    `json:"self_rag_iterations"`
	Degraded          bool   `json:"degraded"`
	LowConfidence     bool   `json:"low_confidence"`
	DurationMS        int64  `json:"duration_ms"`
}

// Answer is the orchestrator's output.
type Answer struct {
	Text        string      `json:"text"`
	Citations   []Citation  `json:"citations"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// askSettings are the per-call knobs, defaulted from AnswerConfig.
type askSettings struct {
	useCache         bool
	maxIterations    int
	skipExpansion    bool
	deadline         time.Duration
	conversationHint string
}

// AskOption adjusts a single Ask call.
type AskOption func(*askSettings)

// WithoutCache disables the response cache probe and store for this
// call.
func WithoutCache() AskOption {
	return func(s *askSettings) { s.useCache = false }
}

// WithMaxSelfRAG caps self-assessment iterations for this call.
func WithMaxSelfRAG(n int) AskOption {
	return func(s *askSettings) {
		if n >= 0 {
			s.maxIterations = n
		}
	}
}

// WithoutExpansion skips neighbor/parent context expansion.
func WithoutExpansion() AskOption {
	return func(s *askSettings) { s.skipExpansion = true }
}

// WithDeadline overrides the configured answer timeout.
func WithDeadline(d time.Duration) AskOption {
	return func(s *askSettings) {
		if d > 0 {
			s.deadline = d
		}
	}
}

// WithConversationHint supplies recent conversation context so the
// query rewrite can resolve pronouns and follow-up references.
func WithConversationHint(hint string) AskOption {
	return func(s *askSettings) { s.conversationHint = strings.TrimSpace(hint) }
}

// retriever is the slice of the retrieval engine the orchestrator
// uses.
type retriever interface {
	Retrieve(ctx context.Context, userID, query string, opts retrieve.Options) (*retrieve.Result, error)
	RetrieveMerged(ctx context.Context, userID string, queries []string, opts retrieve.Options) (*retrieve.Result, error)
}

// Orchestrator runs the full question-answering flow.
type Orchestrator struct {
	cfg       config.AnswerConfig
	topK      int
	chunks    store.ChunkStore
	retriever retriever
	llm       llm.Client
	embedder  embed.Embedder
	cache     *cache.SemanticCache
	transform *transformer
	logger    *slog.Logger
}

// NewOrchestrator creates the orchestrator. The cache may be nil to
// disable response caching.
func NewOrchestrator(cfg config.AnswerConfig, topK int, chunks store.ChunkStore,
	r retriever, client llm.Client, embedder embed.Embedder,
	responseCache *cache.SemanticCache, logger *slog.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSelfRAGIterations <= 0 {
		cfg.MaxSelfRAGIterations = 2
	}
	if cfg.MultiQueryVariants <= 0 {
		cfg.MultiQueryVariants = 3
	}
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		topK:      topK,
		chunks:    chunks,
		retriever: r,
		llm:       client,
		embedder:  embedder,
		cache:     responseCache,
		transform: &transformer{llm: client, logger: logger},
		logger:    logger,
	}
}

// Ask answers a question against the user's documents.
func (o *Orchestrator) Ask(ctx context.Context, userID, query string, opts ...AskOption) (*Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, acerrors.New(acerrors.ErrCodeQueryEmpty, "question is empty", nil)
	}

	settings := askSettings{
		useCache:      true,
		maxIterations: o.cfg.MaxSelfRAGIterations,
		deadline:      o.cfg.Timeout,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	ctx, cancel := context.WithTimeout(ctx, settings.deadline)
	defer cancel()
	start := time.Now()

	version, err := o.chunks.DocSetVersion(ctx, userID)
	if err != nil {
		o.logger.Debug("doc_set_version_failed", "error", err)
	}

	var queryVec []float32
	if o.cache != nil && settings.useCache {
		queryVec, err = o.embedder.Embed(ctx, query)
		if err != nil {
			o.logger.Debug("cache_probe_embed_failed", "error", err)
			queryVec = nil
		}
	}
	if queryVec != nil {
		if hit, ok := o.cache.Get(ctx, userID, queryVec, version); ok {
			o.logger.Info("answer_cache_hit", "user_id", userID)
			return o.fromCache(hit, start), nil
		}
	}

	diag := Diagnostics{Strategy: StrategySingle}

	working, rewrote := o.transform.rewrite(ctx, query, settings.conversationHint)
	if rewrote {
		diag.Reformulated++
	}

	res, err := o.retrieveFor(ctx, userID, working, settings, &diag)
	if err != nil {
		return nil, err
	}

	res, diag.SelfRAGIterations, diag.LowConfidence = o.selfRAG(ctx, userID, query, working, res, settings, &diag)

	diag.Degraded = res.Degraded
	diag.QueryType = string(res.QueryType)

	if len(res.Chunks) == 0 {
		diag.LowConfidence = true
		diag.DurationMS = time.Since(start).Milliseconds()
		return &Answer{Text: noMaterialAnswer, Citations: []Citation{}, Diagnostics: diag}, nil
	}

	text, err := o.generate(ctx, query, res)
	if err != nil {
		return nil, err
	}

	ans := &Answer{
		Text:        text,
		Citations:   citationsFrom(res.Chunks),
		Diagnostics: diag,
	}
	ans.Diagnostics.DurationMS = time.Since(start).Milliseconds()

	if o.cache != nil && settings.useCache && queryVec != nil {
		o.cache.Put(ctx, userID, query, queryVec, version, cache.CachedAnswer{
			Answer:      ans.Text,
			ChunkIDs:    chunkIDs(ans.Citations),
			DocumentIDs: documentIDs(ans.Citations),
		})
	}

	o.logger.Info("answer_complete",
		"user_id", userID,
		"strategy", ans.Diagnostics.Strategy,
		"citations", len(ans.Citations),
		"self_rag_iterations", ans.Diagnostics.SelfRAGIterations,
		"degraded", ans.Diagnostics.Degraded,
		"duration_ms", ans.Diagnostics.DurationMS)
	return ans, nil
}

// retrieveFor picks the retrieval strategy: decomposition for complex
// questions, multi-query variants otherwise, plain retrieval when the
// model offers no variants.
func (o *Orchestrator) retrieveFor(ctx context.Context, userID, working string, settings askSettings, diag *Diagnostics) (*retrieve.Result, error) {
	if o.cfg.Decompose {
		if subs := o.transform.decompose(ctx, working); len(subs) >= minSubQueries {
			diag.Strategy = StrategyDecomposed
			diag.Decomposed = len(subs)
			queries := append([]string{working}, subs...)
			return o.retriever.RetrieveMerged(ctx, userID, queries, retrieve.Options{
				TopK:          o.topK,
				SkipExpansion: settings.skipExpansion,
			})
		}
	}

	variants := o.transform.variants(ctx, working, o.cfg.MultiQueryVariants)
	if len(variants) > 1 {
		diag.Strategy = StrategyMultiQuery
		return o.retriever.RetrieveMerged(ctx, userID, variants, retrieve.Options{
			TopK:          o.topK,
			SkipExpansion: settings.skipExpansion,
		})
	}

	diag.Strategy = StrategySingle
	return o.retriever.Retrieve(ctx, userID, working, retrieve.Options{
		TopK:          o.topK,
		SkipExpansion: settings.skipExpansion,
	})
}

// selfRAG assesses the retrieved material and re-retrieves when the
// model judges it lacking: a reformulated query for a complete miss, a
// wider net for partial coverage. Returns the final result, the
// iteration count, and whether confidence stayed low.
func (o *Orchestrator) selfRAG(ctx context.Context, userID, original, working string,
	res *retrieve.Result, settings askSettings, diag *Diagnostics) (*retrieve.Result, int, bool) {
	iterations := 0
	for iterations < settings.maxIterations {
		if len(res.Chunks) == 0 {
			break
		}
		verdict := o.transform.assess(ctx, original, formatSources(res.Chunks))
		if verdict == verdictSufficient {
			return res, iterations, false
		}
		iterations++

		var retried *retrieve.Result
		var err error
		switch verdict {
		case verdictReformulate:
			working = o.transform.reformulate(ctx, working)
			diag.Reformulated++
			retried, err = o.retriever.Retrieve(ctx, userID, working, retrieve.Options{
				TopK:          o.topK,
				SkipExpansion: settings.skipExpansion,
			})
		case verdictInsufficient:
			retried, err = o.retriever.Retrieve(ctx, userID, working, retrieve.Options{
				TopK:          o.topK * 2,
				CandidateK:    o.topK * 4,
				SkipExpansion: settings.skipExpansion,
			})
		}
		if err != nil || retried == nil || len(retried.Chunks) == 0 {
			// Keep what we have rather than discard partial coverage.
			return res, iterations, true
		}
		res = retried
	}
	if settings.maxIterations > 0 && iterations >= settings.maxIterations {
		return res, iterations, true
	}
	return res, iterations, false
}

// generate produces the cited answer. A malformed model response gets
// one retry with a stricter prompt.
func (o *Orchestrator) generate(ctx context.Context, query string, res *retrieve.Result) (string, error) {
	if o.llm == nil {
		return "", acerrors.UnavailableError("no generation model configured", nil)
	}
	sources := formatSources(res.Chunks)
	kgBlock := formatKG(res.KGContext)

	text, err := o.llm.Complete(ctx, fmt.Sprintf(answerPrompt, kgBlock, sources, query))
	if err != nil && acerrors.GetCode(err) == acerrors.ErrCodeInvalidResponse {
		o.logger.Warn("generation_retry", "error", err)
		text, err = o.llm.Complete(ctx, fmt.Sprintf(answerRetryPrompt, kgBlock, sources, query))
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (o *Orchestrator) fromCache(hit *cache.CachedAnswer, start time.Time) *Answer {
	citations := make([]Citation, 0, len(hit.ChunkIDs))
	for i, id := range hit.ChunkIDs {
		c := Citation{Index: i + 1, ChunkID: id}
		if i < len(hit.DocumentIDs) {
			c.DocumentID = hit.DocumentIDs[i]
		}
		citations = append(citations, c)
	}
	return &Answer{
		Text:      hit.Answer,
		Citations: citations,
		Diagnostics: Diagnostics{
			CacheHit:   true,
			Strategy:   StrategyCache,
			DurationMS: time.Since(start).Milliseconds(),
		},
	}
}

func citationsFrom(chunks []*retrieve.ScoredChunk) []Citation {
	citations := make([]Citation, 0, len(chunks))
	for i, sc := range chunks {
		snippet := sc.Chunk.Content
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen] + "..."
		}
		citations = append(citations, Citation{
			Index:      i + 1,
			ChunkID:    sc.Chunk.ID,
			DocumentID: sc.Chunk.DocumentID,
			DocTitle:   sc.Chunk.DocTitle,
			Section:    sc.Chunk.SectionTitle,
			Snippet:    snippet,
		})
	}
	return citations
}

func chunkIDs(citations []Citation) []string {
	out := make([]string, len(citations))
	for i, c := range citations {
		out[i] = c.ChunkID
	}
	return out
}

func documentIDs(citations []Citation) []string {
	out := make([]string, len(citations))
	for i, c := range citations {
		out[i] = c.DocumentID
	}
	return out
}

// Rate records the user's verdict on an answer. Rating must be +1 or
// -1; the cited documents feed retrieval demotion.
func (o *Orchestrator) Rate(ctx context.Context, userID, query string, rating int, comment string, citations []Citation) error {
	if rating != 1 && rating != -1 {
		return acerrors.InputError("rating must be +1 or -1", nil)
	}
	seen := make(map[string]bool)
	var docs []string
	for _, c := range citations {
		if c.DocumentID != "" && !seen[c.DocumentID] {
			seen[c.DocumentID] = true
			docs = append(docs, c.DocumentID)
		}
	}
	return o.chunks.SaveFeedback(ctx, &store.Feedback{
		ID:          uuid.NewString(),
		UserID:      userID,
		Query:       query,
		Rating:      rating,
		Comment:     comment,
		DocumentIDs: docs,
	})
}

// StudyStats bundles feedback statistics for the stats surface.
type StudyStats struct {
	Feedback      *store.FeedbackStats  `json:"feedback"`
	WeakDocuments []*store.WeakDocument `json:"weak_documents"`
}

// Stats reports feedback aggregates since the given time.
func (o *Orchestrator) Stats(ctx context.Context, userID string, since time.Time) (*StudyStats, error) {
	fb, err := o.chunks.GetFeedbackStats(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	weak, err := o.chunks.WeakDocuments(ctx, userID, 2)
	if err != nil {
		return nil, err
	}
	return &StudyStats{Feedback: fb, WeakDocuments: weak}, nil
}

// summaryBudget caps how much chunk text feeds one summary call.
const summaryBudget = 6 * 1024

// Summarize produces a review summary of one document.
func (o *Orchestrator) Summarize(ctx context.Context, userID, docID string) (string, error) {
	if o.llm == nil {
		return "", acerrors.UnavailableError("no generation model configured", nil)
	}
	doc, err := o.chunks.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}
	if doc.UserID != userID {
		return "", acerrors.NotFoundError("document not found", nil)
	}
	if doc.Status != store.StatusReady {
		return "", acerrors.InputError("document is not ready yet", nil)
	}

	all, err := o.chunks.ListChunksByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, c := range all {
		if c.DocumentID != docID {
			continue
		}
		if b.Len()+len(c.Content) > summaryBudget {
			break
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	if b.Len() == 0 {
		return "", acerrors.InputError("document has no content to summarize", nil)
	}

	resp, err := o.llm.Complete(ctx, fmt.Sprintf(summaryPrompt, b.String()))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}
