package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/academe-ai/academe/internal/answer"
	"github.com/academe-ai/academe/internal/store"
	"github.com/academe-ai/academe/internal/telemetry"
)

// toolDefs names every tool the server registers.
var toolDefs = []struct {
	name        string
	description string
}{
	{
		name:        "ask",
		description: "Ask a question about the user's study material. Answers are grounded in uploaded documents and carry numbered citations back to the source passages.",
	},
	{
		name:        "upload_document",
		description: "Upload study material (textbook chapters, papers, lecture notes, code). Ingestion runs in the background; poll document_status until the document is ready.",
	},
	{
		name:        "document_status",
		description: "Check the ingestion status of one document: queued, processing, ready, or failed.",
	},
	{
		name:        "list_documents",
		description: "List the user's uploaded documents with their ingestion state.",
	},
	{
		name:        "delete_document",
		description: "Delete a document and everything derived from it (chunks, vectors, knowledge graph triples).",
	},
	{
		name:        "rate_answer",
		description: "Record thumbs-up (+1) or thumbs-down (-1) feedback on an answer. Negative feedback demotes the cited documents in future retrieval.",
	},
	{
		name:        "summarize_document",
		description: "Generate a study summary of one ready document.",
	},
	{
		name:        "study_stats",
		description: "Report feedback aggregates and weak documents for a user.",
	},
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	UserID           string `json:"user_id" jsonschema:"the user whose documents are searched"`
	Question         string `json:"question" jsonschema:"the question to answer"`
	ConversationHint string `json:"conversation_hint,omitempty" jsonschema:"recent conversation context used to resolve pronouns and follow-up references"`
	NoCache          bool   `json:"no_cache,omitempty" jsonschema:"bypass the response cache and answer fresh"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Text        string             `json:"text" jsonschema:"the answer text with [n] citation markers"`
	Citations   []answer.Citation  `json:"citations" jsonschema:"source passages backing the answer"`
	Diagnostics answer.Diagnostics `json:"diagnostics" jsonschema:"how the answer was produced"`
}

// UploadInput is the input schema for upload_document.
type UploadInput struct {
	UserID  string `json:"user_id" jsonschema:"the owning user"`
	Title   string `json:"title" jsonschema:"document title shown in citations"`
	Content string `json:"content" jsonschema:"full plain-text content of the document"`
}

// UploadOutput is the output schema for upload_document.
type UploadOutput struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status" jsonschema:"initial ingestion status, normally pending"`
}

// DocumentRef identifies one document for a user.
type DocumentRef struct {
	UserID     string `json:"user_id" jsonschema:"the owning user"`
	DocumentID string `json:"document_id" jsonschema:"the document to operate on"`
}

// DocumentOutput describes one document's state.
type DocumentOutput struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	DocType       string `json:"doc_type"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
	SizeBytes     int64  `json:"size_bytes"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// ListInput is the input schema for list_documents.
type ListInput struct {
	UserID string `json:"user_id" jsonschema:"the owning user"`
}

// ListOutput is the output schema for list_documents.
type ListOutput struct {
	Documents []DocumentOutput `json:"documents"`
}

// DeleteOutput is the output schema for delete_document.
type DeleteOutput struct {
	Deleted bool `json:"deleted"`
}

// RateInput is the input schema for rate_answer.
type RateInput struct {
	UserID      string   `json:"user_id" jsonschema:"the rating user"`
	Question    string   `json:"question" jsonschema:"the question the rated answer responded to"`
	Rating      int      `json:"rating" jsonschema:"+1 for helpful, -1 for unhelpful"`
	Comment     string   `json:"comment,omitempty" jsonschema:"optional free-form comment"`
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"documents cited by the rated answer"`
}

// RateOutput is the output schema for rate_answer.
type RateOutput struct {
	Recorded bool `json:"recorded"`
}

// SummarizeOutput is the output schema for summarize_document.
type SummarizeOutput struct {
	Summary string `json:"summary"`
}

// StatsInput is the input schema for study_stats.
type StatsInput struct {
	UserID     string `json:"user_id" jsonschema:"the user to report on"`
	SinceHours int    `json:"since_hours,omitempty" jsonschema:"look-back window in hours, default 720"`
}

// StatsOutput is the output schema for study_stats.
type StatsOutput struct {
	Stats *answer.StudyStats `json:"stats"`
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[0].name, Description: toolDefs[0].description}, s.askHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[1].name, Description: toolDefs[1].description}, s.uploadHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[2].name, Description: toolDefs[2].description}, s.statusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[3].name, Description: toolDefs[3].description}, s.listHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[4].name, Description: toolDefs[4].description}, s.deleteHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[5].name, Description: toolDefs[5].description}, s.rateHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[6].name, Description: toolDefs[6].description}, s.summarizeHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: toolDefs[7].name, Description: toolDefs[7].description}, s.statsHandler)
	s.logger.Info("mcp_tools_registered", slog.Int("count", len(toolDefs)))
}

func (s *Server) askHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult, AskOutput, error,
) {
	if input.UserID == "" {
		return nil, AskOutput{}, NewInvalidParamsError("user_id is required")
	}
	if input.Question == "" {
		return nil, AskOutput{}, NewInvalidParamsError("question is required")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("ask_started",
		slog.String("request_id", requestID),
		slog.String("user_id", input.UserID))

	var opts []answer.AskOption
	if input.ConversationHint != "" {
		opts = append(opts, answer.WithConversationHint(input.ConversationHint))
	}
	if input.NoCache {
		opts = append(opts, answer.WithoutCache())
	}
	ans, err := s.answers.Ask(ctx, input.UserID, input.Question, opts...)
	if err != nil {
		s.logger.Error("ask_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, AskOutput{}, MapError(err)
	}

	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics != nil {
		metrics.Record(telemetry.AnswerEvent{
			UserID:        input.UserID,
			Query:         input.Question,
			Strategy:      ans.Diagnostics.Strategy,
			QueryType:     ans.Diagnostics.QueryType,
			CacheHit:      ans.Diagnostics.CacheHit,
			Degraded:      ans.Diagnostics.Degraded,
			LowConfidence: ans.Diagnostics.LowConfidence,
			Citations:     len(ans.Citations),
			Latency:       time.Since(start),
			Timestamp:     time.Now(),
		})
	}

	s.logger.Info("ask_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.String("strategy", ans.Diagnostics.Strategy))

	return nil, AskOutput{
		Text:        ans.Text,
		Citations:   ans.Citations,
		Diagnostics: ans.Diagnostics,
	}, nil
}

func (s *Server) uploadHandler(ctx context.Context, _ *mcp.CallToolRequest, input UploadInput) (
	*mcp.CallToolResult, UploadOutput, error,
) {
	if input.UserID == "" {
		return nil, UploadOutput{}, NewInvalidParamsError("user_id is required")
	}

	docID, err := s.ingest.Upload(ctx, input.UserID, input.Title, "", input.Content)
	if err != nil {
		return nil, UploadOutput{}, MapError(err)
	}

	s.logger.Info("upload_accepted",
		slog.String("user_id", input.UserID),
		slog.String("doc_id", docID))
	return nil, UploadOutput{DocumentID: docID, Status: string(store.StatusPending)}, nil
}

func (s *Server) statusHandler(ctx context.Context, _ *mcp.CallToolRequest, input DocumentRef) (
	*mcp.CallToolResult, DocumentOutput, error,
) {
	doc, err := s.ownedDocument(ctx, input)
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	return nil, toDocumentOutput(doc), nil
}

func (s *Server) listHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListInput) (
	*mcp.CallToolResult, ListOutput, error,
) {
	if input.UserID == "" {
		return nil, ListOutput{}, NewInvalidParamsError("user_id is required")
	}

	docs, err := s.docs.ListDocuments(ctx, input.UserID)
	if err != nil {
		return nil, ListOutput{}, MapError(err)
	}

	out := ListOutput{Documents: make([]DocumentOutput, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, toDocumentOutput(d))
	}
	return nil, out, nil
}

func (s *Server) deleteHandler(ctx context.Context, _ *mcp.CallToolRequest, input DocumentRef) (
	*mcp.CallToolResult, DeleteOutput, error,
) {
	if _, err := s.ownedDocument(ctx, input); err != nil {
		return nil, DeleteOutput{}, err
	}
	if err := s.ingest.Delete(ctx, input.DocumentID); err != nil {
		return nil, DeleteOutput{}, MapError(err)
	}
	s.logger.Info("document_deleted",
		slog.String("user_id", input.UserID),
		slog.String("doc_id", input.DocumentID))
	return nil, DeleteOutput{Deleted: true}, nil
}

func (s *Server) rateHandler(ctx context.Context, _ *mcp.CallToolRequest, input RateInput) (
	*mcp.CallToolResult, RateOutput, error,
) {
	if input.UserID == "" {
		return nil, RateOutput{}, NewInvalidParamsError("user_id is required")
	}

	citations := make([]answer.Citation, 0, len(input.DocumentIDs))
	for _, id := range input.DocumentIDs {
		citations = append(citations, answer.Citation{DocumentID: id})
	}
	if err := s.answers.Rate(ctx, input.UserID, input.Question, input.Rating, input.Comment, citations); err != nil {
		return nil, RateOutput{}, MapError(err)
	}
	return nil, RateOutput{Recorded: true}, nil
}

func (s *Server) summarizeHandler(ctx context.Context, _ *mcp.CallToolRequest, input DocumentRef) (
	*mcp.CallToolResult, SummarizeOutput, error,
) {
	if input.UserID == "" || input.DocumentID == "" {
		return nil, SummarizeOutput{}, NewInvalidParamsError("user_id and document_id are required")
	}

	summary, err := s.answers.Summarize(ctx, input.UserID, input.DocumentID)
	if err != nil {
		return nil, SummarizeOutput{}, MapError(err)
	}
	return nil, SummarizeOutput{Summary: summary}, nil
}

func (s *Server) statsHandler(ctx context.Context, _ *mcp.CallToolRequest, input StatsInput) (
	*mcp.CallToolResult, StatsOutput, error,
) {
	if input.UserID == "" {
		return nil, StatsOutput{}, NewInvalidParamsError("user_id is required")
	}

	hours := input.SinceHours
	if hours <= 0 {
		hours = 720 // 30 days
	}
	stats, err := s.answers.Stats(ctx, input.UserID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	return nil, StatsOutput{Stats: stats}, nil
}

// ownedDocument resolves a document reference and enforces ownership.
// Documents belonging to other users are reported as not found.
func (s *Server) ownedDocument(ctx context.Context, ref DocumentRef) (*store.Document, error) {
	if ref.UserID == "" || ref.DocumentID == "" {
		return nil, NewInvalidParamsError("user_id and document_id are required")
	}
	doc, err := s.ingest.Status(ctx, ref.DocumentID)
	if err != nil {
		return nil, MapError(err)
	}
	if doc.UserID != ref.UserID {
		return nil, &MCPError{Code: ErrCodeDocumentNotFound, Message: "Document not found."}
	}
	return doc, nil
}

func toDocumentOutput(d *store.Document) DocumentOutput {
	out := DocumentOutput{
		ID:            d.ID,
		Title:         d.Title,
		DocType:       string(d.DocType),
		Status:        string(d.Status),
		FailureReason: d.FailureReason,
		ChunkCount:    d.ChunkCount,
		SizeBytes:     d.SizeBytes,
	}
	if !d.UpdatedAt.IsZero() {
		out.UpdatedAt = d.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
