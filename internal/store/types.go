// Package store persists documents, chunks, propositions, knowledge-graph
// triples, and feedback in SQLite. It is the durable layer behind the
// in-memory lexical and vector indexes.
package store

import (
	"context"
	"time"
)

// DocStatus is the lifecycle state of an uploaded document.
type DocStatus string

const (
	StatusPending    DocStatus = "pending"
	StatusProcessing DocStatus = "processing"
	StatusReady      DocStatus = "ready"
	StatusFailed     DocStatus = "failed"
)

// DocType classifies a document for chunking profile selection.
type DocType string

const (
	DocTypeTextbook DocType = "textbook"
	DocTypePaper    DocType = "paper"
	DocTypeNotes    DocType = "notes"
	DocTypeCode     DocType = "code"
	DocTypeGeneral  DocType = "general"
)

// Document represents an uploaded document owned by one user.
type Document struct {
	ID            string
	UserID        string
	Title         string
	SourcePath    string // original file path, empty for direct uploads
	DocType       DocType
	Status        DocStatus
	FailureReason string // set when Status is failed
	SizeBytes     int64
	ChunkCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk is a retrievable unit of document content.
// Child chunks carry ParentID when the chunking profile builds a
// parent/child hierarchy; parent chunks have IsParent set and are never
// indexed for retrieval directly.
type Chunk struct {
	ID           string // "{documentID}_{position}"
	DocumentID   string
	UserID       string
	Position     int // 0-based order within the document
	Content      string
	SectionTitle string
	DocTitle     string // denormalized for context enrichment
	ParentID     string // empty when the profile has no hierarchy
	IsParent     bool
	CharCount    int
}

// Proposition is an atomic factual statement extracted from a chunk.
type Proposition struct {
	ID         string
	ChunkID    string
	DocumentID string
	UserID     string
	Content    string
}

// Triple is a knowledge-graph edge extracted from a chunk.
type Triple struct {
	ID         string
	ChunkID    string
	DocumentID string
	UserID     string
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// Feedback records a user's rating of an answer.
type Feedback struct {
	ID          string
	UserID      string
	Query       string
	Rating      int // +1 or -1
	Comment     string
	DocumentIDs []string // documents cited by the rated answer
	CreatedAt   time.Time
}

// FeedbackStats summarizes recent feedback for a user.
type FeedbackStats struct {
	Total            int
	Positive         int
	Negative         int
	SatisfactionRate float64 // Positive / Total, 0 when no feedback
}

// WeakDocument is a document repeatedly cited in negatively rated answers.
type WeakDocument struct {
	DocumentID    string
	Title         string
	NegativeCount int
}

// ChunkStore is the persistence interface for all document-derived data.
type ChunkStore interface {
	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, userID string) ([]*Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status DocStatus, failureReason string) error
	// DeleteDocument removes the document and all derived rows, bumps the
	// user's doc set version, and returns the IDs of removed chunks so the
	// caller can delete their vectors.
	DeleteDocument(ctx context.Context, id string) ([]string, error)
	// DeleteDerived removes the chunks, propositions, and triples of one
	// document but keeps the document row, for failed-ingest rollback.
	DeleteDerived(ctx context.Context, documentID string) error

	// Chunk operations
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	// GetAdjacent returns the chunks immediately before and after the given
	// chunk within its document. Either may be nil at document boundaries.
	GetAdjacent(ctx context.Context, chunkID string) (prev, next *Chunk, err error)
	GetParent(ctx context.Context, chunkID string) (*Chunk, error)
	// ListChunksByUser returns all non-parent chunks across the user's
	// ready documents, for lexical index builds.
	ListChunksByUser(ctx context.Context, userID string) ([]*Chunk, error)

	// Proposition and triple operations
	SavePropositions(ctx context.Context, props []*Proposition) error
	PropositionsByChunk(ctx context.Context, chunkID string) ([]*Proposition, error)
	SaveTriples(ctx context.Context, triples []*Triple) error
	TriplesByUser(ctx context.Context, userID string) ([]*Triple, error)

	// DocSetVersion returns the user's monotonic document set version.
	// It advances whenever a document becomes ready or is deleted.
	DocSetVersion(ctx context.Context, userID string) (int64, error)
	BumpDocSetVersion(ctx context.Context, userID string) (int64, error)

	// Feedback operations
	SaveFeedback(ctx context.Context, fb *Feedback) error
	GetFeedbackStats(ctx context.Context, userID string, since time.Time) (*FeedbackStats, error)
	WeakDocuments(ctx context.Context, userID string, minNegatives int) ([]*WeakDocument, error)
	// NegativeDocumentIDs returns documents with at least minNegatives
	// negative ratings, for fusion-time demotion.
	NegativeDocumentIDs(ctx context.Context, userID string, minNegatives int) (map[string]int, error)

	// ReapStuck marks documents stuck in processing since before the cutoff
	// as failed. Returns the affected document IDs.
	ReapStuck(ctx context.Context, before time.Time) ([]string, error)

	Close() error
}
