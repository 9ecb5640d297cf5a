package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// SQLiteStore implements ChunkStore on a single SQLite database.
// WAL mode allows concurrent readers while ingestion writes.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Compile-time interface check.
var _ ChunkStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	title          TEXT NOT NULL,
	source_path    TEXT NOT NULL DEFAULT '',
	doc_type       TEXT NOT NULL,
	status         TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	size_bytes     INTEGER NOT NULL DEFAULT 0,
	chunk_count    INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	position      INTEGER NOT NULL,
	content       TEXT NOT NULL,
	section_title TEXT NOT NULL DEFAULT '',
	parent_id     TEXT NOT NULL DEFAULT '',
	is_parent     INTEGER NOT NULL DEFAULT 0,
	char_count    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, position);
CREATE INDEX IF NOT EXISTS idx_chunks_user ON chunks(user_id);

CREATE TABLE IF NOT EXISTS propositions (
	id          TEXT PRIMARY KEY,
	chunk_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	content     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_propositions_chunk ON propositions(chunk_id);
CREATE INDEX IF NOT EXISTS idx_propositions_document ON propositions(document_id);

CREATE TABLE IF NOT EXISTS triples (
	id          TEXT PRIMARY KEY,
	chunk_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	subject     TEXT NOT NULL,
	predicate   TEXT NOT NULL,
	object      TEXT NOT NULL,
	confidence  REAL NOT NULL DEFAULT 1.0
);
CREATE INDEX IF NOT EXISTS idx_triples_user ON triples(user_id);
CREATE INDEX IF NOT EXISTS idx_triples_document ON triples(document_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_triples_unique
	ON triples(user_id, subject, predicate, object);

CREATE TABLE IF NOT EXISTS feedback (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	query        TEXT NOT NULL,
	rating       INTEGER NOT NULL,
	comment      TEXT NOT NULL DEFAULT '',
	document_ids TEXT NOT NULL DEFAULT '[]',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_user ON feedback(user_id, created_at);

CREATE TABLE IF NOT EXISTS user_state (
	user_id         TEXT PRIMARY KEY,
	doc_set_version INTEGER NOT NULL DEFAULT 0
);
`

// NewSQLiteStore opens (or creates) the database at dataDir/academe.db.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "academe.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL must be set via PRAGMA statements for modernc.org/sqlite;
	// DSN parameters are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, acerrors.Wrap(acerrors.ErrCodeStoreCorrupt, err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveDocument inserts or replaces a document row.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
		(id, user_id, title, source_path, doc_type, status, failure_reason, size_bytes, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Title, doc.SourcePath, string(doc.DocType),
		string(doc.Status), doc.FailureReason, doc.SizeBytes, doc.ChunkCount,
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the document or a NotFound error.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, source_path, doc_type, status, failure_reason,
		       size_bytes, chunk_count, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, acerrors.NotFoundError(fmt.Sprintf("document %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns the user's documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, userID string) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, source_path, doc_type, status, failure_reason,
		       size_bytes, chunk_count, created_at, updated_at
		FROM documents WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// UpdateDocumentStatus transitions a document's lifecycle state.
// Transitioning to ready bumps the user's doc set version in the same
// transaction so cache and lexical staleness checks see them together.
func (s *SQLiteStore) UpdateDocumentStatus(ctx context.Context, id string, status DocStatus, failureReason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM documents WHERE id = ?`, id).Scan(&userID)
	if err == sql.ErrNoRows {
		return acerrors.NotFoundError(fmt.Sprintf("document %s not found", id), nil)
	}
	if err != nil {
		return fmt.Errorf("lookup document %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE documents SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ?`,
		string(status), failureReason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}

	if status == StatusReady {
		if err := bumpVersionTx(ctx, tx, userID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteDocument removes the document and all derived rows atomically.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var userID string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM documents WHERE id = ?`, id).Scan(&userID)
	if err == sql.ErrNoRows {
		return nil, acerrors.NotFoundError(fmt.Sprintf("document %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup document %s: %w", id, err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE document_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("list chunks for delete: %w", err)
	}
	var chunkIDs []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			rows.Close()
			return nil, err
		}
		chunkIDs = append(chunkIDs, cid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		`DELETE FROM propositions WHERE document_id = ?`,
		`DELETE FROM triples WHERE document_id = ?`,
		`DELETE FROM chunks WHERE document_id = ?`,
		`DELETE FROM documents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return nil, fmt.Errorf("delete document %s: %w", id, err)
		}
	}

	if err := bumpVersionTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}
	return chunkIDs, nil
}

// DeleteDerived removes a document's chunks, propositions, and triples
// while keeping the document row, so a failed ingest leaves only the
// failed document record behind.
func (s *SQLiteStore) DeleteDerived(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin derived delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM propositions WHERE document_id = ?`,
		`DELETE FROM triples WHERE document_id = ?`,
		`DELETE FROM chunks WHERE document_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, documentID); err != nil {
			return fmt.Errorf("delete derived rows for %s: %w", documentID, err)
		}
	}
	return tx.Commit()
}

// SaveChunks inserts chunks in a single transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunk save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, document_id, user_id, position, content, section_title, parent_id, is_parent, char_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		isParent := 0
		if c.IsParent {
			isParent = 1
		}
		if c.CharCount == 0 {
			c.CharCount = len(c.Content)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.UserID, c.Position,
			c.Content, c.SectionTitle, c.ParentID, isParent, c.CharCount); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

const chunkSelect = `
	SELECT c.id, c.document_id, c.user_id, c.position, c.content,
	       c.section_title, c.parent_id, c.is_parent, c.char_count,
	       COALESCE(d.title, '')
	FROM chunks c LEFT JOIN documents d ON d.id = c.document_id`

// GetChunk returns a single chunk with its document title.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelect+` WHERE c.id = ?`, id)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, acerrors.New(acerrors.ErrCodeChunkNotFound,
			fmt.Sprintf("chunk %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return chunk, nil
}

// GetChunks returns the chunks for the given IDs, skipping missing ones.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE c.id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve requested order
	result := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// GetAdjacent returns the previous and next sibling chunks in document order.
func (s *SQLiteStore) GetAdjacent(ctx context.Context, chunkID string) (*Chunk, *Chunk, error) {
	chunk, err := s.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE c.document_id = ? AND c.is_parent = 0 AND c.position IN (?, ?)`,
		chunk.DocumentID, chunk.Position-1, chunk.Position+1)
	if err != nil {
		return nil, nil, fmt.Errorf("get adjacent chunks: %w", err)
	}
	defer rows.Close()

	var prev, next *Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, nil, err
		}
		if c.Position < chunk.Position {
			prev = c
		} else {
			next = c
		}
	}
	return prev, next, rows.Err()
}

// GetParent returns the chunk's parent, or nil when it has none.
func (s *SQLiteStore) GetParent(ctx context.Context, chunkID string) (*Chunk, error) {
	chunk, err := s.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if chunk.ParentID == "" {
		return nil, nil
	}
	parent, err := s.GetChunk(ctx, chunk.ParentID)
	if err != nil {
		if acerrors.GetCode(err) == acerrors.ErrCodeChunkNotFound {
			return nil, nil
		}
		return nil, err
	}
	return parent, nil
}

// ListChunksByUser returns all retrievable chunks across ready documents.
func (s *SQLiteStore) ListChunksByUser(ctx context.Context, userID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelect+`
		WHERE c.user_id = ? AND c.is_parent = 0
		  AND d.status = 'ready'
		ORDER BY c.document_id, c.position`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for user %s: %w", userID, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// SavePropositions inserts propositions in one transaction.
func (s *SQLiteStore) SavePropositions(ctx context.Context, props []*Proposition) error {
	if len(props) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin proposition save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO propositions (id, chunk_id, document_id, user_id, content)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare proposition insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range props {
		if _, err := stmt.ExecContext(ctx, p.ID, p.ChunkID, p.DocumentID, p.UserID, p.Content); err != nil {
			return fmt.Errorf("insert proposition %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// PropositionsByChunk returns the propositions extracted from a chunk.
func (s *SQLiteStore) PropositionsByChunk(ctx context.Context, chunkID string) ([]*Proposition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chunk_id, document_id, user_id, content
		FROM propositions WHERE chunk_id = ?`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("propositions for chunk %s: %w", chunkID, err)
	}
	defer rows.Close()

	var props []*Proposition
	for rows.Next() {
		p := &Proposition{}
		if err := rows.Scan(&p.ID, &p.ChunkID, &p.DocumentID, &p.UserID, &p.Content); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// SaveTriples inserts knowledge-graph triples in one transaction.
// A triple already asserted anywhere in the user's namespace is
// skipped, so re-stated facts never accumulate.
func (s *SQLiteStore) SaveTriples(ctx context.Context, triples []*Triple) error {
	if len(triples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin triple save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO triples
		(id, chunk_id, document_id, user_id, subject, predicate, object, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare triple insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range triples {
		if _, err := stmt.ExecContext(ctx, t.ID, t.ChunkID, t.DocumentID, t.UserID,
			t.Subject, t.Predicate, t.Object, t.Confidence); err != nil {
			return fmt.Errorf("insert triple %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// TriplesByUser returns all triples across the user's documents.
func (s *SQLiteStore) TriplesByUser(ctx context.Context, userID string) ([]*Triple, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chunk_id, document_id, user_id, subject, predicate, object, confidence
		FROM triples WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("triples for user %s: %w", userID, err)
	}
	defer rows.Close()

	var triples []*Triple
	for rows.Next() {
		t := &Triple{}
		if err := rows.Scan(&t.ID, &t.ChunkID, &t.DocumentID, &t.UserID,
			&t.Subject, &t.Predicate, &t.Object, &t.Confidence); err != nil {
			return nil, err
		}
		triples = append(triples, t)
	}
	return triples, rows.Err()
}

// DocSetVersion returns the user's current document set version.
func (s *SQLiteStore) DocSetVersion(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_set_version FROM user_state WHERE user_id = ?`, userID).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("doc set version for %s: %w", userID, err)
	}
	return version, nil
}

// BumpDocSetVersion advances and returns the user's document set version.
func (s *SQLiteStore) BumpDocSetVersion(ctx context.Context, userID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin version bump: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := bumpVersionTx(ctx, tx, userID); err != nil {
		return 0, err
	}

	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT doc_set_version FROM user_state WHERE user_id = ?`, userID).Scan(&version); err != nil {
		return 0, fmt.Errorf("read bumped version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

func bumpVersionTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_state (user_id, doc_set_version) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET doc_set_version = doc_set_version + 1`, userID)
	if err != nil {
		return fmt.Errorf("bump doc set version: %w", err)
	}
	return nil
}

// SaveFeedback records an answer rating.
func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *Feedback) error {
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	docIDs, err := json.Marshal(fb.DocumentIDs)
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, user_id, query, rating, comment, document_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.UserID, fb.Query, fb.Rating, fb.Comment, string(docIDs), fb.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// GetFeedbackStats summarizes feedback since the given time.
func (s *SQLiteStore) GetFeedbackStats(ctx context.Context, userID string, since time.Time) (*FeedbackStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rating FROM feedback WHERE user_id = ? AND created_at >= ?`,
		userID, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}
	defer rows.Close()

	stats := &FeedbackStats{}
	for rows.Next() {
		var rating int
		if err := rows.Scan(&rating); err != nil {
			return nil, err
		}
		stats.Total++
		if rating > 0 {
			stats.Positive++
		} else {
			stats.Negative++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		stats.SatisfactionRate = float64(stats.Positive) / float64(stats.Total)
	}
	return stats, nil
}

// WeakDocuments reports documents cited in at least minNegatives negative answers.
func (s *SQLiteStore) WeakDocuments(ctx context.Context, userID string, minNegatives int) ([]*WeakDocument, error) {
	counts, err := s.NegativeDocumentIDs(ctx, userID, minNegatives)
	if err != nil {
		return nil, err
	}

	var weak []*WeakDocument
	for docID, n := range counts {
		title := ""
		if doc, err := s.GetDocument(ctx, docID); err == nil {
			title = doc.Title
		}
		weak = append(weak, &WeakDocument{DocumentID: docID, Title: title, NegativeCount: n})
	}
	return weak, nil
}

// NegativeDocumentIDs counts negative feedback mentions per document.
func (s *SQLiteStore) NegativeDocumentIDs(ctx context.Context, userID string, minNegatives int) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_ids FROM feedback WHERE user_id = ? AND rating < 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("negative feedback: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			continue // tolerate malformed rows
		}
		for _, id := range ids {
			counts[id]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id, n := range counts {
		if n < minNegatives {
			delete(counts, id)
		}
	}
	return counts, nil
}

// ReapStuck fails documents stuck in processing since before the cutoff.
func (s *SQLiteStore) ReapStuck(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents WHERE status = 'processing' AND updated_at < ?`,
		before.Unix())
	if err != nil {
		return nil, fmt.Errorf("find stuck documents: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if err := s.UpdateDocumentStatus(ctx, id, StatusFailed, "processing timed out"); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	doc := &Document{}
	var docType, status string
	var createdAt, updatedAt int64
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.SourcePath, &docType,
		&status, &doc.FailureReason, &doc.SizeBytes, &doc.ChunkCount,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.DocType = DocType(docType)
	doc.Status = DocStatus(status)
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return doc, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	c := &Chunk{}
	var isParent int
	err := row.Scan(&c.ID, &c.DocumentID, &c.UserID, &c.Position, &c.Content,
		&c.SectionTitle, &c.ParentID, &isParent, &c.CharCount, &c.DocTitle)
	if err != nil {
		return nil, err
	}
	c.IsParent = isParent == 1
	return c, nil
}
