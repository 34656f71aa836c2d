package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// sqlCatalog implements Catalog over database/sql. The SQL is written in
// SQLite placeholder style and rebound per dialect, so SQLite and
// PostgreSQL share one implementation.
type sqlCatalog struct {
	db      *sql.DB
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

var _ Catalog = (*sqlCatalog)(nil)

// dialect abstracts the differences between catalog backends.
type dialect interface {
	name() string
	// rebind converts ? placeholders to the backend's style.
	rebind(query string) string
}

type sqliteDialect struct{}

func (sqliteDialect) name() string               { return "sqlite" }
func (sqliteDialect) rebind(query string) string { return query }

type postgresDialect struct{}

func (postgresDialect) name() string { return "postgres" }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Timestamps are stored as RFC3339Nano text in both backends so the two
// schemas stay column-compatible.
const timeLayout = time.RFC3339Nano

var catalogSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		source_path  TEXT NOT NULL,
		filename     TEXT NOT NULL,
		doc_type     TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		file_size    BIGINT NOT NULL DEFAULT 0,
		num_pages    INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		modified_at  TEXT NOT NULL,
		ingested_at  TEXT NOT NULL,
		metadata     TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		text        TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_hash  TEXT NOT NULL,
		chunk_type  TEXT NOT NULL,
		start_page  INTEGER NOT NULL DEFAULT 0,
		end_page    INTEGER NOT NULL DEFAULT 0,
		char_count  INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		metadata    TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_chunk_type ON chunks(chunk_type)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path)`,
}

func newSQLCatalog(db *sql.DB, d dialect) (*sqlCatalog, error) {
	c := &sqlCatalog{db: db, dialect: d}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init %s catalog schema: %w", d.name(), err)
	}
	return c, nil
}

func (c *sqlCatalog) initSchema() error {
	for _, stmt := range catalogSchema {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

func (c *sqlCatalog) guard() error {
	if c.closed {
		return ErrCatalogClosed
	}
	return nil
}

func marshalMeta(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(raw), nil
}

func unmarshalMeta(raw string) (map[string]string, error) {
	if raw == "" || raw == "{}" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

// AddDocument inserts or updates a document record by ID.
func (c *sqlCatalog) AddDocument(ctx context.Context, doc *Document) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return err
	}
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	meta, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}

	query := c.dialect.rebind(`
		INSERT INTO documents
			(id, source_path, filename, doc_type, content_hash, file_size,
			 num_pages, created_at, modified_at, ingested_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			source_path  = excluded.source_path,
			filename     = excluded.filename,
			doc_type     = excluded.doc_type,
			content_hash = excluded.content_hash,
			file_size    = excluded.file_size,
			num_pages    = excluded.num_pages,
			modified_at  = excluded.modified_at,
			ingested_at  = excluded.ingested_at,
			metadata     = excluded.metadata`)

	_, err = c.db.ExecContext(ctx, query,
		doc.ID, doc.SourcePath, doc.Filename, doc.DocType, doc.ContentHash,
		doc.FileSize, doc.NumPages,
		doc.CreatedAt.UTC().Format(timeLayout),
		doc.ModifiedAt.UTC().Format(timeLayout),
		doc.IngestedAt.UTC().Format(timeLayout),
		meta)
	if err != nil {
		return fmt.Errorf("add document %s: %w", doc.ID, err)
	}
	return nil
}

const documentColumns = `id, source_path, filename, doc_type, content_hash,
	file_size, num_pages, created_at, modified_at, ingested_at, metadata`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var doc Document
	var created, modified, ingested, meta string
	err := row.Scan(&doc.ID, &doc.SourcePath, &doc.Filename, &doc.DocType,
		&doc.ContentHash, &doc.FileSize, &doc.NumPages,
		&created, &modified, &ingested, &meta)
	if err != nil {
		return nil, err
	}
	if doc.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.ModifiedAt, err = time.Parse(timeLayout, modified); err != nil {
		return nil, fmt.Errorf("parse modified_at: %w", err)
	}
	if doc.IngestedAt, err = time.Parse(timeLayout, ingested); err != nil {
		return nil, fmt.Errorf("parse ingested_at: %w", err)
	}
	if doc.Metadata, err = unmarshalMeta(meta); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument looks up a document by ID. Absence is reported with the
// boolean, not an error.
func (c *sqlCatalog) GetDocument(ctx context.Context, id string) (*Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, false, err
	}

	query := c.dialect.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE id = ?`)
	doc, err := scanDocument(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, true, nil
}

// GetDocumentBySource looks up a document by its source path.
func (c *sqlCatalog) GetDocumentBySource(ctx context.Context, sourcePath string) (*Document, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, false, err
	}

	query := c.dialect.rebind(`SELECT ` + documentColumns + ` FROM documents WHERE source_path = ?`)
	doc, err := scanDocument(c.db.QueryRowContext(ctx, query, sourcePath))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get document by source %s: %w", sourcePath, err)
	}
	return doc, true, nil
}

// ListDocuments returns all documents ordered by source path.
func (c *sqlCatalog) ListDocuments(ctx context.Context) ([]*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY source_path`
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and all its chunks. The chunk delete
// is explicit rather than relying on the FK cascade, which SQLite only
// honors with foreign_keys enabled.
func (c *sqlCatalog) DeleteDocument(ctx context.Context, id string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		c.dialect.rebind(`DELETE FROM chunks WHERE document_id = ?`), id); err != nil {
		return fmt.Errorf("delete chunks of document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		c.dialect.rebind(`DELETE FROM documents WHERE id = ?`), id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return tx.Commit()
}

// AddChunk inserts a single chunk. A duplicate ID is rejected with
// ErrDuplicateChunk.
func (c *sqlCatalog) AddChunk(ctx context.Context, chunk *Chunk) error {
	return c.AddChunks(ctx, []*Chunk{chunk})
}

// AddChunks inserts chunks in one transaction. Any duplicate ID aborts
// the whole batch.
func (c *sqlCatalog) AddChunks(ctx context.Context, chunks []*Chunk) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add chunks: %w", err)
	}
	defer tx.Rollback()

	existsStmt, err := tx.PrepareContext(ctx,
		c.dialect.rebind(`SELECT 1 FROM chunks WHERE id = ?`))
	if err != nil {
		return fmt.Errorf("prepare exists statement: %w", err)
	}
	defer existsStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, c.dialect.rebind(`
		INSERT INTO chunks
			(id, document_id, text, chunk_index, chunk_hash, chunk_type,
			 start_page, end_page, char_count, token_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	for _, chunk := range chunks {
		if chunk == nil || chunk.ID == "" {
			return fmt.Errorf("chunk ID is required")
		}
		var one int
		err := existsStmt.QueryRowContext(ctx, chunk.ID).Scan(&one)
		if err == nil {
			return ErrDuplicateChunk{ID: chunk.ID}
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check chunk %s: %w", chunk.ID, err)
		}

		meta, err := marshalMeta(chunk.Metadata)
		if err != nil {
			return err
		}
		if _, err := insertStmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Text, chunk.ChunkIndex,
			chunk.ChunkHash, chunk.ChunkType, chunk.StartPage, chunk.EndPage,
			chunk.CharCount, chunk.TokenCount, meta); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

// ReplaceChunks deletes any existing rows with the given chunks' IDs
// and inserts the new rows, all in one transaction. A crash mid-replace
// rolls back, so the old rows stay visible until the new ones commit.
func (c *sqlCatalog) ReplaceChunks(ctx context.Context, chunks []*Chunk) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace chunks: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.Repeat("?,", len(chunks))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(chunks))
	for i, chunk := range chunks {
		if chunk == nil || chunk.ID == "" {
			return fmt.Errorf("chunk ID is required")
		}
		args[i] = chunk.ID
	}
	if _, err := tx.ExecContext(ctx,
		c.dialect.rebind(`DELETE FROM chunks WHERE id IN (`+placeholders+`)`),
		args...); err != nil {
		return fmt.Errorf("delete replaced chunks: %w", err)
	}

	insertStmt, err := tx.PrepareContext(ctx, c.dialect.rebind(`
		INSERT INTO chunks
			(id, document_id, text, chunk_index, chunk_hash, chunk_type,
			 start_page, end_page, char_count, token_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare insert statement: %w", err)
	}
	defer insertStmt.Close()

	for _, chunk := range chunks {
		meta, err := marshalMeta(chunk.Metadata)
		if err != nil {
			return err
		}
		if _, err := insertStmt.ExecContext(ctx,
			chunk.ID, chunk.DocumentID, chunk.Text, chunk.ChunkIndex,
			chunk.ChunkHash, chunk.ChunkType, chunk.StartPage, chunk.EndPage,
			chunk.CharCount, chunk.TokenCount, meta); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

const chunkColumns = `id, document_id, text, chunk_index, chunk_hash,
	chunk_type, start_page, end_page, char_count, token_count, metadata`

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var ch Chunk
	var meta string
	err := row.Scan(&ch.ID, &ch.DocumentID, &ch.Text, &ch.ChunkIndex,
		&ch.ChunkHash, &ch.ChunkType, &ch.StartPage, &ch.EndPage,
		&ch.CharCount, &ch.TokenCount, &meta)
	if err != nil {
		return nil, err
	}
	if ch.Metadata, err = unmarshalMeta(meta); err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetChunk looks up one chunk by ID.
func (c *sqlCatalog) GetChunk(ctx context.Context, id string) (*Chunk, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, false, err
	}

	query := c.dialect.rebind(`SELECT ` + chunkColumns + ` FROM chunks WHERE id = ?`)
	chunk, err := scanChunk(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return chunk, true, nil
}

// GetChunks batch-fetches chunks, preserving the order of ids. IDs with
// no row are silently absent from the result.
func (c *sqlCatalog) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := c.dialect.rebind(
		`SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` + placeholders + `)`)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// GetChunksByDocument returns a document's chunks ordered by chunk_index.
func (c *sqlCatalog) GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	query := c.dialect.rebind(
		`SELECT ` + chunkColumns + ` FROM chunks WHERE document_id = ? ORDER BY chunk_index`)
	rows, err := c.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("get chunks by document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// GetChunkHashes returns the chunk ID to content hash mapping for a
// document. This is the read that powers differential ingestion.
func (c *sqlCatalog) GetChunkHashes(ctx context.Context, documentID string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	query := c.dialect.rebind(`SELECT id, chunk_hash FROM chunks WHERE document_id = ?`)
	rows, err := c.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("get chunk hashes for %s: %w", documentID, err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan chunk hash: %w", err)
		}
		hashes[id] = hash
	}
	return hashes, rows.Err()
}

// SearchChunks scans chunks with conjunctive filters: a substring match
// on the chunk text plus equality on chunk type and document ID. Results
// are ordered by document and chunk index and capped at q.Limit
// (DefaultChunkQueryLimit when unset).
func (c *sqlCatalog) SearchChunks(ctx context.Context, q ChunkQuery) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	var conditions []string
	var args []any
	if q.Text != "" {
		conditions = append(conditions, "text LIKE ?")
		args = append(args, "%"+q.Text+"%")
	}
	if q.ChunkType != "" {
		conditions = append(conditions, "chunk_type = ?")
		args = append(args, q.ChunkType)
	}
	if q.DocumentID != "" {
		conditions = append(conditions, "document_id = ?")
		args = append(args, q.DocumentID)
	}

	where := "1=1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultChunkQueryLimit
	}
	args = append(args, limit)

	query := c.dialect.rebind(`SELECT ` + chunkColumns + ` FROM chunks WHERE ` +
		where + ` ORDER BY document_id, chunk_index LIMIT ?`)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunks removes chunks by ID. Missing IDs are not errors.
func (c *sqlCatalog) DeleteChunks(ctx context.Context, ids []string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := c.dialect.rebind(`DELETE FROM chunks WHERE id IN (` + placeholders + `)`)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// ChunkIDs returns every chunk ID in the catalog.
func (c *sqlCatalog) ChunkIDs(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id FROM chunks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns document and chunk counts.
func (c *sqlCatalog) Stats(ctx context.Context) (int, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.guard(); err != nil {
		return 0, 0, err
	}

	var documents, chunks int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&documents); err != nil {
		return 0, 0, fmt.Errorf("count documents: %w", err)
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&chunks); err != nil {
		return 0, 0, fmt.Errorf("count chunks: %w", err)
	}
	return documents, chunks, nil
}

// Close shuts the catalog down. Further operations fail with
// ErrCatalogClosed.
func (c *sqlCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
