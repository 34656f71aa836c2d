package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) Catalog {
	t.Helper()
	cat, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })
	return cat
}

func testDocument(id string) *Document {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Document{
		ID:          id,
		SourcePath:  "/data/" + id + ".txt",
		Filename:    id + ".txt",
		DocType:     "txt",
		ContentHash: "hash-" + id,
		FileSize:    1234,
		NumPages:    2,
		CreatedAt:   now,
		ModifiedAt:  now,
		IngestedAt:  now,
		Metadata:    map[string]string{"source": "unit-test"},
	}
}

func testChunk(docID string, index int) *Chunk {
	return &Chunk{
		ID:         fmt.Sprintf("chunk-%s-%d", docID, index),
		DocumentID: docID,
		Text:       fmt.Sprintf("chunk %d of %s", index, docID),
		ChunkIndex: index,
		ChunkHash:  fmt.Sprintf("h-%s-%d", docID, index),
		ChunkType:  "text",
		StartPage:  1,
		EndPage:    1,
		CharCount:  20,
		TokenCount: 5,
		Metadata:   map[string]string{"lang": "en"},
	}
}

// TS01: Document round trip including metadata and timestamps
func TestCatalogDocumentRoundTrip(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	doc := testDocument("d1")
	require.NoError(t, cat.AddDocument(ctx, doc))

	got, ok, err := cat.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, doc.SourcePath, got.SourcePath)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, doc.FileSize, got.FileSize)
	assert.Equal(t, doc.NumPages, got.NumPages)
	assert.Equal(t, doc.Metadata, got.Metadata)
	assert.True(t, doc.IngestedAt.Equal(got.IngestedAt))
}

// TS02: Point lookups report absence with a boolean
func TestCatalogMissingLookups(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	_, ok, err := cat.GetDocument(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cat.GetDocumentBySource(ctx, "/no/such/file")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cat.GetChunk(ctx, "chunk-ghost-0")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TS03: AddDocument is an upsert by ID
func TestCatalogDocumentUpsert(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	doc := testDocument("d1")
	require.NoError(t, cat.AddDocument(ctx, doc))

	doc.ContentHash = "hash-v2"
	doc.NumPages = 3
	require.NoError(t, cat.AddDocument(ctx, doc))

	got, ok, err := cat.GetDocument(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hash-v2", got.ContentHash)
	assert.Equal(t, 3, got.NumPages)

	docCount, _, err := cat.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docCount)
}

// TS04: Source path lookup
func TestCatalogGetDocumentBySource(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddDocument(ctx, testDocument("d2")))

	got, ok, err := cat.GetDocumentBySource(ctx, "/data/d2.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d2", got.ID)
}

// TS05: Chunk insert, duplicate rejection, round trip
func TestCatalogChunks(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{
		testChunk("d1", 0), testChunk("d1", 1), testChunk("d1", 2),
	}))

	// Duplicate primary key is a typed error.
	err := cat.AddChunk(ctx, testChunk("d1", 1))
	var dup ErrDuplicateChunk
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "chunk-d1-1", dup.ID)

	got, ok, err := cat.GetChunk(ctx, "chunk-d1-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "d1", got.DocumentID)
	assert.Equal(t, 1, got.ChunkIndex)
	assert.Equal(t, map[string]string{"lang": "en"}, got.Metadata)
}

// TS06: A duplicate anywhere aborts the whole batch
func TestCatalogAddChunksAtomic(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunk(ctx, testChunk("d1", 0)))

	err := cat.AddChunks(ctx, []*Chunk{testChunk("d1", 1), testChunk("d1", 0)})
	require.Error(t, err)

	// chunk-d1-1 must not have been committed.
	_, ok, err := cat.GetChunk(ctx, "chunk-d1-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TS07: Batch retrieval preserves request order, missing IDs drop out
func TestCatalogGetChunksOrder(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{
		testChunk("d1", 0), testChunk("d1", 1), testChunk("d1", 2),
	}))

	got, err := cat.GetChunks(ctx, []string{"chunk-d1-2", "chunk-ghost", "chunk-d1-0"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "chunk-d1-2", got[0].ID)
	assert.Equal(t, "chunk-d1-0", got[1].ID)
}

// TS08: Chunk hashes per document
func TestCatalogGetChunkHashes(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddDocument(ctx, testDocument("d2")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{
		testChunk("d1", 0), testChunk("d1", 1), testChunk("d2", 0),
	}))

	hashes, err := cat.GetChunkHashes(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"chunk-d1-0": "h-d1-0",
		"chunk-d1-1": "h-d1-1",
	}, hashes)

	empty, err := cat.GetChunkHashes(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// TS09: Deleting a document removes its chunks
func TestCatalogDeleteDocumentCascade(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddDocument(ctx, testDocument("d2")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{
		testChunk("d1", 0), testChunk("d1", 1), testChunk("d2", 0),
	}))

	require.NoError(t, cat.DeleteDocument(ctx, "d1"))

	_, ok, err := cat.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := cat.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-d2-0"}, ids)

	docs, chunks, err := cat.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunks)
}

// TS10: GetChunksByDocument orders by chunk index
func TestCatalogChunksByDocument(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{
		testChunk("d1", 2), testChunk("d1", 0), testChunk("d1", 1),
	}))

	chunks, err := cat.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}

// TS11: DeleteChunks ignores unknown IDs
func TestCatalogDeleteChunks(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{testChunk("d1", 0), testChunk("d1", 1)}))

	require.NoError(t, cat.DeleteChunks(ctx, []string{"chunk-d1-0", "chunk-ghost"}))

	ids, err := cat.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-d1-1"}, ids)
}

// TS11a: ReplaceChunks overwrites superseded rows and inserts new ones in one call
func TestCatalogReplaceChunks(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{testChunk("d1", 0), testChunk("d1", 1)}))

	revised := testChunk("d1", 1)
	revised.Text = "revised body"
	revised.ChunkHash = "h-d1-1-v2"
	require.NoError(t, cat.ReplaceChunks(ctx, []*Chunk{revised, testChunk("d1", 2)}))

	got, err := cat.GetChunksByDocument(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "chunk 0 of d1", got[0].Text)
	assert.Equal(t, "revised body", got[1].Text)
	assert.Equal(t, "h-d1-1-v2", got[1].ChunkHash)
	assert.Equal(t, "chunk-d1-2", got[2].ID)

	// No-op replace leaves everything in place.
	require.NoError(t, cat.ReplaceChunks(ctx, nil))
	ids, err := cat.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

// TS11b: SearchChunks applies conjunctive filters with substring match
func TestCatalogSearchChunks(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddDocument(ctx, testDocument("d2")))

	alpha := testChunk("d1", 0)
	alpha.Text = "the vacuum process reclaims pages"
	beta := testChunk("d1", 1)
	beta.Text = "checkpoints flush dirty pages"
	beta.ChunkType = "header"
	gamma := testChunk("d2", 0)
	gamma.Text = "vacuum scheduling and autovacuum"
	require.NoError(t, cat.AddChunks(ctx, []*Chunk{alpha, beta, gamma}))

	// Substring match alone spans documents.
	got, err := cat.SearchChunks(ctx, ChunkQuery{Text: "vacuum"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "chunk-d1-0", got[0].ID)
	assert.Equal(t, "chunk-d2-0", got[1].ID)

	// Conditions are ANDed.
	got, err = cat.SearchChunks(ctx, ChunkQuery{Text: "vacuum", DocumentID: "d2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "chunk-d2-0", got[0].ID)

	got, err = cat.SearchChunks(ctx, ChunkQuery{ChunkType: "header"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "chunk-d1-1", got[0].ID)

	// No conditions scans everything, capped by Limit.
	got, err = cat.SearchChunks(ctx, ChunkQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = cat.SearchChunks(ctx, ChunkQuery{Text: "no such phrase"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TS12: Catalog survives reopen
func TestCatalogReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	cat, err := NewSQLiteCatalog(path)
	require.NoError(t, err)
	require.NoError(t, cat.AddDocument(ctx, testDocument("d1")))
	require.NoError(t, cat.AddChunk(ctx, testChunk("d1", 0)))
	require.NoError(t, cat.Close())

	reopened, err := NewSQLiteCatalog(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := reopened.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk-d1-0"}, ids)
}

// TS13: Operations after Close fail with ErrCatalogClosed
func TestCatalogClosed(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, cat.Close())
	require.NoError(t, cat.Close()) // idempotent

	err := cat.AddDocument(ctx, testDocument("d1"))
	assert.True(t, errors.Is(err, ErrCatalogClosed))
	_, _, err = cat.GetChunk(ctx, "x")
	assert.True(t, errors.Is(err, ErrCatalogClosed))
}

// TS14: Placeholder rebinding for the postgres dialect
func TestPostgresRebind(t *testing.T) {
	d := postgresDialect{}
	assert.Equal(t, "SELECT 1", d.rebind("SELECT 1"))
	assert.Equal(t,
		"INSERT INTO t (a, b) VALUES ($1, $2)",
		d.rebind("INSERT INTO t (a, b) VALUES (?, ?)"))
	assert.Equal(t,
		"DELETE FROM t WHERE id IN ($1,$2,$3)",
		d.rebind("DELETE FROM t WHERE id IN (?,?,?)"))
}
