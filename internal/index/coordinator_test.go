package index

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docpull/docpull/internal/chunk"
	"github.com/docpull/docpull/internal/embed"
	"github.com/docpull/docpull/internal/hashing"
	"github.com/docpull/docpull/internal/parse"
	"github.com/docpull/docpull/internal/store"
)

type testHarness struct {
	coordinator *Coordinator
	catalog     store.Catalog
	index       store.VectorIndex
	dataDir     string
	docsDir     string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	dataDir := t.TempDir()
	docsDir := t.TempDir()

	embedder := embed.NewStaticEmbedder()
	index, err := store.NewVectorIndex(store.IndexConfig{
		Kind:       store.IndexFlat,
		Dimensions: embedder.Dimensions(),
		Metric:     store.MetricIP,
	})
	require.NoError(t, err)

	catalog, err := store.NewSQLiteCatalog(filepath.Join(dataDir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	chunker, err := chunk.New(chunk.StrategyBoundary, chunk.Options{
		ChunkSize:    64,
		ChunkOverlap: 8,
		MinChunkSize: 8,
	})
	require.NoError(t, err)

	hasher, err := hashing.NewHasher(hashing.SHA256)
	require.NoError(t, err)

	coordinator, err := NewCoordinator(CoordinatorConfig{
		Catalog:   catalog,
		Index:     index,
		Embedder:  embedder,
		Chunker:   chunker,
		Parsers:   parse.NewRegistry(),
		Hasher:    hasher,
		IndexPath: filepath.Join(dataDir, "vectors.idx"),
	})
	require.NoError(t, err)

	return &testHarness{
		coordinator: coordinator,
		catalog:     catalog,
		index:       index,
		dataDir:     dataDir,
		docsDir:     docsDir,
	}
}

func (h *testHarness) writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.docsDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const sampleText = "Postgres uses write ahead logging for crash recovery. " +
	"The checkpointer flushes dirty pages to disk on a schedule. " +
	"Vacuum reclaims storage held by dead row versions. " +
	"Autovacuum triggers on table activity thresholds."

// TS01: fresh file is parsed, chunked, embedded and persisted end to end
func TestIngestNewFile(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	path := h.writeDoc(t, "postgres.txt", sampleText)

	stats, err := h.coordinator.IngestPath(ctx, path, map[string]string{"team": "infra"})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 1, stats.ProcessedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
	require.Greater(t, stats.TotalChunks, 0)
	assert.Equal(t, stats.TotalChunks, stats.NewChunks)
	assert.Equal(t, 0, stats.SkippedChunks)

	doc, found, err := h.catalog.GetDocumentBySource(ctx, path)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "postgres.txt", doc.Filename)
	assert.Equal(t, "txt", doc.DocType)
	assert.Equal(t, "infra", doc.Metadata["team"])
	assert.NotEmpty(t, doc.ContentHash)

	hashes, err := h.catalog.GetChunkHashes(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, hashes, stats.TotalChunks)
	assert.Equal(t, stats.TotalChunks, h.index.Len())

	// Snapshot was written after the mutation.
	_, err = os.Stat(filepath.Join(h.dataDir, "vectors.idx"))
	require.NoError(t, err)
}

// TS02: unchanged file is skipped entirely on re-ingest
func TestIngestUnchangedFileSkips(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	path := h.writeDoc(t, "postgres.txt", sampleText)

	first, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)

	second, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, second.ProcessedFiles)
	assert.Equal(t, 0, second.NewChunks)
	assert.Equal(t, first.TotalChunks, second.SkippedChunks)
	assert.Equal(t, first.TotalChunks, h.index.Len())
}

// TS03: only changed chunks are re-embedded when content shifts
func TestIngestModifiedFileReembedsChanged(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// Two form-feed separated pages so each page chunks independently.
	pageOne := "Alpha beta gamma delta epsilon zeta."
	pageTwo := "One two three four five six seven."
	path := h.writeDoc(t, "pages.txt", pageOne+"\f"+pageTwo)

	first, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.TotalChunks)

	doc, _, err := h.catalog.GetDocumentBySource(ctx, path)
	require.NoError(t, err)

	// Change only the second page.
	h.writeDoc(t, "pages.txt", pageOne+"\f"+"Eight nine ten eleven twelve.")
	second, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, second.TotalChunks)
	assert.Equal(t, 1, second.NewChunks)
	assert.Equal(t, 1, second.SkippedChunks)

	// Same document, same chunk count, index holds no extra live ids.
	after, _, err := h.catalog.GetDocumentBySource(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, after.ID)
	assert.NotEqual(t, doc.ContentHash, after.ContentHash)
	assert.Equal(t, 2, h.index.Len())
}

// TS04: shrinking a document deletes the trailing chunks everywhere
func TestIngestShrunkDocumentRemovesStaleChunks(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	path := h.writeDoc(t, "shrink.txt", "First page text here.\fSecond page text here.")
	first, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.TotalChunks)

	h.writeDoc(t, "shrink.txt", "First page text here.")
	second, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)
	require.Equal(t, 1, second.TotalChunks)

	doc, _, err := h.catalog.GetDocumentBySource(ctx, path)
	require.NoError(t, err)
	hashes, err := h.catalog.GetChunkHashes(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
	assert.Equal(t, 1, h.index.Len())

	report, err := h.coordinator.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

// TS05: directory ingest walks supported files and skips the rest
func TestIngestDirectory(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.writeDoc(t, "a.txt", "Document a talks about caching layers.")
	h.writeDoc(t, "b.md", "Document b covers storage engines.")
	h.writeDoc(t, "ignored.bin", "\x00\x01binary")

	stats, err := h.coordinator.IngestPath(ctx, h.docsDir, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.ProcessedFiles)
	assert.Equal(t, 0, stats.FailedFiles)

	docs, err := h.catalog.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

// TS06: glob ingest matches the pattern only
func TestIngestGlob(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.writeDoc(t, "keep-1.txt", "Kept file number one.")
	h.writeDoc(t, "keep-2.txt", "Kept file number two.")
	h.writeDoc(t, "other.md", "Not matched by the pattern.")

	stats, err := h.coordinator.IngestPath(ctx, filepath.Join(h.docsDir, "keep-*.txt"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 2, stats.ProcessedFiles)
}

// TS07: a missing path is an error, not an empty batch
func TestIngestMissingPath(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.coordinator.IngestPath(context.Background(),
		filepath.Join(h.docsDir, "nope.txt"), nil)
	require.Error(t, err)
}

// TS08: one unreadable file fails alone, the batch continues
func TestIngestPartialFailure(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.writeDoc(t, "good.txt", "Readable file contents.")
	// Broken symlink with a supported extension fails at stat time.
	bad := filepath.Join(h.docsDir, "bad.txt")
	require.NoError(t, os.Symlink(filepath.Join(h.docsDir, "gone.txt"), bad))

	stats, err := h.coordinator.IngestPath(ctx, h.docsDir, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalFiles)
	assert.Equal(t, 1, stats.ProcessedFiles)
	assert.Equal(t, 1, stats.FailedFiles)
}

// TS09: oversized files are rejected with a typed error
func TestIngestOversizedFile(t *testing.T) {
	h := newTestHarness(t)
	h.coordinator.config.MaxFileSize = 16

	path := h.writeDoc(t, "big.txt", strings.Repeat("padding text ", 100))
	stats, err := h.coordinator.IngestPath(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Equal(t, 0, stats.ProcessedFiles)
}

// TS10: RemoveDocument clears catalog and index together
func TestRemoveDocument(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	path := h.writeDoc(t, "doomed.txt", sampleText)
	_, err := h.coordinator.IngestPath(ctx, path, nil)
	require.NoError(t, err)

	doc, found, err := h.catalog.GetDocumentBySource(ctx, path)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, h.coordinator.RemoveDocument(ctx, doc.ID))

	_, found, err = h.catalog.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 0, h.index.Len())

	report, err := h.coordinator.Check(ctx)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

// TS11: Stats reflects catalog counts and live vector count
func TestCoordinatorStats(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.writeDoc(t, "one.txt", "Stats document one.")
	h.writeDoc(t, "two.txt", "Stats document two.")
	_, err := h.coordinator.IngestPath(ctx, h.docsDir, nil)
	require.NoError(t, err)

	stats, err := h.coordinator.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, stats.ChunkCount, stats.VectorCount)
	assert.Equal(t, store.IndexFlat, stats.IndexKind)
}

// TS12: constructor rejects missing dependencies
func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}
