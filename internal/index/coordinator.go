// Package index coordinates differential ingestion: parsing, chunking,
// hashing and embedding documents, keeping the metadata catalog and the
// vector index in step. On re-ingest only chunks whose content hash
// changed are re-embedded.
package index

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docpull/docpull/internal/chunk"
	"github.com/docpull/docpull/internal/embed"
	docerrors "github.com/docpull/docpull/internal/errors"
	"github.com/docpull/docpull/internal/hashing"
	"github.com/docpull/docpull/internal/parse"
	"github.com/docpull/docpull/internal/store"
)

// DefaultMaxFileSize is the largest file the coordinator will read.
// Oversized files are skipped with a warning, not errors.
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// IngestStats summarizes one ingestion batch.
type IngestStats struct {
	TotalFiles     int `json:"total_files"`
	ProcessedFiles int `json:"processed_files"`
	FailedFiles    int `json:"failed_files"`
	TotalChunks    int `json:"total_chunks"`
	NewChunks      int `json:"new_chunks"`
	SkippedChunks  int `json:"skipped_chunks"`
}

func (s *IngestStats) merge(other IngestStats) {
	s.TotalFiles += other.TotalFiles
	s.ProcessedFiles += other.ProcessedFiles
	s.FailedFiles += other.FailedFiles
	s.TotalChunks += other.TotalChunks
	s.NewChunks += other.NewChunks
	s.SkippedChunks += other.SkippedChunks
}

// EngineStats reports catalog and index sizes.
type EngineStats struct {
	DocumentCount int             `json:"document_count"`
	ChunkCount    int             `json:"chunk_count"`
	VectorCount   int             `json:"vector_count"`
	IndexKind     store.IndexKind `json:"index_kind"`
}

// CoordinatorConfig contains the coordinator's dependencies.
type CoordinatorConfig struct {
	Catalog  store.Catalog
	Index    store.VectorIndex
	Embedder embed.Embedder
	Chunker  chunk.Chunker
	Parsers  *parse.Registry
	Hasher   *hashing.Hasher

	// IndexPath is where the vector index snapshot is saved after a
	// mutation. Empty disables snapshotting.
	IndexPath string

	// MaxFileSize caps readable file size. Zero means DefaultMaxFileSize.
	MaxFileSize int64

	// Concurrency bounds parallel file ingestion. Zero picks
	// min(4, NumCPU).
	Concurrency int

	Logger *slog.Logger
}

// Coordinator performs differential index updates.
type Coordinator struct {
	config CoordinatorConfig
	logger *slog.Logger

	// saveMu serializes snapshot writes across parallel file workers.
	saveMu sync.Mutex
}

// NewCoordinator creates a coordinator. Catalog, index, embedder,
// chunker, parsers and hasher are all required.
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	switch {
	case config.Catalog == nil:
		return nil, fmt.Errorf("coordinator: catalog is required")
	case config.Index == nil:
		return nil, fmt.Errorf("coordinator: vector index is required")
	case config.Embedder == nil:
		return nil, fmt.Errorf("coordinator: embedder is required")
	case config.Chunker == nil:
		return nil, fmt.Errorf("coordinator: chunker is required")
	case config.Parsers == nil:
		return nil, fmt.Errorf("coordinator: parser registry is required")
	case config.Hasher == nil:
		return nil, fmt.Errorf("coordinator: hasher is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{config: config, logger: logger}, nil
}

func (c *Coordinator) maxFileSize() int64 {
	if c.config.MaxFileSize > 0 {
		return c.config.MaxFileSize
	}
	return DefaultMaxFileSize
}

func (c *Coordinator) concurrency() int {
	if c.config.Concurrency > 0 {
		return c.config.Concurrency
	}
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// IngestPath ingests a file, a directory (recursively, supported
// extensions only) or a glob pattern. Individual file failures are
// counted and logged without aborting the batch. extraMeta is stored on
// every ingested document.
func (c *Coordinator) IngestPath(ctx context.Context, path string, extraMeta map[string]string) (*IngestStats, error) {
	files, err := c.resolveFiles(path)
	if err != nil {
		return nil, err
	}

	stats := &IngestStats{TotalFiles: len(files)}
	if len(files) == 0 {
		return stats, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())

	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fileStats, err := c.ingestFile(gctx, file, extraMeta)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.FailedFiles++
				c.logger.Warn("file ingestion failed",
					slog.String("path", file),
					slog.String("error", err.Error()))
				return nil
			}
			stats.merge(fileStats)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if stats.NewChunks > 0 {
		if err := c.saveIndex(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// resolveFiles expands path into the list of ingestable files.
func (c *Coordinator) resolveFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		var files []string
		walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && p != path {
					return filepath.SkipDir
				}
				return nil
			}
			if c.config.Parsers.Supported(p) {
				files = append(files, p)
			}
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %s: %w", path, walkErr)
		}
		sort.Strings(files)
		return files, nil

	case err == nil:
		return []string{path}, nil

	default:
		matches, globErr := filepath.Glob(path)
		if globErr != nil {
			return nil, docerrors.New(docerrors.ErrCodeInvalidPath,
				fmt.Sprintf("invalid path pattern %q", path), globErr)
		}
		if len(matches) == 0 {
			return nil, docerrors.New(docerrors.ErrCodeFileNotFound,
				fmt.Sprintf("no files match %q", path), err)
		}
		var files []string
		for _, m := range matches {
			if mi, statErr := os.Stat(m); statErr == nil && !mi.IsDir() && c.config.Parsers.Supported(m) {
				files = append(files, m)
			}
		}
		sort.Strings(files)
		return files, nil
	}
}

// ingestFile runs the per-document differential flow.
func (c *Coordinator) ingestFile(ctx context.Context, path string, extraMeta map[string]string) (IngestStats, error) {
	var stats IngestStats

	absPath, err := filepath.Abs(path)
	if err != nil {
		return stats, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return stats, fmt.Errorf("stat %s: %w", absPath, err)
	}
	if info.Size() > c.maxFileSize() {
		return stats, docerrors.New(docerrors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s exceeds the %d byte limit", absPath, c.maxFileSize()), nil).
			WithDetail("size", fmt.Sprintf("%d", info.Size()))
	}

	parsed, err := c.config.Parsers.Parse(ctx, absPath)
	if err != nil {
		return stats, err
	}
	contentHash := c.config.Hasher.HashDocument(parsed.Pages)

	existing, found, err := c.config.Catalog.GetDocumentBySource(ctx, absPath)
	if err != nil {
		return stats, fmt.Errorf("look up document: %w", err)
	}
	if found && existing.ContentHash == contentHash {
		chunkCount := 0
		if hashes, err := c.config.Catalog.GetChunkHashes(ctx, existing.ID); err == nil {
			chunkCount = len(hashes)
		}
		stats.ProcessedFiles = 1
		stats.TotalChunks = chunkCount
		stats.SkippedChunks = chunkCount
		c.logger.Debug("document unchanged, skipping",
			slog.String("path", absPath),
			slog.String("document_id", existing.ID))
		return stats, nil
	}

	docID := uuid.NewString()
	if found {
		docID = existing.ID
	}

	chunks, err := c.chunkDocument(docID, parsed)
	if err != nil {
		return stats, err
	}
	stats.TotalChunks = len(chunks)

	current := make([]hashing.ChunkRef, len(chunks))
	for i, ch := range chunks {
		current[i] = hashing.ChunkRef{ID: ch.ID, Hash: ch.ChunkHash}
	}

	var previous []hashing.ChunkRef
	prevHashes := map[string]string{}
	if found {
		prevHashes, err = c.config.Catalog.GetChunkHashes(ctx, docID)
		if err != nil {
			return stats, fmt.Errorf("load chunk hashes: %w", err)
		}
		previous = make([]hashing.ChunkRef, 0, len(prevHashes))
		for i := 0; i < len(prevHashes); i++ {
			id := chunkID(docID, i)
			hash, ok := prevHashes[id]
			if !ok {
				// Ids are not the expected dense sequence; force a full
				// re-embed by breaking positional comparison.
				previous = nil
				break
			}
			previous = append(previous, hashing.ChunkRef{ID: id, Hash: hash})
		}
	}

	changed := hashing.DetectChanged(previous, current)
	stats.NewChunks = len(changed)
	stats.SkippedChunks = len(chunks) - len(changed)

	doc := &store.Document{
		ID:          docID,
		SourcePath:  absPath,
		Filename:    filepath.Base(absPath),
		DocType:     parsed.DocType,
		ContentHash: contentHash,
		FileSize:    info.Size(),
		NumPages:    parsed.NumPages,
		CreatedAt:   time.Now().UTC(),
		ModifiedAt:  info.ModTime().UTC(),
		IngestedAt:  time.Now().UTC(),
		Metadata:    extraMeta,
	}
	if found {
		doc.CreatedAt = existing.CreatedAt
	}
	if err := c.config.Catalog.AddDocument(ctx, doc); err != nil {
		return stats, fmt.Errorf("save document: %w", err)
	}

	if len(changed) > 0 {
		if err := c.applyChanged(ctx, chunks, changed); err != nil {
			return stats, err
		}
	}

	// Chunks beyond the new count exist only if the document shrank.
	if stale := staleChunkIDs(docID, prevHashes, len(chunks)); len(stale) > 0 {
		if err := c.config.Catalog.DeleteChunks(ctx, stale); err != nil {
			return stats, fmt.Errorf("delete stale chunks: %w", err)
		}
		if _, err := c.config.Index.Remove(stale); err != nil {
			return stats, fmt.Errorf("remove stale vectors: %w", err)
		}
	}

	stats.ProcessedFiles = 1
	c.logger.Info("document ingested",
		slog.String("path", absPath),
		slog.String("document_id", docID),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", len(changed)))
	return stats, nil
}

// applyChanged embeds the changed chunks and writes them catalog-first,
// so a crash can leave the catalog ahead of the index but never behind.
// The catalog write replaces superseded rows in one transaction, so old
// rows never vanish before their successors commit.
func (c *Coordinator) applyChanged(ctx context.Context, chunks []*store.Chunk, changed []hashing.ChunkRef) error {
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	texts := make([]string, len(changed))
	rows := make([]*store.Chunk, len(changed))
	for i, ref := range changed {
		row := byID[ref.ID]
		texts[i] = row.Text
		rows[i] = row
	}

	vectors, err := c.config.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return docerrors.New(docerrors.ErrCodeEmbeddingFailed, "embedding batch failed", err)
	}

	if err := c.config.Catalog.ReplaceChunks(ctx, rows); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}

	ids := make([]string, len(changed))
	for i, ref := range changed {
		ids[i] = ref.ID
	}
	if err := c.config.Index.Add(ids, vectors); err != nil {
		return fmt.Errorf("index vectors: %w", err)
	}
	return nil
}

// chunkDocument chunks every page and assigns dense document-wide ids.
func (c *Coordinator) chunkDocument(docID string, parsed *parse.ParsedDocument) ([]*store.Chunk, error) {
	pageNums := make([]int, 0, len(parsed.Pages))
	for n := range parsed.Pages {
		pageNums = append(pageNums, n)
	}
	sort.Ints(pageNums)

	var rows []*store.Chunk
	next := 0
	for _, page := range pageNums {
		pieces, err := c.config.Chunker.Chunk(parsed.Pages[page])
		if err != nil {
			return nil, fmt.Errorf("chunk page %d: %w", page, err)
		}
		for _, piece := range pieces {
			rows = append(rows, &store.Chunk{
				ID:         chunkID(docID, next),
				DocumentID: docID,
				Text:       piece.Text,
				ChunkIndex: next,
				ChunkHash:  c.config.Hasher.HashText(piece.Text),
				ChunkType:  string(piece.Kind),
				StartPage:  page,
				EndPage:    page,
				CharCount:  piece.CharCount,
				TokenCount: piece.TokenCount,
			})
			next++
		}
	}
	return rows, nil
}

// RemoveDocument deletes a document's chunks from the index and the
// catalog, then snapshots the index.
func (c *Coordinator) RemoveDocument(ctx context.Context, documentID string) error {
	hashes, err := c.config.Catalog.GetChunkHashes(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load chunk hashes: %w", err)
	}
	ids := make([]string, 0, len(hashes))
	for id := range hashes {
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		if _, err := c.config.Index.Remove(ids); err != nil {
			return fmt.Errorf("remove vectors: %w", err)
		}
	}
	if err := c.config.Catalog.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := c.saveIndex(); err != nil {
		return err
	}

	c.logger.Info("document removed",
		slog.String("document_id", documentID),
		slog.Int("chunks", len(ids)))
	return nil
}

// Stats reports catalog and index sizes.
func (c *Coordinator) Stats(ctx context.Context) (*EngineStats, error) {
	docs, chunks, err := c.config.Catalog.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog stats: %w", err)
	}
	return &EngineStats{
		DocumentCount: docs,
		ChunkCount:    chunks,
		VectorCount:   c.config.Index.Len(),
		IndexKind:     c.config.Index.Kind(),
	}, nil
}

func (c *Coordinator) saveIndex() error {
	if c.config.IndexPath == "" {
		return nil
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.config.Index.Save(c.config.IndexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

func chunkID(docID string, i int) string {
	return fmt.Sprintf("chunk-%s-%d", docID, i)
}

// staleChunkIDs returns previously cataloged ids at positions past the
// new chunk count.
func staleChunkIDs(docID string, prevHashes map[string]string, newCount int) []string {
	prefix := "chunk-" + docID + "-"
	var stale []string
	for id := range prevHashes {
		i, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err == nil && i >= newCount {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}
