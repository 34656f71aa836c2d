// Package engine wires the configuration into a running retrieval
// stack: catalog, vector index, embedder, ingestion coordinator and
// search engine, guarded by a data-dir lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/docpull/docpull/internal/chunk"
	"github.com/docpull/docpull/internal/config"
	"github.com/docpull/docpull/internal/embed"
	docerrors "github.com/docpull/docpull/internal/errors"
	"github.com/docpull/docpull/internal/hashing"
	idx "github.com/docpull/docpull/internal/index"
	"github.com/docpull/docpull/internal/parse"
	"github.com/docpull/docpull/internal/search"
	"github.com/docpull/docpull/internal/store"
)

const (
	lockFileName    = "docpull.lock"
	catalogFileName = "catalog.db"
	indexFileName   = "vectors.idx"
)

// Engine is the top-level facade behind every CLI command.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	dataDir     string
	lock        *flock.Flock
	catalog     store.Catalog
	index       store.VectorIndex
	embedder    embed.Embedder
	coordinator *idx.Coordinator
	searcher    *search.Engine
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Open builds the full stack from cfg. The data dir is created if
// missing and locked for the lifetime of the engine; a second process
// opening the same data dir gets a typed error immediately.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}

	dataDir, err := filepath.Abs(cfg.Project.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	e.dataDir = dataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	e.lock = flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := e.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, docerrors.New(docerrors.ErrCodeDataDirLocked,
			fmt.Sprintf("data dir %s is in use by another process", dataDir), nil)
	}

	if err := e.build(ctx); err != nil {
		_ = e.lock.Unlock()
		e.closePartial()
		return nil, err
	}

	e.logger.Info("engine opened",
		slog.String("data_dir", dataDir),
		slog.String("index_kind", string(e.index.Kind())),
		slog.String("catalog_backend", cfg.Catalog.Backend),
		slog.String("embed_provider", cfg.Embedding.Provider))
	return e, nil
}

func (e *Engine) build(ctx context.Context) error {
	cfg := e.cfg

	embedder, err := embed.NewEmbedder(embed.Config{
		Provider:   embed.Provider(cfg.Embedding.Provider),
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Endpoint:   cfg.Embedding.Endpoint,
		CacheSize:  cfg.Embedding.CacheSize,
	}, e.logger)
	if err != nil {
		return err
	}
	e.embedder = embedder

	if err := e.openIndex(); err != nil {
		return err
	}

	dsn := cfg.Catalog.DSN
	if cfg.Catalog.Backend == "sqlite" {
		dsn = filepath.Join(e.dataDir, catalogFileName)
	}
	catalog, err := store.NewCatalog(store.CatalogBackend(cfg.Catalog.Backend), dsn)
	if err != nil {
		return err
	}
	e.catalog = catalog

	chunker, err := chunk.New(chunk.Strategy(cfg.Chunking.Strategy), chunk.Options{
		ChunkSize:    cfg.Chunking.ChunkSize,
		ChunkOverlap: cfg.Chunking.ChunkOverlap,
		MinChunkSize: cfg.Chunking.MinChunkSize,
	})
	if err != nil {
		return err
	}

	hasher, err := hashing.NewHasher(hashing.SHA256)
	if err != nil {
		return err
	}

	coordinator, err := idx.NewCoordinator(idx.CoordinatorConfig{
		Catalog:   e.catalog,
		Index:     e.index,
		Embedder:  e.embedder,
		Chunker:   chunker,
		Parsers:   parse.NewRegistry(),
		Hasher:    hasher,
		IndexPath: e.indexPath(),
		Logger:    e.logger,
	})
	if err != nil {
		return err
	}
	e.coordinator = coordinator

	reranker := &search.Reranker{
		LexicalWeight: float32(cfg.Retrieval.LexicalWeight),
		VectorWeight:  float32(cfg.Retrieval.VectorWeight),
	}
	searcher, err := search.NewEngine(e.index, e.catalog, e.embedder,
		search.WithLogger(e.logger),
		search.WithTopK(cfg.Retrieval.TopK),
		search.WithMultiplier(cfg.Retrieval.Multiplier),
		search.WithReranker(reranker))
	if err != nil {
		return err
	}
	e.searcher = searcher
	return nil
}

// openIndex loads the snapshot if one exists, otherwise creates a
// fresh index. A snapshot saved with different dimensions than the
// configured embedder is a corruption error, not a silent rebuild.
func (e *Engine) openIndex() error {
	cfg := e.cfg
	path := e.indexPath()

	dims := cfg.Embedding.Dimensions
	if dims <= 0 {
		dims = e.embedder.Dimensions()
	}

	savedDims, err := store.ReadIndexDimensions(path)
	if err != nil {
		return err
	}
	if savedDims > 0 && savedDims != dims {
		return docerrors.New(docerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("index was built with %d dimensions, embedder produces %d", savedDims, dims), nil).
			WithSuggestion("remove the data dir and re-ingest, or restore the original embedding settings")
	}

	index, err := store.NewVectorIndex(store.IndexConfig{
		Kind:           store.IndexKind(cfg.Index.Kind),
		Metric:         store.Metric(cfg.Index.Metric),
		Dimensions:     dims,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
	})
	if err != nil {
		return err
	}

	if err := index.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = index.Close()
		return err
	}
	e.index = index
	return nil
}

func (e *Engine) indexPath() string {
	return filepath.Join(e.dataDir, indexFileName)
}

// Ingest runs differential ingestion for each path and merges stats.
func (e *Engine) Ingest(ctx context.Context, paths []string, extraMeta map[string]string) (*idx.IngestStats, error) {
	total := &idx.IngestStats{}
	for _, path := range paths {
		stats, err := e.coordinator.IngestPath(ctx, path, extraMeta)
		if stats != nil {
			total.TotalFiles += stats.TotalFiles
			total.ProcessedFiles += stats.ProcessedFiles
			total.FailedFiles += stats.FailedFiles
			total.TotalChunks += stats.TotalChunks
			total.NewChunks += stats.NewChunks
			total.SkippedChunks += stats.SkippedChunks
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Config returns the effective configuration the engine was opened
// with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Search runs a hybrid query.
func (e *Engine) Search(ctx context.Context, query string, opts *search.Options) ([]search.Result, error) {
	return e.searcher.Search(ctx, query, opts)
}

// Similar finds chunks similar to an indexed chunk.
func (e *Engine) Similar(ctx context.Context, chunkID string, opts *search.Options) ([]search.Result, error) {
	return e.searcher.SearchByChunkID(ctx, chunkID, opts)
}

// Stats reports catalog and index sizes.
func (e *Engine) Stats(ctx context.Context) (*idx.EngineStats, error) {
	return e.coordinator.Stats(ctx)
}

// Check compares catalog and index id sets.
func (e *Engine) Check(ctx context.Context) (*idx.ConsistencyReport, error) {
	return e.coordinator.Check(ctx)
}

// Compact rebuilds the index without tombstoned slots and saves it.
func (e *Engine) Compact(ctx context.Context) error {
	before := e.index.Len()
	if err := e.index.Compact(); err != nil {
		return fmt.Errorf("compact index: %w", err)
	}
	if err := e.index.Save(e.indexPath()); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	e.logger.Info("index compacted", slog.Int("live_vectors", before))
	return nil
}

// RemoveDocument deletes a document and its chunks everywhere.
func (e *Engine) RemoveDocument(ctx context.Context, documentID string) error {
	return e.coordinator.RemoveDocument(ctx, documentID)
}

// ListDocuments returns all cataloged documents.
func (e *Engine) ListDocuments(ctx context.Context) ([]*store.Document, error) {
	return e.catalog.ListDocuments(ctx)
}

// GetDocumentBySource looks up a document by its source path.
func (e *Engine) GetDocumentBySource(ctx context.Context, sourcePath string) (*store.Document, bool, error) {
	return e.catalog.GetDocumentBySource(ctx, sourcePath)
}

// Close releases everything in reverse dependency order. All component
// errors are joined.
func (e *Engine) Close() error {
	var errs []error

	if e.catalog != nil {
		if err := e.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release data dir lock: %w", err))
		}
	}

	e.logger.Debug("engine closed")
	return errors.Join(errs...)
}

// closePartial tears down whatever build managed to construct.
func (e *Engine) closePartial() {
	if e.catalog != nil {
		_ = e.catalog.Close()
	}
	if e.index != nil {
		_ = e.index.Close()
	}
	if e.embedder != nil {
		_ = e.embedder.Close()
	}
}
