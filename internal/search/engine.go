package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	docerrors "github.com/docpull/docpull/internal/errors"
	"github.com/docpull/docpull/internal/embed"
	"github.com/docpull/docpull/internal/store"
)

// ErrNilDependency is returned when a required dependency is missing.
var ErrNilDependency = errors.New("nil dependency")

// Engine answers hybrid queries over a vector index and a metadata
// catalog.
type Engine struct {
	index    store.VectorIndex
	catalog  store.Catalog
	embedder embed.Embedder
	reranker *Reranker
	logger   *slog.Logger

	topK       int
	multiplier int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTopK sets the default result count.
func WithTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithMultiplier sets the candidate over-fetch factor.
func WithMultiplier(m int) EngineOption {
	return func(e *Engine) {
		if m > 0 {
			e.multiplier = m
		}
	}
}

// WithReranker sets the lexical re-ranker.
func WithReranker(r *Reranker) EngineOption {
	return func(e *Engine) { e.reranker = r }
}

// NewEngine creates a search engine. Index, catalog and embedder are
// required.
func NewEngine(index store.VectorIndex, catalog store.Catalog, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: vector index is required", ErrNilDependency)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	e := &Engine{
		index:      index,
		catalog:    catalog,
		embedder:   embedder,
		reranker:   NewReranker(),
		logger:     slog.New(slog.DiscardHandler),
		topK:       DefaultTopK,
		multiplier: DefaultMultiplier,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search embeds the query and returns the top matching chunks.
func (e *Engine) Search(ctx context.Context, query string, opts *Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, docerrors.New(docerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	opts = e.applyDefaults(opts)

	start := time.Now()
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := e.searchVector(ctx, vec, query, opts, "")
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search complete",
		slog.Int("results", len(results)),
		slog.Int("top_k", opts.TopK),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// SearchByChunkID finds chunks similar to an already-indexed chunk by
// reusing its stored vector. The query chunk itself is excluded.
func (e *Engine) SearchByChunkID(ctx context.Context, chunkID string, opts *Options) ([]Result, error) {
	opts = e.applyDefaults(opts)

	vec, ok := e.index.Reconstruct(chunkID)
	if !ok {
		return nil, docerrors.New(docerrors.ErrCodeInvalidInput,
			fmt.Sprintf("chunk %q is not in the index", chunkID), nil)
	}

	// Re-ranking against a chunk's own text is meaningless; the blend
	// needs a textual query.
	noRerank := *opts
	noRerank.Rerank = false
	return e.searchVector(ctx, vec, "", &noRerank, chunkID)
}

// searchVector runs the shared candidate pipeline: over-fetch, hydrate,
// filter, optionally re-rank, truncate, rank.
func (e *Engine) searchVector(ctx context.Context, vec []float32, query string, opts *Options, excludeID string) ([]Result, error) {
	fetch := opts.TopK
	if excludeID != "" {
		fetch++
	}
	if !opts.Filters.Empty() || opts.Rerank {
		fetch *= opts.Multiplier
	}

	candidates, err := e.index.Search(vec, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	ids := make([]string, 0, len(candidates))
	scoreByID := make(map[string]float32, len(candidates))
	for _, c := range candidates {
		if c.ChunkID == excludeID {
			continue
		}
		ids = append(ids, c.ChunkID)
		scoreByID[c.ChunkID] = c.Score
	}

	chunks, err := e.catalog.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate candidates: %w", err)
	}
	if dropped := len(ids) - len(chunks); dropped > 0 {
		// Index entries without catalog rows are a consistency gap, not
		// a query failure. They are skipped and logged.
		e.logger.Warn("dropping candidates missing from catalog",
			slog.Int("dropped", dropped))
	}

	results := make([]Result, 0, len(chunks))
	for _, chunk := range chunks {
		if !opts.Filters.Match(chunk) {
			continue
		}
		results = append(results, Result{Chunk: chunk, Score: scoreByID[chunk.ID]})
	}

	if opts.Rerank && query != "" {
		results = e.reranker.Rerank(query, e.index.Metric(), results)
	}
	if opts.TopK < len(results) {
		results = results[:opts.TopK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

func (e *Engine) applyDefaults(opts *Options) *Options {
	out := Options{}
	if opts != nil {
		out = *opts
	}
	if out.TopK <= 0 {
		out.TopK = e.topK
	}
	if out.Multiplier <= 0 {
		out.Multiplier = e.multiplier
	}
	return &out
}
