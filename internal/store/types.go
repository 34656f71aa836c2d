// Package store provides the persistence layer: vector indexes (flat and
// HNSW) with snapshot persistence, and the document/chunk metadata catalog
// backed by SQLite or PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Metric names the scoring convention of a vector index.
//
// MetricL2 reports euclidean distance, lower is more similar. MetricIP
// normalizes vectors at add and query time and reports inner product,
// which equals cosine similarity, higher is more similar. Callers must
// know which convention the configured metric implies.
type Metric string

const (
	MetricL2 Metric = "l2"
	MetricIP Metric = "ip"
)

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool { return m == MetricL2 || m == MetricIP }

// LowerIsBetter reports the ordering convention for scores under m.
func (m Metric) LowerIsBetter() bool { return m == MetricL2 }

// IndexKind names a vector index implementation.
type IndexKind string

const (
	IndexFlat IndexKind = "flat"
	IndexHNSW IndexKind = "hnsw"
)

// IndexConfig configures a vector index.
type IndexConfig struct {
	Kind       IndexKind
	Dimensions int
	Metric     Metric

	// HNSW graph parameters, ignored by the flat index.
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultIndexConfig returns the standard index configuration for the
// given embedding dimensionality.
func DefaultIndexConfig(dimensions int) IndexConfig {
	return IndexConfig{
		Kind:           IndexFlat,
		Dimensions:     dimensions,
		Metric:         MetricIP,
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// Candidate is a single vector search hit.
type Candidate struct {
	ChunkID string
	Score   float32
}

// VectorIndex maps chunk IDs to embedding vectors and answers nearest
// neighbor queries. Implementations are safe for concurrent use.
//
// Slots are append-only: adding an ID that already exists appends a new
// slot and tombstones the old one. Tombstones are excluded from every
// query and reclaimed by Compact.
type VectorIndex interface {
	// Add inserts vectors with their IDs. Every vector is validated
	// against the index dimensionality before any mutation, so a
	// mismatched batch leaves the index untouched.
	Add(ids []string, vectors [][]float32) error

	// Search returns up to k live candidates ordered by the metric's
	// convention. k larger than the live count returns everything.
	Search(query []float32, k int) ([]Candidate, error)

	// Reconstruct returns a copy of the stored vector for chunkID.
	// Under MetricIP the stored vector is the normalized form.
	Reconstruct(chunkID string) ([]float32, bool)

	// Remove tombstones the given IDs and rebuilds the index without
	// them. Unknown IDs are skipped, not errors. Returns the number
	// of vectors actually removed.
	Remove(ids []string) (int, error)

	// Compact rebuilds the index dropping tombstoned slots.
	Compact() error

	// IDs returns live chunk IDs in slot order.
	IDs() []string

	// Len returns the live vector count.
	Len() int

	Kind() IndexKind
	Metric() Metric
	Dim() int

	// Save persists the index as a compressed blob plus a sidecar
	// metadata file, both written atomically.
	Save(path string) error

	// Load restores a previously saved index. A missing snapshot
	// surfaces os.ErrNotExist via errors.Is.
	Load(path string) error

	Close() error
}

// NewVectorIndex constructs the index named by cfg.Kind.
func NewVectorIndex(cfg IndexConfig) (VectorIndex, error) {
	switch cfg.Kind {
	case IndexFlat:
		return NewFlatIndex(cfg)
	case IndexHNSW:
		return NewHNSWIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown index kind %q", cfg.Kind)
	}
}

// ErrDimensionMismatch indicates a vector whose dimensionality does not
// match the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// ErrDuplicateChunk indicates an insert of a chunk ID that already exists.
type ErrDuplicateChunk struct {
	ID string
}

func (e ErrDuplicateChunk) Error() string {
	return fmt.Sprintf("chunk %q already exists", e.ID)
}

var (
	// ErrIndexClosed is returned by operations on a closed vector index.
	ErrIndexClosed = errors.New("vector index is closed")
	// ErrCatalogClosed is returned by operations on a closed catalog.
	ErrCatalogClosed = errors.New("catalog is closed")
	// ErrEmptyIndex is returned by Search when no live vectors exist.
	ErrEmptyIndex = errors.New("cannot search empty index")
	// ErrCorruptSnapshot indicates a snapshot whose blob and sidecar
	// disagree or fail to decode.
	ErrCorruptSnapshot = errors.New("corrupt index snapshot")
)

// Document is the catalog record for an ingested source document.
type Document struct {
	ID          string
	SourcePath  string
	Filename    string
	DocType     string
	ContentHash string
	FileSize    int64
	NumPages    int
	CreatedAt   time.Time
	ModifiedAt  time.Time
	IngestedAt  time.Time
	Metadata    map[string]string
}

// Chunk is the catalog record for one indexed chunk.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	ChunkIndex int
	ChunkHash  string
	ChunkType  string
	StartPage  int
	EndPage    int
	CharCount  int
	TokenCount int
	Metadata   map[string]string
}

// DefaultChunkQueryLimit caps a chunk scan when ChunkQuery.Limit is
// unset.
const DefaultChunkQueryLimit = 100

// ChunkQuery filters a catalog chunk scan. All set conditions must hold.
// Zero values mean "no constraint".
type ChunkQuery struct {
	Text       string // substring match on chunk text
	ChunkType  string
	DocumentID string
	Limit      int
}

// Catalog persists document and chunk metadata. Point lookups report
// absence with a boolean, not an error.
type Catalog interface {
	// Document operations
	AddDocument(ctx context.Context, doc *Document) error // upsert by ID
	GetDocument(ctx context.Context, id string) (*Document, bool, error)
	GetDocumentBySource(ctx context.Context, sourcePath string) (*Document, bool, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error // cascades to chunks

	// Chunk operations
	AddChunk(ctx context.Context, chunk *Chunk) error
	AddChunks(ctx context.Context, chunks []*Chunk) error     // single transaction
	ReplaceChunks(ctx context.Context, chunks []*Chunk) error // delete-and-insert by ID, single transaction
	GetChunk(ctx context.Context, id string) (*Chunk, bool, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	GetChunksByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	GetChunkHashes(ctx context.Context, documentID string) (map[string]string, error)
	SearchChunks(ctx context.Context, q ChunkQuery) ([]*Chunk, error)
	DeleteChunks(ctx context.Context, ids []string) error
	ChunkIDs(ctx context.Context) ([]string, error)

	// Stats returns document and chunk counts.
	Stats(ctx context.Context) (documents, chunks int, err error)

	Close() error
}
