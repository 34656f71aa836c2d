// Package chunk splits document text into retrieval-sized pieces.
//
// Two strategies are provided: BoundaryChunker respects sentence boundaries
// and carries overlap between chunks, FixedChunker slices by character
// windows. Both are pure functions of their input text.
package chunk

import "fmt"

// CharsPerToken is the character-to-token estimation ratio.
const CharsPerToken = 4

// Kind classifies what a chunk contains.
type Kind string

const (
	KindText    Kind = "text"
	KindTable   Kind = "table"
	KindHeader  Kind = "header"
	KindFooter  Kind = "footer"
	KindCaption Kind = "caption"
)

// Valid reports whether k is a known chunk kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindTable, KindHeader, KindFooter, KindCaption:
		return true
	}
	return false
}

// Chunk is one piece of a document's text.
type Chunk struct {
	Index      int
	Text       string
	Kind       Kind
	TokenCount int
	CharCount  int
}

// Chunker turns text into ordered chunks. Empty or whitespace-only input
// yields zero chunks and no error.
type Chunker interface {
	Chunk(text string) ([]Chunk, error)
	Name() string
}

// Strategy names a chunking implementation.
type Strategy string

const (
	StrategyBoundary Strategy = "boundary"
	StrategyFixed    Strategy = "fixed"
)

// Options configures chunker construction.
type Options struct {
	ChunkSize    int // token budget per chunk
	ChunkOverlap int // tokens carried between adjacent chunks
	MinChunkSize int // boundary strategy merges trailing fragments below this
}

// DefaultOptions returns the standard chunking parameters.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    512,
		ChunkOverlap: 50,
		MinChunkSize: 100,
	}
}

func (o Options) validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must be non-negative, got %d", o.ChunkOverlap)
	}
	if o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", o.ChunkOverlap, o.ChunkSize)
	}
	return nil
}

// New constructs the chunker named by strategy.
func New(strategy Strategy, opts Options) (Chunker, error) {
	switch strategy {
	case StrategyBoundary:
		return NewBoundaryChunker(opts)
	case StrategyFixed:
		return NewFixedChunker(opts)
	default:
		return nil, fmt.Errorf("unknown chunking strategy %q", strategy)
	}
}

// EstimateTokens approximates the token count of text. The heuristic is
// one token per four characters, floored at one for non-empty text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / CharsPerToken
	if n < 1 {
		n = 1
	}
	return n
}
