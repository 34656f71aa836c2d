// Package search implements hybrid retrieval: vector candidates from
// the index, hydrated and filtered against the metadata catalog, with
// optional lexical re-ranking.
package search

import (
	"github.com/docpull/docpull/internal/store"
)

// Result is one retrieval hit. Score keeps the raw vector score in the
// index metric's convention; Rank is 1-based and reflects the final
// ordering after filtering and re-ranking.
type Result struct {
	Chunk *store.Chunk
	Score float32
	Rank  int
}

// Filters restricts results by chunk metadata. All set conditions must
// hold (AND semantics). Zero values mean "no constraint".
type Filters struct {
	DocumentID   string
	ChunkKind    string
	MinCharCount int
	MaxCharCount int
	StartPage    int
	EndPage      int
	Metadata     map[string]string
}

// Empty reports whether no constraint is set.
func (f *Filters) Empty() bool {
	if f == nil {
		return true
	}
	return f.DocumentID == "" && f.ChunkKind == "" &&
		f.MinCharCount == 0 && f.MaxCharCount == 0 &&
		f.StartPage == 0 && f.EndPage == 0 && len(f.Metadata) == 0
}

// Match reports whether chunk satisfies every set condition.
func (f *Filters) Match(chunk *store.Chunk) bool {
	if f == nil {
		return true
	}
	if f.DocumentID != "" && chunk.DocumentID != f.DocumentID {
		return false
	}
	if f.ChunkKind != "" && chunk.ChunkType != f.ChunkKind {
		return false
	}
	if f.MinCharCount > 0 && chunk.CharCount < f.MinCharCount {
		return false
	}
	if f.MaxCharCount > 0 && chunk.CharCount > f.MaxCharCount {
		return false
	}
	// Page constraints keep chunks whose page span overlaps the range.
	if f.StartPage > 0 && chunk.EndPage < f.StartPage {
		return false
	}
	if f.EndPage > 0 && chunk.StartPage > f.EndPage {
		return false
	}
	for key, want := range f.Metadata {
		if chunk.Metadata[key] != want {
			return false
		}
	}
	return true
}

// Options controls a single search call. Zero fields fall back to the
// engine defaults.
type Options struct {
	TopK       int
	Multiplier int
	Rerank     bool
	Filters    *Filters
}

const (
	// DefaultTopK is the default result count.
	DefaultTopK = 10

	// DefaultMultiplier is the candidate over-fetch factor applied when
	// filters or re-ranking can discard candidates.
	DefaultMultiplier = 3
)
