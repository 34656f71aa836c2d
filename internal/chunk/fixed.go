package chunk

import (
	"fmt"
	"strings"
)

// FixedChunker slices text into fixed character windows derived from the
// token budget. It ignores sentence structure entirely, which makes it the
// right fallback for text with no reliable punctuation.
type FixedChunker struct {
	opts Options
}

var _ Chunker = (*FixedChunker)(nil)

// NewFixedChunker creates a fixed-width chunker.
func NewFixedChunker(opts Options) (*FixedChunker, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("fixed chunker: %w", err)
	}
	return &FixedChunker{opts: opts}, nil
}

// Name returns the strategy name.
func (c *FixedChunker) Name() string { return string(StrategyFixed) }

// Chunk splits text into overlapping character windows. Windows are cut on
// rune boundaries so multi-byte characters are never split.
func (c *FixedChunker) Chunk(text string) ([]Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	runes := []rune(trimmed)
	window := c.opts.ChunkSize * CharsPerToken
	stride := (c.opts.ChunkSize - c.opts.ChunkOverlap) * CharsPerToken
	if stride < 1 {
		stride = 1
	}

	var chunks []Chunk
	for pos := 0; pos < len(runes); pos += stride {
		end := pos + window
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[pos:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{
				Index:      len(chunks),
				Text:       piece,
				Kind:       KindText,
				TokenCount: EstimateTokens(piece),
				CharCount:  len(piece),
			})
		}
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}
