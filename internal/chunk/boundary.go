package chunk

import (
	"fmt"
	"strings"
)

// BoundaryChunker accumulates whole sentences up to a token budget and
// carries a trailing-sentence overlap into the next chunk so that context
// spanning a boundary is retrievable from either side.
type BoundaryChunker struct {
	opts Options
}

var _ Chunker = (*BoundaryChunker)(nil)

// NewBoundaryChunker creates a sentence-boundary chunker.
func NewBoundaryChunker(opts Options) (*BoundaryChunker, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("boundary chunker: %w", err)
	}
	return &BoundaryChunker{opts: opts}, nil
}

// Name returns the strategy name.
func (c *BoundaryChunker) Name() string { return string(StrategyBoundary) }

// Chunk splits text into sentence-aligned chunks.
func (c *BoundaryChunker) Chunk(text string) ([]Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	sentences := splitSentences(trimmed)

	var chunks []Chunk
	var parts []string
	tokens := 0

	flush := func() {
		body := strings.Join(parts, " ")
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Text:       body,
			Kind:       KindText,
			TokenCount: EstimateTokens(body),
			CharCount:  len(body),
		})
	}

	for _, sentence := range sentences {
		st := EstimateTokens(sentence)
		if tokens+st > c.opts.ChunkSize && len(parts) > 0 {
			flush()
			parts, tokens = c.overlapTail(parts)
		}
		// A single sentence over budget still becomes its own chunk.
		parts = append(parts, sentence)
		tokens += st
	}

	if len(parts) > 0 {
		tail := strings.Join(parts, " ")
		if len(chunks) > 0 && EstimateTokens(tail) < c.opts.MinChunkSize {
			// Trailing fragment too small to stand alone, fold it into
			// the previous chunk.
			last := &chunks[len(chunks)-1]
			last.Text = last.Text + " " + tail
			last.TokenCount = EstimateTokens(last.Text)
			last.CharCount = len(last.Text)
		} else {
			flush()
		}
	}

	return chunks, nil
}

// overlapTail selects the trailing sentences of the just-emitted chunk that
// fit the overlap budget, assembled back to front so the most recent
// sentences win.
func (c *BoundaryChunker) overlapTail(parts []string) ([]string, int) {
	if c.opts.ChunkOverlap <= 0 {
		return nil, 0
	}

	var tail []string
	tokens := 0
	for i := len(parts) - 1; i >= 0; i-- {
		st := EstimateTokens(parts[i])
		if tokens+st > c.opts.ChunkOverlap {
			break
		}
		tail = append([]string{parts[i]}, tail...)
		tokens += st
	}
	return tail, tokens
}

// splitSentences breaks text after terminal punctuation followed by
// whitespace. Punctuation inside a token ("3.14", "e.g.x") does not split.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if (ch == '.' || ch == '!' || ch == '?') && i+1 < len(text) && isSpace(text[i+1]) {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
