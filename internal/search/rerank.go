package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/docpull/docpull/internal/store"
)

// Reranker blends vector distance with lexical overlap between the
// query and each candidate's text. Both components are expressed as
// costs, so lower is better regardless of the index metric.
type Reranker struct {
	LexicalWeight float32
	VectorWeight  float32
}

// NewReranker returns a reranker with the default 30/70 blend.
func NewReranker() *Reranker {
	return &Reranker{LexicalWeight: 0.3, VectorWeight: 0.7}
}

// Rerank recomputes each result's score as the blended cost and
// reorders results in place by it, lower first.
func (r *Reranker) Rerank(query string, metric store.Metric, results []Result) []Result {
	if len(results) == 0 {
		return results
	}

	queryTerms := termSet(query)
	for i := range results {
		lexical := 1 - jaccard(queryTerms, termSet(results[i].Chunk.Text))
		results[i].Score = r.LexicalWeight*lexical + r.VectorWeight*vectorCost(metric, results[i].Score)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	return results
}

// vectorCost maps a raw score into a cost. L2 scores are distances and
// already costs; inner-product scores are similarities in [-1, 1].
func vectorCost(metric store.Metric, score float32) float32 {
	if metric == store.MetricL2 {
		return score
	}
	return 1 - score
}

// jaccard computes set overlap in [0, 1]. Two empty sets count as fully
// overlapping so that degenerate inputs do not dominate the blend.
func jaccard(a, b map[string]struct{}) float32 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for term := range small {
		if _, ok := large[term]; ok {
			shared++
		}
	}
	return float32(shared) / float32(len(a)+len(b)-shared)
}

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, term := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		terms[term] = struct{}{}
	}
	return terms
}
