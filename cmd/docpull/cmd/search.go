package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/internal/output"
	"github.com/docpull/docpull/internal/search"
)

type searchFlags struct {
	topK      int
	filterDoc string
	kind      string
	minChars  int
	maxChars  int
	pages     string
	meta      []string
	noRerank  bool
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Embed the query and return the closest chunks, hydrated with their
catalog metadata and re-ranked against the query text unless disabled
with --no-rerank or retrieval.rerank in the config.`,
		Example: `  docpull search "write ahead logging"
  docpull search "vacuum" --top-k 5 --kind text
  docpull search "checkpoints" --pages 3-10 --meta team=infra --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().IntVar(&flags.topK, "top-k", 0, "Number of results (default from config)")
	cmd.Flags().StringVar(&flags.filterDoc, "filter-doc", "", "Restrict to one document ID")
	cmd.Flags().StringVar(&flags.kind, "kind", "", "Restrict to a chunk kind")
	cmd.Flags().IntVar(&flags.minChars, "min-chars", 0, "Minimum chunk length")
	cmd.Flags().IntVar(&flags.maxChars, "max-chars", 0, "Maximum chunk length")
	cmd.Flags().StringVar(&flags.pages, "pages", "", "Page range, e.g. 3 or 3-10")
	cmd.Flags().StringArrayVar(&flags.meta, "meta", nil, "Metadata equality filter as key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.noRerank, "no-rerank", false, "Skip lexical re-ranking")
	return cmd
}

func runSearch(ctx context.Context, query string, flags searchFlags) error {
	opts, err := buildSearchOptions(flags)
	if err != nil {
		return err
	}

	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	// --no-rerank always wins; otherwise the config decides.
	opts.Rerank = opts.Rerank && eng.Config().Retrieval.RerankEnabled()

	results, err := eng.Search(ctx, query, opts)
	if err != nil {
		return err
	}
	printResults(out, results)
	return out.JSON(resultsPayload(results))
}

func buildSearchOptions(flags searchFlags) (*search.Options, error) {
	filters := &search.Filters{
		DocumentID:   flags.filterDoc,
		ChunkKind:    flags.kind,
		MinCharCount: flags.minChars,
		MaxCharCount: flags.maxChars,
	}

	if flags.pages != "" {
		start, end, err := parsePageRange(flags.pages)
		if err != nil {
			return nil, err
		}
		filters.StartPage = start
		filters.EndPage = end
	}

	if len(flags.meta) > 0 {
		meta, err := parseMetaFlags(flags.meta)
		if err != nil {
			return nil, err
		}
		filters.Metadata = meta
	}

	return &search.Options{
		TopK:    flags.topK,
		Rerank:  !flags.noRerank,
		Filters: filters,
	}, nil
}

// parsePageRange parses "3" or "3-10" into an inclusive page span.
func parsePageRange(s string) (int, int, error) {
	first, second, isRange := strings.Cut(s, "-")

	var start, end int
	if _, err := fmt.Sscanf(first, "%d", &start); err != nil || start < 1 {
		return 0, 0, fmt.Errorf("invalid --pages %q, expected N or N-M", s)
	}
	if !isRange {
		return start, start, nil
	}
	if _, err := fmt.Sscanf(second, "%d", &end); err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid --pages %q, expected N or N-M", s)
	}
	return start, end, nil
}

// resultPayload is one search hit in JSON output.
type resultPayload struct {
	Rank       int     `json:"rank"`
	Score      float32 `json:"score"`
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Pages      [2]int  `json:"pages"`
	Text       string  `json:"text"`
}

func resultsPayload(results []search.Result) []resultPayload {
	payload := make([]resultPayload, len(results))
	for i, res := range results {
		payload[i] = resultPayload{
			Rank:       res.Rank,
			Score:      res.Score,
			ChunkID:    res.Chunk.ID,
			DocumentID: res.Chunk.DocumentID,
			Pages:      [2]int{res.Chunk.StartPage, res.Chunk.EndPage},
			Text:       res.Chunk.Text,
		}
	}
	return payload
}

func printResults(out *output.Writer, results []search.Result) {
	if len(results) == 0 {
		out.Print("no results")
		return
	}
	for _, res := range results {
		out.Printf("%2d. [%.4f] %s (doc %s, pages %d-%d)",
			res.Rank, res.Score, res.Chunk.ID, res.Chunk.DocumentID,
			res.Chunk.StartPage, res.Chunk.EndPage)
		out.Printf("    %s", snippet(res.Chunk.Text, 160))
	}
}

// snippet trims text to limit runes on a rune boundary.
func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
