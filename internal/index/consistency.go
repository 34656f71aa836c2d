package index

import (
	"context"
	"fmt"
	"sort"
)

// ConsistencyReport lists chunk ids present on one side only. Both
// slices are sorted. An empty report means catalog and index agree.
type ConsistencyReport struct {
	MissingFromIndex   []string `json:"missing_from_index"`
	MissingFromCatalog []string `json:"missing_from_catalog"`
}

// Consistent reports whether both sides hold the same id set.
func (r *ConsistencyReport) Consistent() bool {
	return len(r.MissingFromIndex) == 0 && len(r.MissingFromCatalog) == 0
}

// Check compares the catalog's chunk ids with the live ids in the
// vector index. Write ordering is catalog first, so ids missing from
// the index usually mean an interrupted ingest; ids missing from the
// catalog mean a damaged or stale catalog.
func (c *Coordinator) Check(ctx context.Context) (*ConsistencyReport, error) {
	catalogIDs, err := c.config.Catalog.ChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog chunks: %w", err)
	}

	inCatalog := make(map[string]struct{}, len(catalogIDs))
	for _, id := range catalogIDs {
		inCatalog[id] = struct{}{}
	}

	report := &ConsistencyReport{}
	inIndex := make(map[string]struct{})
	for _, id := range c.config.Index.IDs() {
		inIndex[id] = struct{}{}
		if _, ok := inCatalog[id]; !ok {
			report.MissingFromCatalog = append(report.MissingFromCatalog, id)
		}
	}
	for _, id := range catalogIDs {
		if _, ok := inIndex[id]; !ok {
			report.MissingFromIndex = append(report.MissingFromIndex, id)
		}
	}

	sort.Strings(report.MissingFromIndex)
	sort.Strings(report.MissingFromCatalog)
	return report, nil
}
