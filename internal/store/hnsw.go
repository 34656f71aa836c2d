package store

import (
	"bufio"
	"bytes"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex is the approximate nearest neighbor index built on the pure
// Go coder/hnsw graph. Graph nodes are keyed by slot number, and a flat
// copy of every vector is retained alongside the graph so Reconstruct
// and rebuilds never depend on graph internals.
type HNSWIndex struct {
	mu     sync.RWMutex
	config IndexConfig
	graph  *hnsw.Graph[uint64]

	ids     []string
	vectors [][]float32
	live    map[string]int

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(cfg IndexConfig) (*HNSWIndex, error) {
	cfg.Kind = IndexHNSW
	if cfg.Metric == "" {
		cfg.Metric = MetricIP
	}
	if !cfg.Metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", cfg.Metric)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	return &HNSWIndex{
		config: cfg,
		graph:  newGraph(cfg),
		live:   make(map[string]int),
	}, nil
}

func newGraph(cfg IndexConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	if cfg.Metric == MetricL2 {
		g.Distance = hnsw.EuclideanDistance
	} else {
		g.Distance = hnsw.CosineDistance
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Add inserts or replaces vectors. The whole batch is validated before
// any mutation.
func (s *HNSWIndex) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}
	for i, v := range vectors {
		if ids[i] == "" {
			return fmt.Errorf("empty chunk ID at position %d", i)
		}
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		// Lazy deletion: the old graph node stays but its slot is no
		// longer live, so it is filtered out of search results.
		delete(s.live, id)

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == MetricIP {
			normalizeVectorInPlace(vec)
		}

		slot := len(s.ids)
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, vec)
		s.live[id] = slot

		s.graph.Add(hnsw.MakeNode(uint64(slot), vec))
	}
	return nil
}

// Search returns up to k live candidates. The graph query over-fetches
// by the tombstone count so lazy-deleted nodes cannot crowd out live
// ones.
func (s *HNSWIndex) Search(query []float32, k int) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrIndexClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if len(s.live) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return []Candidate{}, nil
	}

	q := query
	if s.config.Metric == MetricIP {
		q = make([]float32, len(query))
		copy(q, query)
		normalizeVectorInPlace(q)
	}

	fetch := k + (len(s.ids) - len(s.live))
	nodes := s.graph.Search(q, fetch)

	results := make([]Candidate, 0, len(nodes))
	for _, node := range nodes {
		slot := int(node.Key)
		if slot >= len(s.ids) {
			continue
		}
		id := s.ids[slot]
		if liveSlot, ok := s.live[id]; !ok || liveSlot != slot {
			continue
		}
		results = append(results, Candidate{
			ChunkID: id,
			Score:   scoreVector(q, s.vectors[slot], s.config.Metric),
		})
	}
	sortCandidates(results, s.config.Metric)

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Reconstruct returns a copy of the stored vector for chunkID.
func (s *HNSWIndex) Reconstruct(chunkID string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false
	}
	slot, ok := s.live[chunkID]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(s.vectors[slot]))
	copy(out, s.vectors[slot])
	return out, true
}

// Remove tombstones the given IDs and rebuilds the graph without them.
func (s *HNSWIndex) Remove(ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrIndexClosed
	}
	removed := 0
	for _, id := range ids {
		if _, ok := s.live[id]; ok {
			delete(s.live, id)
			removed++
		}
	}
	if removed > 0 {
		s.rebuild()
	}
	return removed, nil
}

// Compact rebuilds the graph dropping tombstoned slots.
func (s *HNSWIndex) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}
	if len(s.live) != len(s.ids) {
		s.rebuild()
	}
	return nil
}

// rebuild repacks live slots in order and reinserts them into a fresh
// graph. Callers hold the write lock.
func (s *HNSWIndex) rebuild() {
	newIDs := make([]string, 0, len(s.live))
	newVectors := make([][]float32, 0, len(s.live))
	newLive := make(map[string]int, len(s.live))
	graph := newGraph(s.config)

	for slot, id := range s.ids {
		if liveSlot, ok := s.live[id]; !ok || liveSlot != slot {
			continue
		}
		newSlot := len(newIDs)
		newIDs = append(newIDs, id)
		newVectors = append(newVectors, s.vectors[slot])
		newLive[id] = newSlot
		graph.Add(hnsw.MakeNode(uint64(newSlot), s.vectors[slot]))
	}

	s.ids = newIDs
	s.vectors = newVectors
	s.live = newLive
	s.graph = graph
}

// IDs returns live chunk IDs in slot order.
func (s *HNSWIndex) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	out := make([]string, 0, len(s.live))
	for slot, id := range s.ids {
		if liveSlot, ok := s.live[id]; ok && liveSlot == slot {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the live vector count.
func (s *HNSWIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

func (s *HNSWIndex) Kind() IndexKind { return IndexHNSW }
func (s *HNSWIndex) Metric() Metric  { return s.config.Metric }
func (s *HNSWIndex) Dim() int        { return s.config.Dimensions }

// Save persists the snapshot. The graph is exported into the blob so a
// load restores the exact same graph, not a re-built approximation.
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrIndexClosed
	}

	var graphBuf bytes.Buffer
	if s.graph.Len() > 0 {
		if err := s.graph.Export(&graphBuf); err != nil {
			return fmt.Errorf("export graph: %w", err)
		}
	}
	return writeSnapshot(path,
		indexMetadata{Config: s.config, IDs: s.ids, Live: s.live},
		indexBlob{Vectors: s.vectors, Graph: graphBuf.Bytes()},
	)
}

// Load restores a snapshot, replacing current contents.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}
	meta, blob, err := readSnapshot(path)
	if err != nil {
		return err
	}
	if meta.Config.Kind != IndexHNSW {
		return fmt.Errorf("%w: snapshot is %q, expected %q", ErrCorruptSnapshot, meta.Config.Kind, IndexHNSW)
	}

	graph := newGraph(meta.Config)
	if len(blob.Graph) > 0 {
		// coder/hnsw Import requires an io.ByteReader.
		if err := graph.Import(bufio.NewReader(bytes.NewReader(blob.Graph))); err != nil {
			return fmt.Errorf("%w: import graph: %v", ErrCorruptSnapshot, err)
		}
	}

	s.config = meta.Config
	s.ids = meta.IDs
	s.vectors = blob.Vectors
	s.live = meta.Live
	if s.live == nil {
		s.live = make(map[string]int)
	}
	s.graph = graph
	return nil
}

// Close releases the index. Further operations fail with ErrIndexClosed.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	s.ids = nil
	s.vectors = nil
	s.live = nil
	return nil
}
