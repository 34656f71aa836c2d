package store

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// FlatIndex is the exact brute-force vector index. Every query scans all
// live slots, which keeps results exact and makes it the reference
// implementation the HNSW index is checked against.
type FlatIndex struct {
	mu     sync.RWMutex
	config IndexConfig

	ids     []string    // slot-ordered, includes tombstoned slots
	vectors [][]float32 // parallel to ids
	live    map[string]int

	closed bool
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty flat index.
func NewFlatIndex(cfg IndexConfig) (*FlatIndex, error) {
	cfg.Kind = IndexFlat
	if cfg.Metric == "" {
		cfg.Metric = MetricIP
	}
	if !cfg.Metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", cfg.Metric)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &FlatIndex{
		config: cfg,
		live:   make(map[string]int),
	}, nil
}

// Add inserts or replaces vectors. The whole batch is validated before
// any slot is written.
func (s *FlatIndex) Add(ids []string, vectors [][]float32) error {
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
		// Replacing an existing ID tombstones its old slot.
		delete(s.live, id)

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == MetricIP {
			normalizeVectorInPlace(vec)
		}

		s.live[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, vec)
	}
	return nil
}

// Search scans all live vectors and returns the top k.
func (s *FlatIndex) Search(query []float32, k int) ([]Candidate, error) {
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

	results := make([]Candidate, 0, len(s.live))
	for id, slot := range s.live {
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
func (s *FlatIndex) Reconstruct(chunkID string) ([]float32, bool) {
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

// Remove tombstones the given IDs and rebuilds without them.
func (s *FlatIndex) Remove(ids []string) (int, error) {
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

// Compact rebuilds the index dropping tombstoned slots.
func (s *FlatIndex) Compact() error {
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

// rebuild repacks live slots preserving slot order. Callers hold the
// write lock.
func (s *FlatIndex) rebuild() {
	newIDs := make([]string, 0, len(s.live))
	newVectors := make([][]float32, 0, len(s.live))
	newLive := make(map[string]int, len(s.live))

	for slot, id := range s.ids {
		if liveSlot, ok := s.live[id]; ok && liveSlot == slot {
			newLive[id] = len(newIDs)
			newIDs = append(newIDs, id)
			newVectors = append(newVectors, s.vectors[slot])
		}
	}
	s.ids = newIDs
	s.vectors = newVectors
	s.live = newLive
}

// IDs returns live chunk IDs in slot order.
func (s *FlatIndex) IDs() []string {
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
func (s *FlatIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

func (s *FlatIndex) Kind() IndexKind { return IndexFlat }
func (s *FlatIndex) Metric() Metric  { return s.config.Metric }
func (s *FlatIndex) Dim() int        { return s.config.Dimensions }

// Save persists the index snapshot.
func (s *FlatIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrIndexClosed
	}
	return writeSnapshot(path,
		indexMetadata{Config: s.config, IDs: s.ids, Live: s.live},
		indexBlob{Vectors: s.vectors},
	)
}

// Load restores a snapshot, replacing current contents.
func (s *FlatIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexClosed
	}
	meta, blob, err := readSnapshot(path)
	if err != nil {
		return err
	}
	if meta.Config.Kind != IndexFlat {
		return fmt.Errorf("%w: snapshot is %q, expected %q", ErrCorruptSnapshot, meta.Config.Kind, IndexFlat)
	}
	s.config = meta.Config
	s.ids = meta.IDs
	s.vectors = blob.Vectors
	s.live = meta.Live
	if s.live == nil {
		s.live = make(map[string]int)
	}
	return nil
}

// Close releases the index. Further operations fail with ErrIndexClosed.
func (s *FlatIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ids = nil
	s.vectors = nil
	s.live = nil
	return nil
}

// normalizeVectorInPlace scales v to unit length. Zero vectors are left
// untouched.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// scoreVector computes the metric score between a query and a stored
// vector. Both are already normalized under MetricIP.
func scoreVector(query, stored []float32, metric Metric) float32 {
	if metric == MetricL2 {
		var sum float64
		for i := range query {
			d := float64(query[i]) - float64(stored[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	}
	var dot float64
	for i := range query {
		dot += float64(query[i]) * float64(stored[i])
	}
	return float32(dot)
}

// sortCandidates orders results by the metric's convention, breaking
// score ties by chunk ID for determinism.
func sortCandidates(results []Candidate, metric Metric) {
	lower := metric.LowerIsBetter()
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ChunkID < results[j].ChunkID
		}
		if lower {
			return results[i].Score < results[j].Score
		}
		return results[i].Score > results[j].Score
	})
}
