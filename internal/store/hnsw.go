package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// HNSWConfig configures an HNSWIndex.
type HNSWConfig struct {
	Dimensions int
	M          int
	EfSearch   int
}

// compactMinOrphans keeps small graphs from rebuilding on every delete.
const compactMinOrphans = 64

// HNSWIndex implements VectorIndex on a coder/hnsw graph.
//
// Removal is lazy: the node stays in the graph and only the id mappings are
// dropped, because coder/hnsw misbehaves when the last node is deleted.
// The graph is rebuilt once orphaned nodes outnumber live ones. Graph hits
// are re-scored exactly against the stored vector, so similarities do not
// carry graph approximation error.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[string][]float32 // unit length
	nextKey uint64

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(cfg HNSWConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.ValidationError("vector dimensions must be positive", nil).
			WithDetail("dimensions", fmt.Sprint(cfg.Dimensions))
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	idx := &HNSWIndex{config: cfg}
	idx.resetLocked()
	return idx, nil
}

func (s *HNSWIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.config.M
	g.EfSearch = s.config.EfSearch
	g.Ml = 0.25
	return g
}

func (s *HNSWIndex) resetLocked() {
	s.graph = s.newGraph()
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.vectors = make(map[string][]float32)
	s.nextKey = 0
}

// Index implements VectorIndex.
func (s *HNSWIndex) Index(_ context.Context, id string, vec []float32, _ int64) error {
	if err := checkVector(vec, s.config.Dimensions); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errIndexClosed("vector")
	}

	if existing, ok := s.idMap[id]; ok {
		delete(s.keyMap, existing)
	}

	unit := normalized(vec)
	key := s.nextKey
	s.nextKey++
	s.graph.Add(hnsw.MakeNode(key, unit))

	s.idMap[id] = key
	s.keyMap[key] = id
	s.vectors[id] = unit

	s.maybeCompactLocked()
	return nil
}

// Remove implements VectorIndex. Removing an unknown id is a no-op.
func (s *HNSWIndex) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errIndexClosed("vector")
	}

	if key, ok := s.idMap[id]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.vectors, id)
	}

	s.maybeCompactLocked()
	return nil
}

// Search implements VectorIndex.
func (s *HNSWIndex) Search(_ context.Context, query []float32, k int, allow func(string) bool) ([]VectorMatch, error) {
	if err := checkVector(query, s.config.Dimensions); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errIndexClosed("vector")
	}
	if k <= 0 || len(s.idMap) == 0 || s.graph.Len() == 0 {
		return []VectorMatch{}, nil
	}

	unit := normalized(query)
	if Magnitude(unit) == 0 {
		hits := s.scanLocked(unit, allow)
		sortVectorMatches(hits)
		return hits[:min(k, len(hits))], nil
	}
	graphLen := s.graph.Len()

	// Over-fetch until k allowed live hits are found or the graph is
	// exhausted; lazily deleted and disallowed nodes take up slots.
	var hits []VectorMatch
	for fetch := k; ; fetch *= 2 {
		fetch = min(fetch, graphLen)
		nodes := s.graph.Search(unit, fetch)

		hits = hits[:0]
		for _, node := range nodes {
			id, ok := s.keyMap[node.Key]
			if !ok || (allow != nil && !allow(id)) {
				continue
			}
			hits = append(hits, VectorMatch{ID: id, Similarity: s.similarity(unit, id)})
		}
		if len(hits) >= k || len(nodes) < fetch || fetch >= graphLen {
			break
		}
	}

	// Graph search is approximate; fall back to an exact scan when it
	// came up short of the live population.
	if len(hits) < k && len(hits) < len(s.idMap) {
		hits = s.scanLocked(unit, allow)
	}

	sortVectorMatches(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *HNSWIndex) similarity(unit []float32, id string) float64 {
	return cosineWithMagnitude(unit, s.vectors[id], Magnitude(unit), Magnitude(s.vectors[id]))
}

func (s *HNSWIndex) scanLocked(unit []float32, allow func(string) bool) []VectorMatch {
	out := make([]VectorMatch, 0, len(s.vectors))
	for id := range s.vectors {
		if allow != nil && !allow(id) {
			continue
		}
		out = append(out, VectorMatch{ID: id, Similarity: s.similarity(unit, id)})
	}
	return out
}

// maybeCompactLocked rebuilds the graph from live vectors once orphans
// outnumber live nodes.
func (s *HNSWIndex) maybeCompactLocked() {
	orphans := s.graph.Len() - len(s.idMap)
	if orphans < compactMinOrphans || orphans <= len(s.idMap) {
		return
	}

	g := s.newGraph()
	idMap := make(map[string]uint64, len(s.idMap))
	keyMap := make(map[uint64]string, len(s.idMap))
	var next uint64
	for id, vec := range s.vectors {
		g.Add(hnsw.MakeNode(next, vec))
		idMap[id] = next
		keyMap[next] = id
		next++
	}
	s.graph, s.idMap, s.keyMap, s.nextKey = g, idMap, keyMap, next
}

// Stats reports live ids and total graph nodes, orphans included.
func (s *HNSWIndex) Stats() (live, nodes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0
	}
	return len(s.idMap), s.graph.Len()
}

// Contains implements VectorIndex.
func (s *HNSWIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idMap[id]
	return ok && !s.closed
}

// AllIDs implements VectorIndex.
func (s *HNSWIndex) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Count implements VectorIndex.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Dimensions implements VectorIndex.
func (s *HNSWIndex) Dimensions() int {
	return s.config.Dimensions
}

// Reset implements VectorIndex.
func (s *HNSWIndex) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errIndexClosed("vector")
	}
	s.resetLocked()
	return nil
}

// Close implements VectorIndex.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func errIndexClosed(name string) error {
	return errors.New(errors.ErrCodeIndexFailed, name+" index is closed", nil)
}
