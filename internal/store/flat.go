package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

type flatEntry struct {
	vec []float32
	mag float32
}

// FlatIndex implements VectorIndex with an exact linear scan. It is the
// reference backend for small corpora and tests.
type FlatIndex struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]flatEntry
	closed  bool
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty exact index of the given dimension.
func NewFlatIndex(dims int) (*FlatIndex, error) {
	if dims <= 0 {
		return nil, errors.ValidationError("vector dimensions must be positive", nil).
			WithDetail("dimensions", fmt.Sprint(dims))
	}
	return &FlatIndex{dims: dims, entries: make(map[string]flatEntry)}, nil
}

// Index implements VectorIndex.
func (f *FlatIndex) Index(_ context.Context, id string, vec []float32, _ int64) error {
	if err := checkVector(vec, f.dims); err != nil {
		return err
	}
	cp := append([]float32(nil), vec...)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errIndexClosed("vector")
	}
	f.entries[id] = flatEntry{vec: cp, mag: Magnitude(cp)}
	return nil
}

// Remove implements VectorIndex.
func (f *FlatIndex) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errIndexClosed("vector")
	}
	delete(f.entries, id)
	return nil
}

// Search implements VectorIndex.
func (f *FlatIndex) Search(_ context.Context, query []float32, k int, allow func(string) bool) ([]VectorMatch, error) {
	if err := checkVector(query, f.dims); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errIndexClosed("vector")
	}
	if k <= 0 {
		return []VectorMatch{}, nil
	}

	qm := Magnitude(query)
	out := make([]VectorMatch, 0, len(f.entries))
	for id, e := range f.entries {
		if allow != nil && !allow(id) {
			continue
		}
		out = append(out, VectorMatch{ID: id, Similarity: cosineWithMagnitude(query, e.vec, qm, e.mag)})
	}
	sortVectorMatches(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Contains implements VectorIndex.
func (f *FlatIndex) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.entries[id]
	return ok
}

// AllIDs implements VectorIndex.
func (f *FlatIndex) AllIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count implements VectorIndex.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Dimensions implements VectorIndex.
func (f *FlatIndex) Dimensions() int { return f.dims }

// Reset implements VectorIndex.
func (f *FlatIndex) Reset(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errIndexClosed("vector")
	}
	f.entries = make(map[string]flatEntry)
	return nil
}

// Close implements VectorIndex.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.entries = nil
	return nil
}
