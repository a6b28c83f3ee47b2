package index

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/embed"
	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/store"
)

const testDims = 64

// faults injects errors into index calls. A nil func passes through.
type faults struct {
	mu     sync.Mutex
	index  func(id string) error
	remove func(id string) error
}

func (f *faults) setIndex(fn func(id string) error) {
	f.mu.Lock()
	f.index = fn
	f.mu.Unlock()
}

func (f *faults) setRemove(fn func(id string) error) {
	f.mu.Lock()
	f.remove = fn
	f.mu.Unlock()
}

func (f *faults) onIndex(id string) error {
	f.mu.Lock()
	fn := f.index
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(id)
}

func (f *faults) onRemove(id string) error {
	f.mu.Lock()
	fn := f.remove
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(id)
}

type faultyLexical struct {
	store.LexicalIndex
	faults
}

func (f *faultyLexical) Index(ctx context.Context, id, text string, version int64) error {
	if err := f.onIndex(id); err != nil {
		return err
	}
	return f.LexicalIndex.Index(ctx, id, text, version)
}

func (f *faultyLexical) Remove(ctx context.Context, id string) error {
	if err := f.onRemove(id); err != nil {
		return err
	}
	return f.LexicalIndex.Remove(ctx, id)
}

type faultyVectors struct {
	store.VectorIndex
	faults
}

func (f *faultyVectors) Index(ctx context.Context, id string, vec []float32, version int64) error {
	if err := f.onIndex(id); err != nil {
		return err
	}
	return f.VectorIndex.Index(ctx, id, vec, version)
}

func (f *faultyVectors) Remove(ctx context.Context, id string) error {
	if err := f.onRemove(id); err != nil {
		return err
	}
	return f.VectorIndex.Remove(ctx, id)
}

// hookEmbedder runs onEmbed before delegating, which lets a test land a
// competing write between an update's read and its commit.
type hookEmbedder struct {
	embed.Embedder
	mu      sync.Mutex
	onEmbed func(text string)
}

func (h *hookEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	fn := h.onEmbed
	h.mu.Unlock()
	if fn != nil {
		fn(text)
	}
	return h.Embedder.Embed(ctx, text)
}

func (h *hookEmbedder) setHook(fn func(text string)) {
	h.mu.Lock()
	h.onEmbed = fn
	h.mu.Unlock()
}

type fixture struct {
	ix       *Indexer
	docs     *store.SQLiteStore
	lexical  *faultyLexical
	vectors  *faultyVectors
	embedder *hookEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithOptions(t, DefaultOptions())
}

func newFixtureWithOptions(t *testing.T, opts Options) *fixture {
	t.Helper()
	docs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	flat, err := store.NewFlatIndex(testDims)
	require.NoError(t, err)

	lexical, err := store.NewBleveLexicalIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	f := &fixture{
		docs:     docs,
		lexical:  &faultyLexical{LexicalIndex: lexical},
		vectors:  &faultyVectors{VectorIndex: flat},
		embedder: &hookEmbedder{Embedder: embed.NewStaticEmbedder(testDims)},
	}
	f.ix = New(f.docs, f.lexical, f.vectors, f.embedder, opts)
	return f
}

func (f *fixture) add(t *testing.T, id, text string) Result {
	t.Helper()
	res, err := f.ix.Add(context.Background(), id, text, nil)
	require.NoError(t, err)
	return res
}

// requireIndexed asserts whether id is present in both indexes.
func (f *fixture) requireIndexed(t *testing.T, id string, want bool) {
	t.Helper()
	require.Equal(t, want, f.lexical.Contains(id), "lexical contains %q", id)
	require.Equal(t, want, f.vectors.Contains(id), "vector contains %q", id)
}

func indexFailure(msg string) func(string) error {
	return func(string) error {
		return errors.New(errors.ErrCodeIndexFailed, msg, nil)
	}
}

// failOnce fails the first call only.
func failOnce(msg string) func(string) error {
	var once sync.Once
	return func(string) error {
		var err error
		once.Do(func() { err = errors.New(errors.ErrCodeIndexFailed, msg, nil) })
		return err
	}
}

// fakeClock is a manually advanced clock for the purger.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
