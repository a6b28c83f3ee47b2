package search

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/embed"
	"github.com/NguyenDuy1910/chatbot/internal/store"
	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

const testDims = 3

// tableEmbedder returns fixed vectors per preprocessed text, so tests can
// pin similarities exactly.
type tableEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
}

func newTableEmbedder() *tableEmbedder {
	return &tableEmbedder{vectors: make(map[string][]float32)}
}

func (e *tableEmbedder) set(text string, vec ...float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[textproc.Preprocess(text)] = vec
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *tableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) Dimensions() int                { return testDims }
func (e *tableEmbedder) ModelName() string              { return "table" }
func (e *tableEmbedder) Available(context.Context) bool { return true }
func (e *tableEmbedder) Close() error                   { return nil }

var _ embed.Embedder = (*tableEmbedder)(nil)

type fixture struct {
	docs     *store.SQLiteStore
	lexical  *store.BleveLexicalIndex
	vectors  *store.FlatIndex
	embedder *tableEmbedder
	planner  *Planner
}

func newFixture(t *testing.T, opts ...PlannerOption) *fixture {
	t.Helper()
	docs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	vectors, err := store.NewFlatIndex(testDims)
	require.NoError(t, err)

	lexical, err := store.NewBleveLexicalIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	f := &fixture{
		docs:     docs,
		lexical:  lexical,
		vectors:  vectors,
		embedder: newTableEmbedder(),
	}
	f.planner = NewPlanner(f.docs, f.lexical, f.vectors, f.embedder, DefaultConfig(), opts...)
	return f
}

// seed writes a document to all three stores the way the indexer does.
func (f *fixture) seed(t *testing.T, id, text string, meta map[string]any, vec ...float32) int64 {
	t.Helper()
	ctx := context.Background()
	v, err := f.docs.Put(ctx, store.PutRequest{
		ID: id, Text: text, Metadata: meta, Embedding: vec, ExpectedVersion: store.AnyVersion,
	})
	require.NoError(t, err)
	require.NoError(t, f.lexical.Index(ctx, id, text, v))
	require.NoError(t, f.vectors.Index(ctx, id, vec, v))
	return v
}

func (f *fixture) search(t *testing.T, query string, opts SearchOptions) []Result {
	t.Helper()
	res, err := f.planner.Search(context.Background(), query, opts)
	require.NoError(t, err)
	return res
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func ptr(v float64) *float64 { return &v }
