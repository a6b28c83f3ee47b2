package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

func TestPlanner_Scenario(t *testing.T) {
	// Given: two unrelated documents
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "101", "quantum computing breakthrough", nil, 1, 0, 0)
	f.seed(t, "102", "stock market rally", nil, 0, 1, 0)
	f.embedder.set("quantum computing", 0.9, 0.1, 0)

	// When: I search for the first one
	results := f.search(t, "quantum computing", SearchOptions{TopN: 1})

	// Then: it is the only result and scores above zero
	require.Len(t, results, 1)
	assert.Equal(t, "101", results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.Equal(t, "quantum computing breakthrough", results[0].Text)

	// When: it is tombstoned, with its index entries still in place
	_, err := f.docs.Delete(ctx, "101")
	require.NoError(t, err)

	// Then: the same search returns nothing
	assert.Empty(t, f.search(t, "quantum computing", SearchOptions{TopN: 1}))
}

func TestPlanner_Deterministic(t *testing.T) {
	// Given: documents with identical signals
	f := newFixture(t)
	for _, id := range []string{"d", "b", "a", "c", "e", "f"} {
		f.seed(t, id, "shared words here", nil, 1, 0, 0)
	}
	f.embedder.set("shared words", 1, 0, 0)

	// When: I search twice
	first := f.search(t, "shared words", SearchOptions{TopN: 5})
	second := f.search(t, "shared words", SearchOptions{TopN: 5})

	// Then: the order is identical and ties break by id ascending
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids(first))
}

func TestPlanner_ThresholdBeforeTruncation(t *testing.T) {
	// Given: the best lexical match has no vector similarity
	f := newFixture(t)
	f.seed(t, "d1", "alpha", nil, 0, 1, 0)
	f.seed(t, "d2", "alpha gamma", nil, 1, 0, 0)
	f.seed(t, "d3", "alpha delta", nil, 0.8, 0.6, 0)
	f.embedder.set("alpha", 1, 0, 0)

	// When: I search without a threshold
	plain := f.search(t, "alpha", SearchOptions{TopN: 1})

	// Then: d1 ties d2 and wins on id
	assert.Equal(t, []string{"d1"}, ids(plain))

	// When: I search with a threshold d1 cannot meet
	gated := f.search(t, "alpha", SearchOptions{TopN: 1, CertaintyThreshold: ptr(0.5)})

	// Then: the gate runs before truncation, so the next candidate fills in
	assert.Equal(t, []string{"d2"}, ids(gated))
}

func TestPlanner_ThresholdMonotonic(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", "river bank", nil, 1, 0, 0)
	f.seed(t, "2", "river boat", nil, 0.9, 0.43589, 0)
	f.seed(t, "3", "river fish", nil, 0.6, 0.8, 0)
	f.seed(t, "4", "river stone", nil, 0.2, 0.9798, 0)
	f.embedder.set("river", 1, 0, 0)

	prev := len(f.search(t, "river", SearchOptions{TopN: 10}))
	for _, threshold := range []float64{0, 0.1, 0.3, 0.5, 0.7, 0.95, 1} {
		n := len(f.search(t, "river", SearchOptions{TopN: 10, CertaintyThreshold: ptr(threshold)}))
		assert.LessOrEqual(t, n, prev, "threshold %v", threshold)
		prev = n
	}
	assert.Equal(t, 1, prev)
}

func TestPlanner_RelevanceGate(t *testing.T) {
	// Given: documents that share no terms with the query
	f := newFixture(t)
	f.seed(t, "near", "completely different words", nil, 0.6, 0.8, 0)
	f.seed(t, "far", "nothing in common", nil, 0.1, 0.99499, 0)
	f.embedder.set("query terms", 1, 0, 0)

	// When: I search
	results := f.search(t, "query terms", SearchOptions{TopN: 5})

	// Then: only the candidate with enough raw similarity is a result
	assert.Equal(t, []string{"near"}, ids(results))
	assert.InDelta(t, 0.6, results[0].VectorScore, 1e-6)
	assert.Zero(t, results[0].LexicalScore)
}

func TestPlanner_VisibilityGate(t *testing.T) {
	// Given: index entries for an id the store never held
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "live", "alpha beta", nil, 1, 0, 0)
	require.NoError(t, f.lexical.Index(ctx, "ghost", "alpha", 1))
	require.NoError(t, f.vectors.Index(ctx, "ghost", []float32{1, 0, 0}, 1))
	f.embedder.set("alpha", 1, 0, 0)

	// When: I search
	results := f.search(t, "alpha", SearchOptions{TopN: 5})

	// Then: only the live document is returned
	assert.Equal(t, []string{"live"}, ids(results))
}

func TestPlanner_SignalsComeFromPublishedRow(t *testing.T) {
	// Given: a lexical entry left over from an older version of the text
	f := newFixture(t)
	ctx := context.Background()
	v := f.seed(t, "doc", "beta only", nil, 0, 1, 0)
	require.NoError(t, f.lexical.Index(ctx, "doc", "alpha", v-1))
	f.embedder.set("alpha", 1, 0, 0)

	// When: I search for a term only the old text had
	results := f.search(t, "alpha", SearchOptions{TopN: 5})

	// Then: the old text never scores the row
	assert.Empty(t, results)
}

func TestPlanner_Exclude(t *testing.T) {
	f := newFixture(t, WithExclude(func(id string) bool { return id == "pending" }))
	f.seed(t, "pending", "alpha", nil, 1, 0, 0)
	f.seed(t, "other", "alpha beta", nil, 1, 0, 0)
	f.embedder.set("alpha", 1, 0, 0)

	results := f.search(t, "alpha", SearchOptions{TopN: 5})

	assert.Equal(t, []string{"other"}, ids(results))
}

func TestPlanner_Weights(t *testing.T) {
	// Given: one document strong lexically and one strong on vectors
	f := newFixture(t)
	f.seed(t, "lex", "alpha", nil, 0, 1, 0)
	f.seed(t, "vec", "alpha alpha omega omega omega", nil, 1, 0, 0)
	f.embedder.set("alpha", 1, 0, 0)

	lexical := f.search(t, "alpha", SearchOptions{TopN: 2, Weights: &Weights{Lexical: 1}})
	vector := f.search(t, "alpha", SearchOptions{TopN: 2, Weights: &Weights{Vector: 1}})

	assert.Equal(t, []string{"lex", "vec"}, ids(lexical))
	assert.Equal(t, []string{"vec", "lex"}, ids(vector))
}

func TestPlanner_DefaultTopN(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		f.seed(t, id, "alpha", nil, 1, 0, 0)
	}
	f.embedder.set("alpha", 1, 0, 0)

	results := f.search(t, "alpha", SearchOptions{})

	assert.Len(t, results, DefaultConfig().DefaultTopN)
}

func TestPlanner_TopNAtCapIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", "alpha", nil, 1, 0, 0)
	f.embedder.set("alpha", 1, 0, 0)

	results := f.search(t, "alpha", SearchOptions{TopN: DefaultConfig().MaxTopN})

	assert.Equal(t, []string{"1"}, ids(results))
}

func TestPlanner_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  SearchOptions
		code  string
	}{
		{name: "empty query", query: "", code: errors.ErrCodeQueryEmpty},
		{name: "punctuation query", query: "?!", code: errors.ErrCodeQueryEmpty},
		{name: "threshold above one", query: "alpha", opts: SearchOptions{CertaintyThreshold: ptr(1.5)}, code: errors.ErrCodeInvalidInput},
		{name: "negative threshold", query: "alpha", opts: SearchOptions{CertaintyThreshold: ptr(-0.1)}, code: errors.ErrCodeInvalidInput},
		{name: "bad weights", query: "alpha", opts: SearchOptions{Weights: &Weights{Lexical: 0.9, Vector: 0.9}}, code: errors.ErrCodeInvalidInput},
		{name: "top_n above the cap", query: "alpha", opts: SearchOptions{TopN: 101}, code: errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.planner.Search(context.Background(), tt.query, tt.opts)

			require.Error(t, err)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err))
			assert.Equal(t, tt.code, errors.GetCode(err))
			ce, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.query, ce.Details["query"])
		})
	}
}

func TestPlanner_EmbedderFailureSurfaces(t *testing.T) {
	// Given: an unreachable embedding provider
	f := newFixture(t)
	f.seed(t, "1", "alpha", nil, 1, 0, 0)
	f.embedder.err = errors.UpstreamError("provider unreachable", nil)

	// When: I search
	_, err := f.planner.Search(context.Background(), "alpha", SearchOptions{})

	// Then: the search fails instead of silently going lexical-only
	require.Error(t, err)
	assert.Equal(t, errors.KindUpstream, errors.KindOf(err))
	assert.True(t, errors.IsRetryable(err))
	ce, _ := errors.As(err)
	assert.Equal(t, "alpha", ce.Details["query"])
}

func TestPlanner_VietnameseQuery(t *testing.T) {
	// Given: Vietnamese documents
	f := newFixture(t)
	f.seed(t, "luat", "Luật giao thông đường bộ", nil, 1, 0, 0)
	f.seed(t, "other", "Bộ luật dân sự", nil, 0, 1, 0)
	f.embedder.set("GIAO THÔNG", 1, 0, 0)

	// When: I search in upper case
	results := f.search(t, "GIAO THÔNG", SearchOptions{TopN: 1})

	// Then: case folding keeps the diacritics and finds the document
	require.Len(t, results, 1)
	assert.Equal(t, "luat", results[0].ID)
	assert.Greater(t, results[0].LexicalScore, 0.0)
}
