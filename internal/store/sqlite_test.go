package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func put(t *testing.T, s *SQLiteStore, id, text string, meta map[string]any) int64 {
	t.Helper()
	v, err := s.Put(context.Background(), PutRequest{
		ID: id, Text: text, Metadata: meta,
		Embedding:       []float32{1, 0, 0},
		ExpectedVersion: AnyVersion,
	})
	require.NoError(t, err)
	return v
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	// Given: an empty store
	s := newTestStore(t)
	ctx := context.Background()

	// When: I put a new document
	v := put(t, s, "101", "hello world", map[string]any{"lang": "en"})

	// Then: it starts at version 1 and reads back verbatim
	assert.Equal(t, int64(1), v)
	doc, err := s.Get(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, "hello world", doc.Text)
	assert.Equal(t, "en", doc.Metadata["lang"])
	assert.Equal(t, []float32{1, 0, 0}, doc.Embedding)
	assert.False(t, doc.Deleted)
	assert.False(t, doc.CreatedAt.IsZero())

	// When: I put it again
	v = put(t, s, "101", "hello again", nil)

	// Then: the version increments and the text is replaced
	assert.Equal(t, int64(2), v)
	doc, err = s.Get(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, "hello again", doc.Text)
	assert.Nil(t, doc.Metadata)
}

func TestSQLiteStore_IDsAreOpaque(t *testing.T) {
	// Given: documents "101" and "0101"
	s := newTestStore(t)
	put(t, s, "101", "one", nil)
	put(t, s, "0101", "two", nil)

	// Then: they are distinct rows
	ids, err := s.LiveIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"0101", "101"}, ids)
}

func TestSQLiteStore_CompareAndSwap(t *testing.T) {
	// Given: a document at version 2
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "v1", nil)
	put(t, s, "a", "v2", nil)

	// When: I write expecting version 1
	_, err := s.Put(ctx, PutRequest{ID: "a", Text: "v3", Embedding: []float32{1, 0, 0}, ExpectedVersion: 1})

	// Then: it fails with a stale version conflict and nothing changes
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStaleVersion, errors.GetCode(err))
	assert.True(t, errors.IsKind(err, errors.KindConflict))
	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v2", doc.Text)

	// When: I write expecting the current version
	v, err := s.Put(ctx, PutRequest{ID: "a", Text: "v3", Embedding: []float32{1, 0, 0}, ExpectedVersion: 2})

	// Then: it succeeds
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestSQLiteStore_ExpectedVersionZeroRequiresAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "text", nil)

	_, err := s.Put(ctx, PutRequest{ID: "a", Text: "x", Embedding: []float32{1, 0, 0}, ExpectedVersion: 0})
	assert.Equal(t, errors.ErrCodeStaleVersion, errors.GetCode(err))
}

func TestSQLiteStore_DeleteAndResurrect(t *testing.T) {
	// Given: a live document
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "first", nil)

	// When: I delete it
	v, err := s.Delete(ctx, "a")
	require.NoError(t, err)

	// Then: it is tombstoned at version 2 and no longer readable
	assert.Equal(t, int64(2), v)
	_, err = s.Get(ctx, "a")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	exists, err := s.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)

	raw, err := s.Lookup(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.True(t, raw.Deleted)

	// And: deleting again is NotFound
	_, err = s.Delete(ctx, "a")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	// When: I put it again
	v = put(t, s, "a", "second", nil)

	// Then: it is resurrected with a higher version
	assert.Equal(t, int64(3), v)
	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Text)
}

func TestSQLiteStore_DeleteAbsent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDocumentNotFound, errors.GetCode(err))
	ce, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "missing", ce.Details["id"])
}

func TestSQLiteStore_DimensionFixedPerGeneration(t *testing.T) {
	// Given: a store holding a 3-dimensional embedding
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "text", nil)

	dims, err := s.Dimensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	// When: I put a 4-dimensional embedding
	_, err = s.Put(ctx, PutRequest{ID: "b", Text: "x", Embedding: []float32{1, 0, 0, 0}, ExpectedVersion: AnyVersion})

	// Then: it is rejected as a validation error
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	// When: the store is reset
	require.NoError(t, s.Reset(ctx))

	// Then: a new generation accepts the new dimension
	_, err = s.Put(ctx, PutRequest{ID: "b", Text: "x", Embedding: []float32{1, 0, 0, 0}, ExpectedVersion: AnyVersion})
	require.NoError(t, err)
}

func TestSQLiteStore_PutValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PutRequest
		code string
	}{
		{"empty id", PutRequest{Text: "x", Embedding: []float32{1}}, errors.ErrCodeInvalidID},
		{"control char id", PutRequest{ID: "a\nb", Text: "x", Embedding: []float32{1}}, errors.ErrCodeInvalidID},
		{"long id", PutRequest{ID: strings.Repeat("x", MaxIDLength+1), Text: "x", Embedding: []float32{1}}, errors.ErrCodeInvalidID},
		{"no embedding", PutRequest{ID: "a", Text: "x"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.ExpectedVersion = AnyVersion
			_, err := s.Put(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestSQLiteStore_Restore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("nil prior removes the row", func(t *testing.T) {
		put(t, s, "new", "text", nil)
		require.NoError(t, s.Restore(ctx, "new", nil))
		raw, err := s.Lookup(ctx, "new")
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("prior row comes back exactly", func(t *testing.T) {
		put(t, s, "old", "original", map[string]any{"k": "v"})
		prior, err := s.Lookup(ctx, "old")
		require.NoError(t, err)

		put(t, s, "old", "changed", nil)
		require.NoError(t, s.Restore(ctx, "old", prior))

		got, err := s.Get(ctx, "old")
		require.NoError(t, err)
		assert.Equal(t, "original", got.Text)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, "v", got.Metadata["k"])
		assert.True(t, prior.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("tombstone prior", func(t *testing.T) {
		put(t, s, "tomb", "text", nil)
		_, err := s.Delete(ctx, "tomb")
		require.NoError(t, err)
		prior, err := s.Lookup(ctx, "tomb")
		require.NoError(t, err)

		put(t, s, "tomb", "resurrected", nil)
		require.NoError(t, s.Restore(ctx, "tomb", prior))

		exists, err := s.Exists(ctx, "tomb")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestSQLiteStore_Purge(t *testing.T) {
	// Given: a tombstone at version 2
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "text", nil)
	v, err := s.Delete(ctx, "a")
	require.NoError(t, err)

	// When: I purge at a different version
	ok, err := s.Purge(ctx, "a", v+1)

	// Then: nothing is removed
	require.NoError(t, err)
	assert.False(t, ok)

	// When: I purge at the tombstone version
	ok, err = s.Purge(ctx, "a", v)

	// Then: the row is gone
	require.NoError(t, err)
	assert.True(t, ok)
	raw, err := s.Lookup(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestSQLiteStore_PurgeIgnoresLiveRows(t *testing.T) {
	s := newTestStore(t)
	v := put(t, s, "a", "text", nil)
	ok, err := s.Purge(context.Background(), "a", v)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_GetManyAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "1", nil)
	put(t, s, "b", "2", nil)
	put(t, s, "c", "3", nil)
	_, err := s.Delete(ctx, "b")
	require.NoError(t, err)

	docs, err := s.GetMany(ctx, []string{"a", "b", "c", "zzz"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Contains(t, docs, "a")
	assert.Contains(t, docs, "c")

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Live: 2, Tombstoned: 1}, counts)

	tomb, err := s.TombstonedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, tomb)
}

func TestSQLiteStore_ResetStartsNewGeneration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	put(t, s, "a", "text", nil)

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	require.NoError(t, s.Reset(ctx))

	gen, err = s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
	dims, err := s.Dimensions(ctx)
	require.NoError(t, err)
	assert.Zero(t, dims)
	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, counts)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	// Given: a store file with one document
	path := filepath.Join(t.TempDir(), "documents.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	put(t, s, "a", "persisted", nil)
	require.NoError(t, s.Close())

	// When: I reopen it
	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the document survives
	doc, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "persisted", doc.Text)
}

func TestSQLiteStore_Closed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "a")
	assert.True(t, errors.IsRetryable(err))
}

func TestSQLiteStore_State(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetState(ctx, StateKeyModel)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetState(ctx, StateKeyModel, "static-hash"))
	require.NoError(t, s.SetState(ctx, StateKeyModel, "nomic"))
	v, err = s.GetState(ctx, StateKeyModel)
	require.NoError(t, err)
	assert.Equal(t, "nomic", v)
}

func seedQueryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := newTestStore(t)
	put(t, s, "1", "alpha", map[string]any{"category": "news", "year": 2019, "published": true})
	put(t, s, "2", "beta", map[string]any{"category": "blog", "year": 2021, "published": false})
	put(t, s, "3", "gamma", map[string]any{"category": "news", "year": 2021, "published": true})
	put(t, s, "4", "delta", map[string]any{"category": "news", "year": 2023})
	put(t, s, "5", "gone", map[string]any{"category": "news", "year": 2023})
	_, err := s.Delete(context.Background(), "5")
	require.NoError(t, err)
	return s
}

func ids(docs []*Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestSQLiteStore_Query(t *testing.T) {
	s := seedQueryStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{
			name: "no filters returns live ids ascending",
			q:    Query{},
			want: []string{"1", "2", "3", "4"},
		},
		{
			name: "equality on metadata",
			q:    Query{Filters: []Filter{{Field: "category", Op: OpEq, Values: []any{"news"}}}},
			want: []string{"1", "3", "4"},
		},
		{
			name: "range with sort desc and id tie-break",
			q: Query{
				Filters: []Filter{{Field: "year", Op: OpGte, Values: []any{2021}}},
				Sort:    []SortKey{{Field: "year", Desc: true}},
			},
			want: []string{"4", "2", "3"},
		},
		{
			name: "conjunction",
			q: Query{Filters: []Filter{
				{Field: "category", Op: OpEq, Values: []any{"news"}},
				{Field: "year", Op: OpLt, Values: []any{int64(2023)}},
			}},
			want: []string{"1", "3"},
		},
		{
			name: "in",
			q:    Query{Filters: []Filter{{Field: "id", Op: OpIn, Values: []any{"2", "4", "5"}}}},
			want: []string{"2", "4"},
		},
		{
			name: "boolean equality",
			q:    Query{Filters: []Filter{{Field: "published", Op: OpEq, Values: []any{true}}}},
			want: []string{"1", "3"},
		},
		{
			name: "missing field never matches",
			q:    Query{Filters: []Filter{{Field: "published", Op: OpNe, Values: []any{true}}}},
			want: []string{"2"},
		},
		{
			name: "limit",
			q:    Query{Sort: []SortKey{{Field: "id", Desc: true}}, Limit: 2},
			want: []string{"4", "3"},
		},
		{
			name: "version column",
			q:    Query{Filters: []Filter{{Field: "version", Op: OpEq, Values: []any{1}}}},
			want: []string{"1", "2", "3", "4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Query(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(docs))
		})
	}
}

func TestSQLiteStore_QueryInvalid(t *testing.T) {
	s := seedQueryStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		f    Filter
	}{
		{"unknown operator", Filter{Field: "year", Op: "LIKE", Values: []any{"x"}}},
		{"bad field", Filter{Field: "year'; DROP TABLE documents; --", Op: OpEq, Values: []any{1}}},
		{"missing value", Filter{Field: "year", Op: OpEq}},
		{"range on boolean", Filter{Field: "published", Op: OpGt, Values: []any{true}}},
		{"unsupported value", Filter{Field: "year", Op: OpEq, Values: []any{[]int{1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Query(ctx, Query{Filters: []Filter{tt.f}})
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidFilter, errors.GetCode(err))
		})
	}
}
