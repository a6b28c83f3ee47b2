// Package store holds the three stores behind the retrieval engine: the
// SQLite document store (source of truth), the bleve TF-IDF lexical index, and
// the vector index (HNSW graph or exact flat scan).
//
// The document store never triggers indexing; the indexes are derived data
// that internal/index keeps in step with it.
package store

import (
	"context"
	"time"
)

// AnyVersion disables the compare-and-swap guard of a Put.
const AnyVersion int64 = -1

// State keys in the document store's state table.
const (
	StateKeyDimensions = "embedding_dimensions"
	StateKeyGeneration = "generation"
	StateKeyModel      = "embedding_model"
)

// Document is one row of the document store.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float32
	Version   int64
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of d. Nil stays nil.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	if d.Metadata != nil {
		c.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			c.Metadata[k] = v
		}
	}
	if d.Embedding != nil {
		c.Embedding = append([]float32(nil), d.Embedding...)
	}
	return &c
}

// PutRequest writes a document's text, metadata and embedding in one step.
type PutRequest struct {
	ID        string
	Text      string
	Metadata  map[string]any
	Embedding []float32

	// ExpectedVersion guards the write: the current row version (0 for an
	// absent id) must equal it. AnyVersion skips the check.
	ExpectedVersion int64
}

// Counts summarizes the document store.
type Counts struct {
	Live       int
	Tombstoned int
}

// Filter is one predicate of a structured query. Field is "id", "version"
// or a metadata key; Values holds one operand, or several for IN.
type Filter struct {
	Field  string
	Op     string
	Values []any
}

// SortKey orders structured query output.
type SortKey struct {
	Field string
	Desc  bool
}

// Query is a structured query over live documents. Filters are ANDed.
// Results are ordered by Sort, then id ascending.
type Query struct {
	Filters []Filter
	Sort    []SortKey
	Limit   int
}

// DocumentStore is the authoritative store of documents.
type DocumentStore interface {
	// Put creates (version 1), overwrites (version+1) or resurrects a
	// tombstoned id (version+1). Text and embedding are published together.
	Put(ctx context.Context, req PutRequest) (int64, error)

	// Get returns a live document or NotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// GetMany returns the live documents among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]*Document, error)

	// Lookup returns the raw row including tombstones, or nil when absent.
	Lookup(ctx context.Context, id string) (*Document, error)

	// Delete tombstones a live id and returns the new version.
	Delete(ctx context.Context, id string) (int64, error)

	// Exists reports whether id is live.
	Exists(ctx context.Context, id string) (bool, error)

	// Restore puts back prior exactly as it was, or removes the row when
	// prior is nil.
	Restore(ctx context.Context, id string, prior *Document) error

	// Purge physically removes a tombstone still at version.
	Purge(ctx context.Context, id string, version int64) (bool, error)

	LiveIDs(ctx context.Context) ([]string, error)
	TombstonedIDs(ctx context.Context) ([]string, error)
	Counts(ctx context.Context) (Counts, error)

	// Query runs a structured query over live documents.
	Query(ctx context.Context, q Query) ([]*Document, error)

	// Reset removes every document and starts a new generation.
	Reset(ctx context.Context) error

	Dimensions(ctx context.Context) (int, error)
	SetDimensions(ctx context.Context, dims int) error
	Generation(ctx context.Context) (int64, error)
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// LexicalMatch is a lexical score for one id, with the version of the text
// that produced it.
type LexicalMatch struct {
	ID      string
	Score   float64
	Version int64
}

// LexicalIndex scores documents by term overlap with a query.
type LexicalIndex interface {
	// Index replaces any prior entry for id.
	Index(ctx context.Context, id, text string, version int64) error
	Remove(ctx context.Context, id string) error

	// Score returns an entry for every id in ids the index holds.
	Score(ctx context.Context, query string, ids []string) (map[string]LexicalMatch, error)

	// Search returns the k best-scoring ids accepted by allow (nil accepts
	// all), ordered by score desc then id asc. Zero scores are omitted.
	Search(ctx context.Context, query string, k int, allow func(id string) bool) ([]LexicalMatch, error)

	// ScoreText scores text as if it were indexed, against the current
	// corpus statistics.
	ScoreText(query, text string) float64

	Contains(id string) bool
	AllIDs() []string
	Count() int
	Reset(ctx context.Context) error
	Close() error
}

// VectorMatch is a vector index hit. Similarity is cosine in [-1, 1].
type VectorMatch struct {
	ID         string
	Similarity float64
}

// VectorIndex finds nearest neighbours of an embedding.
type VectorIndex interface {
	// Index replaces any prior vector for id.
	Index(ctx context.Context, id string, vec []float32, version int64) error
	Remove(ctx context.Context, id string) error

	// Search returns up to k ids accepted by allow (nil accepts all),
	// ordered by similarity desc then id asc.
	Search(ctx context.Context, query []float32, k int, allow func(id string) bool) ([]VectorMatch, error)

	Contains(id string) bool
	AllIDs() []string
	Count() int
	Dimensions() int
	Reset(ctx context.Context) error
	Close() error
}
