// Package index keeps the document store, the lexical index and the vector
// index in step.
//
// Every write runs as a saga: store first, then the lexical index, then the
// vector index. A failed step undoes the completed ones in reverse order.
// Writers to the same id are serialized; readers never take those locks.
package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/embed"
	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/store"
	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

// DefaultOperationTimeout bounds a write when the caller sets no deadline.
const DefaultOperationTimeout = 30 * time.Second

// Options configures an Indexer.
type Options struct {
	// OperationTimeout bounds each write. Zero uses DefaultOperationTimeout.
	OperationTimeout time.Duration

	// CompensationTimeout bounds the undo of a failed write.
	CompensationTimeout time.Duration

	// SyncThreshold is the text similarity above which Sync leaves a live
	// document untouched.
	SyncThreshold float64

	Purge PurgeConfig
}

// DefaultOptions returns the indexer defaults.
func DefaultOptions() Options {
	return Options{
		OperationTimeout:    DefaultOperationTimeout,
		CompensationTimeout: DefaultCompensationTimeout,
		SyncThreshold:       0.85,
		Purge:               DefaultPurgeConfig(),
	}
}

// Result identifies the document version a write produced.
type Result struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
}

// Indexer applies add, update and delete across the three stores.
type Indexer struct {
	docs     store.DocumentStore
	lexical  store.LexicalIndex
	vectors  store.VectorIndex
	embedder embed.Embedder

	opts   Options
	locks  *lockTable
	purger *Purger

	// resetMu lets writes run concurrently while Reset excludes them all.
	resetMu sync.RWMutex
}

// New creates an Indexer. Call Start to run the background purger.
func New(docs store.DocumentStore, lexical store.LexicalIndex, vectors store.VectorIndex, embedder embed.Embedder, opts Options) *Indexer {
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = DefaultCompensationTimeout
	}
	if opts.SyncThreshold <= 0 {
		opts.SyncThreshold = DefaultOptions().SyncThreshold
	}
	ix := &Indexer{
		docs:     docs,
		lexical:  lexical,
		vectors:  vectors,
		embedder: embedder,
		opts:     opts,
		locks:    newLockTable(),
	}
	ix.purger = NewPurger(opts.Purge, ix.purgeOne)
	return ix
}

// Start runs the background purger until ctx is done or Stop is called.
func (ix *Indexer) Start(ctx context.Context) {
	ix.purger.Start(ctx)
}

// Stop halts the background purger.
func (ix *Indexer) Stop() {
	ix.purger.Stop()
}

// Purger exposes the purge queue.
func (ix *Indexer) Purger() *Purger {
	return ix.purger
}

// Add creates id, or resurrects it when tombstoned. A live id is a
// Conflict.
func (ix *Indexer) Add(ctx context.Context, id, text string, metadata map[string]any) (Result, error) {
	if err := checkWrite(id, text); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, ix.opts.OperationTimeout)
	defer cancel()

	ix.resetMu.RLock()
	defer ix.resetMu.RUnlock()

	if row, err := ix.docs.Lookup(ctx, id); err != nil {
		return Result{}, operationError(id, err)
	} else if row != nil && !row.Deleted {
		return Result{}, errors.DuplicateID(id)
	}

	vec, err := ix.embed(ctx, id, text)
	if err != nil {
		return Result{}, err
	}

	release, err := ix.locks.acquire(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	defer release()

	prior, err := ix.docs.Lookup(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	expected := int64(0)
	if prior != nil {
		if !prior.Deleted {
			return Result{}, errors.DuplicateID(id)
		}
		expected = prior.Version
	}

	var version int64
	s := &saga{
		op:      "add",
		id:      id,
		timeout: ix.opts.CompensationTimeout,
		steps: []step{
			{
				name: "store",
				do: func(ctx context.Context) error {
					v, err := ix.docs.Put(ctx, store.PutRequest{
						ID: id, Text: text, Metadata: metadata, Embedding: vec, ExpectedVersion: expected,
					})
					version = v
					return err
				},
				undo: func(ctx context.Context) error { return ix.docs.Restore(ctx, id, prior) },
			},
			{
				name: "lexical",
				do:   func(ctx context.Context) error { return ix.lexical.Index(ctx, id, text, version) },
				undo: func(ctx context.Context) error { return ix.lexical.Remove(ctx, id) },
			},
			{
				name: "vector",
				do:   func(ctx context.Context) error { return ix.vectors.Index(ctx, id, vec, version) },
				undo: func(ctx context.Context) error { return ix.vectors.Remove(ctx, id) },
			},
		},
	}
	if err := s.run(ctx); err != nil {
		return Result{}, err
	}

	if prior != nil {
		ix.purger.Cancel(id)
	}
	slog.Info("document_added",
		slog.String("id", id),
		slog.Int64("version", version),
		slog.Bool("resurrected", prior != nil))
	return Result{ID: id, Version: version}, nil
}

// Update replaces the text and metadata of a live id. A write that lands
// between the read and the commit makes this a stale Conflict.
func (ix *Indexer) Update(ctx context.Context, id, text string, metadata map[string]any) (Result, error) {
	if err := checkWrite(id, text); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, ix.opts.OperationTimeout)
	defer cancel()

	ix.resetMu.RLock()
	defer ix.resetMu.RUnlock()

	current, err := ix.docs.Get(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	readVersion := current.Version

	vec, err := ix.embed(ctx, id, text)
	if err != nil {
		return Result{}, err
	}

	release, err := ix.locks.acquire(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	defer release()

	prior, err := ix.docs.Lookup(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	if prior == nil || prior.Deleted {
		return Result{}, errors.NotFound(id)
	}

	var version int64
	s := &saga{
		op:      "update",
		id:      id,
		timeout: ix.opts.CompensationTimeout,
		steps: []step{
			{
				name: "store",
				do: func(ctx context.Context) error {
					v, err := ix.docs.Put(ctx, store.PutRequest{
						ID: id, Text: text, Metadata: metadata, Embedding: vec, ExpectedVersion: readVersion,
					})
					version = v
					return err
				},
				undo: func(ctx context.Context) error { return ix.docs.Restore(ctx, id, prior) },
			},
			{
				name: "lexical",
				do:   func(ctx context.Context) error { return ix.lexical.Index(ctx, id, text, version) },
				undo: func(ctx context.Context) error {
					return ix.lexical.Index(ctx, id, prior.Text, prior.Version)
				},
			},
			{
				name: "vector",
				do:   func(ctx context.Context) error { return ix.vectors.Index(ctx, id, vec, version) },
				undo: func(ctx context.Context) error {
					return ix.vectors.Index(ctx, id, prior.Embedding, prior.Version)
				},
			},
		},
	}
	if err := s.run(ctx); err != nil {
		return Result{}, err
	}

	slog.Info("document_updated", slog.String("id", id), slog.Int64("version", version))
	return Result{ID: id, Version: version}, nil
}

// Delete tombstones id and queues it for purging. Deleting an absent or
// already deleted id succeeds without effect.
func (ix *Indexer) Delete(ctx context.Context, id string) (Result, error) {
	if err := store.ValidateID(id); err != nil {
		return Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, ix.opts.OperationTimeout)
	defer cancel()

	ix.resetMu.RLock()
	defer ix.resetMu.RUnlock()

	release, err := ix.locks.acquire(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	defer release()

	row, err := ix.docs.Lookup(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	if row == nil {
		return Result{ID: id}, nil
	}
	if row.Deleted {
		return Result{ID: id, Version: row.Version}, nil
	}

	version, err := ix.docs.Delete(ctx, id)
	if err != nil {
		return Result{}, operationError(id, err)
	}
	ix.purger.Enqueue(id, version)

	slog.Info("document_deleted", slog.String("id", id), slog.Int64("version", version))
	return Result{ID: id, Version: version}, nil
}

// Reset empties all three stores and starts a new generation. It waits for
// in-flight writes and blocks new ones until it is done.
func (ix *Indexer) Reset(ctx context.Context) error {
	ix.resetMu.Lock()
	defer ix.resetMu.Unlock()

	ix.purger.Clear()
	if err := ix.docs.Reset(ctx); err != nil {
		return err
	}
	if err := ix.lexical.Reset(ctx); err != nil {
		return err
	}
	if err := ix.vectors.Reset(ctx); err != nil {
		return err
	}

	gen, err := ix.docs.Generation(ctx)
	if err != nil {
		slog.Warn("index_reset_generation_unavailable", slog.String("error", err.Error()))
		return nil
	}
	slog.Info("index_reset", slog.Int64("generation", gen))
	return nil
}

// RebuildStats summarizes a Rebuild.
type RebuildStats struct {
	Indexed int
	Queued  int
}

// Rebuild repopulates both indexes from the live rows of the document
// store and re-queues tombstones for purging.
func (ix *Indexer) Rebuild(ctx context.Context) (RebuildStats, error) {
	ix.resetMu.Lock()
	defer ix.resetMu.Unlock()

	start := time.Now()
	var stats RebuildStats

	if err := ix.lexical.Reset(ctx); err != nil {
		return stats, err
	}
	if err := ix.vectors.Reset(ctx); err != nil {
		return stats, err
	}

	live, err := ix.docs.LiveIDs(ctx)
	if err != nil {
		return stats, err
	}
	for i := 0; i < len(live); i += rebuildBatch {
		batch := live[i:min(i+rebuildBatch, len(live))]
		rows, err := ix.docs.GetMany(ctx, batch)
		if err != nil {
			return stats, err
		}
		for _, id := range batch {
			row, ok := rows[id]
			if !ok {
				continue
			}
			if err := ix.indexRow(ctx, row); err != nil {
				return stats, operationError(id, err)
			}
			stats.Indexed++
		}
	}

	dead, err := ix.docs.TombstonedIDs(ctx)
	if err != nil {
		return stats, err
	}
	for _, id := range dead {
		row, err := ix.docs.Lookup(ctx, id)
		if err != nil {
			return stats, err
		}
		if row != nil && row.Deleted {
			ix.purger.Enqueue(id, row.Version)
			stats.Queued++
		}
	}

	slog.Info("index_rebuilt",
		slog.Int("indexed", stats.Indexed),
		slog.Int("queued_purges", stats.Queued),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return stats, nil
}

const rebuildBatch = 500

func (ix *Indexer) indexRow(ctx context.Context, row *store.Document) error {
	if err := ix.lexical.Index(ctx, row.ID, row.Text, row.Version); err != nil {
		return err
	}
	return ix.vectors.Index(ctx, row.ID, row.Embedding, row.Version)
}

// purgeOne removes a tombstone's index entries and then the row, as long
// as the row is still that tombstone.
func (ix *Indexer) purgeOne(ctx context.Context, id string, version int64) error {
	ix.resetMu.RLock()
	defer ix.resetMu.RUnlock()

	release, err := ix.locks.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	row, err := ix.docs.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if row == nil || !row.Deleted || row.Version != version {
		return nil
	}

	if err := ix.lexical.Remove(ctx, id); err != nil {
		return err
	}
	if err := ix.vectors.Remove(ctx, id); err != nil {
		return err
	}
	_, err = ix.docs.Purge(ctx, id, version)
	return err
}

func (ix *Indexer) embed(ctx context.Context, id, text string) ([]float32, error) {
	vec, err := ix.embedder.Embed(ctx, textproc.Preprocess(text))
	if err != nil {
		return nil, operationError(id, err)
	}
	if dims := ix.vectors.Dimensions(); dims > 0 && len(vec) != dims {
		return nil, store.DimensionMismatch(dims, len(vec)).WithDetail("id", id)
	}
	return vec, nil
}

func checkWrite(id, text string) error {
	if err := store.ValidateID(id); err != nil {
		return err
	}
	if textproc.IsBlank(text) {
		return embed.EmptyTextError().WithDetail("id", id)
	}
	return nil
}
