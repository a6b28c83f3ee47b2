package index

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

// SyncAction is what Sync did with a document.
type SyncAction string

const (
	SyncAdded   SyncAction = "added"
	SyncUpdated SyncAction = "updated"
	SyncSkipped SyncAction = "skipped"
	SyncFailed  SyncAction = "failed"
)

// SyncItem is one document handed to SyncBatch.
type SyncItem struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// SyncReport summarizes a SyncBatch. Errors is keyed by id.
type SyncReport struct {
	Added   int
	Updated int
	Skipped int
	Failed  int
	Errors  map[string]error
}

// syncWorkers bounds concurrent writes in SyncBatch.
const syncWorkers = 4

// Sync makes the stored document for id match text: absent or deleted ids
// are added, live ids whose text is near-identical are skipped, and the
// rest are updated.
func (ix *Indexer) Sync(ctx context.Context, id, text string, metadata map[string]any) (SyncAction, Result, error) {
	if err := checkWrite(id, text); err != nil {
		return SyncFailed, Result{}, err
	}

	row, err := ix.docs.Lookup(ctx, id)
	if err != nil {
		return SyncFailed, Result{}, operationError(id, err)
	}

	if row == nil || row.Deleted {
		res, err := ix.Add(ctx, id, text, metadata)
		if err != nil {
			return SyncFailed, Result{}, err
		}
		return SyncAdded, res, nil
	}

	if textproc.Similarity(row.Text, text) > ix.opts.SyncThreshold {
		return SyncSkipped, Result{ID: id, Version: row.Version}, nil
	}

	res, err := ix.Update(ctx, id, text, metadata)
	if err != nil {
		return SyncFailed, Result{}, err
	}
	return SyncUpdated, res, nil
}

// SyncBatch syncs every item. A failed item does not stop the others.
func (ix *Indexer) SyncBatch(ctx context.Context, items []SyncItem) (SyncReport, error) {
	report := SyncReport{Errors: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncWorkers)
	for _, item := range items {
		g.Go(func() error {
			action, _, err := ix.Sync(gctx, item.ID, item.Text, item.Metadata)

			mu.Lock()
			defer mu.Unlock()
			switch action {
			case SyncAdded:
				report.Added++
			case SyncUpdated:
				report.Updated++
			case SyncSkipped:
				report.Skipped++
			default:
				report.Failed++
				report.Errors[item.ID] = err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}
