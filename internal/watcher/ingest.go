package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/internal/store"
	"github.com/NguyenDuy1910/chatbot/internal/textproc"
)

// Metadata keys set on every ingested document.
const (
	MetaSource = "source"
	MetaPath   = "path"

	// SourceFile marks documents owned by an Ingester.
	SourceFile = "file"
)

// MaxFileSize is the largest file read as a document.
const MaxFileSize = 4 << 20

// batchSize is the number of files handed to one SyncBatch call.
const batchSize = 64

// Target is the index an Ingester writes to. *retrieval.Service
// implements it.
type Target interface {
	Sync(ctx context.Context, id, text string, metadata map[string]any) (index.SyncAction, index.Result, error)
	SyncBatch(ctx context.Context, items []index.SyncItem) (index.SyncReport, error)
	Delete(ctx context.Context, id string) (index.Result, error)
	StructuredQuery(ctx context.Context, req search.StructuredRequest) ([]search.Record, error)
}

// Report counts what one ingestion pass did.
type Report struct {
	Added   int
	Updated int
	Skipped int
	Deleted int
	Failed  int
	// Errors maps document ids to their failure.
	Errors map[string]error
}

func newReport() Report {
	return Report{Errors: make(map[string]error)}
}

func (r *Report) merge(s index.SyncReport) {
	r.Added += s.Added
	r.Updated += s.Updated
	r.Skipped += s.Skipped
	r.Failed += s.Failed
	for id, err := range s.Errors {
		r.Errors[id] = err
	}
}

func (r *Report) fail(id string, err error) {
	r.Failed++
	r.Errors[id] = err
}

// Changed reports whether the pass wrote anything.
func (r Report) Changed() bool {
	return r.Added+r.Updated+r.Deleted > 0
}

// ProgressFunc is called after each batch with the files done so far.
type ProgressFunc func(done, total int, lastID string)

// Ingester maps files under a root directory to documents.
type Ingester struct {
	target   Target
	root     string
	opts     Options
	progress ProgressFunc
}

// NewIngester creates an ingester for root.
func NewIngester(target Target, root string, opts Options) *Ingester {
	return &Ingester{target: target, root: root, opts: opts.WithDefaults()}
}

// OnProgress sets the progress callback used by SyncDir.
func (ing *Ingester) OnProgress(fn ProgressFunc) {
	ing.progress = fn
}

// DocumentID returns the id of the document for a path relative to the
// root.
func DocumentID(rel string) string {
	return filepath.ToSlash(filepath.Clean(rel))
}

// Scan reads every document file under the root, in path order.
func (ing *Ingester) Scan(ctx context.Context) ([]index.SyncItem, Report, error) {
	report := newReport()
	var items []index.SyncItem

	err := filepath.WalkDir(ing.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			slog.Warn("ingest_walk_skipped", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		rel, err := filepath.Rel(ing.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if ing.opts.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		id := DocumentID(rel)
		text, err := readDocument(path)
		switch {
		case err != nil:
			report.fail(id, err)
		case textproc.IsBlank(text):
			report.Skipped++
		default:
			items = append(items, index.SyncItem{ID: id, Text: text, Metadata: fileMetadata(id)})
		}
		return nil
	})
	if err != nil {
		return nil, report, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, report, nil
}

// SyncDir brings the index in line with the directory. With prune, file
// documents whose file no longer exists are deleted.
func (ing *Ingester) SyncDir(ctx context.Context, prune bool) (Report, error) {
	items, report, err := ing.Scan(ctx)
	if err != nil {
		return report, err
	}

	for start := 0; start < len(items); start += batchSize {
		batch := items[start:min(start+batchSize, len(items))]
		res, err := ing.target.SyncBatch(ctx, batch)
		report.merge(res)
		if err != nil {
			return report, err
		}
		if ing.progress != nil {
			ing.progress(start+len(batch), len(items), batch[len(batch)-1].ID)
		}
	}

	if prune {
		keep := make(map[string]struct{}, len(items))
		for _, it := range items {
			keep[it.ID] = struct{}{}
		}
		if err := ing.prune(ctx, &report, func(id string) bool {
			_, ok := keep[id]
			return !ok
		}); err != nil {
			return report, err
		}
	}

	slog.Info("ingest_sync_complete",
		slog.String("root", ing.root),
		slog.Int("added", report.Added),
		slog.Int("updated", report.Updated),
		slog.Int("skipped", report.Skipped),
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", report.Failed))
	return report, nil
}

// Apply applies one batch of file events.
func (ing *Ingester) Apply(ctx context.Context, events []FileEvent) Report {
	report := newReport()
	for _, ev := range events {
		if ctx.Err() != nil {
			return report
		}
		id := DocumentID(ev.Path)

		switch {
		case ev.Operation == OpDelete || ev.Operation == OpRename:
			ing.remove(ctx, &report, id, ev.IsDir)
		case ev.IsDir:
			// Files inside a new directory arrive as their own events.
		default:
			ing.upsert(ctx, &report, id)
		}
	}
	return report
}

func (ing *Ingester) upsert(ctx context.Context, report *Report, id string) {
	text, err := readDocument(filepath.Join(ing.root, filepath.FromSlash(id)))
	if os.IsNotExist(err) {
		ing.remove(ctx, report, id, false)
		return
	}
	if err != nil {
		report.fail(id, err)
		return
	}
	if textproc.IsBlank(text) {
		// An emptied file is no longer a document.
		ing.remove(ctx, report, id, false)
		return
	}

	action, _, err := ing.target.Sync(ctx, id, text, fileMetadata(id))
	switch action {
	case index.SyncAdded:
		report.Added++
	case index.SyncUpdated:
		report.Updated++
	case index.SyncSkipped:
		report.Skipped++
	default:
		report.fail(id, err)
	}
}

func (ing *Ingester) remove(ctx context.Context, report *Report, id string, isDir bool) {
	if isDir {
		prefix := id + "/"
		if err := ing.prune(ctx, report, func(doc string) bool {
			return strings.HasPrefix(doc, prefix)
		}); err != nil {
			report.fail(id, err)
		}
		return
	}
	res, err := ing.target.Delete(ctx, id)
	if err != nil {
		report.fail(id, err)
		return
	}
	if res.Version > 0 {
		report.Deleted++
	}
}

// prune deletes file documents for which drop returns true.
func (ing *Ingester) prune(ctx context.Context, report *Report, drop func(id string) bool) error {
	records, err := ing.target.StructuredQuery(ctx, search.StructuredRequest{
		Filters: []store.Filter{{Field: MetaSource, Op: store.OpEq, Values: []any{SourceFile}}},
	})
	if err != nil {
		return err
	}
	for _, r := range records {
		if !drop(r.ID) {
			continue
		}
		if _, err := ing.target.Delete(ctx, r.ID); err != nil {
			report.fail(r.ID, err)
			continue
		}
		report.Deleted++
	}
	return nil
}

// Watch applies batches from src until ctx is done or src closes.
func (ing *Ingester) Watch(ctx context.Context, src EventSource) error {
	events, errs := src.Events(), src.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			report := ing.Apply(ctx, batch)
			for id, err := range report.Errors {
				slog.Warn("ingest_failed", slog.String("id", id), slog.String("error", err.Error()))
			}
			if report.Changed() || report.Failed > 0 {
				slog.Info("ingest_batch_applied",
					slog.Int("events", len(batch)),
					slog.Int("added", report.Added),
					slog.Int("updated", report.Updated),
					slog.Int("deleted", report.Deleted),
					slog.Int("failed", report.Failed))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func fileMetadata(id string) map[string]any {
	return map[string]any{MetaSource: SourceFile, MetaPath: id}
}

// readDocument reads a UTF-8 text file of at most MaxFileSize bytes.
func readDocument(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxFileSize {
		return "", errors.ValidationError(fmt.Sprintf("file exceeds %d bytes", MaxFileSize), nil).
			WithDetail("path", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.ValidationError("file is not valid UTF-8", nil).WithDetail("path", path)
	}
	return string(data), nil
}
