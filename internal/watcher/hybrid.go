package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches with fsnotify and falls back to polling when an
// fsnotify watcher cannot be created.
type HybridWatcher struct {
	opts        Options
	fsWatcher   *fsnotify.Watcher
	pollWatcher *PollingWatcher
	debouncer   *Debouncer
	events      chan []FileEvent
	errors      chan error
	stopCh      chan struct{}
	root        string

	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

var _ Watcher = (*HybridWatcher)(nil)

// NewHybridWatcher creates a watcher with the given options.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	h := &HybridWatcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify_unavailable",
			slog.String("error", err.Error()),
			slog.Duration("poll_interval", opts.PollInterval))
		h.pollWatcher = NewPollingWatcher(opts.PollInterval, opts)
	} else {
		h.fsWatcher = fsw
	}
	return h, nil
}

// Start watches path until Stop is called or ctx is done.
func (h *HybridWatcher) Start(ctx context.Context, path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	h.mu.Lock()
	h.root = root
	h.mu.Unlock()

	go h.forward(ctx)

	if h.fsWatcher == nil {
		return h.startPolling(ctx)
	}
	return h.startFsnotify(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	if err := h.addRecursive(h.root, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handle(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				h.debouncer.Add(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()
	return h.pollWatcher.Start(ctx, h.root)
}

// handle converts an fsnotify event and queues it.
func (h *HybridWatcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(h.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	} else if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		// The entry is gone. A path without a document extension may have
		// been a directory holding documents.
		isDir = !h.opts.hasExtension(filepath.Base(rel))
	}
	if h.opts.Ignored(rel, isDir) {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			// Files written before the watch was added have no events of
			// their own.
			if err := h.addRecursive(event.Name, true); err != nil {
				h.emitError(err)
			}
		}
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove):
		op = OpDelete
	case event.Op.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}
	h.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addRecursive watches every directory under dir. With emitFiles it also
// queues a create event for each document file found.
func (h *HybridWatcher) addRecursive(dir string, emitFiles bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(h.root, path)
		rel = filepath.ToSlash(rel)
		if rel != "." && h.opts.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return h.fsWatcher.Add(path)
		}
		if emitFiles {
			h.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

func (h *HybridWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			h.emitEvents(batch)
		}
	}
}

func (h *HybridWatcher) emitEvents(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- batch:
	default:
		n := h.droppedBatches.Add(1)
		slog.Warn("event_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}
	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of debounced batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// DroppedBatches returns the number of batches dropped on a full buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

// WatcherType returns "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
