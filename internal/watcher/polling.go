package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// PollingWatcher detects changes by rescanning the tree on an interval.
type PollingWatcher struct {
	interval time.Duration
	opts     Options
	root     string

	mu      sync.Mutex
	state   map[string]fileSnapshot
	events  chan FileEvent
	errors  chan error
	stopCh  chan struct{}
	stopped bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher filtered by opts.
func NewPollingWatcher(interval time.Duration, opts Options) *PollingWatcher {
	return &PollingWatcher{
		interval: interval,
		opts:     opts,
		state:    make(map[string]fileSnapshot),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 10),
		stopCh:   make(chan struct{}),
	}
}

// Start takes a baseline snapshot and then polls until stopped.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.root = root

	snap, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("perform initial scan: %w", err)
	}
	p.mu.Lock()
	p.state = snap
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.poll(); err != nil {
				select {
				case p.errors <- err:
				default:
				}
			}
		}
	}
}

// poll diffs a fresh snapshot against the previous one.
func (p *PollingWatcher) poll() error {
	current, err := p.snapshot()
	if err != nil {
		return fmt.Errorf("walk directory for changes: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for rel, snap := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			p.emit(FileEvent{Path: rel, Operation: OpCreate, IsDir: snap.isDir, Timestamp: now})
		case !snap.isDir && (prev.modTime != snap.modTime || prev.size != snap.size):
			p.emit(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, snap := range p.state {
		if _, ok := current[rel]; !ok {
			p.emit(FileEvent{Path: rel, Operation: OpDelete, IsDir: snap.isDir, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

func (p *PollingWatcher) snapshot() (map[string]fileSnapshot, error) {
	out := make(map[string]fileSnapshot)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.opts.Ignored(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[rel] = fileSnapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return out, err
}

// emit sends without blocking. Caller holds mu.
func (p *PollingWatcher) emit(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}

// Stop stops the polling watcher.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}
