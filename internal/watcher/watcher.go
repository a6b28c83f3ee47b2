package watcher

import (
	"context"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was moved away from Path.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// EventSource delivers debounced event batches.
type EventSource interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Watcher watches a directory tree.
type Watcher interface {
	EventSource

	// Start watches path recursively until Stop is called or ctx is done.
	Start(ctx context.Context, path string) error

	// Stop releases resources. Safe to call multiple times.
	Stop() error
}

// Options configures watching and ingestion.
type Options struct {
	// DebounceWindow is the quiet time before a batch is emitted.
	DebounceWindow time.Duration

	// PollInterval is the scan interval of the polling fallback.
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	EventBufferSize int

	// Extensions lists the file suffixes that are documents.
	Extensions []string

	// IgnorePatterns are path.Match globs tested against the relative path
	// and the base name.
	IgnorePatterns []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
		Extensions:      []string{".txt", ".md"},
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if len(o.Extensions) == 0 {
		o.Extensions = d.Extensions
	}
	return o
}

// Ignored reports whether rel is outside the document set. Hidden entries,
// which include .git and the data directory, are always ignored.
func (o Options) Ignored(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	base := path.Base(rel)
	for _, p := range o.IgnorePatterns {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	if isDir {
		return false
	}
	return !o.hasExtension(base)
}

func (o Options) hasExtension(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range o.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
