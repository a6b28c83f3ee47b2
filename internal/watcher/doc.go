// Package watcher turns a directory of text files into documents and keeps
// the index in step with it.
//
// A HybridWatcher watches the tree with fsnotify and falls back to polling
// where fsnotify is unavailable (network mounts, some container volumes).
// Events are debounced per path and filtered by extension and ignore
// patterns. An Ingester applies event batches to the index: a file becomes
// the document whose id is its slash-separated path relative to the root.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, root) }()
//
//	ing := watcher.NewIngester(svc, root, opts)
//	return ing.Watch(ctx, w)
package watcher
