package cmd

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/config"
	"github.com/NguyenDuy1910/chatbot/internal/ui"
	"github.com/NguyenDuy1910/chatbot/internal/watcher"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

// syncOptions holds CLI flags for sync and watch.
type syncOptions struct {
	prune bool
	plain bool
}

func newSyncCmd(g *globalOptions) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync [dir]",
		Short: "Ingest the text files of a directory",
		Long: `Bring the index in line with a directory. Every matching file becomes
a document whose id is its slash-separated relative path. Files whose text
is nearly unchanged are skipped.

With --prune, documents of files that no longer exist are deleted.`,
		Example: `  chatbot sync docs/
  chatbot sync --prune --plain`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			root, err := g.sourceDir(args)
			if err != nil {
				return err
			}
			_, err = runSync(cmd.Context(), cmd, g, svc, root, opts)
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.prune, "prune", false, "Delete documents whose file is gone")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain text progress even on a terminal")
	return cmd
}

// sourceDir returns the directory to ingest: the argument or the project
// directory.
func (o *globalOptions) sourceDir(args []string) (string, error) {
	if len(args) == 0 {
		return o.projectDir()
	}
	return filepath.Abs(args[0])
}

// watchOptions maps the watch config section to watcher options.
func watchOptions(cfg *config.Config) watcher.Options {
	return watcher.Options{
		DebounceWindow: cfg.Watch.Debounce,
		PollInterval:   cfg.Watch.PollInterval,
		Extensions:     cfg.Watch.Extensions,
		IgnorePatterns: cfg.Watch.Ignore,
	}
}

// runSync ingests root with a progress renderer and returns the ingester
// for reuse by watch.
func runSync(ctx context.Context, cmd *cobra.Command, g *globalOptions, svc *retrieval.Service, root string, opts syncOptions) (*watcher.Ingester, error) {
	start := time.Now()
	cfg := svc.Config()

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(g.noColor),
		ui.WithTitle(root),
	))
	if err := renderer.Start(ctx); err != nil {
		return nil, err
	}
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + root})

	ing := watcher.NewIngester(svc, root, watchOptions(cfg))
	ing.OnProgress(func(done, total int, lastID string) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageIndexing,
			Current: done,
			Total:   total,
			Item:    lastID,
		})
	})

	report, err := ing.SyncDir(ctx, opts.prune)
	if err != nil {
		_ = renderer.Stop()
		return nil, err
	}

	ids := make([]string, 0, len(report.Errors))
	for id := range report.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		renderer.AddError(ui.ErrorEvent{Item: id, Err: report.Errors[id]})
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StagePurging, Message: "Purging deleted documents"})
	if err := svc.FlushPurges(ctx); err != nil {
		renderer.AddError(ui.ErrorEvent{Err: err, IsWarn: true})
	}

	e := svc.Embedder()
	renderer.Complete(ui.CompletionStats{
		Added:    report.Added,
		Updated:  report.Updated,
		Skipped:  report.Skipped,
		Deleted:  report.Deleted,
		Failed:   report.Failed,
		Duration: time.Since(start),
		Embedder: ui.EmbedderInfo{
			Provider:   cfg.Embeddings.Provider,
			Model:      e.ModelName(),
			Dimensions: e.Dimensions(),
		},
	})
	if err := renderer.Stop(); err != nil {
		return nil, err
	}
	return ing, nil
}
