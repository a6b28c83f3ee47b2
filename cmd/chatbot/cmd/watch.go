package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/NguyenDuy1910/chatbot/internal/output"
	"github.com/NguyenDuy1910/chatbot/internal/watcher"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Sync a directory and keep the index in line with it",
		Long: `Run sync, then watch the directory and apply file changes as they
settle. Uses native file notifications and falls back to polling.
Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, closeAll, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			root, err := g.sourceDir(args)
			if err != nil {
				return err
			}
			opts.plain = true
			ing, err := runSync(ctx, cmd, g, svc, root, opts)
			if err != nil {
				return err
			}

			w, err := watcher.NewHybridWatcher(watchOptions(svc.Config()))
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			output.New(cmd.OutOrStdout()).Statusf("👀", "Watching %s (%s)", root, w.WatcherType())
			slog.Info("watch_started", slog.String("root", root), slog.String("watcher", w.WatcherType()))

			grp, gctx := errgroup.WithContext(ctx)
			grp.Go(func() error { return w.Start(gctx, root) })
			grp.Go(func() error { return ing.Watch(gctx, w) })

			err = grp.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.prune, "prune", true, "Delete documents whose file is gone during the first sync")
	return cmd
}
