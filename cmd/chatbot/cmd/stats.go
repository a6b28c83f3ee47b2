package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/ui"
)

// availabilityTimeout bounds the embedder probe of stats.
const availabilityTimeout = 5 * time.Second

func newStatsCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		check      bool
	)

	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"status"},
		Short:   "Show document and index statistics",
		Long: `Display document counts, index sizes, pending purges and the embedder
in use. --check also runs a consistency check.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeAll, err := g.openService(ctx)
			if err != nil {
				return err
			}
			defer closeAll()

			stats, err := svc.Stats(ctx)
			if err != nil {
				return err
			}
			info := ui.StatusInfo{
				Stats:           *stats,
				Provider:        svc.Config().Embeddings.Provider,
				EmbedderStatus:  "unavailable",
				Inconsistencies: -1,
			}

			probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
			if svc.Embedder().Available(probeCtx) {
				info.EmbedderStatus = "ready"
			}
			cancel()

			if check {
				result, err := svc.Check(ctx)
				if err != nil {
					return err
				}
				info.Inconsistencies = len(result.Inconsistencies)
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), g.noColor)
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&check, "check", false, "Also run a consistency check")
	return cmd
}
