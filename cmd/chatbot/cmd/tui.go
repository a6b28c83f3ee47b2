package cmd

import (
	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/ui"
)

func newTUICmd(g *globalOptions) *cobra.Command {
	var topN int

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Search interactively",
		Long: `Open a full-screen search prompt. Enter runs the query, the arrow
keys browse results and esc quits. /sql queries work here too.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			return ui.RunSearch(cmd.Context(), svc, ui.SearchConfig{
				Output:  cmd.OutOrStdout(),
				Input:   cmd.InOrStdin(),
				NoColor: g.noColor,
				TopN:    topN,
				Timeout: svc.Config().Index.OperationTimeout,
			})
		},
	}

	cmd.Flags().IntVarP(&topN, "top-n", "n", 10, "Maximum number of results per query")
	return cmd
}
