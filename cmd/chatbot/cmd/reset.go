package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/output"
)

func newResetCmd(g *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every document and index entry",
		Long: `Clear the document store and both indexes and start a new index
generation. This cannot be undone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), "This deletes every document. Type 'yes' to continue: ")
				line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(line) != "yes" {
					return fmt.Errorf("reset aborted")
				}
			}

			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			if err := svc.ResetIndex(cmd.Context()); err != nil {
				return err
			}
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Index reset (generation %d)", stats.Generation)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
