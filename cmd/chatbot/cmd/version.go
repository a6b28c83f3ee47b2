package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/output"
	"github.com/NguyenDuy1910/chatbot/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var asJSON, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the chatbot version",
		Long:  `Print the release, git commit, build date and Go toolchain of this binary.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			switch {
			case short:
				_, err := fmt.Fprintln(w, version.Short())
				return err
			case asJSON:
				return output.New(w).JSON(version.GetInfo())
			default:
				_, err := fmt.Fprintln(w, version.String())
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build info as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
