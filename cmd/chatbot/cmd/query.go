package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/output"
	"github.com/NguyenDuy1910/chatbot/internal/search"
)

func newQueryCmd(g *globalOptions) *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "query <expression>",
		Short: "Filter documents by id, version and metadata",
		Long: `Run a structured query over live documents. The indexes are not used.

  [WHERE cond {AND cond}] [ORDER BY field [ASC|DESC], ...] [LIMIT n]
  cond := field op value | field IN (value, ...)
  op   := = != < <= > >=

The /sql prefix is optional. Rows are ordered by the ORDER BY keys, then
by id.`,
		Example: `  chatbot query "WHERE year >= 2013 ORDER BY year DESC"
  chatbot query "WHERE topic IN ('land', 'traffic') LIMIT 5"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !output.ValidFormat(format) {
				return fmt.Errorf("unknown format %q", format)
			}
			expr := strings.Join(args, " ")
			if !search.IsStructured(expr) {
				expr = search.StructuredPrefix + " " + expr
			}
			req, err := search.ParseStructured(expr)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("limit") {
				req.Limit = limit
			}

			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			records, err := svc.StructuredQuery(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if format == output.FormatJSON {
				return out.JSON(records)
			}
			out.Records(records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of rows (overrides LIMIT)")
	cmd.Flags().StringVarP(&format, "format", "f", output.FormatText, "Output format: text, json")
	return cmd
}
