package cmd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/output"
	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topN          int
	certainty     float64
	lexicalWeight float64
	vectorWeight  float64
	format        string
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the documents",
		Long: `Search the documents with hybrid keyword and semantic ranking.

Both scores are min-max normalized over the candidate pool and fused with
the configured weights. A query starting with /sql is run as a structured
filter over metadata instead.`,
		Example: `  chatbot search "quantum computing"
  chatbot search "luật đất đai" --top-n 5 --certainty 0.4
  chatbot search "/sql WHERE year >= 2013 ORDER BY year DESC"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !output.ValidFormat(opts.format) {
				return fmt.Errorf("unknown format %q", opts.format)
			}
			query := strings.Join(args, " ")

			searchOpts := search.SearchOptions{TopN: opts.topN}
			if cmd.Flags().Changed("certainty") {
				searchOpts.CertaintyThreshold = &opts.certainty
			}
			if cmd.Flags().Changed("lexical-weight") || cmd.Flags().Changed("vector-weight") {
				w := search.Weights{Lexical: opts.lexicalWeight, Vector: opts.vectorWeight}
				switch {
				case !cmd.Flags().Changed("vector-weight"):
					w.Vector = 1 - w.Lexical
				case !cmd.Flags().Changed("lexical-weight"):
					w.Lexical = 1 - w.Vector
				}
				searchOpts.Weights = &w
			}

			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			start := time.Now()
			slog.Info("search_started", slog.String("query", query), slog.Int("top_n", opts.topN))
			resp, err := svc.Query(cmd.Context(), query, searchOpts)
			if err != nil {
				slog.Error("search_failed", slog.String("query", query), slog.String("error", err.Error()))
				return err
			}
			slog.Info("search_completed",
				slog.String("query", query),
				slog.String("mode", resp.Mode),
				slog.Int("results", len(resp.Results)+len(resp.Records)),
				slog.Duration("duration", time.Since(start)))

			return printResponse(output.New(cmd.OutOrStdout()), opts.format, query, resp)
		},
	}

	cmd.Flags().IntVarP(&opts.topN, "top-n", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.certainty, "certainty", 0, "Minimum raw vector similarity, applied before truncation")
	cmd.Flags().Float64Var(&opts.lexicalWeight, "lexical-weight", 0.5, "Keyword weight in [0,1]")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 0.5, "Semantic weight in [0,1]")
	cmd.Flags().StringVarP(&opts.format, "format", "f", output.FormatText, "Output format: text, json")

	return cmd
}

func printResponse(out *output.Writer, format, query string, resp *retrieval.QueryResponse) error {
	if format == output.FormatJSON {
		return out.JSON(resp)
	}
	if resp.Mode == retrieval.ModeStructured {
		out.Records(resp.Records)
		return nil
	}
	out.Results(query, resp.Results)
	return nil
}
