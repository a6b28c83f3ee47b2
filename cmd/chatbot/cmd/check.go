package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/internal/output"
)

// checkReport is the JSON form of check.
type checkReport struct {
	*index.CheckResult
	Repair *index.RepairResult `json:"repair,omitempty"`
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	var (
		repair     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the indexes against the document store",
		Long: `Compare the keyword and vector indexes with the live documents.
Orphan entries belong to no live document; missing entries are live
documents an index lacks. --repair removes orphans and reindexes missing
documents.

Exits non-zero when inconsistencies remain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeAll, err := g.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeAll()

			var report checkReport
			if repair {
				report.CheckResult, report.Repair, err = svc.Repair(cmd.Context())
			} else {
				report.CheckResult, err = svc.Check(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if err := out.JSON(report); err != nil {
					return err
				}
			} else {
				printCheck(out, report)
			}

			remaining := len(report.Inconsistencies)
			if report.Repair != nil {
				remaining = report.Repair.Failed
			}
			if remaining > 0 {
				return fmt.Errorf("%d inconsistencies remain", remaining)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Repair detected inconsistencies")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printCheck(out *output.Writer, report checkReport) {
	if len(report.Inconsistencies) == 0 {
		out.Successf("%d documents checked, indexes consistent (%s)", report.Checked, report.Duration.Round(time.Millisecond))
		return
	}
	out.Warningf("%d documents checked, %d inconsistencies", report.Checked, len(report.Inconsistencies))
	for _, issue := range report.Inconsistencies {
		out.Statusf("", "%-16s %s  %s", issue.Type, issue.ID, issue.Details)
	}
	if r := report.Repair; r != nil {
		out.Newline()
		if r.Failed > 0 {
			out.Warningf("Repair: %d removed, %d reindexed, %d failed", r.Removed, r.Reindexed, r.Failed)
		} else {
			out.Successf("Repair: %d removed, %d reindexed", r.Removed, r.Reindexed)
		}
	}
}
