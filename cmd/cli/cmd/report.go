package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/utils"
)

var (
	listLimit    int
	findingsView string
	findingsTop  int
)

// reportCmd groups the commands that read saved reports.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Browse reports saved in the database",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, func(b *backends) error {
			r, err := b.repos.Report.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), r, cfg.Analysis.TopN)
			return nil
		})
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list <snapshot-name>",
	Short: "List the saved reports of a snapshot, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, func(b *backends) error {
			reports, err := b.repos.Report.ListBySnapshot(cmd.Context(), args[0], listLimit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tANALYZED\tSTATUS\tORDER\tHEAP\tOVERHEAD")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.AnalyzedAt.Format("2006-01-02 15:04:05"), r.Status, r.Settings.ScanOrder,
					utils.FormatBytes(r.Summary.TotalSize), utils.FormatBytes(r.Summary.ProblemOverhead))
			}
			return tw.Flush()
		})
	},
}

var reportFindingsCmd = &cobra.Command{
	Use:   "findings <id>",
	Short: "List the findings of a saved report by overhead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch findingsView {
		case "", model.ViewChain, model.ViewField:
		default:
			return apperrors.Newf(apperrors.CodeInvalidInput, "unknown view %q (valid: chain, field)", findingsView)
		}
		return withRepository(cmd, func(b *backends) error {
			findings, err := b.repos.Report.ListTopFindings(cmd.Context(), args[0], findingsView, findingsTop)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "OVERHEAD\tOBJECTS\tVIEW\tTYPE\tREFERER")
			for _, f := range findings {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
					utils.FormatBytes(f.Overhead), f.NumObjects, f.View, f.Type, f.Referer)
			}
			return tw.Flush()
		})
	},
}

var reportDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved report and its findings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd, func(b *backends) error {
			if err := b.repos.Report.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportShowCmd, reportListCmd, reportFindingsCmd, reportDeleteCmd)

	reportListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum number of reports")
	reportFindingsCmd.Flags().StringVar(&findingsView, "view", model.ViewField, "Finding view: chain or field (empty for both)")
	reportFindingsCmd.Flags().IntVarP(&findingsTop, "top", "n", 20, "Maximum number of findings")
}

func withRepository(cmd *cobra.Command, fn func(*backends) error) error {
	b, err := openBackends(cmd.Context(), true, false)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.repos.HealthCheck(cmd.Context()); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "database unreachable", err)
	}
	return fn(b)
}
