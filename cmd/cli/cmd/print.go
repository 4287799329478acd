package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/utils"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	highColor     = color.New(color.FgRed, color.Bold)
	mediumColor   = color.New(color.FgYellow)
	lowColor      = color.New(color.FgGreen)
	statusOKColor = color.New(color.FgGreen, color.Bold)
)

func severityColor(s string) *color.Color {
	switch s {
	case model.SeverityHigh:
		return highColor
	case model.SeverityMedium:
		return mediumColor
	default:
		return lowColor
	}
}

func statusColor(s model.AnalysisStatus) *color.Color {
	switch s {
	case model.AnalysisStatusCompleted:
		return statusOKColor
	case model.AnalysisStatusEmpty, model.AnalysisStatusCancelled:
		return mediumColor
	default:
		return highColor
	}
}

// printReport writes the human-readable summary of a report.
func printReport(w io.Writer, r *model.Report, topN int) {
	if topN <= 0 {
		topN = 10
	}
	s := r.Summary

	headerColor.Fprintf(w, "=== %s ===\n", r.Snapshot.Path)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Report ID:\t%s\n", r.ID)
	if r.Snapshot.JVMVersion != "" {
		fmt.Fprintf(tw, "JVM:\t%s\n", r.Snapshot.JVMVersion)
	}
	fmt.Fprintf(tw, "Objects:\t%d (%d classes)\n", r.Snapshot.NumObjects, r.Snapshot.NumClasses)
	fmt.Fprintf(tw, "Heap size:\t%s\n", utils.FormatBytes(s.TotalSize))
	fmt.Fprintf(tw, "Instances / object arrays / value arrays:\t%d / %d / %d\n",
		s.NumInstances, s.NumObjectArrays, s.NumValueArrays)
	fmt.Fprintf(tw, "Object headers:\t%s\n", utils.FormatBytes(s.HeaderOverhead))
	fmt.Fprintf(tw, "Collections:\t%d\n", s.NumCollections)
	fmt.Fprintf(tw, "Duplicate strings:\t%d (%s)\n", s.NumDupStrings, utils.FormatBytes(s.DupStringOverhead))
	fmt.Fprintf(tw, "Duplicate arrays:\t%d (%s)\n", s.NumDupArrays, utils.FormatBytes(s.DupArrayOverhead))
	fmt.Fprintf(tw, "Boxed numbers:\t%d (%s)\n", s.NumBoxedNumbers, utils.FormatBytes(s.BoxedOverhead))
	fmt.Fprintf(tw, "Problem overhead:\t%s (%.1f%%)\n", utils.FormatBytes(s.ProblemOverhead), s.OverheadPercent())
	tw.Flush()

	if len(r.Problems) > 0 {
		headerColor.Fprintln(w, "\nProblems")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tKIND\tCOUNT\tOVERHEAD")
		for _, p := range r.Problems {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Category, p.Kind, p.Count, utils.FormatBytes(p.Overhead))
		}
		tw.Flush()
	}

	if top := r.TopFindings(model.ViewField, topN); len(top) > 0 {
		headerColor.Fprintln(w, "\nTop findings by field")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "OVERHEAD\tOBJECTS\tTYPE\tREFERER\tTOP ENTRY")
		for _, f := range top {
			entry := ""
			if len(f.Entries) > 0 {
				entry = f.Entries[0].Label
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
				utils.FormatBytes(f.Overhead), f.NumObjects, f.Type, truncate(f.Referer, 80), truncate(entry, 60))
		}
		tw.Flush()
	}

	if len(r.Classes) > 0 {
		headerColor.Fprintln(w, "\nLargest classes")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INCLUSIVE	SHALLOW	INSTANCES	CATEGORY	CLASS")
		for i, c := range r.Classes {
			if i == topN {
				break
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				utils.FormatBytes(c.InclusiveSize), utils.FormatBytes(c.ShallowSize), c.Instances, c.Category, c.Name)
		}
		tw.Flush()
	}

	if len(r.Suggestions) > 0 {
		headerColor.Fprintln(w, "\nSuggestions")
		for _, sg := range r.Suggestions {
			severityColor(sg.Severity).Fprintf(w, "  [%s] ", strings.ToUpper(sg.Severity))
			fmt.Fprint(w, sg.Suggestion)
			if sg.Referer != "" {
				fmt.Fprintf(w, " (%s)", sg.Referer)
			}
			fmt.Fprintln(w)
		}
	}
}

// printBatch writes one line per batch result.
func printBatch(w io.Writer, results []model.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSNAPSHOT\tHEAP\tOVERHEAD\tDETAIL")
	for _, r := range results {
		heapSize, ovhd, detail := "-", "-", r.Error
		if r.Report != nil {
			heapSize = utils.FormatBytes(r.Report.Summary.TotalSize)
			ovhd = fmt.Sprintf("%s (%.1f%%)", utils.FormatBytes(r.Report.Summary.ProblemOverhead),
				r.Report.Summary.OverheadPercent())
			detail = r.Report.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			statusColor(r.Status).Sprint(r.Status), r.Path, heapSize, ovhd, detail)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
