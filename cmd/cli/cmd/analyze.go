package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heapscan/internal/analyzer"
	"github.com/heapscan/internal/stats"
	"github.com/heapscan/pkg/config"
	apperrors "github.com/heapscan/pkg/errors"
)

var (
	// Analyze command flags
	inputFile     string
	outputDir     string
	outputFormat  string
	scanOrder     string
	lookahead     bool
	alternate     bool
	smallMax      int
	minOverhead   int64
	topN          int
	saveDB        bool
	uploadReport  bool
	showProgress  bool
	noWriteReport bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one heap snapshot",
	Long: `Analyze a heap snapshot and report its memory overhead.

The analysis makes two passes over the object graph. The first collects
overall statistics: object counts, duplicate strings and arrays, boxed
numbers and per-class field usage. The second walks the graph from the GC
roots and classifies every collection and array, attributing each finding
to the reference chain that reaches it.

The report is written to the output directory as <id>.json (or .json.gz)
and can be saved to the database and uploaded to storage.

Inputs of the form storage://<key> are downloaded from the configured
storage first.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	binName := BinName()
	analyzeCmd.Example = `  # Analyze with the defaults from heapscan.yaml
  ` + binName + ` analyze -i ./app.snap

  # Depth-first scan, only clusters above 1 KB, gzipped report
  ` + binName + ` analyze -i ./app.snap --order dfs --min-overhead 1024 --format json.gz

  # Analyze a snapshot kept in COS and upload the report next to it
  ` + binName + ` analyze -i storage://dumps/app.snap --upload`

	analyzeCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Snapshot file or storage://<key> (required)")
	analyzeCmd.MarkFlagRequired("input")
	addAnalysisFlags(analyzeCmd)
	addOutputFlags(analyzeCmd)
	analyzeCmd.Flags().BoolVar(&showProgress, "progress", false, "Log scan progress")
}

// addAnalysisFlags registers the flags that override the analysis config.
func addAnalysisFlags(c *cobra.Command) {
	c.Flags().StringVar(&scanOrder, "order", "", "Scan order of the detailed pass: bfs or dfs")
	c.Flags().BoolVar(&lookahead, "lookahead", false, "Prefer children close in memory during depth-first scans")
	c.Flags().BoolVar(&alternate, "alternate", true, "Alternate the breadth-first frontier direction")
	c.Flags().IntVar(&smallMax, "small-max", 0, "Largest element count of a SMALL collection")
	c.Flags().Int64Var(&minOverhead, "min-overhead", 0, "Drop clusters below this overhead in bytes")
	c.Flags().IntVarP(&topN, "top", "n", 0, "Clusters kept per kind and view")
}

// addOutputFlags registers the flags that say where reports go.
func addOutputFlags(c *cobra.Command) {
	c.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for reports")
	c.Flags().StringVarP(&outputFormat, "format", "f", "", "Report format: json, json.gz or json.zst")
	c.Flags().BoolVar(&saveDB, "save-db", false, "Save the report to the database")
	c.Flags().BoolVar(&uploadReport, "upload", false, "Upload the report to storage")
	c.Flags().BoolVar(&noWriteReport, "no-report", false, "Print the summary only")
}

// analysisConfig applies the changed flags of c to the loaded config.
func analysisConfig(c *cobra.Command) (config.AnalysisConfig, error) {
	ac := cfg.Analysis
	flags := c.Flags()
	if flags.Changed("order") {
		order, err := stats.ParseScanOrder(scanOrder)
		if err != nil {
			return ac, apperrors.Wrap(apperrors.CodeInvalidInput, "bad --order", err)
		}
		ac.ScanOrder = config.ScanOrder(order)
	}
	if flags.Changed("lookahead") {
		ac.LocalityLookahead = lookahead
	}
	if flags.Changed("alternate") {
		ac.AlternateDirection = alternate
	}
	if flags.Changed("small-max") {
		if smallMax < 0 {
			return ac, apperrors.New(apperrors.CodeInvalidInput, "--small-max must not be negative")
		}
		ac.SmallCollectionMaxSize = smallMax
	}
	if flags.Changed("min-overhead") {
		if minOverhead < 0 {
			return ac, apperrors.New(apperrors.CodeInvalidInput, "--min-overhead must not be negative")
		}
		ac.MinClusterOverhead = minOverhead
	}
	if flags.Changed("top") {
		ac.TopN = topN
	}
	if ac.LocalityLookahead && ac.ScanOrder != config.ScanOrderDFS {
		logger.Warn("--lookahead only affects depth-first scans")
	}
	return ac, nil
}

func publishOptions() analyzer.PublishOptions {
	opts := analyzer.PublishOptions{
		Dir:    cfg.Output.Dir,
		Format: cfg.Output.Format,
		Indent: cfg.Output.Indent,
		Save:   saveDB,
		Upload: uploadReport,
	}
	if outputDir != "" {
		opts.Dir = outputDir
	}
	if outputFormat != "" {
		opts.Format = outputFormat
	}
	return opts
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ac, err := analysisConfig(cmd)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, saveDB, uploadReport, inputFile)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := b.analyzerOptions()
	if showProgress {
		opts = append(opts, analyzer.WithProgress(func(path string, pct int) {
			logger.Info("%s: %d%%", path, pct)
		}))
	}
	a := analyzer.New(ac, opts...)

	logger.Info("Analyzing %s (%s scan)", inputFile, ac.ScanOrder)
	report, err := a.Analyze(ctx, inputFile)
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report, ac.TopN)

	if noWriteReport {
		return nil
	}
	pub, err := a.Publish(ctx, report, publishOptions())
	if pub != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\nReport: %s\n", pub.File.Path)
		if pub.URL != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded: %s\n", pub.URL)
		}
	}
	return err
}
