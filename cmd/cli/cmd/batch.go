package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/heapscan/internal/analyzer"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/model"
)

var batchWorkers int

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <snapshot|dir>...",
	Short: "Analyze several heap snapshots in parallel",
	Long: `Analyze several snapshots on a bounded number of workers and publish one
report per snapshot. A directory argument stands for the regular files in
it. A failing snapshot does not stop the others; the command fails when
any snapshot failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addAnalysisFlags(batchCmd)
	addOutputFlags(batchCmd)
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "j", 0, "Snapshots analyzed at once (default: analysis.max_worker)")
}

// expandPaths replaces directories with the regular files they contain.
func expandPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil || !fi.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "cannot read "+arg, err)
		}
		var files []string
		for _, e := range entries {
			if e.Type().IsRegular() {
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(files)
		paths = append(paths, files...)
	}
	if len(paths) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "no snapshots to analyze")
	}
	return paths, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ac, err := analysisConfig(cmd)
	if err != nil {
		return err
	}
	if batchWorkers > 0 {
		ac.MaxWorker = batchWorkers
	}
	paths, err := expandPaths(args)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, saveDB, uploadReport, paths...)
	if err != nil {
		return err
	}
	defer b.Close()

	a := analyzer.New(ac, b.analyzerOptions()...)
	logger.Info("Analyzing %d snapshots on %d workers", len(paths), ac.MaxWorker)
	results, batchErr := a.AnalyzeBatch(ctx, paths)

	failed := 0
	if !noWriteReport {
		opts := publishOptions()
		for i := range results {
			r := &results[i]
			if r.Report == nil {
				continue
			}
			if _, err := a.Publish(ctx, r.Report, opts); err != nil {
				r.Status = model.AnalysisStatusFailed
				r.Error = err.Error()
			}
		}
	}
	for _, r := range results {
		if r.Status == model.AnalysisStatusFailed {
			failed++
		}
	}

	printBatch(cmd.OutOrStdout(), results)
	if batchErr != nil {
		return batchErr
	}
	if failed > 0 {
		return apperrors.New(apperrors.CodeAnalysisError, fmt.Sprintf("%d of %d snapshots failed", failed, len(results)))
	}
	return nil
}
