// Package cmd implements the heapscan command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/heapscan/pkg/config"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/pprof"
	"github.com/heapscan/pkg/telemetry"
	"github.com/heapscan/pkg/utils"
)

var (
	// Global flags
	configPath string
	verbose    bool
	noColor    bool

	// Pprof flags
	pprofEnabled  bool
	pprofDir      string
	pprofProfiles string

	cfg               *config.Config
	logger            utils.Logger = &utils.NullLogger{}
	telemetryShutdown telemetry.ShutdownFunc
	pprofCollector    *pprof.Collector
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "heapscan",
	Short: "Find memory overhead in Java heap snapshots",
	Long: `heapscan scans Java heap snapshots for memory overhead anti-patterns:
empty, sparse and small collections, boxed numbers, duplicate strings and
arrays, arrays with long zero tails and weak maps whose values refer back to
their keys. Findings are grouped by the reference chain that reaches them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		teardown(cmd.Context())
		return nil
	},
}

// Execute runs the root command and exits with a status derived from the
// error: 2 for bad input, 3 for unreadable or empty snapshots, 130 when
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		teardown(context.Background())
		color.New(color.FgRed, color.Bold).Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./heapscan.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Profile heapscan itself while it runs")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")

	binName := BinName()
	rootCmd.Example = `  # Analyze a snapshot and print the summary
  ` + binName + ` analyze -i ./app.snap

  # Depth-first scan with locality lookahead, saved to the database
  ` + binName + ` analyze -i ./app.snap --order dfs --lookahead --save-db

  # Analyze every snapshot of a directory on 4 workers
  ` + binName + ` batch -j 4 ./dumps/*.snap

  # Show the header of a snapshot file
  ` + binName + ` inspect ./app.snap`
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(configPath); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "failed to load config", err)
	}

	if noColor {
		color.NoColor = true
	}
	if logger, err = newLogger(&cfg.Log); err != nil {
		return err
	}
	utils.SetGlobalLogger(logger)

	if telemetryShutdown, err = telemetry.Init(cmd.Context()); err != nil {
		logger.Warn("telemetry disabled: %v", err)
	}

	if pprofEnabled {
		profiles, err := pprof.ParseProfileTypes(pprofProfiles)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "bad --pprof-profiles", err)
		}
		pcfg := pprof.DefaultConfig()
		pcfg.Dir = pprofDir
		pcfg.Profiles = profiles
		if pprofCollector, err = pprof.NewCollector(pcfg); err != nil {
			return err
		}
		if err := pprofCollector.Start(); err != nil {
			return err
		}
		logger.Info("pprof collection started (dir: %s)", pprofDir)
	}
	return nil
}

func teardown(ctx context.Context) {
	if pprofCollector != nil {
		files, err := pprofCollector.Stop()
		if err != nil {
			logger.Warn("Failed to stop pprof collector: %v", err)
		}
		for _, f := range files {
			logger.Info("pprof data saved to: %s", f)
		}
		pprofCollector = nil
	}
	if telemetryShutdown != nil {
		if err := telemetryShutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("telemetry shutdown: %v", err)
		}
		telemetryShutdown = nil
	}
}

func newLogger(lc *config.LogConfig) (utils.Logger, error) {
	level := utils.ParseLogLevel(lc.Level)
	if verbose {
		level = utils.LevelDebug
	}

	var out io.Writer = os.Stderr
	useColor := lc.Color && !noColor && utils.IsTerminal(os.Stderr)
	if lc.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(lc.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(lc.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		useColor = false
	}
	return utils.NewDefaultLogger(level, out, utils.WithColor(useColor)), nil
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
