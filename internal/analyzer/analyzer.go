// Package analyzer runs the heap statistics over snapshot files and turns
// the results into reports that can be written, stored and uploaded.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/heapscan/internal/clusters"
	"github.com/heapscan/internal/heap"
	"github.com/heapscan/internal/heap/snapfile"
	"github.com/heapscan/internal/repository"
	"github.com/heapscan/internal/stats"
	"github.com/heapscan/internal/storage"
	"github.com/heapscan/pkg/config"
	apperrors "github.com/heapscan/pkg/errors"
	"github.com/heapscan/pkg/filter"
	"github.com/heapscan/pkg/model"
	"github.com/heapscan/pkg/telemetry"
	"github.com/heapscan/pkg/utils"
)

// ProgressFunc receives the completion percentage of the snapshot at path.
type ProgressFunc func(path string, percent int)

// Analyzer analyzes heap snapshots with one AnalysisConfig. It is safe for
// concurrent use; every call builds its own calculator.
type Analyzer struct {
	cfg      config.AnalysisConfig
	logger   utils.Logger
	clock    utils.Clock
	repo     repository.ReportRepository
	store    storage.Storage
	version  string
	progress ProgressFunc
	verbose  bool
	classes  *filter.ClassFilter
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger utils.Logger) Option {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithClock sets the clock used for timing and progress polling.
func WithClock(clock utils.Clock) Option {
	return func(a *Analyzer) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithRepository enables saving reports to a database.
func WithRepository(repo repository.ReportRepository) Option {
	return func(a *Analyzer) { a.repo = repo }
}

// WithStorage enables "storage://" snapshot paths and report uploads.
func WithStorage(store storage.Storage) Option {
	return func(a *Analyzer) { a.store = store }
}

// WithVersion sets the version stamped into reports.
func WithVersion(version string) Option {
	return func(a *Analyzer) { a.version = version }
}

// WithProgress sets a callback polled every ProgressInterval while a
// snapshot is scanned.
func WithProgress(fn ProgressFunc) Option {
	return func(a *Analyzer) { a.progress = fn }
}

// WithVerbose logs the phase timings of every analysis.
func WithVerbose(verbose bool) Option {
	return func(a *Analyzer) { a.verbose = verbose }
}

// New creates an Analyzer.
func New(cfg config.AnalysisConfig, opts ...Option) *Analyzer {
	cfg = withDefaults(cfg)
	a := &Analyzer{
		cfg:     cfg,
		logger:  &utils.NullLogger{},
		clock:   utils.NewRealClock(),
		version: "dev",
		classes: filter.NewClassFilter(cfg.AppPackages...),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source identifies where a snapshot came from.
type Source struct {
	Path     string
	FileSize int64
}

// Analyze reads the snapshot file at path and analyzes it. A path of the
// form "storage://<key>" is first downloaded from the configured storage.
// A snapshot without objects fails with ErrEmptySnapshot, and a cancelled
// ctx with ErrCancelled.
func (a *Analyzer) Analyze(ctx context.Context, path string) (report *model.Report, err error) {
	ctx, span := telemetry.StartSpan(ctx, "analyze", telemetry.AttrSnapshotPath.String(path))
	defer func() { telemetry.EndSpan(span, err) }()

	timer := a.newTimer(path)

	local, cleanup, err := a.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var snap *heap.Heap
	if _, err := timer.TimeFuncWithError("load", func() error {
		var loadErr error
		snap, loadErr = snapfile.ReadFile(ctx, local)
		return loadErr
	}); err != nil {
		return nil, err
	}
	a.logger.Debug("loaded %s: %d objects, %d classes", path, snap.NumObjects(), snap.NumClasses())
	if n := snap.UnresolvedRefs(); n > 0 {
		a.logger.Warn("%s: %d references point outside the snapshot", path, n)
	}

	src := Source{Path: path}
	if fi, statErr := os.Stat(local); statErr == nil {
		src.FileSize = fi.Size()
	}

	report, err = a.analyze(ctx, snap, src, timer)
	if report != nil {
		span.SetAttributes(telemetry.AttrOverhead.Int64(report.Summary.ProblemOverhead))
	}
	return report, err
}

// AnalyzeSnapshot analyzes a snapshot that is already in memory.
func (a *Analyzer) AnalyzeSnapshot(ctx context.Context, snap heap.Snapshot, src Source) (*model.Report, error) {
	return a.analyze(ctx, snap, src, a.newTimer(src.Path))
}

func (a *Analyzer) analyze(ctx context.Context, snap heap.Snapshot, src Source, timer *utils.Timer) (*model.Report, error) {
	if snap.NumObjects() == 0 {
		return nil, apperrors.ErrEmptySnapshot
	}
	log := a.logger.WithField("snapshot", src.Path)

	recorder := clusters.NewRecorder()
	calc := stats.NewStandardCalculator(snap, recorder, a.statsOptions(log))

	scan := timer.Start("scan")
	hs, err := a.calculate(ctx, calc, snap, src.Path)
	scan.Stop()
	if err != nil {
		return nil, err
	}

	build := timer.Start("report")
	detailed := recorder.DetailedStats(a.cfg.MinClusterOverhead)
	detailed.Truncate(a.cfg.TopN)
	report := a.buildReport(snap, src, hs, detailed)
	build.Stop()

	report.Durations = timer.Durations()
	if a.verbose {
		timer.PrintSummary()
	}
	log.Info("analysis done: %d findings, %s of problem overhead (%.1f%%)",
		len(report.Findings), utils.FormatBytes(report.Summary.ProblemOverhead), report.Summary.OverheadPercent())
	return report, nil
}

// withDefaults completes a config that did not go through config.Load.
// Such a config has no scan order, and its scan settings are taken from
// config.Default as a whole since a false AlternateDirection cannot be
// told apart from an unset one.
func withDefaults(cfg config.AnalysisConfig) config.AnalysisConfig {
	def := config.Default().Analysis
	if cfg.ScanOrder == "" {
		cfg.ScanOrder = def.ScanOrder
		cfg.AlternateDirection = def.AlternateDirection
		if cfg.SmallCollectionMaxSize == 0 {
			cfg.SmallCollectionMaxSize = def.SmallCollectionMaxSize
		}
	}
	if cfg.MinBadPercentile <= 0 {
		cfg.MinBadPercentile = def.MinBadPercentile
	}
	return cfg
}

func (a *Analyzer) statsOptions(log utils.Logger) stats.Options {
	opts := stats.DefaultOptions()
	if a.cfg.ScanOrder != "" {
		opts.Order = stats.ScanOrder(a.cfg.ScanOrder)
	}
	if a.cfg.LocalityLookahead {
		opts.Locality = stats.NewClosestOffset()
	}
	opts.AlternateDirection = a.cfg.AlternateDirection
	opts.SmallCollectionMaxSize = a.cfg.SmallCollectionMaxSize
	opts.Logger = log
	return opts
}

func (a *Analyzer) newTimer(name string) *utils.Timer {
	return utils.NewTimer("analysis of "+name, utils.WithLogger(a.logger), utils.WithClock(a.clock))
}

// fetch returns a local path for p, downloading "storage://" keys into a
// temporary directory that cleanup removes.
func (a *Analyzer) fetch(ctx context.Context, p string) (local string, cleanup func(), err error) {
	key, ok := storage.ParseKey(p)
	if !ok {
		return p, func() {}, nil
	}
	if a.store == nil {
		return "", nil, apperrors.Newf(apperrors.CodeConfigError, "%s requires storage to be enabled", p)
	}

	dir, err := os.MkdirTemp("", "heapscan-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	local = filepath.Join(dir, path.Base(key))
	if err := a.store.DownloadFile(ctx, key, local); err != nil {
		cleanup()
		return "", nil, apperrors.Wrap(apperrors.CodeStorageError, "failed to download "+p, err)
	}
	a.logger.Debug("downloaded %s to %s", p, local)
	return local, cleanup, nil
}
